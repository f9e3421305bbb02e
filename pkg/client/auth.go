package client

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token for backend calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

type tokenContextKey struct{}

// WithToken attaches a per-request bearer token to ctx. It takes precedence
// over the client's TokenSource; servers use it to forward the caller's token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

// Credential is the decoded view of a JWT bearer token. The signature is not
// verified here; the backend does that. Decoding only serves expiry checks and
// attributing bulk actions to an actor.
type Credential struct {
	Token     string
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
}

type credentialClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// ParseCredential decodes token. Malformed and expired tokens yield an AuthError.
func ParseCredential(token string) (*Credential, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, &AuthError{Reason: "no token supplied", Err: ErrMissingCredential}
	}

	claims := &credentialClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &AuthError{Reason: "malformed token", Err: err}
	}

	cred := &Credential{
		Token:   token,
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}
	if cred.Name == "" {
		cred.Name = claims.PreferredUsername
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
		if time.Now().After(cred.ExpiresAt) {
			return nil, &AuthError{Reason: "token expired", Err: jwt.ErrTokenExpired}
		}
	}
	return cred, nil
}

// Actor returns the identity bulk actions are attributed to: email, else
// name, else subject.
func (c *Credential) Actor() string {
	switch {
	case c.Email != "":
		return c.Email
	case c.Name != "":
		return c.Name
	default:
		return c.Subject
	}
}

// looksLikeJWT reports whether token has the three dot-separated JWT segments.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
