// Package client provides the HTTP client for the operations backend: paged
// collection reads, tenant column configuration, and bulk state changes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/record"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backend client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsgrid_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opsgrid_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsgrid_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// Client talks to the operations backend.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend API, e.g. "https://ops.example.com/api".
	BaseURL string

	// Tokens supplies the bearer token when the request context carries none.
	Tokens TokenSource

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64

	// ColumnsPath serves tenant column configuration.
	ColumnsPath string

	// SaveColumnsPath persists tenant column configuration.
	SaveColumnsPath string
}

// DefaultConfig returns the default configuration for baseURL.
func DefaultConfig(baseURL string, tokens TokenSource) Config {
	return Config{
		BaseURL:         baseURL,
		Tokens:          tokens,
		UserAgent:       "opsgrid/1.0",
		Timeout:         30 * time.Second,
		MaxBodyBytes:    32 << 20,
		ColumnsPath:     "/getOrdersByState",
		SaveColumnsPath: "/postParamTable",
	}
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.ColumnsPath == "" {
		cfg.ColumnsPath = "/getOrdersByState"
	}
	if cfg.SaveColumnsPath == "" {
		cfg.SaveColumnsPath = "/postParamTable"
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  base,
		config:   cfg,
		validate: validate,
		logger:   log.With().Str("component", "backend-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// token returns the bearer token for ctx: the per-request token first, then
// the configured TokenSource.
func (c *Client) token(ctx context.Context) (string, error) {
	token := tokenFromContext(ctx)
	if token == "" && c.config.Tokens != nil {
		var err error
		if token, err = c.config.Tokens.Token(ctx); err != nil {
			return "", &AuthError{Reason: "token source failed", Err: err}
		}
	}

	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", &AuthError{Reason: "no token supplied", Err: ErrMissingCredential}
	}

	// Only tokens provably expired are rejected locally; anything else that
	// fails to decode is left to the backend.
	if looksLikeJWT(token) {
		if _, err := ParseCredential(token); err != nil && errors.Is(err, jwt.ErrTokenExpired) {
			return "", err
		}
	}
	return token, nil
}

// do performs a JSON request and returns the decoded body (numbers as
// json.Number). A nil result means an empty body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Credential
	token, err := c.token(ctx)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
		return nil, err
	}

	// Step 2: Build request
	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("endpoint", path).
		Str("method", method).
		Str("request_id", requestID).
		Msg("Executing backend request")

	// Step 3: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := &NetworkError{Endpoint: path, Err: err}
		if ctxErr := ctx.Err(); ctxErr != nil {
			netErr.Err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		if IsCancelled(netErr) {
			requestsTotal.WithLabelValues(path, "cancelled").Inc()
			c.logger.Debug().Str("endpoint", path).Str("request_id", requestID).Msg("Request cancelled")
		} else {
			requestsTotal.WithLabelValues(path, "network_error").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			c.logger.Error().Err(err).Str("endpoint", path).Str("request_id", requestID).Msg("HTTP request failed")
		}
		return nil, netErr
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &NetworkError{Endpoint: path, Err: fmt.Errorf("read body: %w", err)}
	}

	decoded, decodeErr := decodeJSON(raw)

	// Step 4: Handle HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(decoded, resp),
			Endpoint:   path,
		}
		errorsTotal.WithLabelValues(string(httpErr.Class())).Inc()
		c.logger.Warn().
			Str("endpoint", path).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(httpErr.Class())).
			Str("request_id", requestID).
			Msg("Backend request error")
		return nil, httpErr
	}

	if decodeErr != nil {
		errorsTotal.WithLabelValues(string(ErrorClassPartialData)).Inc()
		return nil, &PartialDataError{Endpoint: path, Reason: "response is not JSON", Err: decodeErr}
	}

	return decoded, nil
}

func decodeJSON(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// errorMessage prefers the body's "error", then "message", then the status text.
func errorMessage(decoded any, resp *http.Response) string {
	if body, ok := decoded.(map[string]any); ok {
		for _, key := range []string{"error", "message"} {
			if msg := record.Text(body[key]); strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// Ack is a backend acknowledgement body.
type Ack map[string]any

func toAck(decoded any) Ack {
	if m, ok := decoded.(map[string]any); ok {
		return Ack(m)
	}
	return Ack{}
}
