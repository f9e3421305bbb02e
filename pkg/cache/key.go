package cache

import (
	"fmt"
	"strings"
)

// Key identifies a cached tenant configuration.
type Key struct {
	// Scope separates kinds of cached data (e.g. "columns").
	Scope string

	// TenantID and TenantName form the tenant reference. Either may be empty.
	TenantID   string
	TenantName string
}

// String generates a deterministic cache key string.
// Format: opsgrid:scope:id=<tenantId>:name=<lowercased tenantName>
//
// Example:
//
//	opsgrid:columns:id=42:name=acme store
func (k Key) String() string {
	parts := []string{"opsgrid"}

	if scope := strings.Trim(k.Scope, ":"); scope != "" {
		parts = append(parts, scope)
	}

	if id := strings.TrimSpace(k.TenantID); id != "" {
		parts = append(parts, fmt.Sprintf("id=%s", id))
	}

	// Names are matched case-insensitively by the backend.
	if name := strings.ToLower(strings.TrimSpace(k.TenantName)); name != "" {
		parts = append(parts, fmt.Sprintf("name=%s", name))
	}

	return strings.Join(parts, ":")
}

// MatchesTenant reports whether k belongs to tenantName, with or without a
// tenant id.
func (k Key) MatchesTenant(scope, tenantName string) bool {
	name := strings.ToLower(strings.TrimSpace(tenantName))
	return name != "" &&
		strings.Trim(k.Scope, ":") == strings.Trim(scope, ":") &&
		strings.ToLower(strings.TrimSpace(k.TenantName)) == name
}

// idPattern is the Redis glob for every id-qualified key of k's tenant name.
func (k Key) idPattern() string {
	name := Key{Scope: k.Scope, TenantName: k.TenantName}.String()
	prefix := Key{Scope: k.Scope}.String()
	return escapeGlob(prefix) + ":id=*:" + escapeGlob(strings.TrimPrefix(name, prefix+":"))
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsZero reports whether the key carries no tenant reference.
func (k Key) IsZero() bool {
	return strings.TrimSpace(k.TenantID) == "" && strings.TrimSpace(k.TenantName) == ""
}
