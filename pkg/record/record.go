// Package record provides read helpers for the loosely shaped rows returned by
// the operations backend.
//
// Records are decoded as plain JSON objects. Field names drift between backend
// versions (for example "tennantId" and "tenantId"), and some fields only live
// inside the nested "marketPlace" object, so lookups go through Lookup rather
// than indexing the map directly.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one backend row. The core never interprets it beyond Lookup.
type Record map[string]any

// nestedKey is the object searched when a field is missing at the top level.
const nestedKey = "marketPlace"

// aliases lists the accepted spellings for drifting field names, in lookup order.
var aliases = map[string][]string{
	"_id":         {"_id", "id"},
	"id":          {"_id", "id"},
	"tennantId":   {"tennantId", "tenantId"},
	"tenantId":    {"tennantId", "tenantId"},
	"tennantName": {"tennantName", "tenantName"},
	"tenantName":  {"tennantName", "tenantName"},
}

// Lookup returns the value stored under field, resolving known aliases and
// falling back to the nested marketPlace object.
func (r Record) Lookup(field string) (any, bool) {
	if r == nil || field == "" {
		return nil, false
	}

	if names, ok := aliases[field]; ok {
		for _, name := range names {
			if v, ok := r[name]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}

	if v, ok := r[field]; ok && v != nil {
		return v, true
	}

	if nested, ok := r[nestedKey].(map[string]any); ok {
		if v, ok := nested[field]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

// ID returns the record identifier ("_id", else "id") as text.
func (r Record) ID() string {
	v, _ := r.Lookup("_id")
	return Text(v)
}

// TenantID returns the tenant identifier as text.
func (r Record) TenantID() string {
	v, _ := r.Lookup("tenantId")
	return Text(v)
}

// TenantName returns the tenant name.
func (r Record) TenantName() string {
	v, _ := r.Lookup("tenantName")
	return Text(v)
}

// Text renders a scalar value as plain text. Objects and arrays are rendered as
// compact JSON; nil becomes the empty string.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// IsEmpty reports whether v carries no displayable content.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
