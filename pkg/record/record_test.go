package record

import (
	"encoding/json"
	"testing"
)

func TestLookup(t *testing.T) {
	rec := Record{
		"_id":         "ord-1",
		"tennantId":   json.Number("42"),
		"tenantName":  "Acme",
		"status":      "pendiente",
		"marketPlace": map[string]any{"channel": "web", "status": "ignored"},
	}

	tests := []struct {
		field string
		want  any
		found bool
	}{
		{"_id", "ord-1", true},
		{"id", "ord-1", true},
		{"tenantId", json.Number("42"), true},
		{"tennantName", "Acme", true},
		{"status", "pendiente", true},
		{"channel", "web", true},
		{"missing", nil, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := rec.Lookup(tt.field)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.field, ok, tt.found)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestLookupPrefersTopLevel(t *testing.T) {
	rec := Record{
		"status":      "procesada",
		"marketPlace": map[string]any{"status": "error"},
	}

	got, _ := rec.Lookup("status")
	if got != "procesada" {
		t.Errorf("Lookup(status) = %v, want procesada", got)
	}
}

func TestIdentifiers(t *testing.T) {
	rec := Record{"id": json.Number("7"), "tenantId": "t-1", "tennantName": "Shop"}

	if got := rec.ID(); got != "7" {
		t.Errorf("ID() = %q, want 7", got)
	}
	if got := rec.TenantID(); got != "t-1" {
		t.Errorf("TenantID() = %q, want t-1", got)
	}
	if got := rec.TenantName(); got != "Shop" {
		t.Errorf("TenantName() = %q, want Shop", got)
	}

	var empty Record
	if got := empty.ID(); got != "" {
		t.Errorf("nil record ID() = %q, want empty", got)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"integral float", float64(12), "12"},
		{"fraction", 1.5, "1.5"},
		{"number", json.Number("99"), "99"},
		{"bool", true, "true"},
		{"object", map[string]any{"a": 1}, `{"a":1}`},
		{"array", []any{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) || !IsEmpty("  ") {
		t.Error("nil and blank strings should be empty")
	}
	if IsEmpty(0) || IsEmpty("x") || IsEmpty(false) {
		t.Error("zero values other than blank strings are not empty")
	}
}
