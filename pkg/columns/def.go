// Package columns resolves which columns a tenant's table shows and renders
// record fields for display.
//
// Column sets come from the backend's tenant configuration and degrade through
// three tiers before falling back to a built-in template, so a table can
// always be drawn:
//
//  1. the tenant's saved entry in "columnsConfig" (matched by id or by
//     case-insensitive name)
//  2. the backend's "defaultColumns"
//  3. the backend's generic "columns"
//  4. Template()
package columns

import (
	"sort"
	"strings"
)

// SelectField is the pseudo-column backing row checkboxes. It is never exported.
const SelectField = "select"

// Def describes one table column. Field is carried as "value" on the wire.
type Def struct {
	Field     string `json:"value"`
	Title     string `json:"title"`
	Active    bool   `json:"active"`
	SortOrder *int   `json:"sortOrder,omitempty"`
}

// Header returns the column header text: the title, else the field name.
func (d Def) Header() string {
	if strings.TrimSpace(d.Title) != "" {
		return d.Title
	}
	return d.Field
}

// TenantRef identifies a tenant by id, name, or both.
type TenantRef struct {
	ID   string
	Name string
}

// IsZero reports whether the reference identifies no tenant.
func (r TenantRef) IsZero() bool {
	return strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Name) == ""
}

// TenantColumns is a saved per-tenant column set.
type TenantColumns struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
	Columns    []Def  `json:"columns"`
}

// Config is the column configuration returned by the backend.
type Config struct {
	Columns        []Def           `json:"columns,omitempty"`
	DefaultColumns []Def           `json:"defaultColumns,omitempty"`
	ColumnsConfig  []TenantColumns `json:"columnsConfig,omitempty"`
}

// TemplateVersion identifies the built-in template revision.
const TemplateVersion = 1

var template = []Def{
	{Field: "_id", Title: "_id", Active: true},
	{Field: "lastUpdate", Title: "LastUpdate", Active: true},
	{Field: "tennantId", Title: "TennantId", Active: true},
	{Field: "tennantName", Title: "TennantName", Active: true},
	{Field: "brand", Title: "Brand", Active: true},
	{Field: "attempts", Title: "Attempts", Active: true},
	{Field: "creation", Title: "Creation", Active: true},
	{Field: "discounts", Title: "Discounts", Active: true},
	{Field: "errorDetail", Title: "ErrorDetail", Active: true},
	{Field: "message", Title: "Message", Active: true},
	{Field: "status", Title: "Status", Active: true},
	{Field: "marketPlace", Title: "MarketPlace", Active: true},
	{Field: "omniChannel", Title: "OmniChannel", Active: true},
	{Field: "taxes", Title: "Taxes", Active: true},
	{Field: "subTotal", Title: "SubTotal", Active: true},
	{Field: "total", Title: "Total", Active: true},
	{Field: "itemQuantity", Title: "ItemQuantity", Active: true},
	{Field: "extras", Title: "Extras", Active: true},
	{Field: "documents", Title: "Documents", Active: true},
	{Field: "comments", Title: "Comments", Active: true},
	{Field: "stages", Title: "Stages", Active: true},
}

// Template returns a copy of the built-in column template.
func Template() []Def {
	return clone(template)
}

// Active returns the active columns ordered by SortOrder. Columns without a
// SortOrder use their position in defs.
func Active(defs []Def) []Def {
	type ranked struct {
		def  Def
		rank int
	}

	active := make([]ranked, 0, len(defs))
	for i, d := range defs {
		if !d.Active {
			continue
		}
		rank := i
		if d.SortOrder != nil {
			rank = *d.SortOrder
		}
		active = append(active, ranked{def: d, rank: rank})
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].rank < active[j].rank
	})

	out := make([]Def, len(active))
	for i, r := range active {
		out[i] = r.def
	}
	return out
}

// Exportable drops the selection pseudo-column.
func Exportable(defs []Def) []Def {
	out := make([]Def, 0, len(defs))
	for _, d := range defs {
		if d.Field == SelectField {
			continue
		}
		out = append(out, d)
	}
	return out
}

// normalize drops entries without a field and keeps the first occurrence of
// duplicated fields.
func normalize(defs []Def) []Def {
	seen := make(map[string]bool, len(defs))
	out := make([]Def, 0, len(defs))
	for _, d := range defs {
		d.Field = strings.TrimSpace(d.Field)
		if d.Field == "" || seen[d.Field] {
			continue
		}
		seen[d.Field] = true
		out = append(out, d)
	}
	return out
}

func clone(defs []Def) []Def {
	out := make([]Def, len(defs))
	for i, d := range defs {
		out[i] = d
		if d.SortOrder != nil {
			order := *d.SortOrder
			out[i].SortOrder = &order
		}
	}
	return out
}
