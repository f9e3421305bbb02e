package pagination

import (
	"context"

	"github.com/Sternrassler/opsgrid/pkg/record"
)

// Filter selects the subset of a collection to page through. Filters are
// compared by value; a changed filter always restarts paging at page 1.
type Filter struct {
	TenantID   string `json:"tenantId,omitempty"`
	TenantName string `json:"tenantName,omitempty"`
	Status     string `json:"status,omitempty"`
	FreeText   string `json:"freeText,omitempty"`
}

// Request is a single page request.
type Request struct {
	Filter   Filter
	Page     int
	PageSize int
}

// RawMeta is the pagination metadata exactly as the backend reported it.
type RawMeta map[string]any

// Result is one fetched page. Meta is normalized once, when the result is built.
type Result struct {
	Items []record.Record
	Raw   RawMeta
	Meta  Meta
}

// NewResult builds a Result and normalizes its metadata against req.
func NewResult(items []record.Record, raw RawMeta, req Request) *Result {
	if items == nil {
		items = []record.Record{}
	}
	if raw == nil {
		raw = RawMeta{}
	}
	return &Result{
		Items: items,
		Raw:   raw,
		Meta:  Normalize(raw, req.Page, req.PageSize),
	}
}

// PageFetcher fetches a single page of a collection.
type PageFetcher interface {
	FetchPage(ctx context.Context, req Request) (*Result, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, req Request) (*Result, error)

// FetchPage calls f(ctx, req).
func (f PageFetcherFunc) FetchPage(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
