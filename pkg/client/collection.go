package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/record"
)

// CollectionConfig describes a paged backend collection.
type CollectionConfig struct {
	// Name labels the collection in logs and URLs ("orders", "products").
	Name string

	// Path serves pages of the collection.
	Path string

	// ItemKeys are the body keys searched, in order, for the item array.
	ItemKeys []string

	// BulkStatePath accepts bulk state changes. Empty means unsupported.
	BulkStatePath string
}

// Known collections.
var (
	OrdersCollection = CollectionConfig{
		Name:          "orders",
		Path:          "/getOrdersByState",
		ItemKeys:      []string{"orders", "items", "data"},
		BulkStatePath: "/patchStateOrder",
	}

	ProductsCollection = CollectionConfig{
		Name:     "products",
		Path:     "/products",
		ItemKeys: []string{"products", "items", "data"},
	}
)

// Collection is a paged backend collection. It implements
// pagination.PageFetcher.
type Collection struct {
	client *Client
	config CollectionConfig
}

// Collection returns a handle for the collection described by cfg.
func (c *Client) Collection(cfg CollectionConfig) *Collection {
	return &Collection{client: c, config: cfg}
}

// Orders returns the orders collection.
func (c *Client) Orders() *Collection { return c.Collection(OrdersCollection) }

// Products returns the products collection.
func (c *Client) Products() *Collection { return c.Collection(ProductsCollection) }

// Name returns the collection name.
func (col *Collection) Name() string { return col.config.Name }

// FetchPage fetches one page. Non-object items are skipped; a body the
// normalizer cannot read at all yields an empty page.
func (col *Collection) FetchPage(ctx context.Context, req pagination.Request) (*pagination.Result, error) {
	if req.Page < 1 || req.PageSize < 1 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "page", Message: fmt.Sprintf("and pageSize must be positive (got %d/%d)", req.Page, req.PageSize)}}}
	}

	decoded, err := col.client.do(ctx, http.MethodGet, col.config.Path, pageQuery(req), nil)
	if err != nil {
		return nil, err
	}

	var (
		items []record.Record
		raw   pagination.RawMeta
	)
	switch body := decoded.(type) {
	case map[string]any:
		items = extractItems(body, col.config.ItemKeys)
		raw = pagination.MetaFromPayload(body)
	case []any:
		items = toRecords(body)
	default:
		col.client.logger.Warn().
			Err(&PartialDataError{Endpoint: col.config.Path, Reason: fmt.Sprintf("unexpected body type %T", decoded)}).
			Msg("Treating response as empty page")
	}

	return pagination.NewResult(items, raw, req), nil
}

// BulkStateRequest changes the state of several records at once.
type BulkStateRequest struct {
	IDs         []string `json:"ids" validate:"required,min=1,dive,required"`
	Status      string   `json:"status" validate:"required"`
	Actor       string   `json:"user" validate:"required"`
	NotifyEmail *string  `json:"mailUser" validate:"omitempty,email"`
}

// BulkSetState applies req. Preconditions are checked before any network call.
func (col *Collection) BulkSetState(ctx context.Context, req BulkStateRequest) (Ack, error) {
	if col.config.BulkStatePath == "" {
		return nil, fmt.Errorf("bulk state change on %s: %w", col.config.Name, ErrUnsupported)
	}

	req.Status = strings.TrimSpace(req.Status)
	req.Actor = strings.TrimSpace(req.Actor)
	if req.NotifyEmail != nil && strings.TrimSpace(*req.NotifyEmail) == "" {
		req.NotifyEmail = nil
	}
	if err := col.client.validate.Struct(req); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassValidation)).Inc()
		return nil, validationError(err)
	}

	decoded, err := col.client.do(ctx, http.MethodPatch, col.config.BulkStatePath, nil, req)
	if err != nil {
		return nil, err
	}

	col.client.logger.Info().
		Str("collection", col.config.Name).
		Str("status", req.Status).
		Int("ids", len(req.IDs)).
		Str("actor", req.Actor).
		Msg("Bulk state change applied")

	return toAck(decoded), nil
}

func pageQuery(req pagination.Request) url.Values {
	q := url.Values{}
	if v := strings.TrimSpace(req.Filter.TenantID); v != "" {
		q.Set("tenantId", v)
	}
	if v := strings.TrimSpace(req.Filter.TenantName); v != "" {
		q.Set("tenantName", v)
	}
	if v := strings.TrimSpace(req.Filter.Status); v != "" {
		q.Set("status", apiStatus(v))
	}
	if v := strings.TrimSpace(req.Filter.FreeText); v != "" {
		q.Set("search", v)
	}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("pageSize", strconv.Itoa(req.PageSize))
	return q
}

// apiStatus converts a state key to the backend's spelling ("en_proceso" → "en proceso").
func apiStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

func extractItems(body map[string]any, keys []string) []record.Record {
	for _, key := range keys {
		if arr, ok := body[key].([]any); ok {
			return toRecords(arr)
		}
	}
	return []record.Record{}
}

func toRecords(arr []any) []record.Record {
	items := make([]record.Record, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			items = append(items, record.Record(m))
		}
	}
	return items
}
