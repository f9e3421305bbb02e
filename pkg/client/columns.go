package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/columns"
)

// FetchColumnConfig loads the column configuration for ref. The backend serves
// it alongside a minimal one-row page of the orders collection.
func (c *Client) FetchColumnConfig(ctx context.Context, ref columns.TenantRef) (*columns.Config, error) {
	if ref.IsZero() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "tenant", Message: "is required"}}}
	}

	q := url.Values{}
	if v := strings.TrimSpace(ref.ID); v != "" {
		q.Set("tenantId", v)
	}
	if v := strings.TrimSpace(ref.Name); v != "" {
		q.Set("tenantName", v)
	}
	q.Set("page", "1")
	q.Set("pageSize", "1")

	decoded, err := c.do(ctx, http.MethodGet, c.config.ColumnsPath, q, nil)
	if err != nil {
		return nil, err
	}

	body, ok := decoded.(map[string]any)
	if !ok {
		return nil, &PartialDataError{Endpoint: c.config.ColumnsPath, Reason: fmt.Sprintf("unexpected body type %T", decoded)}
	}

	cfg, ok := columns.DecodeConfig(body)
	if !ok {
		return nil, &PartialDataError{Endpoint: c.config.ColumnsPath, Reason: "no column configuration in response"}
	}
	return &cfg, nil
}

type saveColumnsRequest struct {
	Name   string        `json:"name" validate:"required"`
	Params []columns.Def `json:"params" validate:"required,min=1"`
}

// SaveColumnConfig persists defs as tenantName's column configuration.
func (c *Client) SaveColumnConfig(ctx context.Context, tenantName string, defs []columns.Def) error {
	req := saveColumnsRequest{Name: strings.TrimSpace(tenantName), Params: defs}
	if err := c.validate.Struct(req); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassValidation)).Inc()
		return validationError(err)
	}

	if _, err := c.do(ctx, http.MethodPost, c.config.SaveColumnsPath, nil, req); err != nil {
		return err
	}

	c.logger.Info().
		Str("tenant", req.Name).
		Int("columns", len(defs)).
		Msg("Saved tenant column configuration")
	return nil
}
