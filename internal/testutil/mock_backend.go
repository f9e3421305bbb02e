// Package testutil provides testing utilities for the opsgrid client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request seen by the mock backend.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// MetaFunc builds the pagination part of a page response.
type MetaFunc func(total, page, pageSize, count int) map[string]any

// HasNextPageMeta reports only a continuation flag, like the orders backend.
func HasNextPageMeta(total, page, pageSize, _ int) map[string]any {
	return map[string]any{"hasNextPage": page*pageSize < total}
}

// TotalMeta reports an exact total inside a "meta" object.
func TotalMeta(total, page, pageSize, _ int) map[string]any {
	return map[string]any{"meta": map[string]any{"total": total, "page": page, "pageSize": pageSize}}
}

// MockBackend is a configurable in-memory operations backend.
type MockBackend struct {
	server *httptest.Server

	mu        sync.RWMutex
	overrides map[string]func(w http.ResponseWriter, r *http.Request)
	items     map[string][]map[string]any // path -> dataset
	itemKey   map[string]string           // path -> body key
	meta      MetaFunc
	columns   map[string]any
	requests  []RecordedRequest
	saved     []map[string]any
	patches   []map[string]any
}

// Default backend paths.
const (
	OrdersPath      = "/getOrdersByState"
	ProductsPath    = "/products"
	SaveColumnsPath = "/postParamTable"
	BulkStatePath   = "/patchStateOrder"
)

// NewMockBackend creates and starts a mock backend.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		overrides: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		items:     map[string][]map[string]any{OrdersPath: {}, ProductsPath: {}},
		itemKey:   map[string]string{OrdersPath: "orders", ProductsPath: "products"},
		meta:      HasNextPageMeta,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockBackend) Close() { m.server.Close() }

// SetOrders replaces the orders dataset.
func (m *MockBackend) SetOrders(orders []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[OrdersPath] = orders
}

// SetProducts replaces the products dataset.
func (m *MockBackend) SetProducts(products []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ProductsPath] = products
}

// SetMeta changes how pagination metadata is reported.
func (m *MockBackend) SetMeta(fn MetaFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = fn
}

// SetColumnConfig sets the column configuration keys merged into order pages
// ("columns", "defaultColumns", "columnsConfig").
func (m *MockBackend) SetColumnConfig(cfg map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = cfg
}

// SetHandler overrides the handler for path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = handler
}

// SetResponse overrides path with a canned response.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns the recorded requests.
func (m *MockBackend) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests for path ("" = all paths).
func (m *MockBackend) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if path == "" || r.Path == path {
			n++
		}
	}
	return n
}

// SavedColumns returns the bodies posted to SaveColumnsPath.
func (m *MockBackend) SavedColumns() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]map[string]any(nil), m.saved...)
}

// StatePatches returns the bodies sent to BulkStatePath.
func (m *MockBackend) StatePatches() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]map[string]any(nil), m.patches...)
}

func (m *MockBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	handler, overridden := m.overrides[r.URL.Path]
	m.mu.Unlock()

	if overridden {
		handler(w, r)
		return
	}

	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Falta token"})
		return
	}

	switch {
	case r.URL.Path == SaveColumnsPath && r.Method == http.MethodPost:
		m.handleSave(w, body)
	case r.URL.Path == BulkStatePath && r.Method == http.MethodPatch:
		m.handlePatch(w, body)
	case r.Method == http.MethodGet:
		m.mu.RLock()
		_, known := m.items[r.URL.Path]
		m.mu.RUnlock()
		if !known {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
			return
		}
		m.handlePage(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (m *MockBackend) handlePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	m.mu.RLock()
	dataset := m.items[r.URL.Path]
	key := m.itemKey[r.URL.Path]
	metaFn := m.meta
	columnCfg := m.columns

	matched := make([]map[string]any, 0, len(dataset))
	for _, item := range dataset {
		if matches(item, q) {
			cp := make(map[string]any, len(item))
			for k, v := range item {
				cp[k] = v
			}
			matched = append(matched, cp)
		}
	}
	m.mu.RUnlock()

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	pageItems := matched[start:end]

	resp := map[string]any{key: pageItems}
	if metaFn != nil {
		for k, v := range metaFn(len(matched), page, pageSize, len(pageItems)) {
			resp[k] = v
		}
	}
	if r.URL.Path == OrdersPath {
		for k, v := range columnCfg {
			resp[k] = v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (m *MockBackend) handleSave(w http.ResponseWriter, body []byte) {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil || req["name"] == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Falta referencia del tenant"})
		return
	}
	m.mu.Lock()
	m.saved = append(m.saved, req)
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (m *MockBackend) handlePatch(w http.ResponseWriter, body []byte) {
	var req struct {
		IDs    []string `json:"ids"`
		Status string   `json:"status"`
		User   string   `json:"user"`
	}
	if err := json.Unmarshal(body, &req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "ids requeridos"})
		return
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	m.mu.Lock()
	m.patches = append(m.patches, raw)
	ids := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		ids[id] = true
	}
	updated := 0
	for _, order := range m.items[OrdersPath] {
		if ids[fmt.Sprint(order["_id"])] {
			order["status"] = req.Status
			updated++
		}
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func matches(item map[string]any, q url.Values) bool {
	if status := q.Get("status"); status != "" {
		if normalizeStatus(fmt.Sprint(item["status"])) != normalizeStatus(status) {
			return false
		}
	}
	if name := q.Get("tenantName"); name != "" {
		if !strings.EqualFold(fmt.Sprint(first(item, "tennantName", "tenantName")), name) {
			return false
		}
	}
	if id := q.Get("tenantId"); id != "" {
		if fmt.Sprint(first(item, "tennantId", "tenantId")) != id {
			return false
		}
	}
	return true
}

func first(item map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			return v
		}
	}
	return nil
}

func normalizeStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewServerErrorResponse creates a 500 response carrying an "error" message.
func NewServerErrorResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       fmt.Sprintf(`{"error": %q}`, message),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewJSONResponse creates a 200 response with body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// Orders builds n orders with ids "o-1".."o-n" in status for tenant.
func Orders(n int, status, tenant string) []map[string]any {
	orders := make([]map[string]any, n)
	for i := range orders {
		orders[i] = map[string]any{
			"_id":         fmt.Sprintf("o-%d", i+1),
			"tennantId":   "t-" + strings.ToLower(tenant),
			"tennantName": tenant,
			"status":      status,
			"total":       map[string]any{"amount": 1000 * (i + 1)},
			"creation":    "2024-03-05T14:07:00Z",
		}
	}
	return orders
}
