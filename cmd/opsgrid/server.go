package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/cache"
	"github.com/Sternrassler/opsgrid/pkg/client"
	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/export"
	"github.com/Sternrassler/opsgrid/pkg/metrics"
	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/table"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// collections served under /api/:collection.
var collections = map[string]client.CollectionConfig{
	client.OrdersCollection.Name:   client.OrdersCollection,
	client.ProductsCollection.Name: client.ProductsCollection,
}

type server struct {
	client    *client.Client
	resolver  *columns.Resolver
	formatter *columns.Formatter
	pacer     pagination.Waiter
	table     table.Config
	redis     *cache.Manager
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", healthHandler)
	r.GET("/ready", s.readyHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", bearerToken())
	api.GET("/tenants/:name/columns", s.getColumns)
	api.PUT("/tenants/:name/columns", s.saveColumns)
	api.GET("/:collection/table", s.getTable)
	api.GET("/:collection/export", s.exportTable)
	api.PATCH("/:collection/state", s.patchState)
	return r
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *server) readyHandler(c *gin.Context) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// requestLogger logs every request with a request id.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status_code", c.Writer.Status()).
			Str("request_id", requestID).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// bearerToken requires a caller credential on every request and forwards it
// to the backend client.
func bearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, _ := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		token = strings.TrimSpace(token)
		if !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(c, &client.AuthError{Reason: "bearer token required", Err: client.ErrMissingCredential})
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(client.WithToken(c.Request.Context(), token))
		c.Next()
	}
}

func (s *server) collection(c *gin.Context) (*client.Collection, bool) {
	cfg, ok := collections[strings.ToLower(c.Param("collection"))]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown collection %q", c.Param("collection"))})
		return nil, false
	}
	return s.client.Collection(cfg), true
}

// query parses the table query parameters.
func (s *server) query(c *gin.Context) (pagination.Filter, int, int, error) {
	filter := pagination.Filter{
		TenantID:   strings.TrimSpace(c.Query("tenantId")),
		TenantName: strings.TrimSpace(c.Query("tenantName")),
		Status:     strings.TrimSpace(c.Query("status")),
		FreeText:   strings.TrimSpace(c.Query("search")),
	}

	page, err := intParam(c, "page", 1)
	if err != nil {
		return filter, 0, 0, err
	}
	size, err := intParam(c, "pageSize", s.table.PageSize)
	if err != nil {
		return filter, 0, 0, err
	}
	return filter, page, size, nil
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer (got %q)", name, raw)
	}
	return n, nil
}

func (s *server) newController(c *gin.Context, col *client.Collection, cfg table.Config) *table.Controller {
	return table.New(col, s.resolver, cfg,
		table.WithFormatter(s.formatter),
		table.WithPacer(s.pacer),
		table.WithBaseContext(c.Request.Context()),
	)
}

type rowResponse struct {
	ID    string            `json:"id"`
	Cells map[string]string `json:"cells"`
}

type tableResponse struct {
	State           string        `json:"state"`
	Page            int           `json:"page"`
	PageSize        int           `json:"pageSize"`
	PageSizeOptions []int         `json:"pageSizeOptions"`
	RowCount        int           `json:"rowCount"`
	Terminal        bool          `json:"terminal"`
	Columns         []columns.Def `json:"columns"`
	Rows            []rowResponse `json:"rows"`
}

func (s *server) getTable(c *gin.Context) {
	col, ok := s.collection(c)
	if !ok {
		return
	}
	filter, page, size, err := s.query(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctrl := s.newController(c, col, s.table)
	defer ctrl.Close()

	if err := ctrl.SetQuery(filter, page, size); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.Wait(c.Request.Context()); err != nil {
		return
	}

	view := ctrl.View()
	if view.State == table.StateFailed {
		writeError(c, view.Err)
		return
	}

	rows := make([]rowResponse, len(view.Rows))
	for i, row := range view.Rows {
		rows[i] = rowResponse{ID: row.ID, Cells: row.Cells}
	}
	c.JSON(http.StatusOK, tableResponse{
		State:           view.State.String(),
		Page:            view.Page,
		PageSize:        view.PageSize,
		PageSizeOptions: view.PageSizeOptions,
		RowCount:        view.RowCount,
		Terminal:        view.Terminal,
		Columns:         view.Columns,
		Rows:            rows,
	})
}

func (s *server) exportTable(c *gin.Context) {
	col, ok := s.collection(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writer, err := export.NewWriter(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, _, _, err := s.query(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.table
	cfg.Filter = filter
	ctrl := s.newController(c, col, cfg)
	defer ctrl.Close()

	var buf bytes.Buffer
	n, err := ctrl.Export(c.Request.Context(), &buf, writer, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	name := export.FileName(c.Query("fileName"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("X-Export-Rows", strconv.Itoa(n))
	c.Data(http.StatusOK, writer.ContentType(), buf.Bytes())
}

type stateRequest struct {
	IDs         []string `json:"ids"`
	Status      string   `json:"status"`
	User        string   `json:"user"`
	NotifyEmail *string  `json:"mailUser"`
}

func (s *server) patchState(c *gin.Context) {
	col, ok := s.collection(c)
	if !ok {
		return
	}

	var body stateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	// Attribute the change to the caller when the body names nobody.
	if strings.TrimSpace(body.User) == "" {
		if cred, err := client.ParseCredential(c.GetHeader("Authorization")); err == nil {
			body.User = cred.Actor()
		}
	}

	ack, err := col.BulkSetState(c.Request.Context(), client.BulkStateRequest{
		IDs:         body.IDs,
		Status:      body.Status,
		Actor:       body.User,
		NotifyEmail: body.NotifyEmail,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (s *server) getColumns(c *gin.Context) {
	defs := s.resolver.Resolve(c.Request.Context(), columns.TenantRef{
		ID:   strings.TrimSpace(c.Query("tenantId")),
		Name: strings.TrimSpace(c.Param("name")),
	})
	c.JSON(http.StatusOK, gin.H{"columns": defs, "active": columns.Active(defs)})
}

func (s *server) saveColumns(c *gin.Context) {
	var body struct {
		Params []columns.Def `json:"params"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := s.resolver.Save(c.Request.Context(), c.Param("name"), body.Params); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeError maps an error to an HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, client.ErrUnsupported):
		status = http.StatusMethodNotAllowed
	case errors.Is(err, export.ErrNoRows), errors.Is(err, export.ErrNoColumns), errors.Is(err, columns.ErrTenantRequired):
		status = http.StatusUnprocessableEntity
	case client.Classify(err) == client.ErrorClassAuth:
		status = http.StatusUnauthorized
	case client.Classify(err) == client.ErrorClassValidation:
		status = http.StatusBadRequest
	case errors.As(err, &httpErr) && httpErr.Class() == client.ErrorClassClient:
		status = httpErr.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	body := gin.H{"error": err.Error()}
	if class := client.Classify(err); class != "" {
		body["class"] = class
	}
	c.JSON(status, body)
}
