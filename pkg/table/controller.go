// Package table drives a paged, filterable table over a backend collection.
//
// A Controller owns the current query (filter, page, page size), issues one
// page fetch at a time, and publishes immutable View snapshots. A newer query
// always supersedes an older one: the older fetch is cancelled, and should it
// still settle, its result is discarded.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/client"
	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/export"
	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/selection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsgrid_table_loads_total",
		Help: "Total table page loads by outcome",
	}, []string{"outcome"})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsgrid_table_load_duration_seconds",
		Help:    "Duration of applied table page loads in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// Common errors returned by the controller.
var (
	ErrClosed          = errors.New("table controller closed")
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be positive")
)

// StandardPageSizes are the page sizes offered by default.
var StandardPageSizes = []int{10, 20, 50, 100}

// ColumnSource resolves the column set for a tenant. columns.Resolver
// implements it.
type ColumnSource interface {
	Resolve(ctx context.Context, ref columns.TenantRef) []columns.Def
}

// StateMutator applies bulk state changes. client.Collection implements it.
type StateMutator interface {
	BulkSetState(ctx context.Context, req client.BulkStateRequest) (client.Ack, error)
}

// Config holds controller configuration.
type Config struct {
	// Filter is the initial filter.
	Filter pagination.Filter

	// PageSize is the initial page size.
	PageSize int

	// PageSizeOptions are the standard selectable page sizes.
	PageSizeOptions []int

	// AutoRefresh reloads the current page at this interval (0 = off).
	AutoRefresh time.Duration

	// FetchTimeout bounds each page load (0 = no limit).
	FetchTimeout time.Duration

	// Export configures the full-collection walk behind Export.
	Export pagination.WalkerConfig
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:        20,
		PageSizeOptions: StandardPageSizes,
		FetchTimeout:    30 * time.Second,
		Export:          pagination.DefaultWalkerConfig(),
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers an observer for controller events.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithFormatter sets the cell formatter.
func WithFormatter(f *columns.Formatter) Option {
	return func(c *Controller) { c.formatter = f }
}

// WithMutator enables bulk state changes through m.
func WithMutator(m StateMutator) Option {
	return func(c *Controller) { c.mutator = m }
}

// WithPacer paces the page requests of export walks.
func WithPacer(p pagination.Waiter) Option {
	return func(c *Controller) { c.pacer = p }
}

// WithBaseContext sets the context every fetch derives from. Use it to carry
// request-scoped values such as the caller's bearer token.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Controller) { c.base = ctx }
}

// Controller is the state machine behind one table. Safe for concurrent use.
type Controller struct {
	source    pagination.PageFetcher
	resolver  ColumnSource
	mutator   StateMutator
	pacer     pagination.Waiter
	formatter *columns.Formatter
	observer  Observer
	config    Config
	selection *selection.Tracker
	logger    zerolog.Logger

	base context.Context
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	state    State
	gen      uint64
	cancel   context.CancelFunc
	settled  chan struct{}
	filter   pagination.Filter
	page     int
	pageSize int
	rows     []Row
	cols     []columns.Def
	rowCount int
	terminal bool
	meta     pagination.Meta
	err      error

	refreshEvery time.Duration
	refreshStop  chan struct{}
}

// New creates a controller over source. A nil resolver always uses the
// built-in column template.
func New(source pagination.PageFetcher, resolver ColumnSource, cfg Config, opts ...Option) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if len(cfg.PageSizeOptions) == 0 {
		cfg.PageSizeOptions = StandardPageSizes
	}

	c := &Controller{
		source:    source,
		resolver:  resolver,
		config:    cfg,
		selection: selection.NewTracker(),
		base:      context.Background(),
		filter:    cfg.Filter,
		page:      1,
		pageSize:  cfg.PageSize,
		logger:    log.With().Str("component", "table-controller").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.formatter == nil {
		c.formatter = columns.NewFormatter()
	}
	c.ctx, c.stop = context.WithCancel(c.base)
	return c
}

// Start issues the initial load and starts auto-refresh when configured.
// Starting a controller that already loaded is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)

	if c.config.AutoRefresh > 0 {
		return c.SetAutoRefresh(c.config.AutoRefresh)
	}
	return nil
}

// SetFilter replaces the filter. A changed filter resets the page to 1, clears
// the selection and reloads; an unchanged filter does nothing.
func (c *Controller) SetFilter(f pagination.Filter) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if f == c.filter && c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.filter = f
	c.page = 1
	c.selection.Clear()
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// SetPage moves to page and reloads.
func (c *Controller) SetPage(page int) error {
	if page < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, page)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.page = page
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// SetPageSize changes the page size, returns to page 1 and reloads.
func (c *Controller) SetPageSize(size int) error {
	if size < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPageSize, size)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pageSize = size
	c.page = 1
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// SetQuery replaces filter, page and page size with a single load. The
// selection is cleared when the filter changes.
func (c *Controller) SetQuery(f pagination.Filter, page, size int) error {
	if page < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, page)
	}
	if size < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPageSize, size)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if f != c.filter {
		c.selection.Clear()
	}
	c.filter, c.page, c.pageSize = f, page, size
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// Refresh reloads the current page, superseding any load in flight.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ev := c.loadLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// Filter returns the current filter.
func (c *Controller) Filter() pagination.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetAutoRefresh replaces the auto-refresh ticker. Zero or a negative interval
// turns auto-refresh off. Ticks that find a load in flight are skipped.
func (c *Controller) SetAutoRefresh(every time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.refreshStop != nil {
		close(c.refreshStop)
		c.refreshStop = nil
	}
	c.refreshEvery = 0
	if every <= 0 {
		return nil
	}

	stop := make(chan struct{})
	c.refreshStop = stop
	c.refreshEvery = every
	c.wg.Add(1)
	go c.autoRefresh(every, stop)

	c.logger.Debug().Dur("interval", every).Msg("Auto-refresh configured")
	return nil
}

// AutoRefresh returns the active auto-refresh interval (0 = off).
func (c *Controller) AutoRefresh() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshEvery
}

func (c *Controller) autoRefresh(every time.Duration, stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.closed || c.refreshStop != stop {
				c.mu.Unlock()
				return
			}
			if c.state == StateLoading {
				c.mu.Unlock()
				continue
			}
			ev := c.loadLocked()
			c.mu.Unlock()
			c.emit(ev)
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// Close cancels the load in flight, stops auto-refresh and waits for the
// controller's goroutines. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.refreshStop != nil {
		close(c.refreshStop)
		c.refreshStop = nil
	}
	c.refreshEvery = 0
	if c.cancel != nil {
		c.cancel()
	}
	if c.state == StateLoading {
		c.state = StateIdle
		close(c.settled)
	}
	c.stop()
	c.mu.Unlock()

	c.wg.Wait()
}

// Wait blocks until no load is in flight or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state != StateLoading {
			c.mu.Unlock()
			return nil
		}
		settled := c.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// View returns a snapshot of the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		State:           c.state,
		Generation:      c.gen,
		Filter:          c.filter,
		Page:            c.page,
		PageSize:        c.pageSize,
		PageSizeOptions: pagination.PageSizeOptions(c.config.PageSizeOptions, c.pageSize),
		Rows:            append([]Row(nil), c.rows...),
		Columns:         append([]columns.Def(nil), c.cols...),
		RowCount:        c.rowCount,
		Terminal:        c.terminal,
		Meta:            c.meta,
		Err:             c.err,
		Selected:        c.selection.Selected(),
		AllSelected:     c.selection.AllSelected(),
	}
}

// loadLocked starts a fetch for the current query. c.mu must be held.
func (c *Controller) loadLocked() Event {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.config.FetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.config.FetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.cancel = cancel

	if c.state != StateLoading {
		c.settled = make(chan struct{})
	}
	c.state = StateLoading

	req := pagination.Request{Filter: c.filter, Page: c.page, PageSize: c.pageSize}
	c.wg.Add(1)
	go c.run(ctx, cancel, gen, req)

	return Event{Kind: EventLoading, Generation: gen, Page: req.Page}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, req pagination.Request) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	result, err := c.source.FetchPage(ctx, req)
	var defs []columns.Def
	if err == nil {
		if result == nil {
			result = pagination.NewResult(nil, nil, req)
		}
		defs = c.columnsFor(ctx, req.Filter)
	}

	for _, ev := range c.settle(gen, req, result, defs, err, time.Since(start)) {
		c.emit(ev)
	}
}

// settle applies a finished fetch if it is still the latest one.
func (c *Controller) settle(gen uint64, req pagination.Request, result *pagination.Result, defs []columns.Def, err error, took time.Duration) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		loadsTotal.WithLabelValues("discarded").Inc()
		c.logger.Debug().
			Uint64("generation", gen).
			Uint64("current_generation", c.gen).
			Int("page", req.Page).
			Msg("Discarding stale page result")
		return []Event{{Kind: EventDiscarded, Generation: gen, Page: req.Page}}
	}

	if err != nil {
		loadsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn().
			Err(err).
			Uint64("generation", gen).
			Int("page", req.Page).
			Str("error_class", string(client.Classify(err))).
			Msg("Page load failed")
		c.state = StateFailed
		c.err = err
		c.rows = nil
		c.rowCount = 0
		c.terminal = false
		c.meta = pagination.Meta{}
		c.selection.Reconcile(nil)
		c.finishLocked()
		return []Event{{Kind: EventFailed, Generation: gen, Page: req.Page, Err: err}}
	}

	meta := result.Meta
	if tp := meta.TotalPages; tp != nil && *tp >= 1 && req.Page > *tp {
		loadsTotal.WithLabelValues("clamped").Inc()
		c.logger.Info().Int("page", req.Page).Int("total_pages", *tp).Msg("Page beyond last page - clamping")
		c.page = *tp
		return []Event{{Kind: EventClamped, Generation: gen, Page: *tp}, c.loadLocked()}
	}
	if len(result.Items) == 0 && req.Page > 1 {
		loadsTotal.WithLabelValues("stepped_back").Inc()
		c.logger.Info().Int("page", req.Page).Msg("Empty page - stepping back")
		c.page = req.Page - 1
		return []Event{{Kind: EventSteppedBack, Generation: gen, Page: c.page}, c.loadLocked()}
	}

	active := columns.Active(defs)
	if c.mutator != nil {
		active = append([]columns.Def{{Field: columns.SelectField, Active: true}}, active...)
	}
	rows := BuildRows(result.Items, active, c.formatter)
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	if pruned := c.selection.Reconcile(ids); pruned > 0 {
		c.logger.Debug().Int("pruned", pruned).Msg("Selection pruned")
	}

	c.state = StateReady
	c.err = nil
	c.rows = rows
	c.cols = active
	c.meta = meta
	c.rowCount = pagination.Estimate(meta, len(result.Items), req.Page, req.PageSize)
	c.terminal = pagination.IsTerminal(meta, len(result.Items), req.Page, req.PageSize)
	c.finishLocked()

	loadsTotal.WithLabelValues("ready").Inc()
	loadDuration.Observe(took.Seconds())
	c.logger.Debug().
		Uint64("generation", gen).
		Int("page", req.Page).
		Int("page_size", req.PageSize).
		Int("rows", len(rows)).
		Int("row_count", c.rowCount).
		Dur("duration", took).
		Msg("Page ready")

	return []Event{{Kind: EventReady, Generation: gen, Page: req.Page}}
}

func (c *Controller) finishLocked() {
	c.cancel = nil
	close(c.settled)
}

func (c *Controller) columnsFor(ctx context.Context, f pagination.Filter) []columns.Def {
	if c.resolver == nil {
		return columns.Template()
	}
	return c.resolver.Resolve(ctx, columns.TenantRef{ID: f.TenantID, Name: f.TenantName})
}

func (c *Controller) emit(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

// ToggleRow flips the selection of a visible row.
func (c *Controller) ToggleRow(rowID string) bool {
	return c.selection.Toggle(rowID)
}

// ToggleAll selects every visible row, or clears when all are selected.
func (c *Controller) ToggleAll() {
	c.selection.ToggleAll()
}

// ClearSelection drops the selection.
func (c *Controller) ClearSelection() {
	c.selection.Clear()
}

// SelectedRecordIDs returns the record ids behind the selected rows in row
// order, without duplicates. Rows without a record id are skipped.
func (c *Controller) SelectedRecordIDs() []string {
	c.mu.Lock()
	rows := c.rows
	c.mu.Unlock()

	ids := make([]string, 0, c.selection.Len())
	seen := make(map[string]bool)
	for _, row := range rows {
		if !c.selection.IsSelected(row.ID) {
			continue
		}
		id := strings.TrimSpace(row.Record.ID())
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// BulkSetState moves every selected record to status on behalf of actor and
// optionally notifies notifyEmail. On success the selection is cleared and
// the page reloaded; on failure nothing local changes.
func (c *Controller) BulkSetState(ctx context.Context, status, actor string, notifyEmail *string) (client.Ack, error) {
	if c.mutator == nil {
		return nil, fmt.Errorf("bulk state change: %w", client.ErrUnsupported)
	}

	req := client.BulkStateRequest{
		IDs:         c.SelectedRecordIDs(),
		Status:      status,
		Actor:       actor,
		NotifyEmail: notifyEmail,
	}
	ack, err := c.mutator.BulkSetState(ctx, req)
	if err != nil {
		return nil, err
	}

	c.selection.Clear()
	if err := c.Refresh(); err != nil && !errors.Is(err, ErrClosed) {
		return ack, err
	}
	return ack, nil
}

// Export walks the whole collection under the current filter and writes it
// with w through the active columns. It returns the number of exported rows.
func (c *Controller) Export(ctx context.Context, out io.Writer, w export.Writer, onPage pagination.ProgressFunc) (int, error) {
	filter := c.Filter()

	walker := pagination.NewWalker(c.source, c.config.Export)
	if c.pacer != nil {
		walker.WithPacer(c.pacer)
	}

	records, err := walker.CollectAll(ctx, filter, onPage)
	if err != nil {
		return 0, fmt.Errorf("collect rows: %w", err)
	}

	defs := columns.Active(c.columnsFor(ctx, filter))
	rows := BuildRows(records, defs, c.formatter)
	if err := w.Write(out, ExportRows(rows), defs); err != nil {
		return 0, err
	}

	c.logger.Info().
		Str("format", string(w.Format())).
		Int("rows", len(rows)).
		Int("columns", len(columns.Exportable(defs))).
		Msg("Export written")
	return len(rows), nil
}
