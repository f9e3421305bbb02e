package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/opsgrid/internal/testutil"
	"github.com/Sternrassler/opsgrid/pkg/client"
	"github.com/Sternrassler/opsgrid/pkg/columns"
	"github.com/Sternrassler/opsgrid/pkg/export"
	"github.com/Sternrassler/opsgrid/pkg/pagination"
	"github.com/Sternrassler/opsgrid/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func waitIdle(t *testing.T, c *Controller) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	return c.View()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 256)}
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	select {
	case l.ch <- ev:
	default:
	}
}

func (l *eventLog) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-l.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return Event{}
		}
	}
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// gatedFetcher holds each request until its filter status is released.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	pages map[string][]record.Record
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates: make(map[string]chan struct{}),
		pages: make(map[string][]record.Record),
	}
}

func (g *gatedFetcher) add(status string, items ...record.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[status] = make(chan struct{})
	g.pages[status] = items
}

func (g *gatedFetcher) release(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[status])
}

// FetchPage ignores cancellation so a superseded request can settle late.
func (g *gatedFetcher) FetchPage(_ context.Context, req pagination.Request) (*pagination.Result, error) {
	g.mu.Lock()
	gate := g.gates[req.Filter.Status]
	items := g.pages[req.Filter.Status]
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return pagination.NewResult(items, pagination.RawMeta{"total": len(items)}, req), nil
}

func TestController_DiscardsStaleResponses(t *testing.T) {
	fetcher := newGatedFetcher()
	fetcher.add("a", record.Record{"_id": "a-1"}, record.Record{"_id": "a-2"})
	fetcher.add("b", record.Record{"_id": "b-1"})

	events := newEventLog()
	c := New(fetcher, nil, DefaultConfig(), WithObserver(events.observe))
	defer c.Close()

	require.NoError(t, c.SetFilter(pagination.Filter{Status: "a"}))
	require.NoError(t, c.SetFilter(pagination.Filter{Status: "b"}))

	fetcher.release("b")
	events.waitFor(t, EventReady)

	fetcher.release("a")
	stale := events.waitFor(t, EventDiscarded)
	assert.Equal(t, uint64(1), stale.Generation)

	view := waitIdle(t, c)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, "b", view.Filter.Status)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "b-1", view.Rows[0].ID)
	assert.Equal(t, 1, view.RowCount)
	assert.Equal(t, uint64(2), view.Generation)
}

func TestController_StepsBackFromEmptyPage(t *testing.T) {
	var mu sync.Mutex
	var pages []int
	fetcher := pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		mu.Lock()
		pages = append(pages, req.Page)
		mu.Unlock()
		if req.Page >= 3 {
			return pagination.NewResult(nil, nil, req), nil
		}
		return pagination.NewResult([]record.Record{{"_id": fmt.Sprintf("p%d", req.Page)}}, nil, req), nil
	})

	events := newEventLog()
	cfg := DefaultConfig()
	cfg.PageSize = 1
	c := New(fetcher, nil, cfg, WithObserver(events.observe))
	defer c.Close()

	require.NoError(t, c.SetPage(3))
	events.waitFor(t, EventSteppedBack)
	events.waitFor(t, EventReady)

	view := waitIdle(t, c)
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, 2, view.Page)
	assert.Equal(t, "p2", view.Rows[0].ID)

	mu.Lock()
	assert.Equal(t, []int{3, 2}, pages)
	mu.Unlock()
}

func TestController_ClampsToLastPage(t *testing.T) {
	fetcher := pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		items := []record.Record{{"_id": fmt.Sprintf("p%d", req.Page)}}
		return pagination.NewResult(items, pagination.RawMeta{"totalPages": 2}, req), nil
	})

	events := newEventLog()
	c := New(fetcher, nil, DefaultConfig(), WithObserver(events.observe))
	defer c.Close()

	require.NoError(t, c.SetPage(5))
	clamped := events.waitFor(t, EventClamped)
	assert.Equal(t, 2, clamped.Page)
	events.waitFor(t, EventReady)

	view := waitIdle(t, c)
	assert.Equal(t, 2, view.Page)
	assert.True(t, view.Terminal)
}

func TestController_FailureAndRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	fetcher := pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		if fail.Load() {
			return nil, &client.HTTPError{StatusCode: 503, Message: "unavailable", Endpoint: "/getOrdersByState"}
		}
		return pagination.NewResult([]record.Record{{"_id": "o-1"}}, nil, req), nil
	})

	c := New(fetcher, nil, DefaultConfig())
	defer c.Close()

	require.NoError(t, c.Start())
	view := waitIdle(t, c)
	assert.Equal(t, StateFailed, view.State)
	assert.Equal(t, client.ErrorClassServer, client.Classify(view.Err))
	assert.Empty(t, view.Rows)

	fail.Store(false)
	require.NoError(t, c.Refresh())
	view = waitIdle(t, c)
	assert.Equal(t, StateReady, view.State)
	assert.NoError(t, view.Err)
	assert.Len(t, view.Rows, 1)
}

func TestController_InvalidInput(t *testing.T) {
	c := New(pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		return pagination.NewResult(nil, nil, req), nil
	}), nil, DefaultConfig())
	defer c.Close()

	assert.ErrorIs(t, c.SetPage(0), ErrInvalidPage)
	assert.ErrorIs(t, c.SetPageSize(-1), ErrInvalidPageSize)
	assert.ErrorIs(t, c.SetQuery(pagination.Filter{}, 1, 0), ErrInvalidPageSize)
	assert.Equal(t, StateIdle, c.View().State)
}

func TestController_PageSizeOptions(t *testing.T) {
	c := New(pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		return pagination.NewResult(nil, nil, req), nil
	}), nil, DefaultConfig())
	defer c.Close()

	assert.Equal(t, []int{10, 20, 50, 100}, c.View().PageSizeOptions)

	require.NoError(t, c.SetPageSize(25))
	view := waitIdle(t, c)
	assert.Equal(t, []int{10, 20, 25, 50, 100}, view.PageSizeOptions)
	assert.Equal(t, 1, view.Page)
}

func TestController_CloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	fetcher := pagination.PageFetcherFunc(func(ctx context.Context, req pagination.Request) (*pagination.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, &client.NetworkError{Endpoint: "/x", Err: ctx.Err()}
	})

	events := newEventLog()
	c := New(fetcher, nil, DefaultConfig(), WithObserver(events.observe))
	require.NoError(t, c.Start())
	<-started

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Close did not return")
	}

	assert.Equal(t, StateIdle, c.View().State)
	assert.Equal(t, 1, events.count(EventDiscarded))
	assert.ErrorIs(t, c.Refresh(), ErrClosed)
	assert.ErrorIs(t, c.SetAutoRefresh(time.Second), ErrClosed)
	c.Close()
}

func TestController_AutoRefresh(t *testing.T) {
	var calls atomic.Int32
	fetcher := pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		calls.Add(1)
		return pagination.NewResult([]record.Record{{"_id": "o-1"}}, nil, req), nil
	})

	c := New(fetcher, nil, DefaultConfig())
	defer c.Close()

	require.NoError(t, c.SetAutoRefresh(time.Hour))
	require.NoError(t, c.SetAutoRefresh(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, c.AutoRefresh())

	require.NoError(t, c.Start())
	assert.Eventually(t, func() bool { return calls.Load() >= 4 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, c.SetAutoRefresh(0))
	assert.Zero(t, c.AutoRefresh())
	waitIdle(t, c)

	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "no loads after auto-refresh stopped")
}

func newBackendController(t *testing.T, backend *testutil.MockBackend, cfg Config, opts ...Option) (*Controller, *client.Collection) {
	t.Helper()
	cl, err := client.New(client.DefaultConfig(backend.URL(), client.StaticToken("test-token")))
	require.NoError(t, err)

	orders := cl.Orders()
	opts = append([]Option{WithMutator(orders)}, opts...)
	c := New(orders, columns.NewResolver(cl, nil), cfg, opts...)
	t.Cleanup(c.Close)
	return c, orders
}

func TestController_PendingOrdersRowCount(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(append(testutil.Orders(3, "pendiente", "Acme"), testutil.Orders(2, "error", "Acme")...))

	cfg := DefaultConfig()
	cfg.PageSize = 2
	c, _ := newBackendController(t, backend, cfg)

	require.NoError(t, c.SetFilter(pagination.Filter{Status: "pendiente"}))
	view := waitIdle(t, c)
	require.Equal(t, StateReady, view.State, "err: %v", view.Err)
	assert.Len(t, view.Rows, 2)
	assert.Equal(t, 4, view.RowCount)
	assert.False(t, view.Terminal)

	require.NoError(t, c.SetPage(2))
	view = waitIdle(t, c)
	assert.Len(t, view.Rows, 1)
	assert.Equal(t, 3, view.RowCount)
	assert.True(t, view.Terminal)

	// select column first, then the template
	assert.Equal(t, columns.SelectField, view.Columns[0].Field)
	assert.Len(t, view.Columns, len(columns.Template())+1)
	assert.Equal(t, "Pendiente", view.Rows[0].Cells["status"])
}

func TestController_FilterChangeClearsSelection(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(testutil.Orders(3, "pendiente", "Acme"))

	c, _ := newBackendController(t, backend, DefaultConfig())
	require.NoError(t, c.Start())
	view := waitIdle(t, c)
	require.Len(t, view.Rows, 3)

	assert.True(t, c.ToggleRow(view.Rows[0].ID))
	assert.False(t, c.ToggleRow("not-visible"))
	assert.Equal(t, []string{"o-1"}, c.SelectedRecordIDs())

	require.NoError(t, c.Refresh())
	view = waitIdle(t, c)
	assert.Equal(t, []string{view.Rows[0].ID}, view.Selected, "refresh keeps rows still present")

	require.NoError(t, c.SetFilter(pagination.Filter{Status: "pendiente"}))
	view = waitIdle(t, c)
	assert.Empty(t, view.Selected)

	c.ToggleAll()
	assert.True(t, c.View().AllSelected)
	c.ToggleAll()
	assert.Empty(t, c.View().Selected)
}

func TestController_BulkSetState(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(testutil.Orders(3, "pendiente", "Acme"))

	c, _ := newBackendController(t, backend, DefaultConfig(),
		WithBaseContext(client.WithToken(context.Background(), "caller-token")))
	require.NoError(t, c.SetFilter(pagination.Filter{Status: "pendiente"}))
	view := waitIdle(t, c)
	require.Len(t, view.Rows, 3)

	c.ToggleRow(view.Rows[0].ID)
	c.ToggleRow(view.Rows[2].ID)

	ack, err := c.BulkSetState(context.Background(), "procesada", "ops@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "2", fmt.Sprint(ack["updated"]))

	view = waitIdle(t, c)
	assert.Empty(t, view.Selected)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "o-2", view.Rows[0].Record.ID())

	patches := backend.StatePatches()
	require.Len(t, patches, 1)
	assert.Equal(t, []any{"o-1", "o-3"}, patches[0]["ids"])
	assert.Equal(t, "ops@example.com", patches[0]["user"])

	for _, req := range backend.Requests() {
		if req.Path == testutil.OrdersPath {
			assert.Equal(t, "Bearer caller-token", req.Header.Get("Authorization"))
		}
	}
}

func TestController_BulkSetStateFailureKeepsSelection(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(testutil.Orders(2, "pendiente", "Acme"))
	backend.SetResponse(testutil.BulkStatePath, testutil.NewServerErrorResponse("db down"))

	c, _ := newBackendController(t, backend, DefaultConfig())
	require.NoError(t, c.Start())
	view := waitIdle(t, c)
	c.ToggleRow(view.Rows[1].ID)
	before := c.View().Generation

	_, err := c.BulkSetState(context.Background(), "procesada", "ops@example.com", nil)
	assert.Equal(t, client.ErrorClassServer, client.Classify(err))

	view = c.View()
	assert.Equal(t, []string{view.Rows[1].ID}, view.Selected)
	assert.Equal(t, before, view.Generation, "no reload after a failed bulk change")
}

func TestController_BulkSetStateValidation(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(testutil.Orders(1, "pendiente", "Acme"))

	c, _ := newBackendController(t, backend, DefaultConfig())
	require.NoError(t, c.Start())
	waitIdle(t, c)

	_, err := c.BulkSetState(context.Background(), "procesada", "ops@example.com", nil)
	var verr *client.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ids", verr.Fields[0].Field)
	assert.Zero(t, backend.RequestCount(testutil.BulkStatePath))
}

func TestController_BulkSetStateUnsupported(t *testing.T) {
	c := New(pagination.PageFetcherFunc(func(_ context.Context, req pagination.Request) (*pagination.Result, error) {
		return pagination.NewResult(nil, nil, req), nil
	}), nil, DefaultConfig())
	defer c.Close()

	_, err := c.BulkSetState(context.Background(), "procesada", "ops", nil)
	assert.ErrorIs(t, err, client.ErrUnsupported)
}

func TestController_Export(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(testutil.Orders(5, "pendiente", "Acme"))

	cfg := DefaultConfig()
	cfg.Export.PageSize = 2
	c, _ := newBackendController(t, backend, cfg)

	var progress []pagination.Progress
	var buf bytes.Buffer
	n, err := c.Export(context.Background(), &buf, &export.XLSXWriter{}, func(p pagination.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, progress, 3)
	assert.Equal(t, 5, progress[2].Accumulated)
	assert.NotZero(t, buf.Len())
}

func TestController_ExportEmpty(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetOrders(nil)

	c, _ := newBackendController(t, backend, DefaultConfig())

	var buf bytes.Buffer
	_, err := c.Export(context.Background(), &buf, &export.XLSXWriter{}, nil)
	assert.ErrorIs(t, err, export.ErrNoRows)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
