package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	walkerPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgrid_walker_pages_total",
		Help: "Total pages fetched by full-collection walks",
	})

	walkerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsgrid_walker_runs_total",
		Help: "Total full-collection walks by outcome",
	}, []string{"outcome"})
)

// WalkerConfig holds full-collection walker configuration.
type WalkerConfig struct {
	// PageSize requested for every page. Export walks use large pages.
	PageSize int
	// MaxPages is a hard ceiling on pages fetched (0 = unlimited).
	MaxPages int
	// Timeout per page fetch (0 = only the caller's context applies).
	Timeout time.Duration
}

// DefaultWalkerConfig returns the export defaults.
func DefaultWalkerConfig() WalkerConfig {
	return WalkerConfig{
		PageSize: 500,
		MaxPages: 0,
		Timeout:  60 * time.Second,
	}
}

// Progress is reported after every page of a walk.
type Progress struct {
	Page        int
	PageSize    int
	Received    int
	Accumulated int
	Meta        Meta
}

// ProgressFunc receives walk progress. It cannot influence the walk.
type ProgressFunc func(Progress)

// Waiter paces requests; see ratelimit.Pacer.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Walker fetches every page of a collection, one page at a time.
type Walker struct {
	fetcher PageFetcher
	config  WalkerConfig
	pacer   Waiter
}

// NewWalker creates a new walker.
func NewWalker(fetcher PageFetcher, config WalkerConfig) *Walker {
	if config.PageSize <= 0 {
		config.PageSize = 500
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Walker{
		fetcher: fetcher,
		config:  config,
	}
}

// WithPacer makes the walker wait on p before every page request.
func (w *Walker) WithPacer(p Waiter) *Walker {
	w.pacer = p
	return w
}

// CollectAll fetches pages 1, 2, ... for filter and returns the concatenated
// items. After each page p the walk continues when:
//   - the page count is known and p is below it;
//   - otherwise, the page was non-empty and either carried a continuation
//     hint or was exactly full.
//
// MaxPages stops the walk without error. Any fetch error aborts the walk and
// discards the accumulated items.
func (w *Walker) CollectAll(ctx context.Context, filter Filter, onPage ProgressFunc) ([]record.Record, error) {
	start := time.Now()
	accumulated := make([]record.Record, 0, w.config.PageSize)

	log.Info().
		Str("tenant", tenantLabel(filter)).
		Str("status", filter.Status).
		Int("page_size", w.config.PageSize).
		Int("max_pages", w.config.MaxPages).
		Msg("Starting full collection walk")

	page := 1
	for {
		if w.pacer != nil {
			if err := w.pacer.Wait(ctx); err != nil {
				walkerRunsTotal.WithLabelValues("cancelled").Inc()
				return nil, fmt.Errorf("wait for page %d: %w", page, err)
			}
		}

		result, err := w.fetch(ctx, Request{Filter: filter, Page: page, PageSize: w.config.PageSize})
		if err != nil {
			log.Warn().
				Err(err).
				Int("page", page).
				Int("accumulated", len(accumulated)).
				Msg("Page fetch failed - aborting walk")
			walkerRunsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		walkerPagesTotal.Inc()

		received := len(result.Items)
		accumulated = append(accumulated, result.Items...)

		if onPage != nil {
			onPage(Progress{
				Page:        page,
				PageSize:    w.config.PageSize,
				Received:    received,
				Accumulated: len(accumulated),
				Meta:        result.Meta,
			})
		}

		if !w.shouldContinue(result.Meta, page, received) {
			break
		}

		page++
		if w.config.MaxPages > 0 && page > w.config.MaxPages {
			log.Warn().
				Int("max_pages", w.config.MaxPages).
				Int("accumulated", len(accumulated)).
				Msg("Walk stopped at page ceiling")
			break
		}

		// Progress logging every 10 pages
		if page%10 == 0 {
			log.Info().
				Int("page", page).
				Int("accumulated", len(accumulated)).
				Msg("Walk progress")
		}
	}

	log.Info().
		Int("pages", page).
		Int("records", len(accumulated)).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")
	walkerRunsTotal.WithLabelValues("complete").Inc()

	return accumulated, nil
}

func (w *Walker) fetch(ctx context.Context, req Request) (*Result, error) {
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}
	result, err := w.fetcher.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return NewResult(nil, nil, req), nil
	}
	return result, nil
}

func (w *Walker) shouldContinue(meta Meta, page, received int) bool {
	if meta.TotalPages != nil {
		return page < *meta.TotalPages
	}
	if received == 0 {
		return false
	}
	if meta.HasMoreHint {
		return true
	}
	return received == w.config.PageSize
}

func tenantLabel(f Filter) string {
	if f.TenantName != "" {
		return f.TenantName
	}
	return f.TenantID
}
