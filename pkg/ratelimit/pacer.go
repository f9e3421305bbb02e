// Package ratelimit paces outgoing backend requests.
//
// Interactive table loads are naturally paced by the user; full-collection
// walks for export are not, and a large export would otherwise hit the backend
// with back-to-back page requests. A Pacer spaces those requests out with a
// token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsgrid_pacer_wait_seconds",
		Help:    "Time spent waiting for a request slot",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
	})

	pacerRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsgrid_pacer_rejected_total",
		Help: "Total requests that could not acquire a slot (TryAcquire failures or cancelled waits)",
	})
)

// Pacer is a token bucket limiter. Safe for concurrent use.
type Pacer struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	qps     float64
}

// NewPacer creates a pacer allowing qps requests per second with the given
// burst. qps <= 0 disables pacing; burst <= 0 defaults to max(1, int(qps)).
func NewPacer(qps float64, burst int) *Pacer {
	if burst <= 0 {
		burst = max(1, int(qps))
	}
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		qps:     qps,
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		pacerRejectedTotal.Inc()
		return err
	}
	pacerWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// TryAcquire takes a slot without blocking and reports whether it succeeded.
func (p *Pacer) TryAcquire() bool {
	if p.limiter.Allow() {
		return true
	}
	pacerRejectedTotal.Inc()
	return false
}

// SetRate changes the rate; qps <= 0 disables pacing.
func (p *Pacer) SetRate(qps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.qps = qps
	if qps <= 0 {
		p.limiter.SetLimit(rate.Inf)
		return
	}
	p.limiter.SetLimit(rate.Limit(qps))
}

// Rate returns the configured requests per second (0 = unpaced).
func (p *Pacer) Rate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.qps < 0 {
		return 0
	}
	return p.qps
}
