package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tiered is a two-layer cache:
// L1 is the session cache (fast, local to this process),
// L2 is Redis (slower, shared across instances, optional).
//
// Entries expire after ttl in both layers, so a change made through another
// instance is picked up within ttl.
type Tiered struct {
	l1     *Session
	l2     Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewTiered creates a tiered cache. l2 may be nil, in which case only the
// session layer is used.
func NewTiered(l1 *Session, l2 Store, ttl time.Duration) *Tiered {
	if l1 == nil {
		l1 = NewSession()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Tiered{
		l1:     l1,
		l2:     l2,
		ttl:    ttl,
		logger: log.With().Str("component", "column-cache").Logger(),
	}
}

// Get retrieves an entry from cache (L1 -> L2). An L2 hit is copied into L1
// with its remaining lifetime.
func (t *Tiered) Get(ctx context.Context, key Key) (*Entry, error) {
	if entry, err := t.l1.Get(ctx, key); err == nil {
		return entry, nil
	}

	if t.l2 == nil {
		return nil, ErrCacheMiss
	}

	entry, err := t.l2.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("L2 cache error")
		}
		return nil, ErrCacheMiss
	}

	l1Entry := *entry
	if ttl := entry.TTL(); ttl <= 0 || ttl > t.ttl {
		l1Entry.Expires = time.Now().Add(t.ttl)
	}
	_ = t.l1.Set(ctx, key, &l1Entry)

	return &l1Entry, nil
}

// Set writes to L1 and, when configured, to L2. L2 failures are logged only.
func (t *Tiered) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	expiring := entry.WithTTL(t.ttl)
	if err := t.l1.Set(ctx, key, expiring); err != nil {
		return err
	}

	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, expiring); err != nil {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to write L2 cache")
		}
	}
	return nil
}

// Delete removes the entry from both layers.
func (t *Tiered) Delete(ctx context.Context, key Key) error {
	_ = t.l1.Delete(ctx, key)
	if t.l2 != nil {
		return t.l2.Delete(ctx, key)
	}
	return nil
}

// DeleteTenant removes every entry of tenantName from both layers. An L2
// without tenant deletion only loses the id-less key.
func (t *Tiered) DeleteTenant(ctx context.Context, scope, tenantName string) error {
	_ = t.l1.DeleteTenant(ctx, scope, tenantName)
	switch l2 := t.l2.(type) {
	case nil:
		return nil
	case TenantStore:
		return l2.DeleteTenant(ctx, scope, tenantName)
	default:
		return l2.Delete(ctx, Key{Scope: scope, TenantName: tenantName})
	}
}
