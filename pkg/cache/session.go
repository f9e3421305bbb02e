package cache

import (
	"context"
	"fmt"
	"sync"
)

// TenantStore is a Store that can drop every cached entry of one tenant name,
// whatever tenant id the entries were resolved with.
type TenantStore interface {
	Store
	DeleteTenant(ctx context.Context, scope, tenantName string) error
}

type sessionItem struct {
	key   Key
	entry *Entry
}

// Session is an in-process cache scoped to one dashboard session.
type Session struct {
	mu      sync.RWMutex
	entries map[string]sessionItem
}

// NewSession creates an empty session cache.
func NewSession() *Session {
	return &Session{entries: make(map[string]sessionItem)}
}

// Get returns the entry for key or ErrCacheMiss.
func (s *Session) Get(_ context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	item, ok := s.entries[key.String()]
	s.mu.RUnlock()

	if !ok || item.entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("session").Inc()
	return item.entry, nil
}

// Set stores entry under key, replacing any previous entry.
func (s *Session) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	s.mu.Lock()
	s.entries[key.String()] = sessionItem{key: key, entry: entry}
	s.mu.Unlock()

	CacheSize.WithLabelValues("session").Add(float64(len(entry.Data)))
	return nil
}

// Delete removes the entry for key.
func (s *Session) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
	return nil
}

// DeleteTenant removes every entry of tenantName in scope.
func (s *Session) DeleteTenant(_ context.Context, scope, tenantName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, item := range s.entries {
		if item.key.MatchesTenant(scope, tenantName) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
