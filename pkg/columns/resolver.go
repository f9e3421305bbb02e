package columns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/opsgrid/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Source loads and persists tenant column configuration.
type Source interface {
	FetchColumnConfig(ctx context.Context, ref TenantRef) (*Config, error)
	SaveColumnConfig(ctx context.Context, tenantName string, defs []Def) error
}

// Tier names the layer a column set was resolved from.
type Tier string

const (
	TierTenant   Tier = "tenant"
	TierDefault  Tier = "default"
	TierGeneric  Tier = "generic"
	TierTemplate Tier = "template"
)

const cacheScope = "columns"

// ErrTenantRequired is returned by Save without a tenant name.
var ErrTenantRequired = errors.New("tenant name is required")

// Resolver resolves column sets per tenant and caches them for the session.
type Resolver struct {
	source Source
	store  cache.Store
	logger zerolog.Logger
}

// NewResolver creates a resolver. A nil store caches in process only.
func NewResolver(source Source, store cache.Store) *Resolver {
	if store == nil {
		store = cache.NewSession()
	}
	return &Resolver{
		source: source,
		store:  store,
		logger: log.With().Str("component", "column-resolver").Logger(),
	}
}

// Resolve returns the column set for ref. It never fails: upstream errors and
// unusable configurations degrade to Template(). Successful resolutions are
// cached, so the backend is asked once per tenant reference.
func (r *Resolver) Resolve(ctx context.Context, ref TenantRef) []Def {
	if ref.IsZero() || r.source == nil {
		return Template()
	}

	key := cache.Key{Scope: cacheScope, TenantID: ref.ID, TenantName: ref.Name}
	if entry, err := r.store.Get(ctx, key); err == nil {
		var defs []Def
		if err := json.Unmarshal(entry.Data, &defs); err == nil && len(defs) > 0 {
			return defs
		}
		r.logger.Warn().Str("key", key.String()).Msg("Discarding unreadable cached column set")
		_ = r.store.Delete(ctx, key)
	}

	cfg, err := r.source.FetchColumnConfig(ctx, ref)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("tenant_id", ref.ID).
			Str("tenant_name", ref.Name).
			Msg("Column configuration unavailable - using template")
		return Template()
	}

	defs, tier := pick(cfg, ref)
	r.logger.Debug().
		Str("tenant_id", ref.ID).
		Str("tenant_name", ref.Name).
		Str("tier", string(tier)).
		Int("columns", len(defs)).
		Msg("Resolved column set")

	if data, err := json.Marshal(defs); err == nil {
		if err := r.store.Set(ctx, key, cache.NewEntry(data)); err != nil {
			r.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache column set")
		}
	}

	return clone(defs)
}

// Save persists defs as tenantName's column configuration and drops the
// tenant's cached sets, so the next Resolve reads the saved configuration.
func (r *Resolver) Save(ctx context.Context, tenantName string, defs []Def) error {
	if strings.TrimSpace(tenantName) == "" {
		return ErrTenantRequired
	}
	if r.source == nil {
		return fmt.Errorf("save columns: no configuration source")
	}
	if err := r.source.SaveColumnConfig(ctx, tenantName, normalize(defs)); err != nil {
		return fmt.Errorf("save columns for %q: %w", tenantName, err)
	}
	r.forget(ctx, tenantName)
	return nil
}

func (r *Resolver) forget(ctx context.Context, tenantName string) {
	var err error
	if ts, ok := r.store.(cache.TenantStore); ok {
		err = ts.DeleteTenant(ctx, cacheScope, tenantName)
	} else {
		err = r.store.Delete(ctx, cache.Key{Scope: cacheScope, TenantName: tenantName})
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("tenant", tenantName).Msg("Failed to drop cached column sets")
	}
}

// pick applies the fallback chain.
func pick(cfg *Config, ref TenantRef) ([]Def, Tier) {
	if cfg == nil {
		return Template(), TierTemplate
	}

	name := strings.ToLower(strings.TrimSpace(ref.Name))
	id := strings.TrimSpace(ref.ID)
	for _, entry := range cfg.ColumnsConfig {
		nameMatch := name != "" && strings.ToLower(strings.TrimSpace(entry.TenantName)) == name
		idMatch := id != "" && strings.TrimSpace(entry.TenantID) == id
		if !nameMatch && !idMatch {
			continue
		}
		// The first match decides. A listless entry defers to the defaults,
		// an empty list means the template.
		if entry.Columns == nil {
			break
		}
		if defs := normalize(entry.Columns); len(defs) > 0 {
			return defs, TierTenant
		}
		return Template(), TierTemplate
	}

	if defs := normalize(cfg.DefaultColumns); len(defs) > 0 {
		return defs, TierDefault
	}
	if defs := normalize(cfg.Columns); len(defs) > 0 {
		return defs, TierGeneric
	}
	return Template(), TierTemplate
}
