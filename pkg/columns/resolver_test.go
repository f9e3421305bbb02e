package columns

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Sternrassler/opsgrid/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	cfg     *Config
	err     error
	fetches []TenantRef
	saved   map[string][]Def
	saveErr error
}

func (s *fakeSource) FetchColumnConfig(_ context.Context, ref TenantRef) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, ref)
	return s.cfg, s.err
}

func (s *fakeSource) SaveColumnConfig(_ context.Context, tenantName string, defs []Def) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.saved == nil {
		s.saved = make(map[string][]Def)
	}
	s.saved[tenantName] = defs
	return nil
}

func defs(fields ...string) []Def {
	out := make([]Def, len(fields))
	for i, f := range fields {
		out[i] = Def{Field: f, Title: f, Active: true}
	}
	return out
}

func TestResolveFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		ref  TenantRef
		want []Def
	}{
		{
			name: "tenant entry by name",
			cfg: &Config{
				Columns:        defs("a"),
				DefaultColumns: defs("b"),
				ColumnsConfig: []TenantColumns{
					{TenantName: "Other", Columns: defs("x")},
					{TenantName: "ACME", Columns: defs("status", "total")},
				},
			},
			ref:  TenantRef{Name: "acme"},
			want: defs("status", "total"),
		},
		{
			name: "tenant entry by id",
			cfg: &Config{
				ColumnsConfig: []TenantColumns{{TenantID: "42", Columns: defs("brand")}},
			},
			ref:  TenantRef{ID: "42", Name: "unknown"},
			want: defs("brand"),
		},
		{
			name: "empty tenant entry falls to defaults",
			cfg: &Config{
				DefaultColumns: defs("b", "c"),
				ColumnsConfig:  []TenantColumns{{TenantName: "acme"}},
			},
			ref:  TenantRef{Name: "acme"},
			want: defs("b", "c"),
		},
		{
			name: "first matching entry wins",
			cfg: &Config{
				ColumnsConfig: []TenantColumns{
					{TenantName: "acme", Columns: defs("first")},
					{TenantID: "42", Columns: defs("second")},
				},
			},
			ref:  TenantRef{ID: "42", Name: "Acme"},
			want: defs("first"),
		},
		{
			name: "empty tenant list means template",
			cfg: &Config{
				DefaultColumns: defs("b"),
				ColumnsConfig: []TenantColumns{
					{TenantName: "acme", Columns: []Def{}},
					{TenantName: "acme", Columns: defs("later")},
				},
			},
			ref:  TenantRef{Name: "acme"},
			want: Template(),
		},
		{
			name: "generic list verbatim",
			cfg:  &Config{Columns: defs("a", "b", "c")},
			ref:  TenantRef{Name: "acme"},
			want: defs("a", "b", "c"),
		},
		{
			name: "nothing usable",
			cfg:  &Config{},
			ref:  TenantRef{Name: "acme"},
			want: Template(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeSource{cfg: tt.cfg}, nil)
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.ref))
		})
	}
}

func TestResolveDegradesOnError(t *testing.T) {
	src := &fakeSource{err: errors.New("500 Internal Server Error")}
	r := NewResolver(src, nil)

	got := r.Resolve(context.Background(), TenantRef{Name: "acme"})
	assert.Len(t, got, 21)
	assert.Equal(t, Template(), got)

	// Failures are not cached; the next resolve asks again.
	r.Resolve(context.Background(), TenantRef{Name: "acme"})
	assert.Len(t, src.fetches, 2)
}

func TestResolveWithoutTenantSkipsBackend(t *testing.T) {
	src := &fakeSource{cfg: &Config{Columns: defs("a")}}
	got := NewResolver(src, nil).Resolve(context.Background(), TenantRef{})

	assert.Equal(t, Template(), got)
	assert.Empty(t, src.fetches)
}

func TestResolveCachesPerTenant(t *testing.T) {
	src := &fakeSource{cfg: &Config{Columns: defs("a", "b")}}
	session := cache.NewSession()
	r := NewResolver(src, session)
	ctx := context.Background()

	first := r.Resolve(ctx, TenantRef{Name: "Acme"})
	second := r.Resolve(ctx, TenantRef{Name: "acme"})
	r.Resolve(ctx, TenantRef{Name: "other"})

	assert.Equal(t, first, second)
	assert.Len(t, src.fetches, 2)
	assert.Equal(t, 2, session.Len())
}

func TestResolveReturnsCopies(t *testing.T) {
	r := NewResolver(&fakeSource{cfg: &Config{}}, nil)
	got := r.Resolve(context.Background(), TenantRef{ID: "1"})
	got[0].Title = "mutated"

	assert.Equal(t, "_id", Template()[0].Title)
}

func TestResolveDeduplicatesFields(t *testing.T) {
	cfg := &Config{Columns: []Def{
		{Field: "status", Title: "Estado", Active: true},
		{Field: "", Title: "blank", Active: true},
		{Field: "status", Title: "Dup", Active: false},
	}}
	got := NewResolver(&fakeSource{cfg: cfg}, nil).Resolve(context.Background(), TenantRef{ID: "1"})

	require.Len(t, got, 1)
	assert.Equal(t, "Estado", got[0].Title)
}

func TestSave(t *testing.T) {
	src := &fakeSource{cfg: &Config{Columns: defs("a")}}
	r := NewResolver(src, nil)
	ctx := context.Background()

	assert.Equal(t, defs("a"), r.Resolve(ctx, TenantRef{Name: "acme"}))
	assert.Equal(t, defs("a"), r.Resolve(ctx, TenantRef{ID: "42", Name: "Acme"}))
	require.Len(t, src.fetches, 2)

	require.NoError(t, r.Save(ctx, "ACME", defs("status", "total")))
	assert.Equal(t, defs("status", "total"), src.saved["ACME"])

	// Every cached set of the tenant is dropped; the next resolve refetches.
	src.cfg = &Config{ColumnsConfig: []TenantColumns{{TenantName: "acme", Columns: defs("status", "total")}}}
	assert.Equal(t, defs("status", "total"), r.Resolve(ctx, TenantRef{Name: "acme"}))
	assert.Equal(t, defs("status", "total"), r.Resolve(ctx, TenantRef{ID: "42", Name: "Acme"}))
	assert.Len(t, src.fetches, 4)

	assert.ErrorIs(t, r.Save(ctx, "  ", defs("a")), ErrTenantRequired)

	src.saveErr = errors.New("forbidden")
	assert.ErrorContains(t, r.Save(ctx, "acme", defs("a")), "forbidden")
	assert.Len(t, src.fetches, 4, "failed save keeps the cache")
	r.Resolve(ctx, TenantRef{Name: "acme"})
	assert.Len(t, src.fetches, 4)
}

func TestSaveWithPlainStore(t *testing.T) {
	src := &fakeSource{cfg: &Config{Columns: defs("a")}}
	store := &keyOnlyStore{Store: cache.NewSession()}
	r := NewResolver(src, store)
	ctx := context.Background()

	r.Resolve(ctx, TenantRef{Name: "acme"})
	require.NoError(t, r.Save(ctx, "acme", defs("b")))
	assert.Equal(t, []cache.Key{{Scope: "columns", TenantName: "acme"}}, store.deleted)

	r.Resolve(ctx, TenantRef{Name: "acme"})
	assert.Len(t, src.fetches, 2)
}

// keyOnlyStore hides tenant deletion from the resolver.
type keyOnlyStore struct {
	cache.Store
	deleted []cache.Key
}

func (s *keyOnlyStore) Delete(ctx context.Context, key cache.Key) error {
	s.deleted = append(s.deleted, key)
	return s.Store.Delete(ctx, key)
}

func TestDecodeConfig(t *testing.T) {
	payload := map[string]any{
		"columns": []any{
			map[string]any{"value": "status", "title": "Estado", "active": true, "sortOrder": 2.0},
			map[string]any{"value": "total", "title": "Total", "active": "false"},
			map[string]any{"value": "brand"},
			map[string]any{"value": "taxes", "active": "true"},
			map[string]any{"value": "stages", "active": 1.0},
			"garbage",
		},
		"columnsConfig": []any{
			map[string]any{
				"tennantId":   1234.0,
				"tenantName":  "Acme",
				"columns":     []any{map[string]any{"value": "_id", "title": "ID", "active": true}},
				"unknownKeys": true,
			},
			map[string]any{"tenantName": "Globex"},
		},
	}

	cfg, ok := DecodeConfig(payload)
	require.True(t, ok)
	require.Len(t, cfg.Columns, 5)

	assert.Equal(t, "status", cfg.Columns[0].Field)
	require.NotNil(t, cfg.Columns[0].SortOrder)
	assert.Equal(t, 2, *cfg.Columns[0].SortOrder)
	assert.True(t, cfg.Columns[0].Active)
	for _, d := range cfg.Columns[1:] {
		assert.False(t, d.Active, "%s: only a JSON true shows a column", d.Field)
	}
	assert.Nil(t, cfg.DefaultColumns)

	require.Len(t, cfg.ColumnsConfig, 2)
	assert.Equal(t, "1234", cfg.ColumnsConfig[0].TenantID)
	assert.Equal(t, "Acme", cfg.ColumnsConfig[0].TenantName)
	assert.Nil(t, cfg.ColumnsConfig[1].Columns, "missing list stays nil")

	_, ok = DecodeConfig(map[string]any{"orders": []any{}})
	assert.False(t, ok)
}
