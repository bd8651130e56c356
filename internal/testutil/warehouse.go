// Package testutil provides shared fixtures for tests across the codebase:
// a seeded demo warehouse, the demo realm, and an in-memory datastore stub.
// This follows the Go convention of a shared test utility package (like
// net/http/httptest).
package testutil

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"duck-warehouse/internal/demo"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/engine"
	"duck-warehouse/internal/realm"
)

// OpenDemoWarehouse creates a SQLite warehouse under t.TempDir() and seeds
// it with the demo Jobs data. The store is closed when the test ends.
func OpenDemoWarehouse(t *testing.T) *engine.Store {
	t.Helper()

	store, err := engine.Open(engine.DriverSQLite, filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, demo.Seed(context.Background(), store.DB()))
	return store
}

// DemoRealm builds the demo Jobs realm from its embedded definition.
func DemoRealm(t *testing.T) *realm.Realm {
	t.Helper()

	cfg, err := realm.NewFileSource(demo.Realms()).LoadRealm(context.Background(), demo.RealmName)
	require.NoError(t, err)
	r, err := realm.New(*cfg, nil)
	require.NoError(t, err)
	return r
}

// === Datastore Stub ===

// StubStore implements domain.Datastore with canned results. Every query is
// recorded for assertions.
type StubStore struct {
	// QueryFn, when set, answers every query.
	QueryFn func(ctx context.Context, query string, params map[string]any) ([]domain.Row, error)
	// Rows answers queries containing a registered substring; the longest
	// matching key wins.
	Rows map[string][]domain.Row

	mu      sync.Mutex
	Queries []RecordedQuery
}

// RecordedQuery is one call to StubStore.Query.
type RecordedQuery struct {
	SQL    string
	Params map[string]any
}

var _ domain.Datastore = (*StubStore)(nil)

// Query implements the interface method for testing.
func (s *StubStore) Query(ctx context.Context, query string, params map[string]any) ([]domain.Row, error) {
	s.mu.Lock()
	s.Queries = append(s.Queries, RecordedQuery{SQL: query, Params: params})
	s.mu.Unlock()

	if s.QueryFn != nil {
		return s.QueryFn(ctx, query, params)
	}

	keys := make([]string, 0, len(s.Rows))
	for k := range s.Rows {
		if strings.Contains(query, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return s.Rows[keys[0]], nil
}

// Calls returns the number of recorded queries.
func (s *StubStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queries)
}

// === Realm Source Stub ===

// StaticRealmSource implements domain.RealmConfigSource over fixed configs.
type StaticRealmSource struct {
	Configs map[string]domain.RealmConfig

	mu    sync.Mutex
	Loads int
}

var _ domain.RealmConfigSource = (*StaticRealmSource)(nil)

// LoadRealm implements the interface method for testing.
func (s *StaticRealmSource) LoadRealm(_ context.Context, name string) (*domain.RealmConfig, error) {
	s.mu.Lock()
	s.Loads++
	s.mu.Unlock()

	cfg, ok := s.Configs[name]
	if !ok {
		return nil, domain.ErrNotFound("realm %q not found", name)
	}
	return &cfg, nil
}

// ListRealms implements the interface method for testing.
func (s *StaticRealmSource) ListRealms(context.Context) ([]string, error) {
	names := make([]string, 0, len(s.Configs))
	for n := range s.Configs {
		names = append(names, n)
	}
	return names, nil
}

// LoadCount returns how many times LoadRealm was called.
func (s *StaticRealmSource) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Loads
}

// === Role Restriction Stub ===

// StaticRestrictions implements domain.RoleRestrictionSource over a fixed list.
type StaticRestrictions []domain.RoleRestriction

var _ domain.RoleRestrictionSource = StaticRestrictions(nil)

// ListRestrictions implements the interface method for testing.
func (s StaticRestrictions) ListRestrictions(_ context.Context, role, realmName string) ([]domain.RoleRestriction, error) {
	var out []domain.RoleRestriction
	for _, r := range s {
		if r.Role == role && r.Realm == realmName {
			out = append(out, r)
		}
	}
	return out, nil
}
