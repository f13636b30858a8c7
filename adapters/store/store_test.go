package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/layer-3/verisafe/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.Store     = (*MemoryStore)(nil)
	_ ports.ViewStore = (*MemoryStore)(nil)
	_ ports.Store     = (*RedisStore)(nil)
	_ ports.ViewStore = (*RedisStore)(nil)
	_ ports.ViewStore = (*SQLiteStore)(nil)
)

func TestMemoryStore_Revocation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	revoked, err := s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.InvalidateToken(ctx, "sess-1", time.Minute))
	revoked, err = s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryStore_InvalidateKeepsLongerExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.InvalidateToken(ctx, "sess-1", time.Hour))
	require.NoError(t, s.InvalidateToken(ctx, "sess-1", time.Second))

	now = now.Add(time.Minute)
	revoked, err := s.IsTokenInvalidated(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func testViewStore(t *testing.T, s ports.ViewStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "verisafe-view")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "verisafe-view", "main"))
	v, ok, err := s.Get(ctx, "verisafe-view")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "main", v)

	require.NoError(t, s.Set(ctx, "verisafe-view", "home"))
	v, _, err = s.Get(ctx, "verisafe-view")
	require.NoError(t, err)
	assert.Equal(t, "home", v)
}

func TestMemoryStore_View(t *testing.T) {
	testViewStore(t, NewMemoryStore())
}

func TestSQLiteStore_View(t *testing.T) {
	s, err := OpenSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	testViewStore(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "verisafe-view", "main"))
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "verisafe-view")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "main", v)
}
