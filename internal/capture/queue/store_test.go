package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/queue"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

func newSQLiteStore(t *testing.T) *queue.SQLiteStore {
	t.Helper()
	s, err := queue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRedisStore(t *testing.T) *queue.RedisStore {
	s, _ := newRedisStoreWithServer(t)
	return s
}

func newRedisStoreWithServer(t *testing.T) (*queue.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := queue.NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func item(id, url string) queue.Item {
	ts := time.Date(2025, 10, 8, 14, 30, 0, 0, time.UTC)
	return queue.Item{
		ID:         id,
		UserID:     "user-1",
		PageData:   domain.PageData{URL: url, Title: "Charter request", Emails: []string{"a@b.co"}},
		Timestamp:  ts,
		EnqueuedAt: ts.Add(time.Second),
	}
}

func runStoreContract(t *testing.T, s queue.Store) {
	ctx := context.Background()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, item(id, "https://example.com/"+id)))
	}

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, "https://example.com/b", items[1].PageData.URL)
	assert.Equal(t, []string{"a@b.co"}, items[1].PageData.Emails)
	assert.True(t, items[0].Timestamp.Equal(time.Date(2025, 10, 8, 14, 30, 0, 0, time.UTC)))

	b := items[1]
	b.Attempts = 3
	b.LastError = "connection refused"
	require.NoError(t, s.Update(ctx, b))

	require.NoError(t, s.Remove(ctx, "a"))

	items, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, 3, items[0].Attempts)
	assert.Equal(t, "connection refused", items[0].LastError)

	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Removing an unknown id is a no-op.
	require.NoError(t, s.Remove(ctx, "zzz"))
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, newSQLiteStore(t))
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, newRedisStore(t))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	s, err := queue.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, item("persist", "https://example.com")))
	require.NoError(t, s.Close())

	s, err = queue.OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "persist", items[0].ID)
}

func TestRedisStore_LenMatchesListWithOrphanOrderIDs(t *testing.T) {
	s, mr := newRedisStoreWithServer(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, item("a", "https://a.example")))
	_, err := mr.Push("capture:queue:order", "ghost")
	require.NoError(t, err)

	items, err := s.List(ctx)
	require.NoError(t, err)
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, len(items), n)
}

func TestRedisStore_UpdateAfterRemoveDoesNotResurrect(t *testing.T) {
	s, mr := newRedisStoreWithServer(t)
	ctx := context.Background()

	it := item("a", "https://a.example")
	require.NoError(t, s.Append(ctx, it))
	require.NoError(t, s.Remove(ctx, "a"))

	it.Attempts = 3
	require.NoError(t, s.Update(ctx, it))
	assert.False(t, mr.Exists("capture:queue:items"))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := queue.NewRedisStore("not a url")
	assert.Error(t, err)
}
