package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/internal/app/docstore"
	"livechat/internal/pkg/randx"
)

// openTestStore connects to TEST_DATABASE_URL, skipping when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := NewPool(dsn)
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// scope returns a collection unique to the test run.
func scope(t *testing.T) string {
	return docstore.Join("rooms", "test-"+randx.DocumentID(), "messages")
}

func next(t *testing.T, sub docstore.Subscription) *docstore.Batch {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := sub.Next(ctx)
	require.NoError(t, err)
	return batch
}

func TestPostgresCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	col := scope(t)

	_, err := store.Get(ctx, col+"/m1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.ErrorIs(t, store.Update(ctx, col+"/m1", docstore.Fields{"text": "x"}), docstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, col+"/m1", docstore.Fields{"text": "one", "senderId": "u1"}, false))
	require.NoError(t, store.Set(ctx, col+"/m1", docstore.Fields{"level": 3}, true))

	snap, err := store.Get(ctx, col+"/m1")
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"one","senderId":"u1","level":3}`, string(snap.Raw()))

	id, err := store.Add(ctx, col, docstore.Fields{"senderId": "u2"})
	require.NoError(t, err)

	found, err := store.Where(ctx, col, "senderId", "u2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, id, found[0].ID)

	all, err := store.List(ctx, col)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, col+"/m1"))
	require.NoError(t, store.Delete(ctx, col+"/m1"))
}

func TestPostgresSubscribe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	col := scope(t)

	require.NoError(t, store.Set(ctx, col+"/m1", docstore.Fields{"text": "one", "timestamp": docstore.ServerTimestamp}, false))

	sub, err := store.Subscribe(ctx, docstore.Query{Collection: col, OrderBy: "timestamp"})
	require.NoError(t, err)
	defer sub.Stop()

	first := next(t, sub)
	require.Len(t, first.Changes, 1)

	require.NoError(t, store.Set(ctx, col+"/m2", docstore.Fields{"text": "two", "timestamp": docstore.ServerTimestamp}, false))
	require.NoError(t, store.Delete(ctx, col+"/m1"))

	var seen []docstore.Change
	for len(seen) < 2 {
		seen = append(seen, next(t, sub).Changes...)
	}
	require.Equal(t, docstore.Added, seen[0].Kind)
	require.Equal(t, "m2", seen[0].Doc.ID)
	require.Equal(t, docstore.Removed, seen[1].Kind)
	require.Equal(t, "m1", seen[1].Doc.ID)
}

func TestPostgresVersionsIncreaseAcrossInstances(t *testing.T) {
	store := openTestStore(t)
	other := NewStore(store.pool)
	ctx := context.Background()
	col := scope(t)

	require.NoError(t, store.Set(ctx, col+"/m1", docstore.Fields{"text": "one"}, false))

	// A version stamped by an instance whose clock runs ahead.
	ahead := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	_, err := store.pool.Exec(ctx,
		`UPDATE documents SET updated_at = $3 WHERE collection = $1 AND id = $2`, col, "m1", ahead)
	require.NoError(t, err)

	require.NoError(t, other.Update(ctx, col+"/m1", docstore.Fields{"text": "two"}))

	snap, err := other.Get(ctx, col+"/m1")
	require.NoError(t, err)
	require.True(t, snap.UpdateTime.After(ahead), "version %v not after %v", snap.UpdateTime, ahead)
}
