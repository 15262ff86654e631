package redisdoc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"livechat/internal/app/docstore"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	store, err := Open("redis://" + s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, s
}

func next(t *testing.T, sub docstore.Subscription) *docstore.Batch {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	batch, err := sub.Next(ctx)
	require.NoError(t, err)
	return batch
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open("not a url")
	require.Error(t, err)
}

func TestGetSetUpdateDelete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "users/u1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.ErrorIs(t, store.Update(ctx, "users/u1", docstore.Fields{"level": 2}), docstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "users/u1", docstore.Fields{"username": "amal", "innerImage": "in.png"}, false))
	require.NoError(t, store.Update(ctx, "users/u1", docstore.Fields{"level": 2, "innerImage": docstore.Delete}))

	snap, err := store.Get(ctx, "users/u1")
	require.NoError(t, err)
	require.JSONEq(t, `{"username":"amal","level":2}`, string(snap.Raw()))
	require.True(t, mr.Exists(DefaultPrefix+"doc:users/u1"))

	require.NoError(t, store.Delete(ctx, "users/u1"))
	require.NoError(t, store.Delete(ctx, "users/u1"))
	_, err = store.Get(ctx, "users/u1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAddListWhere(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	id, err := store.Add(ctx, "privateChats", docstore.Fields{"senderId": "a", "receiverId": "b"})
	require.NoError(t, err)
	require.Len(t, id, 20)

	_, err = store.Add(ctx, "privateChats", docstore.Fields{"senderId": "b", "receiverId": "c"})
	require.NoError(t, err)

	all, err := store.List(ctx, "privateChats")
	require.NoError(t, err)
	require.Len(t, all, 2)

	got, err := store.Where(ctx, "privateChats", "receiverId", "b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, id, got[0].ID)
}

func TestServerTimestampUsesRedisTime(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mr.SetTime(at)

	require.NoError(t, store.Set(ctx, "rooms/r/messages/m1", docstore.Fields{"timestamp": docstore.ServerTimestamp}, false))
	require.NoError(t, store.Set(ctx, "rooms/r/messages/m2", docstore.Fields{"timestamp": docstore.ServerTimestamp}, false))

	var first, second struct {
		Timestamp time.Time `json:"timestamp"`
	}

	snap, err := store.Get(ctx, "rooms/r/messages/m1")
	require.NoError(t, err)
	require.NoError(t, snap.DataTo(&first))

	snap, err = store.Get(ctx, "rooms/r/messages/m2")
	require.NoError(t, err)
	require.NoError(t, snap.DataTo(&second))

	require.True(t, first.Timestamp.Equal(at))
	require.True(t, second.Timestamp.After(first.Timestamp))
}

func TestSubscribeDeliversChanges(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	col := "rooms/r/messages"

	require.NoError(t, store.Set(ctx, col+"/m1", docstore.Fields{"text": "one", "timestamp": docstore.ServerTimestamp}, false))

	sub, err := store.Subscribe(ctx, docstore.Query{Collection: col, OrderBy: "timestamp"})
	require.NoError(t, err)
	defer sub.Stop()

	first := next(t, sub)
	require.Len(t, first.Changes, 1)
	require.Equal(t, "m1", first.Changes[0].Doc.ID)
	require.Equal(t, 1, first.Size)

	require.NoError(t, store.Set(ctx, col+"/m2", docstore.Fields{"text": "two", "timestamp": docstore.ServerTimestamp}, false))

	var seen []docstore.Change
	for len(seen) < 1 {
		seen = append(seen, next(t, sub).Changes...)
	}
	require.Equal(t, docstore.Added, seen[0].Kind)
	require.Equal(t, "m2", seen[0].Doc.ID)

	require.NoError(t, store.Update(ctx, col+"/m1", docstore.Fields{"text": "edited"}))
	require.NoError(t, store.Delete(ctx, col+"/m2"))

	seen = nil
	for len(seen) < 2 {
		seen = append(seen, next(t, sub).Changes...)
	}
	require.Equal(t, docstore.Modified, seen[0].Kind)
	require.Equal(t, docstore.Removed, seen[1].Kind)
	require.Equal(t, "m2", seen[1].Doc.ID)
}

func TestWritesFromAnotherInstanceAreNotDropped(t *testing.T) {
	first, mr := setupTestRedis(t)
	second, err := Open("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	col := "rooms/r/messages"
	mr.SetTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	require.NoError(t, first.Set(ctx, col+"/m1", docstore.Fields{"text": "one", "timestamp": docstore.ServerTimestamp}, false))

	sub, err := first.Subscribe(ctx, docstore.Query{Collection: col, OrderBy: "timestamp"})
	require.NoError(t, err)
	defer sub.Stop()
	require.Len(t, next(t, sub).Changes, 1)

	// Same Redis TIME, fresh process clock.
	require.NoError(t, second.Update(ctx, col+"/m1", docstore.Fields{"text": "edited"}))

	batch := next(t, sub)
	require.Len(t, batch.Changes, 1)
	require.Equal(t, docstore.Modified, batch.Changes[0].Kind)

	var msg struct {
		Text string `json:"text"`
	}
	require.NoError(t, batch.Changes[0].Doc.DataTo(&msg))
	require.Equal(t, "edited", msg.Text)

	before, err := first.Get(ctx, col+"/m1")
	require.NoError(t, err)
	require.NoError(t, first.Update(ctx, col+"/m1", docstore.Fields{"text": "again"}))
	after, err := first.Get(ctx, col+"/m1")
	require.NoError(t, err)
	require.True(t, after.UpdateTime.After(before.UpdateTime))
}

func TestSubscribeStopAndClose(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	q := docstore.Query{Collection: "rooms/r/messages", OrderBy: "timestamp"}

	sub, err := store.Subscribe(ctx, q)
	require.NoError(t, err)
	next(t, sub)

	sub.Stop()
	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, docstore.ErrStopped)

	other, err := store.Subscribe(ctx, q)
	require.NoError(t, err)
	next(t, other)

	require.NoError(t, store.Close())
	_, err = other.Next(ctx)
	require.ErrorIs(t, err, docstore.ErrClosed)
	require.ErrorIs(t, store.Ping(ctx), docstore.ErrClosed)
}
