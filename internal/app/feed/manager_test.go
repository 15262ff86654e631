package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/internal/app/chat"
	"livechat/internal/app/docstore"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
)

func TestManagerReplacesFeedOnSameTarget(t *testing.T) {
	ctx := context.Background()
	m := docstore.NewMemory()
	col := chat.RoomMessages("general")
	resolver := user.NewResolver(m)

	mgr := NewManager()
	defer mgr.Shutdown()

	oldList := view.NewList(10, nil)
	first := NewRoomFeed(m, resolver, oldList, "general", 0)
	require.NoError(t, mgr.Open(ctx, "conn-1/room", first))
	require.Eventually(t, func() bool { return first.State() == Synced }, waitFor, tick)

	newList := view.NewList(10, nil)
	second := NewRoomFeed(m, resolver, newList, "general", 0)
	require.NoError(t, mgr.Open(ctx, "conn-1/room", second))

	require.Equal(t, Unsubscribed, first.State())
	<-first.Done()
	require.Equal(t, 1, m.Subscribers(col))

	put(t, m, col, "1", docstore.Fields{"senderId": "u1", "text": "hello", "type": "chat", "timestamp": ts(1)})
	waitIDs(t, newList, "1")
	require.Zero(t, oldList.Len())

	// The stale feed's cleanup notification must not evict its successor.
	time.Sleep(20 * time.Millisecond)
	require.Same(t, second, mgr.Get("conn-1/room"))
}

func TestManagerRemovesFailedFeeds(t *testing.T) {
	ctx := context.Background()
	m := docstore.NewMemory()

	mgr := NewManager()
	defer mgr.Shutdown()

	f := NewRoomFeed(m, user.NewResolver(m), view.NewList(10, nil), "general", 0)
	require.NoError(t, mgr.Open(ctx, "conn-1/room", f))
	require.Eventually(t, func() bool { return f.State() == Synced }, waitFor, tick)

	m.Interrupt(chat.RoomMessages("general"), errors.New("boom"))
	require.Eventually(t, func() bool { return mgr.Len() == 0 }, waitFor, tick)
}

func TestManagerCloseAndShutdown(t *testing.T) {
	ctx := context.Background()
	m := docstore.NewMemory()
	mgr := NewManager()

	room := NewRoomFeed(m, user.NewResolver(m), view.NewList(10, nil), "general", 0)
	private := NewPrivateFeed(m, view.NewList(10, nil), "u1", "u2")
	require.NoError(t, mgr.Open(ctx, "conn-1/room", room))
	require.NoError(t, mgr.Open(ctx, "conn-1/private", private))
	require.Equal(t, 2, mgr.Len())

	mgr.Close("conn-1/room")
	require.Equal(t, Unsubscribed, room.State())
	require.Equal(t, 1, mgr.Len())

	mgr.Shutdown()
	require.Equal(t, Unsubscribed, private.State())
	require.Zero(t, mgr.Len())

	late := NewPrivateFeed(m, view.NewList(10, nil), "u1", "u3")
	require.ErrorIs(t, mgr.Open(ctx, "conn-2/private", late), ErrShutdown)
}

func TestManagerForgetsFeedStoppedBeforeStart(t *testing.T) {
	m := docstore.NewMemory()

	mgr := NewManager()
	defer mgr.Shutdown()

	f := NewRoomFeed(m, user.NewResolver(m), view.NewList(10, nil), "general", 0)
	f.Stop()

	require.NoError(t, mgr.Open(context.Background(), "conn-1/room", f))
	<-f.Done()
	require.Eventually(t, func() bool { return mgr.Len() == 0 }, waitFor, tick)
	require.Zero(t, m.Subscribers(chat.RoomMessages("general")))
}
