package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livechat/internal/app/chat"
	"livechat/internal/app/docstore"
	"livechat/internal/app/feed"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
	"livechat/internal/pkg/errs"
)

const waitFor = 2 * time.Second

type harness struct {
	store *docstore.Memory
	hub   *Hub
	srv   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem := docstore.NewMemory()
	return newHarnessOn(t, mem, mem)
}

// newHarnessOn serves a hub reading through store, which wraps mem.
func newHarnessOn(t *testing.T, mem *docstore.Memory, store docstore.Store) *harness {
	t.Helper()

	hub := NewHub(store, user.NewResolver(store), Options{VisibleRows: 5})
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := user.User{ID: r.URL.Query().Get("uid"), Nickname: "tester", UserType: user.TypeRegistered}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.Attach(conn, u, time.Time{})
		go client.WritePump()
		client.ReadPump()
	}))

	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})

	return &harness{store: mem, hub: hub, srv: srv}
}

func (h *harness) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		c := h.hub.Client(uid)
		return c != nil
	}, waitFor, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil reads frames until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()

	for {
		f := readFrame(t, conn)
		if match(f) {
			return f
		}
	}
}

func TestRoomSubscriptionStreamsFrames(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "general"})

	var placeholders []string
	for len(placeholders) < 3 {
		f := readFrame(t, conn)
		require.Equal(t, view.OpPlaceholder, f.Type)
		require.Equal(t, feed.ScopeRoom, f.Target)
		placeholders = append(placeholders, f.Placeholder)
	}
	assert.Equal(t, []string{"loading", "none", "empty"}, placeholders)

	require.NoError(t, h.store.Set(context.Background(), docstore.Join(chat.RoomMessages("general"), "m1"), docstore.Fields{
		"senderId":  "u2",
		"user":      "sara",
		"text":      "hello",
		"type":      "chat",
		"timestamp": time.Now().UTC(),
	}, false))

	f := readUntil(t, conn, func(f Frame) bool { return f.Type == view.OpAppend })
	require.NotNil(t, f.Element)
	assert.Equal(t, "m1", f.Element.ID)
	assert.Equal(t, "hello", f.Element.Text)
	assert.Equal(t, "sara", f.Element.SenderName)
	assert.Equal(t, feed.ScopeRoom, f.Target)
}

func TestPrivateSubscription(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	col := chat.PrivateMessages(chat.ConversationKey("u1", "u2"))
	require.NoError(t, h.store.Set(context.Background(), docstore.Join(col, "p1"), docstore.Fields{
		"senderId":   "u2",
		"senderName": "sara",
		"receiverId": "u1",
		"text":       "psst",
		"type":       "private",
		"timestamp":  time.Now().UTC(),
	}, false))

	send(t, conn, Command{Type: CmdSubscribePrivate, PeerID: "u2"})

	f := readUntil(t, conn, func(f Frame) bool { return f.Type == view.OpAppend })
	assert.Equal(t, feed.ScopePrivate, f.Target)
	assert.Equal(t, view.DirectionReceived, f.Element.Direction)
	assert.Equal(t, "psst", f.Element.Text)
}

func TestInvalidCommands(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, conn)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, errs.ErrInvalidJSONFormat, f.Code)

	for _, cmd := range []Command{
		{Type: CmdSubscribeRoom},
		{Type: CmdSubscribeRoom, RoomID: "a/b"},
		{Type: CmdSubscribePrivate, PeerID: "u1"},
		{Type: CmdUnsubscribe, Target: "everything"},
		{Type: "dance"},
	} {
		send(t, conn, cmd)
		f := readFrame(t, conn)
		assert.Equal(t, FrameError, f.Type, cmd.Type)
		assert.Equal(t, errs.ErrInvalidParams, f.Code, cmd.Type)
	}
}

func TestAlertReachesUser(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	h.hub.Alert("u1", chat.AlertPublicSendFailed)
	h.hub.Alert("nobody", "dropped")

	f := readFrame(t, conn)
	assert.Equal(t, FrameAlert, f.Type)
	assert.Equal(t, chat.AlertPublicSendFailed, f.Message)
}

func TestUnsubscribeAndDisconnectReleaseFeeds(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "general"})
	send(t, conn, Command{Type: CmdSubscribePrivate, PeerID: "u2"})
	require.Eventually(t, func() bool { return h.hub.Feeds().Len() == 2 }, waitFor, 5*time.Millisecond)

	send(t, conn, Command{Type: CmdUnsubscribe, Target: feed.ScopeRoom})
	require.Eventually(t, func() bool { return h.hub.Feeds().Len() == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return h.hub.Len() == 0 && h.hub.Feeds().Len() == 0
	}, waitFor, 5*time.Millisecond)
	assert.Zero(t, h.store.Subscribers(chat.RoomMessages("general")))
}

func TestResubscribeReplacesFeed(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "one"})
	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "two"})

	require.Eventually(t, func() bool {
		return h.store.Subscribers(chat.RoomMessages("one")) == 0 &&
			h.store.Subscribers(chat.RoomMessages("two")) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, h.hub.Feeds().Len())
}

func TestSecondConnectionKicksFirst(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "u1")
	firstClient := h.hub.Client("u1")

	second := h.dial(t, "u1")
	require.Eventually(t, func() bool { return h.hub.Client("u1") != firstClient }, waitFor, 5*time.Millisecond)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(waitFor)))
	var err error
	for err == nil {
		_, _, err = first.ReadMessage()
	}
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "unexpected error %v", err)
	assert.Equal(t, WsCloseCodeSessionKicked, closeErr.Code)

	h.hub.Alert("u1", "still here")
	f := readFrame(t, second)
	assert.Equal(t, "still here", f.Message)
	assert.Equal(t, 1, h.hub.Len())
}

// slowProfiles holds reads of users/slow until release is called.
type slowProfiles struct {
	*docstore.Memory

	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newSlowProfiles() *slowProfiles {
	return &slowProfiles{
		Memory:  docstore.NewMemory(),
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (s *slowProfiles) Get(ctx context.Context, ref string) (*docstore.Snapshot, error) {
	if ref == docstore.Join(user.UsersCollection, "slow") {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Memory.Get(ctx, ref)
}

func (s *slowProfiles) release() {
	s.once.Do(func() { close(s.gate) })
}

func putRoomMessage(t *testing.T, store docstore.Store, roomID, id, senderID, text string) {
	t.Helper()

	require.NoError(t, store.Set(context.Background(), docstore.Join(chat.RoomMessages(roomID), id), docstore.Fields{
		"senderId":  senderID,
		"user":      senderID,
		"text":      text,
		"type":      "chat",
		"timestamp": time.Now().UTC(),
	}, false))
}

func TestReplacedFeedDoesNotReachNewView(t *testing.T) {
	store := newSlowProfiles()
	t.Cleanup(store.release)
	h := newHarnessOn(t, store.Memory, store)
	conn := h.dial(t, "u1")
	client := h.hub.Client("u1")

	putRoomMessage(t, store, "one", "m-one", "slow", "from room one")

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "one"})
	select {
	case <-store.entered:
	case <-time.After(waitFor):
		t.Fatal("room one batch never started resolving")
	}
	old := h.hub.Feeds().Get(client.feedKey(feed.ScopeRoom))
	require.NotNil(t, old)

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "two"})
	empty := readUntil(t, conn, func(f Frame) bool {
		return f.Type == view.OpPlaceholder && f.Placeholder == "empty"
	})
	assert.Equal(t, feed.ScopeRoom, empty.Target)

	// The replaced feed finishes the batch it was resolving.
	store.release()
	select {
	case <-old.Done():
	case <-time.After(waitFor):
		t.Fatal("replaced feed never finished")
	}
	assert.Equal(t, feed.Unsubscribed, old.State())

	putRoomMessage(t, store, "two", "m-two", "u2", "from room two")

	for {
		f := readFrame(t, conn)
		if f.Type != view.OpPlaceholder && f.Type != view.OpAppend && f.Type != view.OpScroll {
			continue
		}
		require.Equal(t, empty.Sub, f.Sub, "frame %s from a replaced subscription", f.Type)
		if f.Type == view.OpAppend {
			assert.Equal(t, "m-two", f.Element.ID)
			break
		}
	}
}

func TestUnsubscribeMutesView(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "u1")
	client := h.hub.Client("u1")

	send(t, conn, Command{Type: CmdSubscribeRoom, RoomID: "general"})
	f := readFrame(t, conn)
	require.Equal(t, view.OpPlaceholder, f.Type)
	sub := f.Sub

	assert.True(t, client.sendOp(feed.ScopeRoom, sub, view.Op{Type: view.OpRemove, ID: "x"}))

	send(t, conn, Command{Type: CmdUnsubscribe, Target: feed.ScopeRoom})
	require.Eventually(t, func() bool { return h.hub.Feeds().Len() == 0 }, waitFor, 5*time.Millisecond)

	assert.False(t, client.sendOp(feed.ScopeRoom, sub, view.Op{Type: view.OpRemove, ID: "x"}))
}

func TestOpFrame(t *testing.T) {
	f := opFrame(feed.ScopeRoom, 3, view.Op{Type: view.OpPlaceholder, Placeholder: view.PlaceholderNone})
	assert.Equal(t, Frame{Type: view.OpPlaceholder, Target: feed.ScopeRoom, Sub: 3, Placeholder: "none"}, f)

	f = opFrame(feed.ScopePrivate, 4, view.Op{Type: view.OpRemove, ID: "m1"})
	assert.Equal(t, Frame{Type: view.OpRemove, Target: feed.ScopePrivate, Sub: 4, ID: "m1"}, f)
}
