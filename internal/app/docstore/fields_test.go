package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeResolvesNestedTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data, err := Merge([]byte(`{"a":1,"b":2}`), Fields{
		"b":    Delete,
		"c":    ServerTimestamp,
		"meta": map[string]any{"at": ServerTimestamp},
	}, now)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"c":"2024-05-01T12:00:00Z","meta":{"at":"2024-05-01T12:00:00Z"}}`, string(data))
}

func TestMatches(t *testing.T) {
	doc := []byte(`{"senderId":"u1","level":3,"flag":true}`)

	require.True(t, Matches(doc, "senderId", "u1"))
	require.True(t, Matches(doc, "level", 3))
	require.True(t, Matches(doc, "flag", true))
	require.False(t, Matches(doc, "senderId", "u2"))
	require.False(t, Matches(doc, "missing", "u1"))
}

func TestSplitRef(t *testing.T) {
	col, id, err := SplitRef("privateChats/a_b/messages/m1")
	require.NoError(t, err)
	require.Equal(t, "privateChats/a_b/messages", col)
	require.Equal(t, "m1", id)

	_, _, err = SplitRef("privateChats/a_b/messages")
	require.ErrorIs(t, err, ErrInvalidPath)

	require.NoError(t, CheckCollection("rooms/r1/messages"))
	require.ErrorIs(t, CheckCollection("rooms/r1"), ErrInvalidPath)
}
