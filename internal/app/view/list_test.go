package view

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListOrderingAndOps(t *testing.T) {
	var ops []string
	l := NewList(2, func(op Op) { ops = append(ops, op.Type+":"+op.ID) })

	l.ShowPlaceholder(PlaceholderLoading)
	l.ShowPlaceholder(PlaceholderLoading)
	l.Append(Element{ID: "1", Text: "a"})
	l.Append(Element{ID: "2", Text: "b"})
	l.Append(Element{ID: "1", Text: "dup"})
	require.Equal(t, []string{"1", "2"}, l.IDs())
	require.False(t, l.Overflowing())

	require.True(t, l.Replace(Element{ID: "1", Text: "edited"}))
	require.False(t, l.Replace(Element{ID: "9"}))
	require.Equal(t, "edited", l.Elements()[0].Text)

	require.True(t, l.Remove("1"))
	require.False(t, l.Remove("1"))
	l.Append(Element{ID: "3"})
	l.Append(Element{ID: "4"})
	require.Equal(t, []string{"2", "3", "4"}, l.IDs())
	require.True(t, l.Has("3"))
	require.True(t, l.Overflowing())

	l.ScrollToBottom()
	require.Equal(t, 1, l.Scrolls())

	require.Equal(t, []string{
		"placeholder:", "append:1", "append:2", "replace:1", "remove:1", "append:3", "append:4", "scroll:",
	}, ops)
}

func TestPlaceholderEncodesByName(t *testing.T) {
	b, err := json.Marshal(Op{Type: OpPlaceholder, Placeholder: PlaceholderEmpty})
	require.NoError(t, err)
	require.JSONEq(t, `{"op":"placeholder","placeholder":"empty"}`, string(b))
}
