package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentID(t *testing.T) {
	seen := make(map[string]struct{})

	for range 200 {
		id := DocumentID()
		assert.Len(t, id, DocumentIDLength)

		for _, c := range id {
			assert.True(t, strings.ContainsRune(Base62Chars, c), "unexpected char %q", c)
		}

		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, IsValidIdentifier("user_42"))
	assert.True(t, IsValidIdentifier("aB3x"))

	assert.False(t, IsValidIdentifier(""))
	assert.False(t, IsValidIdentifier(".."))
	assert.False(t, IsValidIdentifier("rooms/general"))
	assert.False(t, IsValidIdentifier(strings.Repeat("a", MaxIdentifierLength+1)))
}
