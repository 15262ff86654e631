/*
Package randx provides functions for generating cryptographically secure random identifiers.

It generates the fixed-length Base62 document ids assigned by the document store
and validates identifiers received from clients.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// DocumentIDLength is the length of generated document ids.
	DocumentIDLength = 20

	// MaxIdentifierLength bounds identifiers accepted from clients.
	MaxIdentifierLength = 128
)

// base62 returns n random Base62 characters drawn from crypto/rand.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// DocumentID generates a DocumentIDLength Base62 id for a new document.
// If the system random source fails it falls back to a dash-free UUID.
func DocumentID() string {
	id, err := base62(DocumentIDLength)
	if err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return id
}

// ConnectionID returns a UUID v4 string identifying a live connection.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidIdentifier checks that id can be used as a single document path segment:
// non-empty, at most MaxIdentifierLength bytes, no slash, and not "." or "..".
func IsValidIdentifier(id string) bool {
	if id == "" || len(id) > MaxIdentifierLength {
		return false
	}

	if id == "." || id == ".." {
		return false
	}

	return !strings.ContainsAny(id, "/\x00")
}
