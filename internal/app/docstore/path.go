package docstore

import (
	"fmt"
	"strings"
)

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func segments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// SplitRef splits a document path into its collection path and document id.
func SplitRef(ref string) (collection, id string, err error) {
	parts, err := segments(ref)
	if err != nil {
		return "", "", err
	}

	if len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, ref)
	}

	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// CheckCollection validates a collection path.
func CheckCollection(collection string) error {
	parts, err := segments(collection)
	if err != nil {
		return err
	}

	if len(parts)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, collection)
	}
	return nil
}
