package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Fields holds the top-level fields of a write. Values must be JSON encodable;
// nested maps are allowed.
type Fields map[string]any

type serverTimestamp struct{}

type deleteField struct{}

var (
	// ServerTimestamp is replaced by the store's commit time when written.
	ServerTimestamp = serverTimestamp{}

	// Delete removes the field when used in Update or in a merging Set.
	Delete = deleteField{}
)

// resolveValue replaces ServerTimestamp sentinels, recursing into maps.
func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case Fields:
		return resolveMap(val, now)
	case map[string]any:
		return resolveMap(val, now)
	default:
		return v
	}
}

func resolveMap(m map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := v.(deleteField); ok {
			out[k] = v
			continue
		}
		out[k] = resolveValue(v, now)
	}
	return out
}

// Encode resolves sentinels against commit time now and returns the JSON encoding.
// Delete sentinels are dropped; use Merge to apply them to an existing document.
func Encode(fields Fields, now time.Time) ([]byte, error) {
	return Merge(nil, fields, now)
}

// Merge applies fields on top of the existing JSON document (nil for none),
// resolving sentinels against now, and returns the merged JSON.
func Merge(existing []byte, fields Fields, now time.Time) ([]byte, error) {
	base := make(map[string]any)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &base); err != nil {
			return nil, fmt.Errorf("docstore: decode existing document: %w", err)
		}
	}

	for k, v := range resolveMap(fields, now) {
		if _, del := v.(deleteField); del {
			delete(base, k)
			continue
		}
		base[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	return data, nil
}

// Matches reports whether the JSON document data has field equal to value,
// comparing JSON encodings.
func Matches(data []byte, field string, value any) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}

	got, ok := doc[field]
	if !ok {
		return false
	}

	want, err := json.Marshal(value)
	if err != nil {
		return false
	}

	return bytes.Equal(compact(got), compact(want))
}

func compact(b []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}
