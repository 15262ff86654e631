package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a read of one document.
type Snapshot struct {
	// ID is the last path segment.
	ID string

	// Ref is the full document path.
	Ref string

	// UpdateTime is the commit time of the version read.
	UpdateTime time.Time

	data json.RawMessage
}

// NewSnapshot builds a snapshot of the document at ref holding the JSON data.
func NewSnapshot(ref string, data []byte, updated time.Time) (*Snapshot, error) {
	_, id, err := SplitRef(ref)
	if err != nil {
		return nil, err
	}

	return &Snapshot{ID: id, Ref: ref, UpdateTime: updated, data: data}, nil
}

// DataTo decodes the document into v.
func (s *Snapshot) DataTo(v any) error {
	if len(s.data) == 0 {
		return fmt.Errorf("docstore: %s has no data", s.Ref)
	}
	return json.Unmarshal(s.data, v)
}

// Raw returns the JSON encoding of the document.
func (s *Snapshot) Raw() json.RawMessage {
	return s.data
}

// field returns the raw JSON of a top-level field.
func (s *Snapshot) field(name string) (json.RawMessage, bool) {
	if len(s.data) == 0 {
		return nil, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(s.data, &doc); err != nil {
		return nil, false
	}

	v, ok := doc[name]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// HasField reports whether the document carries a non-null top-level field.
func (s *Snapshot) HasField(name string) bool {
	_, ok := s.field(name)
	return ok
}

// orderKey is a comparable projection of a field value: times, numbers and strings.
type orderKey struct {
	kind int // 0 time, 1 number, 2 text
	t    time.Time
	n    float64
	s    string
}

func keyOf(raw json.RawMessage) orderKey {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return orderKey{kind: 0, t: t}
		}
		return orderKey{kind: 2, s: str}
	}

	if n, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64); err == nil {
		return orderKey{kind: 1, n: n}
	}
	return orderKey{kind: 2, s: string(raw)}
}

func (a orderKey) compare(b orderKey) int {
	if a.kind != b.kind {
		return a.kind - b.kind
	}

	switch a.kind {
	case 0:
		return a.t.Compare(b.t)
	case 1:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	default:
		return strings.Compare(a.s, b.s)
	}
}

// SortByField filters out snapshots lacking field and sorts the rest
// ascending by it, breaking ties by id.
func SortByField(snaps []*Snapshot, field string) []*Snapshot {
	type keyed struct {
		snap *Snapshot
		key  orderKey
	}

	items := make([]keyed, 0, len(snaps))
	for _, s := range snaps {
		raw, ok := s.field(field)
		if !ok {
			continue
		}
		items = append(items, keyed{snap: s, key: keyOf(raw)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].key.compare(items[j].key); c != 0 {
			return c < 0
		}
		return items[i].snap.ID < items[j].snap.ID
	})

	out := make([]*Snapshot, len(items))
	for i, it := range items {
		out[i] = it.snap
	}
	return out
}
