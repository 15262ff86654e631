package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func snap(t *testing.T, id, data string, updated time.Time) *Snapshot {
	t.Helper()

	s, err := NewSnapshot("rooms/r/messages/"+id, []byte(data), updated)
	require.NoError(t, err)
	return s
}

func TestStreamNormalizesChanges(t *testing.T) {
	t0 := time.Unix(100, 0)
	q := Query{Collection: "rooms/r/messages", OrderBy: "timestamp"}
	s := NewStream(q, nil)

	s.Prime([]*Snapshot{snap(t, "1", `{"timestamp":"2024-01-01T00:00:00Z"}`, t0)})
	nextBatch(t, s)

	s.Push(
		// Same version as the snapshot: dropped.
		Change{Kind: Modified, Doc: snap(t, "1", `{"timestamp":"2024-01-01T00:00:00Z"}`, t0)},
		// Known document reported as added: becomes modified.
		Change{Kind: Added, Doc: snap(t, "1", `{"timestamp":"2024-01-01T00:00:00Z","text":"x"}`, t0.Add(time.Second))},
		// Unknown document reported as modified: becomes added.
		Change{Kind: Modified, Doc: snap(t, "2", `{"timestamp":"2024-01-01T00:00:01Z"}`, t0.Add(2*time.Second))},
		// Unknown removal: dropped.
		Change{Kind: Removed, Doc: &Snapshot{ID: "3"}},
		// Order field cleared: becomes removed.
		Change{Kind: Modified, Doc: snap(t, "2", `{"text":"no ts"}`, t0.Add(3*time.Second))},
	)

	batch := nextBatch(t, s)
	require.Equal(t, []ChangeKind{Modified, Added, Removed}, kinds(batch))
	require.Equal(t, 1, batch.Size)
}

func TestStreamEarlyPushAppliesAfterPrime(t *testing.T) {
	t0 := time.Unix(100, 0)
	s := NewStream(Query{Collection: "rooms/r/messages", OrderBy: "timestamp"}, nil)

	s.Push(Change{Kind: Added, Doc: snap(t, "2", `{"timestamp":"2024-01-01T00:00:02Z"}`, t0.Add(time.Second))})
	s.Prime([]*Snapshot{snap(t, "1", `{"timestamp":"2024-01-01T00:00:01Z"}`, t0)})

	batch := nextBatch(t, s)
	require.Equal(t, []ChangeKind{Added, Added}, kinds(batch))
	require.Equal(t, 2, batch.Size)
}

func TestStreamNextHonorsContext(t *testing.T) {
	s := NewStream(Query{Collection: "c", OrderBy: "timestamp"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamStopUnblocksNext(t *testing.T) {
	stopped := make(chan struct{})
	s := NewStream(Query{Collection: "c", OrderBy: "timestamp"}, func() { close(stopped) })

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Stop()

	require.ErrorIs(t, <-errCh, ErrStopped)
	<-stopped

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestSortByField(t *testing.T) {
	t0 := time.Unix(0, 0)
	docs := []*Snapshot{
		snap(t, "c", `{"timestamp":"2024-01-01T00:00:03Z"}`, t0),
		snap(t, "a", `{"timestamp":"2024-01-01T00:00:01.5Z"}`, t0),
		snap(t, "n", `{"other":1}`, t0),
		snap(t, "b", `{"timestamp":"2024-01-01T00:00:01.5Z"}`, t0),
	}

	sorted := SortByField(docs, "timestamp")
	ids := make([]string, len(sorted))
	for i, d := range sorted {
		ids[i] = d.ID
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}
