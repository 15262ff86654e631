/*
Package firestoredoc implements docstore.Store on Cloud Firestore.

Paths, sentinels and snapshot listeners map one to one onto the Firestore
SDK; documents are exposed as JSON by encoding the SDK's field maps.
*/
package firestoredoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"livechat/internal/app/docstore"
	"livechat/internal/pkg/logx"
)

// Store is a Firestore-backed docstore.Store.
type Store struct {
	client *firestore.Client
	log    zerolog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Open creates a client for projectID. Credentials come from the environment
// (FIRESTORE_EMULATOR_HOST selects the emulator).
func Open(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client, log: logx.Component("firestoredoc")}
}

func (s *Store) doc(ref string) (*firestore.DocumentRef, error) {
	if _, _, err := docstore.SplitRef(ref); err != nil {
		return nil, err
	}
	return s.client.Doc(ref), nil
}

func (s *Store) collection(path string) (*firestore.CollectionRef, error) {
	if err := docstore.CheckCollection(path); err != nil {
		return nil, err
	}
	return s.client.Collection(path), nil
}

// toFirestore maps docstore sentinels onto their SDK equivalents.
func toFirestore(v any) any {
	switch val := v.(type) {
	case docstore.Fields:
		return toFirestoreMap(val)
	case map[string]any:
		return toFirestoreMap(val)
	default:
		switch v {
		case docstore.ServerTimestamp:
			return firestore.ServerTimestamp
		case docstore.Delete:
			return firestore.Delete
		}
		return v
	}
}

func toFirestoreMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = toFirestore(v)
	}
	return out
}

// relativeRef strips the "projects/{p}/databases/{d}/documents/" prefix.
func relativeRef(ref *firestore.DocumentRef) string {
	const marker = "/documents/"
	if i := strings.Index(ref.Path, marker); i >= 0 {
		return ref.Path[i+len(marker):]
	}
	return ref.Path
}

func (s *Store) snapshot(doc *firestore.DocumentSnapshot) (*docstore.Snapshot, error) {
	data, err := json.Marshal(doc.Data())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.Ref.ID, err)
	}
	return docstore.NewSnapshot(relativeRef(doc.Ref), data, doc.UpdateTime.UTC())
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref string) (*docstore.Snapshot, error) {
	d, err := s.doc(ref)
	if err != nil {
		return nil, err
	}

	doc, err := d.Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return s.snapshot(doc)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, ref string, fields docstore.Fields, merge bool) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}

	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}

	if _, err := d.Set(ctx, toFirestoreMap(fields), opts...); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, ref string, fields docstore.Fields) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}

	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: toFirestore(v)})
	}

	_, err = d.Update(ctx, updates)
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return nil
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	col, err := s.collection(collection)
	if err != nil {
		return "", err
	}

	d, _, err := col.Add(ctx, toFirestoreMap(fields))
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return d.ID, nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref string) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}

	if _, err := d.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (s *Store) collect(it *firestore.DocumentIterator) ([]*docstore.Snapshot, error) {
	defer it.Stop()

	var out []*docstore.Snapshot
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		snap, err := s.snapshot(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
}

// Where implements docstore.Store.
func (s *Store) Where(ctx context.Context, collection, field string, value any) ([]*docstore.Snapshot, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	out, err := s.collect(col.Where(field, "==", value).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out, nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Snapshot, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	out, err := s.collect(col.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

// Subscribe implements docstore.Store with a query snapshot listener.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	col, err := s.collection(q.Collection)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	it := col.OrderBy(q.OrderBy, firestore.Asc).Snapshots(listenCtx)

	stream := docstore.NewStream(q, func() {
		it.Stop()
		cancel()
	})

	go s.pump(listenCtx, it, stream)

	return stream, nil
}

func (s *Store) pump(ctx context.Context, it *firestore.QuerySnapshotIterator, stream *docstore.Stream) {
	primed := false

	for {
		qs, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			stream.Fail(fmt.Errorf("listen %s: %w", stream.Query().Collection, err))
			return
		}

		changes := make([]docstore.Change, 0, len(qs.Changes))
		for _, ch := range qs.Changes {
			change, err := s.change(ch)
			if err != nil {
				s.log.Warn().Err(err).Str("id", ch.Doc.Ref.ID).Msg("Dropping undecodable change")
				continue
			}
			changes = append(changes, change)
		}

		if !primed {
			docs := make([]*docstore.Snapshot, len(changes))
			for i, c := range changes {
				docs[i] = c.Doc
			}
			stream.Prime(docs)
			primed = true
			continue
		}
		stream.Push(changes...)
	}
}

func (s *Store) change(ch firestore.DocumentChange) (docstore.Change, error) {
	if ch.Kind == firestore.DocumentRemoved {
		ref := relativeRef(ch.Doc.Ref)
		return docstore.Change{
			Kind: docstore.Removed,
			Doc:  &docstore.Snapshot{ID: ch.Doc.Ref.ID, Ref: ref, UpdateTime: time.Time{}},
		}, nil
	}

	snap, err := s.snapshot(ch.Doc)
	if err != nil {
		return docstore.Change{}, err
	}

	kind := docstore.Added
	if ch.Kind == firestore.DocumentModified {
		kind = docstore.Modified
	}
	return docstore.Change{Kind: kind, Doc: snap}, nil
}

// Ping implements docstore.Store with a read of a document that need not exist.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Doc("health/ping").Get(ctx)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
