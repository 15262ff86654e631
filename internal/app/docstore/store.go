/*
Package docstore defines the document database contract the chat layer runs on,
together with an in-memory implementation.

Documents live at slash-separated paths ("rooms/general/messages/abc"); a
collection path has an odd number of segments and a document path an even
number. Besides point reads and writes, a Store offers ordered subscriptions
that deliver change batches (added, modified, removed) in commit order.
*/
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrStopped is returned by Subscription.Next after Stop was called.
	ErrStopped = errors.New("docstore: subscription stopped")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("docstore: store closed")

	// ErrInvalidPath is returned for malformed collection or document paths.
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Query selects the documents of one collection ordered ascending by a field.
// Documents that lack the OrderBy field are not part of the result.
type Query struct {
	Collection string
	OrderBy    string
}

// Subscription delivers the change batches of a Query.
//
// The first batch holds the full result as Added changes (possibly none).
// Later batches hold the changes committed since the previous delivery.
type Subscription interface {
	// Next blocks until the next batch is available. It returns ErrStopped
	// once Stop has been called; any other error terminates the stream.
	Next(ctx context.Context) (*Batch, error)

	// Stop cancels the subscription. It is safe to call more than once.
	Stop()
}

// Store is a document database with realtime subscriptions.
type Store interface {
	// Get reads one document. A missing document yields ErrNotFound.
	Get(ctx context.Context, ref string) (*Snapshot, error)

	// Set writes a document. With merge only the given top-level fields
	// change; without it the document is replaced.
	Set(ctx context.Context, ref string, fields Fields, merge bool) error

	// Update changes the given top-level fields of an existing document.
	// A missing document yields ErrNotFound.
	Update(ctx context.Context, ref string, fields Fields) error

	// Add creates a document with a generated id in collection and returns the id.
	Add(ctx context.Context, collection string, fields Fields) (string, error)

	// Where returns the documents of collection whose field equals value.
	Where(ctx context.Context, collection, field string, value any) ([]*Snapshot, error)

	// List returns every document of collection.
	List(ctx context.Context, collection string) ([]*Snapshot, error)

	// Subscribe starts a subscription for q.
	Subscribe(ctx context.Context, q Query) (Subscription, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Delete removes a document. Removing a missing document is not an error.
	Delete(ctx context.Context, ref string) error

	// Close releases the backend. Open subscriptions fail with ErrClosed.
	Close() error
}
