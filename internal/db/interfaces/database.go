package interfaces

import "context"

// Database is a document-addressable store. Implementations live under
// internal/db/backends.
type Database interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Collection returns a handle for the named collection. Collections are
	// created lazily on first write.
	Collection(name string) Collection
}

// Collection provides find/insert/update over one keyed collection.
type Collection interface {
	// Find returns all documents matching the filter, honoring sort and
	// limit from opts.
	Find(ctx context.Context, filter Filter, opts ...*FindOptions) ([]Document, error)

	// FindOne returns the first matching document or ErrNotFound.
	FindOne(ctx context.Context, filter Filter) (Document, error)

	// InsertOne stores a new document. The document must carry an "_id"
	// field; ErrDuplicateKey is returned when the key is taken.
	InsertOne(ctx context.Context, doc Document) error

	// UpdateOne applies the update to the first matching document and
	// returns the number of documents actually modified (0 when nothing
	// matched or the update was a no-op).
	UpdateOne(ctx context.Context, filter Filter, update Update) (int64, error)

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)
}
