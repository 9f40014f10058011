package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Directory is the in-memory registry of users, hydrated once from the
// users collection. The forum core resolves identities through it and
// mutates relationship lists on the User objects it hands out; durability
// of those lists comes from SaveAll on the background flush cycle.
type Directory struct {
	mu          sync.RWMutex
	db          interfaces.Database
	logger      *zap.SugaredLogger
	users       map[string]*User
	initialized bool
}

func NewDirectory(database interfaces.Database, logger *zap.SugaredLogger) *Directory {
	return &Directory{
		db:     database,
		logger: logger,
		users:  make(map[string]*User),
	}
}

// Initialize loads every stored user into memory. Idempotent: repeat calls
// return immediately once a load has succeeded. Users registered before
// the load stay resident; a stored document for one of them merges its
// relationship lists into the live instance instead of replacing it.
func (d *Directory) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	docs, err := d.db.Collection(db.CollectionUsers).Find(ctx, interfaces.Filter{})
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	for _, doc := range docs {
		id := query.String(doc["_id"])
		if id == "" {
			continue
		}
		name := query.String(doc["user_name"])
		if existing, ok := d.users[id]; ok {
			if existing.Name == "" {
				existing.Name = name
			}
			for _, postID := range query.Int64Slice(doc["post_ids"]) {
				existing.AddAuthoredPost(postID)
			}
			for _, likedID := range query.Int64Slice(doc["liked_post_ids"]) {
				existing.AddLikedPost(likedID)
			}
			continue
		}
		user := NewUser(id, name)
		user.postIDs = query.Int64Slice(doc["post_ids"])
		user.likedPostIDs = query.Int64Slice(doc["liked_post_ids"])
		d.users[id] = user
	}

	d.initialized = true
	d.logger.Infow("User directory hydrated", "users", len(d.users))
	return nil
}

// GetInstance returns the live in-memory user, or nil when unknown.
func (d *Directory) GetInstance(id string) *User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[id]
}

// Register adds a user to the directory, returning the existing instance
// when the ID is already present.
func (d *Directory) Register(id, name string) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[id]; ok {
		return existing
	}
	user := NewUser(id, name)
	d.users[id] = user
	return user
}

// Count returns the number of resident users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// SaveAll upserts every resident user's relationship document. Per-user
// failures are logged and counted but never abort the pass.
func (d *Directory) SaveAll(ctx context.Context) (saved, failed int) {
	d.mu.RLock()
	snapshot := make([]*User, 0, len(d.users))
	for _, user := range d.users {
		snapshot = append(snapshot, user)
	}
	d.mu.RUnlock()

	users := d.db.Collection(db.CollectionUsers)
	for _, user := range snapshot {
		doc := user.Document()
		if err := upsert(ctx, users, user.ID, doc); err != nil {
			d.logger.Errorw("Failed to save user", "user_id", user.ID, "error", err)
			failed++
			continue
		}
		saved++
	}
	return saved, failed
}

func upsert(ctx context.Context, coll interfaces.Collection, id string, doc interfaces.Document) error {
	set := make(interfaces.Document, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	modified, err := coll.UpdateOne(ctx, interfaces.Filter{"_id": id}, interfaces.Update{Set: set})
	if err != nil {
		return err
	}
	if modified > 0 {
		return nil
	}
	// Nothing matched or nothing changed; insert handles the former and
	// reports the latter as a duplicate, which is success here.
	if err := coll.InsertOne(ctx, doc); err != nil && !errors.Is(err, interfaces.ErrDuplicateKey) {
		return err
	}
	return nil
}
