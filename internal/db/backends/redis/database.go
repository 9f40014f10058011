package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Database stores each collection as one Redis hash, field = primary key,
// value = JSON document. Values round-trip through JSON, so integers come
// back as float64; the query package and entity hydration coerce.
type Database struct {
	client *redis.Client
}

// NewDatabase creates a Redis-backed document store. The connection is
// verified on Connect, not here.
func NewDatabase(addr string) *Database {
	return &Database{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
		}),
	}
}

func (db *Database) Connect(ctx context.Context) error {
	if err := db.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	return nil
}

func (db *Database) Close(ctx context.Context) error {
	return db.client.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.client.Ping(ctx).Err()
}

func (db *Database) Collection(name string) interfaces.Collection {
	return &Collection{db: db, name: name, key: "pf:docs:" + name}
}

// Collection implements interfaces.Collection over one hash.
type Collection struct {
	db   *Database
	name string
	key  string
}

func (c *Collection) Find(ctx context.Context, filter interfaces.Filter, opts ...*interfaces.FindOptions) ([]interfaces.Document, error) {
	raw, err := c.db.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, &interfaces.DatabaseError{Op: "find " + c.name, Err: err}
	}

	docs := make([]interfaces.Document, 0, len(raw))
	for field, value := range raw {
		var doc interfaces.Document
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return nil, &interfaces.DatabaseError{Op: fmt.Sprintf("decode %s[%s]", c.name, field), Err: err}
		}
		docs = append(docs, doc)
	}

	var o *interfaces.FindOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return query.Apply(docs, filter, o), nil
}

func (c *Collection) FindOne(ctx context.Context, filter interfaces.Filter) (interfaces.Document, error) {
	// Point lookups by primary key skip the full scan.
	if id, ok := filter["_id"]; ok && len(filter) == 1 {
		value, err := c.db.client.HGet(ctx, c.key, fieldKey(id)).Result()
		if err == redis.Nil {
			return nil, interfaces.ErrNotFound
		}
		if err != nil {
			return nil, &interfaces.DatabaseError{Op: "findOne " + c.name, Err: err}
		}
		var doc interfaces.Document
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return nil, &interfaces.DatabaseError{Op: "decode " + c.name, Err: err}
		}
		return doc, nil
	}

	docs, err := c.Find(ctx, filter, &interfaces.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return docs[0], nil
}

func (c *Collection) InsertOne(ctx context.Context, doc interfaces.Document) error {
	id, ok := doc["_id"]
	if !ok {
		return &interfaces.DatabaseError{Op: "insert " + c.name, Err: interfaces.ErrNotFound}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return &interfaces.DatabaseError{Op: "encode " + c.name, Err: err}
	}

	added, err := c.db.client.HSetNX(ctx, c.key, fieldKey(id), data).Result()
	if err != nil {
		return &interfaces.DatabaseError{Op: "insert " + c.name, Err: err}
	}
	if !added {
		return interfaces.ErrDuplicateKey
	}
	return nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter interfaces.Filter, update interfaces.Update) (int64, error) {
	doc, err := c.FindOne(ctx, filter)
	if err == interfaces.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	updated, changed := query.ApplyUpdate(doc, update)
	if !changed {
		return 0, nil
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "encode " + c.name, Err: err}
	}
	if err := c.db.client.HSet(ctx, c.key, fieldKey(updated["_id"]), data).Err(); err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}
	return 1, nil
}

func (c *Collection) Count(ctx context.Context, filter interfaces.Filter) (int64, error) {
	if len(filter) == 0 {
		count, err := c.db.client.HLen(ctx, c.key).Result()
		if err != nil {
			return 0, &interfaces.DatabaseError{Op: "count " + c.name, Err: err}
		}
		return count, nil
	}

	docs, err := c.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// fieldKey canonicalizes a primary key the same way across numeric types so
// a key written as int64 is found again after a JSON round trip.
func fieldKey(v interface{}) string {
	switch n := v.(type) {
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}
