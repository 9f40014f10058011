package memory

import (
	"context"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Collection implements interfaces.Collection over one map in the database.
type Collection struct {
	db   *Database
	name string
}

func (c *Collection) Find(ctx context.Context, filter interfaces.Filter, opts ...*interfaces.FindOptions) ([]interfaces.Document, error) {
	c.db.mu.RLock()
	if !c.db.connected {
		c.db.mu.RUnlock()
		return nil, interfaces.ErrNotConnected
	}
	snapshot := make([]interfaces.Document, 0, len(c.db.collections[c.name]))
	for _, doc := range c.db.collections[c.name] {
		snapshot = append(snapshot, copyDocument(doc))
	}
	c.db.mu.RUnlock()

	var o *interfaces.FindOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return query.Apply(snapshot, filter, o), nil
}

func (c *Collection) FindOne(ctx context.Context, filter interfaces.Filter) (interfaces.Document, error) {
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

	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if !c.db.connected {
		return interfaces.ErrNotConnected
	}

	table, ok := c.db.collections[c.name]
	if !ok {
		table = make(map[string]interfaces.Document)
		c.db.collections[c.name] = table
	}

	key := idKey(id)
	if _, exists := table[key]; exists {
		return interfaces.ErrDuplicateKey
	}
	table[key] = copyDocument(doc)
	return nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter interfaces.Filter, update interfaces.Update) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if !c.db.connected {
		return 0, interfaces.ErrNotConnected
	}

	table := c.db.collections[c.name]
	for key, doc := range table {
		if !query.Matches(doc, filter) {
			continue
		}
		updated, changed := query.ApplyUpdate(doc, update)
		if !changed {
			return 0, nil
		}
		table[key] = updated
		return 1, nil
	}
	return 0, nil
}

func (c *Collection) Count(ctx context.Context, filter interfaces.Filter) (int64, error) {
	docs, err := c.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func copyDocument(doc interfaces.Document) interfaces.Document {
	out := make(interfaces.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []int64:
		out := make([]int64, len(val))
		copy(out, val)
		return out
	case interfaces.Document:
		return copyDocument(val)
	default:
		return v
	}
}
