package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
)

// Database implements interfaces.Database with plain maps. It is the
// default backend and the one the tests run against.
type Database struct {
	mu          sync.RWMutex
	collections map[string]map[string]interfaces.Document // collection -> idKey -> document
	connected   bool
}

// NewDatabase creates an empty in-memory database.
func NewDatabase() *Database {
	return &Database{
		collections: make(map[string]map[string]interfaces.Document),
	}
}

func (db *Database) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connected = true
	return nil
}

func (db *Database) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connected = false
	db.collections = make(map[string]map[string]interfaces.Document)
	return nil
}

func (db *Database) Ping(ctx context.Context) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if !db.connected {
		return interfaces.ErrNotConnected
	}
	return nil
}

func (db *Database) Collection(name string) interfaces.Collection {
	return &Collection{db: db, name: name}
}

// Drop removes all documents from every collection (for testing).
func (db *Database) Drop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for name := range db.collections {
		db.collections[name] = make(map[string]interfaces.Document)
	}
}

// idKey canonicalizes a primary key so that an int64 key and the same value
// arriving as int or float64 (after a JSON round trip) address one document.
func idKey(v interface{}) string {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}
