package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Database keeps every document in a single JSONB table keyed by
// (collection, doc_id). The schema ships as a goose migration under
// internal/db/migrations.
type Database struct {
	dsn string
	sql *sql.DB
}

func NewDatabase(dsn string) *Database {
	return &Database{dsn: dsn}
}

func (db *Database) Connect(ctx context.Context) error {
	conn, err := sql.Open("pgx", db.dsn)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("postgres connect: %w", err)
	}
	db.sql = conn
	return nil
}

func (db *Database) Close(ctx context.Context) error {
	if db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	if db.sql == nil {
		return interfaces.ErrNotConnected
	}
	return db.sql.PingContext(ctx)
}

func (db *Database) Collection(name string) interfaces.Collection {
	return &Collection{db: db, name: name}
}

// Collection implements interfaces.Collection over the documents table.
type Collection struct {
	db   *Database
	name string
}

func (c *Collection) Find(ctx context.Context, filter interfaces.Filter, opts ...*interfaces.FindOptions) ([]interfaces.Document, error) {
	if c.db.sql == nil {
		return nil, interfaces.ErrNotConnected
	}

	// Equality filters compile to JSONB containment; sorting and limiting
	// happen in Go because sort keys may be RFC3339 strings or numbers.
	filterJSON, err := json.Marshal(map[string]interface{}(filter))
	if err != nil {
		return nil, &interfaces.DatabaseError{Op: "find " + c.name, Err: err}
	}

	rows, err := c.db.sql.QueryContext(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND doc @> $2::jsonb`,
		c.name, string(filterJSON),
	)
	if err != nil {
		return nil, &interfaces.DatabaseError{Op: "find " + c.name, Err: err}
	}
	defer rows.Close()

	var docs []interfaces.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, &interfaces.DatabaseError{Op: "scan " + c.name, Err: err}
		}
		var doc interfaces.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &interfaces.DatabaseError{Op: "decode " + c.name, Err: err}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &interfaces.DatabaseError{Op: "find " + c.name, Err: err}
	}

	var o *interfaces.FindOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return query.Apply(docs, filter, o), nil
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
	if c.db.sql == nil {
		return interfaces.ErrNotConnected
	}
	id, ok := doc["_id"]
	if !ok {
		return &interfaces.DatabaseError{Op: "insert " + c.name, Err: interfaces.ErrNotFound}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return &interfaces.DatabaseError{Op: "encode " + c.name, Err: err}
	}

	result, err := c.db.sql.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, doc) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, doc_id) DO NOTHING`,
		c.name, docKey(id), string(data),
	)
	if err != nil {
		return &interfaces.DatabaseError{Op: "insert " + c.name, Err: err}
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return &interfaces.DatabaseError{Op: "insert " + c.name, Err: err}
	}
	if inserted == 0 {
		return interfaces.ErrDuplicateKey
	}
	return nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter interfaces.Filter, update interfaces.Update) (int64, error) {
	if c.db.sql == nil {
		return 0, interfaces.ErrNotConnected
	}

	tx, err := c.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}
	defer tx.Rollback()

	filterJSON, err := json.Marshal(map[string]interface{}(filter))
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}

	var key string
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc_id, doc FROM documents WHERE collection = $1 AND doc @> $2::jsonb LIMIT 1 FOR UPDATE`,
		c.name, string(filterJSON),
	).Scan(&key, &raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}

	var doc interfaces.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, &interfaces.DatabaseError{Op: "decode " + c.name, Err: err}
	}

	updated, changed := query.ApplyUpdate(doc, update)
	if !changed {
		return 0, nil
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "encode " + c.name, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET doc = $3::jsonb, updated_at = NOW() WHERE collection = $1 AND doc_id = $2`,
		c.name, key, string(data),
	); err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &interfaces.DatabaseError{Op: "update " + c.name, Err: err}
	}
	return 1, nil
}

func (c *Collection) Count(ctx context.Context, filter interfaces.Filter) (int64, error) {
	if c.db.sql == nil {
		return 0, interfaces.ErrNotConnected
	}
	filterJSON, err := json.Marshal(map[string]interface{}(filter))
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "count " + c.name, Err: err}
	}
	var count int64
	err = c.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1 AND doc @> $2::jsonb`,
		c.name, string(filterJSON),
	).Scan(&count)
	if err != nil {
		return 0, &interfaces.DatabaseError{Op: "count " + c.name, Err: err}
	}
	return count, nil
}

func docKey(v interface{}) string {
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
