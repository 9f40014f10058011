package interfaces

import "errors"

// Document is a stored record. The primary key lives under the "_id" field:
// int64 for posts and comments, string for users.
type Document = map[string]interface{}

// Filter matches documents by field equality. An empty filter matches
// everything.
type Filter map[string]interface{}

// Update describes a partial modification of a single document.
type Update struct {
	// Set overwrites fields with the given values.
	Set Document
	// AddToSet appends a value to an array field if it is not already present.
	AddToSet Document
	// Pull removes a value from an array field.
	Pull Document
}

// SortField orders results by a single document field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions carries sorting and limiting for Find.
type FindOptions struct {
	Sort  []SortField
	Limit int
}

// Common database errors
var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicateKey = errors.New("duplicate primary key")
	ErrNotConnected = errors.New("database not connected")
)

// DatabaseError wraps backend-specific errors with the failing operation.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
