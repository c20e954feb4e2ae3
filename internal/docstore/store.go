// Package docstore is a thin adapter over the document database. It exposes
// the handful of primitives the rest of the system is allowed to rely on:
// single-document get/set/create/delete, atomic field updates (including
// numeric increment and set add/remove), equality and array-containment
// queries, and bounded batched writes. There is no atomicity across
// documents; multi-step flows above this layer must be idempotent.
package docstore

import (
	"context"
	"errors"
)

// Document is a single schemaless document, decoded as JSON.
type Document map[string]any

// Keyed pairs a document with its key inside a collection.
type Keyed struct {
	Key string
	Doc Document
}

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("docstore: document already exists")
	// ErrUnavailable marks a transient infrastructure failure, safe to
	// retry with backoff. The Retrying decorator does so transparently.
	ErrUnavailable = errors.New("docstore: store unavailable")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum size")
)

// MaxBatchSize is the ceiling for a single batched write. Large purges must
// loop bounded batches until the subtree query comes back empty.
const MaxBatchSize = 400

// OpKind enumerates atomic field operations.
type OpKind int

const (
	OpSet OpKind = iota
	OpIncrement
	OpAddToSet
	OpRemoveFromSet
	OpDeleteField
)

// FieldOp is one atomic mutation of a single field. All ops passed to a
// single Apply call commit atomically on that document.
type FieldOp struct {
	Kind  OpKind
	Field string
	Value any
}

// Set overwrites a field.
func Set(field string, value any) FieldOp {
	return FieldOp{Kind: OpSet, Field: field, Value: value}
}

// Increment adds delta to a numeric field, treating a missing field as zero.
func Increment(field string, delta float64) FieldOp {
	return FieldOp{Kind: OpIncrement, Field: field, Value: delta}
}

// AddToSet appends value to an array field unless already present.
func AddToSet(field string, value string) FieldOp {
	return FieldOp{Kind: OpAddToSet, Field: field, Value: value}
}

// RemoveFromSet removes value from an array field; missing values are a no-op.
func RemoveFromSet(field string, value string) FieldOp {
	return FieldOp{Kind: OpRemoveFromSet, Field: field, Value: value}
}

// DeleteField removes a field from the document.
func DeleteField(field string) FieldOp {
	return FieldOp{Kind: OpDeleteField, Field: field}
}

// WriteKind enumerates batched write operations.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
	WriteDelete
)

// Write is one entry of a batched multi-document write. WriteSet replaces
// the whole document, WriteUpdate applies field ops to it (leaving fields
// owned by other subsystems untouched), WriteDelete removes it.
type Write struct {
	Kind       WriteKind
	Collection string
	Key        string
	Doc        Document  // WriteSet only
	Ops        []FieldOp // WriteUpdate only
}

// Store is the tenant store adapter interface. Collections are named by
// slash-joined paths mirroring the document hierarchy, e.g.
// "farms/farm-001/animals" or "farms/farm-001/animals/cow-002/records".
type Store interface {
	// Get returns the document at key or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set writes the full document, replacing any existing one.
	Set(ctx context.Context, collection, key string, doc Document) error
	// Create writes the document only if key is absent; ErrExists otherwise.
	// This is the unique-key primitive join-code reservations build on.
	Create(ctx context.Context, collection, key string, doc Document) error
	// Apply commits the field ops atomically on one document, creating an
	// empty document first if none exists. Re-applying the same ops is
	// idempotent for set/add/remove, not for increments.
	Apply(ctx context.Context, collection, key string, ops ...FieldOp) error
	// Delete removes the document; deleting an absent key is a no-op.
	Delete(ctx context.Context, collection, key string) error
	// Query returns documents whose field equals value (string compare,
	// matching the store's untyped field representation).
	Query(ctx context.Context, collection, field, value string) ([]Keyed, error)
	// QueryContains returns documents whose array field contains value.
	QueryContains(ctx context.Context, collection, field, value string) ([]Keyed, error)
	// Keys returns up to limit keys from the collection; limit <= 0 means
	// all. Order is unspecified.
	Keys(ctx context.Context, collection string, limit int) ([]string, error)
	// List returns every document in the collection.
	List(ctx context.Context, collection string) ([]Keyed, error)
	// BatchWrite applies up to MaxBatchSize writes. The batch is atomic on
	// backends that support it (Postgres); callers must not rely on that.
	BatchWrite(ctx context.Context, writes []Write) error
}
