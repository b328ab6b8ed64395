// Package state implements the host ledger's key/value storage: pluggable
// backends that apply a batch of writes atomically, and a staging Tx that
// collects every mutation of one operation until it commits or is discarded.
package state

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrTxClosed is returned when a committed or discarded Tx is used again
	ErrTxClosed = errors.New("state: transaction already closed")

	// ErrEmptyKey is returned for writes with an empty key
	ErrEmptyKey = errors.New("state: empty key")
)

// Write is a single staged mutation. A nil Value deletes the key.
type Write struct {
	Key   []byte
	Value []byte
}

// Delete reports whether the write removes its key
func (w Write) Delete() bool {
	return w.Value == nil
}

// Backend is persistent storage for the host ledger.
// Apply must publish either every write or none of them.
type Backend interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Apply(ctx context.Context, writes []Write) error
	Close() error
}

// KV is the read/write view every component mutates during one operation
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte)
	Delete(key []byte)
}

// Tx stages writes on top of a Backend. Reads observe the staged writes.
// A Tx is not safe for concurrent use; the host serialises operations.
type Tx struct {
	ctx     context.Context
	backend Backend
	writes  map[string][]byte
	journal []journalEntry
	closed  bool
}

type journalEntry struct {
	key    string
	prev   []byte
	staged bool
}

var _ KV = (*Tx)(nil)

// Begin starts a staging transaction over backend
func Begin(ctx context.Context, backend Backend) *Tx {
	return &Tx{
		ctx:     ctx,
		backend: backend,
		writes:  make(map[string][]byte),
	}
}

// Get returns the staged value for key, falling back to the backend.
// A missing key yields a nil slice and no error.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	if value, ok := tx.writes[string(key)]; ok {
		return copyBytes(value), nil
	}
	return tx.backend.Get(tx.ctx, key)
}

// Set stages key = value. Setting a nil value deletes the key.
func (tx *Tx) Set(key, value []byte) {
	if tx.closed {
		panic(ErrTxClosed)
	}
	if len(key) == 0 {
		panic(ErrEmptyKey)
	}
	prev, staged := tx.writes[string(key)]
	tx.journal = append(tx.journal, journalEntry{key: string(key), prev: prev, staged: staged})
	if value == nil {
		tx.writes[string(key)] = nil
		return
	}
	tx.writes[string(key)] = copyBytes(value)
}

// Snapshot returns an identifier for the current staged state
func (tx *Tx) Snapshot() int {
	return len(tx.journal)
}

// RevertToSnapshot undoes every write staged after the snapshot was taken
func (tx *Tx) RevertToSnapshot(id int) {
	if tx.closed || id < 0 || id > len(tx.journal) {
		return
	}
	for i := len(tx.journal) - 1; i >= id; i-- {
		entry := tx.journal[i]
		if entry.staged {
			tx.writes[entry.key] = entry.prev
		} else {
			delete(tx.writes, entry.key)
		}
	}
	tx.journal = tx.journal[:id]
}

// Delete stages the removal of key
func (tx *Tx) Delete(key []byte) {
	tx.Set(key, nil)
}

// Pending returns the number of staged writes
func (tx *Tx) Pending() int {
	return len(tx.writes)
}

// Commit publishes every staged write in one backend Apply.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]Write, 0, len(keys))
	for _, k := range keys {
		writes = append(writes, Write{Key: []byte(k), Value: tx.writes[k]})
	}
	tx.writes = nil
	tx.journal = nil
	return tx.backend.Apply(tx.ctx, writes)
}

// Discard drops every staged write. Discarding a closed Tx is a no-op.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.journal = nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}
