package state

import (
	"context"
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

// TMDB adapts a tm-db database to Backend. Apply writes one batch with WriteSync.
type TMDB struct {
	db dbm.DB
}

var _ Backend = (*TMDB)(nil)

// NewTMDB wraps an open tm-db database
func NewTMDB(db dbm.DB) *TMDB {
	return &TMDB{db: db}
}

// NewMemDB returns an in-process backend
func NewMemDB() *TMDB {
	return NewTMDB(dbm.NewMemDB())
}

// OpenGoLevelDB opens (or creates) an on-disk goleveldb backend named name under dir
func OpenGoLevelDB(name, dir string) (*TMDB, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open goleveldb %s: %w", name, err)
	}
	return NewTMDB(db), nil
}

// Get implements Backend
func (s *TMDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.db.Get(key)
}

// Apply implements Backend
func (s *TMDB) Apply(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, w := range writes {
		if len(w.Key) == 0 {
			return ErrEmptyKey
		}
		var err error
		if w.Delete() {
			err = batch.Delete(w.Key)
		} else {
			err = batch.Set(w.Key, w.Value)
		}
		if err != nil {
			return fmt.Errorf("stage write: %w", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// Close implements Backend
func (s *TMDB) Close() error {
	return s.db.Close()
}
