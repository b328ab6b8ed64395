// Package redisdb provides a Redis-backed state backend.
package redisdb

import (
	"context"
	"errors"
	"fmt"

	redisLib "github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/state"
)

// Store keeps the host ledger in Redis strings. Apply runs as one MULTI/EXEC.
type Store struct {
	cli    *redisLib.Client
	prefix string
}

var _ state.Backend = (*Store)(nil)

// Open connects to addr and verifies the connection. Every key is stored
// under prefix, so several exchanges can share one database.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	cli := redisLib.NewClient(&redisLib.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})

	pong, err := cli.Ping(ctx).Result()
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	logger.WithField("addr", addr).Debugln(pong)

	return New(cli, prefix), nil
}

// New wraps an existing client
func New(cli *redisLib.Client, prefix string) *Store {
	return &Store{cli: cli, prefix: prefix}
}

func (s *Store) key(key []byte) string {
	return s.prefix + string(key)
}

// Get implements state.Backend
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := s.cli.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redisLib.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Apply implements state.Backend
func (s *Store) Apply(ctx context.Context, writes []state.Write) error {
	for _, w := range writes {
		if len(w.Key) == 0 {
			return state.ErrEmptyKey
		}
	}
	_, err := s.cli.TxPipelined(ctx, func(tx redisLib.Pipeliner) error {
		for _, w := range writes {
			if w.Delete() {
				tx.Del(ctx, s.key(w.Key))
				continue
			}
			tx.Set(ctx, s.key(w.Key), w.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply redis pipeline: %w", err)
	}
	return nil
}

// Close implements state.Backend
func (s *Store) Close() error {
	return s.cli.Close()
}
