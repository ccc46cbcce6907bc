// Package store provides durable persistence for sheetvc.
// A Backend is a plain key-value store; History and Changes keep the action,
// version and pending-change collections in memory and rewrite them in full
// through the backend on every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Backend.Get when a key has never been set.
var ErrKeyNotFound = errors.New("key not found")

// IsKeyNotFound reports whether err is a missing-key error.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// Backend is durable key-value storage. Values are JSON documents.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Supported backend drivers.
const (
	DriverBolt   = "bbolt"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	// Path is the database file (bbolt, sqlite) or directory (badger).
	// An empty badger path runs in memory.
	Path string

	// Redis connection settings
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open opens the backend named by opts.Driver. An empty driver means bbolt.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "", DriverBolt:
		return NewBoltBackend(opts.Path)
	case DriverSQLite:
		return NewSQLiteBackend(opts.Path)
	case DriverBadger:
		return NewBadgerBackend(opts.Path)
	case DriverRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
			Prefix:   opts.Prefix,
		})
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
