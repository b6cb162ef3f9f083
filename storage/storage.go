// Package storage persists club snapshots. Every backend stores the whole
// snapshot at once; in-memory state stays authoritative between saves.
package storage

import (
	"context"
	"errors"
	"fmt"

	"reading-club-system/models"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store saves and loads full club snapshots.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context) (*models.Snapshot, error)
	Close() error
}

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendR2       = "r2"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	FilePath string

	RedisURL string
	RedisKey string

	DatabaseURL string

	R2 R2Options
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.FilePath), nil
	case BackendRedis:
		return NewRedisStoreFromURL(opts.RedisURL, opts.RedisKey)
	case BackendPostgres:
		return OpenPostgres(opts.DatabaseURL)
	case BackendR2:
		return NewR2Store(ctx, opts.R2)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
