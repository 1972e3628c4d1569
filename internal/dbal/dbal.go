// Package dbal assembles the data layer from configuration: it picks the
// storage backend, opens the blob store and wires the entity operations.
package dbal

import (
	"fmt"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/adapter/acl"
	"github.com/kmarchand/studioforge/internal/dbal/adapter/memory"
	"github.com/kmarchand/studioforge/internal/dbal/adapter/sqlite"
	"github.com/kmarchand/studioforge/internal/dbal/blob"
	blobbolt "github.com/kmarchand/studioforge/internal/dbal/blob/bbolt"
	"github.com/kmarchand/studioforge/internal/dbal/kv"
	"github.com/kmarchand/studioforge/internal/dbal/lockout"
	"github.com/kmarchand/studioforge/internal/dbal/ops"
	"github.com/kmarchand/studioforge/internal/platform/config"
)

// Layer bundles the assembled data layer.
type Layer struct {
	DAL   *ops.DAL
	KV    *kv.Store
	Blobs blob.Store

	store adapter.Adapter
}

// Open builds the data layer described by cfg.
func Open(cfg config.Config) (*Layer, error) {
	var store adapter.Adapter
	var blobs blob.Store
	var err error

	switch cfg.Backend {
	case config.BackendMemory:
		store = memory.New()
		blobs = blob.NewMemoryStore()
	case config.BackendSQLite:
		store, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		blobs, err = blobbolt.Open(cfg.BlobPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open blob store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	dal := ops.New(store,
		ops.WithSessionTTL(cfg.SessionTTL),
		ops.WithTransferTTL(cfg.TransferTTL),
		ops.WithLockout(lockout.Config{
			MaxAttempts: cfg.LockoutMaxAttempts,
			Window:      cfg.LockoutWindow,
			Duration:    cfg.LockoutDuration,
		}),
	)

	return &Layer{DAL: dal, KV: kv.New(), Blobs: blobs, store: store}, nil
}

// Guarded returns the record store wrapped with role permission checks and
// audit logging for the given actor.
func (l *Layer) Guarded(actor acl.Actor, opts ...acl.Option) adapter.Adapter {
	return acl.Wrap(l.store, actor, opts...)
}

// Close releases both stores.
func (l *Layer) Close() error {
	var firstErr error
	if err := l.Blobs.Close(); err != nil {
		firstErr = err
	}
	if err := l.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
