// Package ops implements the entity operations of the data layer: validated
// CRUD per entity, credential and session lifecycle, package installation and
// instance power transfer. Operations compose the storage adapter with
// process-local unique indexes and the lockout tracker.
package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/lockout"
	"github.com/kmarchand/studioforge/internal/dbal/uniqueindex"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
	"github.com/kmarchand/studioforge/internal/platform/id"
)

const (
	// DefaultSessionTTL bounds session lifetime when no config overrides it.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// DefaultTransferTTL bounds how long a power transfer stays acceptable.
	DefaultTransferTTL = 24 * time.Hour
)

// DAL exposes the entity operations over a storage adapter. Construct one
// per process; the unique indexes and lockout tracker are process-local.
type DAL struct {
	store adapter.Adapter
	clock func() time.Time
	newID func() (string, error)

	usernames *uniqueindex.Index
	emails    *uniqueindex.Index
	tokens    *uniqueindex.Index
	slugs     *uniqueindex.Index
	installs  *uniqueindex.Index

	lockouts    *lockout.Tracker
	sessionTTL  time.Duration
	transferTTL time.Duration

	Users       *UserOps
	Credentials *CredentialOps
	Sessions    *SessionOps
	Pages       *PageOps
	Workflows   *WorkflowOps
	Packages    *PackageOps
	Scripts     *ScriptOps
	Tenants     *TenantOps
	Transfers   *TransferOps
}

// Option configures a DAL.
type Option func(*DAL)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(d *DAL) { d.clock = clock }
}

// WithIDGenerator overrides how new record ids are minted.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(d *DAL) { d.newID = gen }
}

// WithLockout overrides the failed-login limits.
func WithLockout(cfg lockout.Config) Option {
	return func(d *DAL) { d.lockouts = lockout.New(cfg) }
}

// WithSessionTTL overrides session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(d *DAL) { d.sessionTTL = ttl }
}

// WithTransferTTL overrides power transfer lifetime.
func WithTransferTTL(ttl time.Duration) Option {
	return func(d *DAL) { d.transferTTL = ttl }
}

// New creates a DAL over the given adapter.
func New(store adapter.Adapter, opts ...Option) *DAL {
	d := &DAL{
		store:       store,
		clock:       func() time.Time { return time.Now().UTC() },
		newID:       id.NewID,
		usernames:   uniqueindex.New("username"),
		emails:      uniqueindex.New("email"),
		tokens:      uniqueindex.New("session token"),
		slugs:       uniqueindex.New("page slug"),
		installs:    uniqueindex.New("installed package"),
		lockouts:    lockout.New(lockout.Config{MaxAttempts: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute}),
		sessionTTL:  DefaultSessionTTL,
		transferTTL: DefaultTransferTTL,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Users = &UserOps{dal: d}
	d.Credentials = &CredentialOps{dal: d}
	d.Sessions = &SessionOps{dal: d}
	d.Pages = &PageOps{dal: d}
	d.Workflows = &WorkflowOps{dal: d}
	d.Packages = &PackageOps{dal: d}
	d.Scripts = &ScriptOps{dal: d}
	d.Tenants = &TenantOps{dal: d}
	d.Transfers = &TransferOps{dal: d}
	return d
}

// Close releases the underlying adapter.
func (d *DAL) Close() error {
	return d.store.Close()
}

// validationError folds collected field problems into a single error.
func validationError(problems []string) error {
	return apperrors.WithMetadata(apperrors.CodeValidation,
		strings.Join(problems, "; "),
		map[string]string{"problems": strings.Join(problems, "\n")})
}

func notFound(kind entity.Kind, key string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("%s not found: %s", kind, key),
		map[string]string{"kind": string(kind), "key": key})
}

// read fetches a record, translating the adapter sentinel into an entity
// specific message.
func (d *DAL) read(ctx context.Context, kind entity.Kind, key string) (entity.Record, error) {
	rec, err := d.store.Read(ctx, kind, key)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(kind, key)
		}
		return nil, err
	}
	return rec, nil
}

// claimUnique reserves a secondary key for id. A miss in the process-local
// index falls back to the store so claims survive restarts; the found owner
// is backfilled into the index.
func (d *DAL) claimUnique(ctx context.Context, idx *uniqueindex.Index, kind entity.Kind, field, key, recordID string) error {
	if owner, ok := idx.Lookup(key); ok {
		if owner == recordID {
			return nil
		}
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("%s already in use: %s", field, key),
			map[string]string{"field": field, "key": key})
	}

	existing, err := d.store.FindFirst(ctx, kind, entity.Fields{field: key})
	if err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return err
	}
	if err == nil && existing.RecordID() != recordID {
		_ = idx.Claim(key, existing.RecordID())
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("%s already in use: %s", field, key),
			map[string]string{"field": field, "key": key})
	}
	return idx.Claim(key, recordID)
}

// collect converts a list result into a typed slice.
func collect[T entity.Record](res adapter.ListResult) []T {
	out := make([]T, 0, len(res.Records))
	for _, rec := range res.Records {
		if typed, ok := rec.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
