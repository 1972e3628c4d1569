// Package adapter defines the uniform storage contract implemented by the
// in-memory and sqlite backends. Entity operations depend only on this
// interface; the backend is chosen once per process and injected.
package adapter

import (
	"context"

	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrDuplicate indicates a create collided with an existing primary key.
var ErrDuplicate = apperrors.New(apperrors.CodeConflict, "record already exists")

// DefaultLimit is the page size used when ListOptions.Limit is unset.
const DefaultLimit = 20

// MaxLimit is the page size internal sweeps use to drain a collection.
const MaxLimit = 1000

// SortField orders a listing by one field. Fields earlier in the slice take
// precedence.
type SortField struct {
	Field string
	Desc  bool
}

// ListOptions narrows and pages a listing. Filter is equality-only per field.
// Page is 1-indexed.
type ListOptions struct {
	Filter entity.Fields
	Sort   []SortField
	Page   int
	Limit  int
}

// Normalized returns the effective page and limit.
func (o ListOptions) Normalized() (page, limit int) {
	page = o.Page
	if page < 1 {
		page = 1
	}
	limit = o.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	return page, limit
}

// ListResult is one page of records plus paging metadata.
type ListResult struct {
	Records []entity.Record
	Total   int
	Page    int
	Limit   int
	HasMore bool
}

// Adapter is the storage contract. Both backends implement identical
// semantics: conflict on duplicate create, not-found on absent update/delete,
// deterministic insertion-order tie-break for FindFirst and unsorted listings.
type Adapter interface {
	// Create stores a new record. Returns ErrDuplicate when the primary key
	// is already present.
	Create(ctx context.Context, rec entity.Record) error

	// Read returns the record with the given primary key, or ErrNotFound.
	Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error)

	// FindFirst returns the first record matching every equality predicate
	// in where, in insertion order, or ErrNotFound.
	FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error)

	// Update applies a partial field patch and returns the merged record.
	// Returns ErrNotFound when the id is absent.
	Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error)

	// Delete removes a record. Returns ErrNotFound when the id is absent.
	Delete(ctx context.Context, kind entity.Kind, id string) error

	// List returns a filtered, sorted, paged listing.
	List(ctx context.Context, kind entity.Kind, opts ListOptions) (ListResult, error)

	// Transact runs fn atomically: either every mutation fn performs is
	// visible to other callers, or none is. Concurrent readers never observe
	// intermediate state.
	Transact(ctx context.Context, fn func(tx Adapter) error) error

	// Close releases backend resources.
	Close() error
}
