// Package memory implements the storage adapter over process-local ordered
// collections. It backs tests and dry-run mode.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// Store holds one ordered collection per entity kind. A single RWMutex
// serializes mutations, which gives callers sequential consistency and makes
// Transact a whole-store critical section.
type Store struct {
	mu    sync.RWMutex
	kinds map[entity.Kind]*collection
}

type collection struct {
	order   []string
	records map[string]entity.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{kinds: make(map[entity.Kind]*collection)}
}

func (s *Store) collection(kind entity.Kind) *collection {
	existing, ok := s.kinds[kind]
	if ok {
		return existing
	}
	created := &collection{records: make(map[string]entity.Record)}
	s.kinds[kind] = created
	return created
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, rec entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(rec)
}

func (s *Store) createLocked(rec entity.Record) error {
	id := rec.RecordID()
	if strings.TrimSpace(id) == "" {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("%s id is required", rec.RecordKind()),
			map[string]string{"kind": string(rec.RecordKind())})
	}
	coll := s.collection(rec.RecordKind())
	if _, exists := coll.records[id]; exists {
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("%s already exists: %s", rec.RecordKind(), id),
			map[string]string{"kind": string(rec.RecordKind()), "id": id})
	}
	stored, err := entity.Clone(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "copy record", err)
	}
	coll.records[id] = stored
	coll.order = append(coll.order, id)
	return nil
}

// Read returns the record with the given primary key.
func (s *Store) Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked(kind, id)
}

func (s *Store) readLocked(kind entity.Kind, id string) (entity.Record, error) {
	coll := s.collection(kind)
	rec, ok := coll.records[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	out, err := entity.Clone(rec)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "copy record", err)
	}
	return out, nil
}

// FindFirst returns the first record matching all predicates, in insertion
// order.
func (s *Store) FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirstLocked(kind, where)
}

func (s *Store) findFirstLocked(kind entity.Kind, where entity.Fields) (entity.Record, error) {
	coll := s.collection(kind)
	for _, id := range coll.order {
		ok, err := matches(coll.records[id], where)
		if err != nil {
			return nil, err
		}
		if ok {
			return entityCloneInternal(coll.records[id])
		}
	}
	return nil, adapter.ErrNotFound
}

// Update applies a partial patch to an existing record.
func (s *Store) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(kind, id, patch)
}

func (s *Store) updateLocked(kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	coll := s.collection(kind)
	existing, ok := coll.records[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	merged, err := entity.Merge(existing, patch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "merge record", err)
	}
	if merged.RecordID() != id {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("%s primary key is immutable", kind),
			map[string]string{"kind": string(kind), "id": id})
	}
	coll.records[id] = merged
	return entityCloneInternal(merged)
}

// Delete removes a record and its insertion-order slot.
func (s *Store) Delete(ctx context.Context, kind entity.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(kind, id)
}

func (s *Store) deleteLocked(kind entity.Kind, id string) error {
	coll := s.collection(kind)
	if _, ok := coll.records[id]; !ok {
		return adapter.ErrNotFound
	}
	delete(coll.records, id)
	for i, existing := range coll.order {
		if existing == id {
			coll.order = append(coll.order[:i], coll.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a filtered, sorted, paged listing.
func (s *Store) List(ctx context.Context, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(kind, opts)
}

func (s *Store) listLocked(kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	coll := s.collection(kind)

	var filtered []entity.Record
	for _, id := range coll.order {
		ok, err := matches(coll.records[id], opts.Filter)
		if err != nil {
			return adapter.ListResult{}, err
		}
		if ok {
			filtered = append(filtered, coll.records[id])
		}
	}

	if len(opts.Sort) > 0 {
		if err := sortRecords(filtered, opts.Sort); err != nil {
			return adapter.ListResult{}, err
		}
	}

	page, limit := opts.Normalized()
	total := len(filtered)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]entity.Record, 0, end-start)
	for _, rec := range filtered[start:end] {
		cloned, err := entityCloneInternal(rec)
		if err != nil {
			return adapter.ListResult{}, err
		}
		out = append(out, cloned)
	}

	return adapter.ListResult{
		Records: out,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: page*limit < total,
	}, nil
}

// Transact runs fn under the store write lock so compound mutations are
// never partially visible. When fn fails the collections are restored to
// their state at entry, matching the sqlite backend's rollback.
func (s *Store) Transact(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshotLocked()
	if err := fn(&txStore{store: s}); err != nil {
		s.kinds = snapshot
		return err
	}
	return nil
}

// snapshotLocked copies the collection bookkeeping. Stored records are
// cloned on the way in and out and never mutated in place, so copying the
// order slices and record maps is enough to restore any state.
func (s *Store) snapshotLocked() map[entity.Kind]*collection {
	out := make(map[entity.Kind]*collection, len(s.kinds))
	for kind, coll := range s.kinds {
		records := make(map[string]entity.Record, len(coll.records))
		for id, rec := range coll.records {
			records[id] = rec
		}
		out[kind] = &collection{
			order:   append([]string(nil), coll.order...),
			records: records,
		}
	}
	return out
}

// Reset clears every collection. Tests call this for explicit teardown;
// nothing resets implicitly between requests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = make(map[entity.Kind]*collection)
}

// Close clears the store.
func (s *Store) Close() error {
	s.Reset()
	return nil
}

// txStore exposes the adapter surface against an already-locked store.
type txStore struct {
	store *Store
}

func (t *txStore) Create(ctx context.Context, rec entity.Record) error {
	return t.store.createLocked(rec)
}

func (t *txStore) Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error) {
	return t.store.readLocked(kind, id)
}

func (t *txStore) FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	return t.store.findFirstLocked(kind, where)
}

func (t *txStore) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	return t.store.updateLocked(kind, id, patch)
}

func (t *txStore) Delete(ctx context.Context, kind entity.Kind, id string) error {
	return t.store.deleteLocked(kind, id)
}

func (t *txStore) List(ctx context.Context, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	return t.store.listLocked(kind, opts)
}

func (t *txStore) Transact(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	// Already inside the critical section; nesting reuses it.
	return fn(t)
}

func (t *txStore) Close() error {
	return nil
}

func entityCloneInternal(rec entity.Record) (entity.Record, error) {
	out, err := entity.Clone(rec)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "copy record", err)
	}
	return out, nil
}

func matches(rec entity.Record, where entity.Fields) (bool, error) {
	if len(where) == 0 {
		return true, nil
	}
	fields, err := entity.FieldsOf(rec)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "project record", err)
	}
	for key, value := range where {
		if !reflect.DeepEqual(fields[key], entity.Normalize(value)) {
			return false, nil
		}
	}
	return true, nil
}

func sortRecords(records []entity.Record, by []adapter.SortField) error {
	projected := make([]entity.Fields, len(records))
	for i, rec := range records {
		fields, err := entity.FieldsOf(rec)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "project record", err)
		}
		projected[i] = fields
	}

	type indexed struct {
		rec    entity.Record
		fields entity.Fields
	}
	rows := make([]indexed, len(records))
	for i := range records {
		rows[i] = indexed{rec: records[i], fields: projected[i]}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, field := range by {
			cmp := compareValues(rows[i].fields[field.Field], rows[j].fields[field.Field])
			if cmp == 0 {
				continue
			}
			if field.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	for i := range rows {
		records[i] = rows[i].rec
	}
	return nil
}

// compareValues orders JSON-shaped values. Mixed or unsupported types
// compare equal, matching the original adapter's behavior.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case !av && bv:
				return -1
			case av && !bv:
				return 1
			}
			return 0
		}
	}
	return 0
}

var _ adapter.Adapter = (*Store)(nil)
var _ adapter.Adapter = (*txStore)(nil)
