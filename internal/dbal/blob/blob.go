// Package blob stores tenant-scoped binary objects with lightweight
// metadata. The in-memory store here backs tests and dry-run mode; the
// bbolt sub-package persists blobs to disk.
package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal/scope"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// ErrNotFound reports a missing blob.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "blob not found")

// Metadata describes a stored blob.
type Metadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store is the blob storage contract. Implementations namespace every
// operation by the tenant in the scope context.
type Store interface {
	Upload(ctx context.Context, sc scope.Context, key, contentType string, data []byte) (Metadata, error)
	Download(ctx context.Context, sc scope.Context, key string) ([]byte, Metadata, error)
	Delete(ctx context.Context, sc scope.Context, key string) error
	Exists(ctx context.Context, sc scope.Context, key string) (bool, error)
	List(ctx context.Context, sc scope.Context, prefix string) ([]Metadata, error)
	GetMetadata(ctx context.Context, sc scope.Context, key string) (Metadata, error)
	Close() error
}

type stored struct {
	data []byte
	meta Metadata
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string]*stored
	clock func() time.Time
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]*stored),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for metadata timestamps.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func validateKey(sc scope.Context, key string) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return apperrors.New(apperrors.CodeValidation, "blob key is required")
	}
	return nil
}

// Upload stores data under the scoped key, replacing any existing blob.
func (s *MemoryStore) Upload(ctx context.Context, sc scope.Context, key, contentType string, data []byte) (Metadata, error) {
	if err := validateKey(sc, key); err != nil {
		return Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	scoped := sc.Key(key)
	meta := Metadata{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, ok := s.blobs[scoped]; ok {
		meta.CreatedAt = existing.meta.CreatedAt
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[scoped] = &stored{data: copied, meta: meta}
	return meta, nil
}

// Download returns the blob contents and metadata.
func (s *MemoryStore) Download(ctx context.Context, sc scope.Context, key string) ([]byte, Metadata, error) {
	if err := validateKey(sc, key); err != nil {
		return nil, Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[sc.Key(key)]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	out := make([]byte, len(blob.data))
	copy(out, blob.data)
	return out, blob.meta, nil
}

// Delete removes the blob.
func (s *MemoryStore) Delete(ctx context.Context, sc scope.Context, key string) error {
	if err := validateKey(sc, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scoped := sc.Key(key)
	if _, ok := s.blobs[scoped]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, scoped)
	return nil
}

// Exists reports whether the blob is present.
func (s *MemoryStore) Exists(ctx context.Context, sc scope.Context, key string) (bool, error) {
	if err := validateKey(sc, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[sc.Key(key)]
	return ok, nil
}

// List returns metadata for the tenant's blobs whose key starts with
// prefix, sorted by key.
func (s *MemoryStore) List(ctx context.Context, sc scope.Context, prefix string) ([]Metadata, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scopedPrefix := sc.Key(prefix)
	var out []Metadata
	for scoped, blob := range s.blobs {
		if strings.HasPrefix(scoped, scopedPrefix) {
			out = append(out, blob.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// GetMetadata returns the blob's metadata without its contents.
func (s *MemoryStore) GetMetadata(ctx context.Context, sc scope.Context, key string) (Metadata, error) {
	if err := validateKey(sc, key); err != nil {
		return Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[sc.Key(key)]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return blob.meta, nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string]*stored)
	return nil
}

var _ Store = (*MemoryStore)(nil)
