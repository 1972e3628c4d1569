// Package uniqueindex provides process-local unique claims over secondary
// fields. The adapter only enforces primary-key uniqueness, so entity
// operations claim usernames, emails, tokens and slugs here before writing.
package uniqueindex

import (
	"fmt"
	"sync"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// Index maps a secondary key to the record id that owns it.
type Index struct {
	mu   sync.Mutex
	name string
	keys map[string]string
}

// New creates an empty index. The name appears in conflict messages.
func New(name string) *Index {
	return &Index{name: name, keys: make(map[string]string)}
}

// Claim reserves key for id. Claiming a key already held by the same id is a
// no-op; a key held by another id is a conflict.
func (idx *Index) Claim(key, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	owner, taken := idx.keys[key]
	if taken && owner != id {
		return apperrors.WithMetadata(apperrors.CodeConflict,
			fmt.Sprintf("%s already in use: %s", idx.name, key),
			map[string]string{"index": idx.name, "key": key})
	}
	idx.keys[key] = id
	return nil
}

// Release drops a claim. Releasing an unclaimed key is a no-op.
func (idx *Index) Release(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.keys, key)
}

// Lookup returns the id holding key, if any.
func (idx *Index) Lookup(key string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.keys[key]
	return id, ok
}

// Reset drops every claim.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.keys = make(map[string]string)
}
