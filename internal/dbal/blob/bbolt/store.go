// Package bbolt persists tenant-scoped blobs in a BoltDB file. Contents and
// metadata live in sibling buckets keyed by the scoped blob key.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kmarchand/studioforge/internal/dbal/blob"
	"github.com/kmarchand/studioforge/internal/dbal/scope"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

const (
	dataBucket = "blob_data"
	metaBucket = "blob_meta"
)

// Store provides a BoltDB-backed blob store.
type Store struct {
	db    *bbolt.DB
	clock func() time.Time
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob db: %w", err)
	}

	store := &Store{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{dataBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
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
func (s *Store) Upload(ctx context.Context, sc scope.Context, key, contentType string, data []byte) (blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return blob.Metadata{}, err
	}
	if err := validateKey(sc, key); err != nil {
		return blob.Metadata{}, err
	}

	scoped := []byte(sc.Key(key))
	now := s.clock()
	meta := blob.Metadata{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		metas := tx.Bucket([]byte(metaBucket))
		if existing := metas.Get(scoped); existing != nil {
			var prior blob.Metadata
			if err := json.Unmarshal(existing, &prior); err == nil {
				meta.CreatedAt = prior.CreatedAt
			}
		}
		payload, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if err := metas.Put(scoped, payload); err != nil {
			return fmt.Errorf("put metadata: %w", err)
		}
		return tx.Bucket([]byte(dataBucket)).Put(scoped, data)
	})
	if err != nil {
		return blob.Metadata{}, apperrors.Wrap(apperrors.CodeInternal, "store blob", err)
	}
	return meta, nil
}

// Download returns the blob contents and metadata.
func (s *Store) Download(ctx context.Context, sc scope.Context, key string) ([]byte, blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, blob.Metadata{}, err
	}
	if err := validateKey(sc, key); err != nil {
		return nil, blob.Metadata{}, err
	}

	scoped := []byte(sc.Key(key))
	var data []byte
	var meta blob.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(dataBucket)).Get(scoped)
		if payload == nil {
			return blob.ErrNotFound
		}
		data = make([]byte, len(payload))
		copy(data, payload)

		metaPayload := tx.Bucket([]byte(metaBucket)).Get(scoped)
		if metaPayload == nil {
			return blob.ErrNotFound
		}
		if err := json.Unmarshal(metaPayload, &meta); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return nil, blob.Metadata{}, err
		}
		return nil, blob.Metadata{}, apperrors.Wrap(apperrors.CodeInternal, "load blob", err)
	}
	return data, meta, nil
}

// Delete removes the blob.
func (s *Store) Delete(ctx context.Context, sc scope.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(sc, key); err != nil {
		return err
	}

	scoped := []byte(sc.Key(key))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(dataBucket))
		if data.Get(scoped) == nil {
			return blob.ErrNotFound
		}
		if err := data.Delete(scoped); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Delete(scoped)
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return err
		}
		return apperrors.Wrap(apperrors.CodeInternal, "delete blob", err)
	}
	return nil
}

// Exists reports whether the blob is present.
func (s *Store) Exists(ctx context.Context, sc scope.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey(sc, key); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(dataBucket)).Get([]byte(sc.Key(key))) != nil
		return nil
	})
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "check blob", err)
	}
	return found, nil
}

// List returns metadata for the tenant's blobs whose key starts with
// prefix, sorted by key.
func (s *Store) List(ctx context.Context, sc scope.Context, prefix string) ([]blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	scopedPrefix := []byte(sc.Key(prefix))
	var out []blob.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(metaBucket)).Cursor()
		for k, v := cursor.Seek(scopedPrefix); k != nil && strings.HasPrefix(string(k), string(scopedPrefix)); k, v = cursor.Next() {
			var meta blob.Metadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("unmarshal metadata: %w", err)
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list blobs", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// GetMetadata returns the blob's metadata without its contents.
func (s *Store) GetMetadata(ctx context.Context, sc scope.Context, key string) (blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return blob.Metadata{}, err
	}
	if err := validateKey(sc, key); err != nil {
		return blob.Metadata{}, err
	}

	var meta blob.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(metaBucket)).Get([]byte(sc.Key(key)))
		if payload == nil {
			return blob.ErrNotFound
		}
		return json.Unmarshal(payload, &meta)
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return blob.Metadata{}, err
		}
		return blob.Metadata{}, apperrors.Wrap(apperrors.CodeInternal, "load metadata", err)
	}
	return meta, nil
}

var _ blob.Store = (*Store)(nil)
