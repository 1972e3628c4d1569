package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kmarchand/studioforge/internal/dbal/blob"
	"github.com/kmarchand/studioforge/internal/dbal/scope"
)

var tenantA = scope.Context{TenantID: "tenant-a"}
var tenantB = scope.Context{TenantID: "tenant-b"}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	meta, err := store.Upload(ctx, tenantA, "avatars/alice.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.Size != 9 || meta.ContentType != "image/png" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	data, got, err := store.Download(ctx, tenantA, "avatars/alice.png")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "png-bytes" || got.Key != "avatars/alice.png" {
		t.Fatalf("unexpected blob: %q %+v", data, got)
	}
}

func TestDownloadMissing(t *testing.T) {
	store := openTestStore(t)
	_, _, err := store.Download(context.Background(), tenantA, "missing")
	if !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("v")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ok, _ := store.Exists(ctx, tenantA, "doc"); !ok {
		t.Fatal("expected blob to exist")
	}
	if err := store.Delete(ctx, tenantA, "doc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, tenantA, "doc"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := store.GetMetadata(ctx, tenantA, "doc"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected metadata to be gone, got %v", err)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("a")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, _, err := store.Download(ctx, tenantB, "doc"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected isolation, got %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"avatars/a.png", "avatars/b.png", "docs/readme"} {
		if _, err := store.Upload(ctx, tenantA, key, "application/octet-stream", []byte("x")); err != nil {
			t.Fatalf("upload %s: %v", key, err)
		}
	}
	if _, err := store.Upload(ctx, tenantB, "avatars/c.png", "image/png", []byte("x")); err != nil {
		t.Fatalf("upload other tenant: %v", err)
	}

	metas, err := store.List(ctx, tenantA, "avatars/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 || metas[0].Key != "avatars/a.png" || metas[1].Key != "avatars/b.png" {
		t.Fatalf("unexpected listing: %+v", metas)
	}
}

func TestReopenKeepsBlobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("persisted")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	data, _, err := store.Download(ctx, tenantA, "doc")
	if err != nil {
		t.Fatalf("download after reopen: %v", err)
	}
	if string(data) != "persisted" {
		t.Fatalf("unexpected contents: %q", data)
	}
}
