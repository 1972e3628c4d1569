package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal/scope"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

var tenantA = scope.Context{TenantID: "tenant-a"}
var tenantB = scope.Context{TenantID: "tenant-b"}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
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

func TestUploadPreservesCreatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("v1"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	now = now.Add(time.Hour)
	second, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("v2-longer"))
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("re-upload changed createdAt")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("re-upload did not advance updatedAt")
	}
	if second.Size != 9 {
		t.Fatalf("unexpected size: %d", second.Size)
	}
}

func TestDownloadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, _, err := store.Download(context.Background(), tenantA, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	store := NewMemoryStore()
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
	if ok, _ := store.Exists(ctx, tenantA, "doc"); ok {
		t.Fatal("expected blob to be gone")
	}
	if err := store.Delete(ctx, tenantA, "doc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("a")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, _, err := store.Download(ctx, tenantB, "doc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected isolation, got %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	store := NewMemoryStore()
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

func TestDownloadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Upload(ctx, tenantA, "doc", "text/plain", []byte("abc")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, _, err := store.Download(ctx, tenantA, "doc")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data[0] = 'z'

	again, _, err := store.Download(ctx, tenantA, "doc")
	if err != nil {
		t.Fatalf("re-download: %v", err)
	}
	if string(again) != "abc" {
		t.Fatal("stored blob was mutated through returned slice")
	}
}

func TestValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Upload(ctx, scope.Context{}, "doc", "text/plain", []byte("x"))
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for missing tenant, got %v", err)
	}
	_, err = store.Upload(ctx, tenantA, "  ", "text/plain", []byte("x"))
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
}
