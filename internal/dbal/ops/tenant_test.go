package ops

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestCreateTenant(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	owner := seedUser(t, dal, "owner", "pw")
	tenant, err := dal.Tenants.Create(ctx, CreateTenantInput{
		Name:           "acme",
		OwnerID:        owner.ID,
		HomepageConfig: json.RawMessage(`{"theme":"dark"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := dal.Tenants.Get(ctx, tenant.ID)
	if err != nil || got.Name != "acme" || got.OwnerID != owner.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestCreateTenantRequiresExistingOwner(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Tenants.Create(context.Background(), CreateTenantInput{
		Name:    "acme",
		OwnerID: "00000000-0000-4000-8000-000000000099",
	})
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateTenantValidates(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Tenants.Create(context.Background(), CreateTenantInput{Name: "  "})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateAndDeleteTenant(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	tenant, err := dal.Tenants.Create(ctx, CreateTenantInput{Name: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := dal.Tenants.Update(ctx, tenant.ID, entity.Fields{"name": "acme-renamed"})
	if err != nil || updated.Name != "acme-renamed" {
		t.Fatalf("update: %+v %v", updated, err)
	}

	if err := dal.Tenants.Delete(ctx, tenant.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := dal.Tenants.Get(ctx, tenant.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
