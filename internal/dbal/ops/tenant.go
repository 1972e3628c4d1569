package ops

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// TenantOps manages tenants.
type TenantOps struct {
	dal *DAL
}

// CreateTenantInput is the shape accepted by Create.
type CreateTenantInput struct {
	Name           string
	OwnerID        string
	HomepageConfig json.RawMessage
}

// Create registers a new tenant. The owner, when given, must be an existing
// user.
func (o *TenantOps) Create(ctx context.Context, input CreateTenantInput) (*entity.Tenant, error) {
	d := o.dal

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate tenant id", err)
	}
	tenant := &entity.Tenant{
		ID:             newID,
		Name:           input.Name,
		OwnerID:        input.OwnerID,
		CreatedAt:      d.clock(),
		HomepageConfig: input.HomepageConfig,
	}
	if problems := validate.ValidateTenant(tenant); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if tenant.OwnerID != "" {
		if _, err := d.Users.Get(ctx, tenant.OwnerID); err != nil {
			return nil, err
		}
	}
	if err := d.store.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Get returns a tenant by id.
func (o *TenantOps) Get(ctx context.Context, tenantID string) (*entity.Tenant, error) {
	if problems := validate.ValidateID(tenantID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindTenant, tenantID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.Tenant), nil
}

// Update applies a partial patch.
func (o *TenantOps) Update(ctx context.Context, tenantID string, patch entity.Fields) (*entity.Tenant, error) {
	if problems := validate.ValidateID(tenantID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.store.Update(ctx, entity.KindTenant, tenantID, patch)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindTenant, tenantID)
		}
		return nil, err
	}
	return rec.(*entity.Tenant), nil
}

// Delete removes a tenant.
func (o *TenantOps) Delete(ctx context.Context, tenantID string) error {
	if problems := validate.ValidateID(tenantID); len(problems) > 0 {
		return validationError(problems)
	}
	err := o.dal.store.Delete(ctx, entity.KindTenant, tenantID)
	if errors.Is(err, adapter.ErrNotFound) {
		return notFound(entity.KindTenant, tenantID)
	}
	return err
}

// List returns a page of tenants.
func (o *TenantOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.Tenant, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindTenant, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.Tenant](res), res, nil
}
