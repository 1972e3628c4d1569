package ops

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
)

// PackageOps manages installed packages and their opaque runtime data.
// Both record kinds key by package id.
type PackageOps struct {
	dal *DAL
}

// InstallPackageInput is the shape accepted by Install.
type InstallPackageInput struct {
	PackageID string
	Version   string
	Enabled   bool
	TenantID  string
	Config    json.RawMessage
}

// Install registers a package. Installing an already-installed package is a
// conflict.
func (o *PackageOps) Install(ctx context.Context, input InstallPackageInput) (*entity.InstalledPackage, error) {
	d := o.dal

	pkg := &entity.InstalledPackage{
		PackageID:   input.PackageID,
		Version:     input.Version,
		Enabled:     input.Enabled,
		InstalledAt: d.clock(),
		TenantID:    input.TenantID,
		Config:      input.Config,
	}
	if problems := validate.ValidateInstalledPackage(pkg); len(problems) > 0 {
		return nil, validationError(problems)
	}

	installKey := pkg.TenantID + ":" + pkg.PackageID
	if err := d.installs.Claim(installKey, pkg.PackageID); err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, pkg); err != nil {
		d.installs.Release(installKey)
		return nil, err
	}
	return pkg, nil
}

// Get returns an installed package.
func (o *PackageOps) Get(ctx context.Context, packageID string) (*entity.InstalledPackage, error) {
	if !validate.IsValidPackageID(packageID) {
		return nil, validationError([]string{"packageId must be lowercase letters, digits or underscores"})
	}
	rec, err := o.dal.read(ctx, entity.KindInstalledPackage, packageID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.InstalledPackage), nil
}

// SetEnabled toggles a package on or off.
func (o *PackageOps) SetEnabled(ctx context.Context, packageID string, enabled bool) (*entity.InstalledPackage, error) {
	if !validate.IsValidPackageID(packageID) {
		return nil, validationError([]string{"packageId must be lowercase letters, digits or underscores"})
	}
	rec, err := o.dal.store.Update(ctx, entity.KindInstalledPackage, packageID, entity.Fields{"enabled": enabled})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindInstalledPackage, packageID)
		}
		return nil, err
	}
	return rec.(*entity.InstalledPackage), nil
}

// Uninstall removes a package and its runtime data together.
func (o *PackageOps) Uninstall(ctx context.Context, packageID string) error {
	d := o.dal

	pkg, err := o.Get(ctx, packageID)
	if err != nil {
		return err
	}

	err = d.store.Transact(ctx, func(tx adapter.Adapter) error {
		if err := tx.Delete(ctx, entity.KindInstalledPackage, packageID); err != nil {
			return err
		}
		if err := tx.Delete(ctx, entity.KindPackageData, packageID); err != nil && !errors.Is(err, adapter.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return notFound(entity.KindInstalledPackage, packageID)
		}
		return err
	}
	d.installs.Release(pkg.TenantID + ":" + packageID)
	return nil
}

// List returns a page of installed packages.
func (o *PackageOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.InstalledPackage, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindInstalledPackage, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.InstalledPackage](res), res, nil
}

// SetData stores or replaces the runtime payload of an installed package.
func (o *PackageOps) SetData(ctx context.Context, packageID string, data json.RawMessage) (*entity.PackageData, error) {
	d := o.dal

	// Data belongs to an installation; writing data for an absent package is
	// a not-found, not a silent create.
	if _, err := o.Get(ctx, packageID); err != nil {
		return nil, err
	}

	payload := &entity.PackageData{PackageID: packageID, Data: data}
	_, err := d.store.Read(ctx, entity.KindPackageData, packageID)
	switch {
	case err == nil:
		rec, err := d.store.Update(ctx, entity.KindPackageData, packageID, entity.Fields{"data": json.RawMessage(data)})
		if err != nil {
			return nil, err
		}
		return rec.(*entity.PackageData), nil
	case errors.Is(err, adapter.ErrNotFound):
		if err := d.store.Create(ctx, payload); err != nil {
			return nil, err
		}
		return payload, nil
	default:
		return nil, err
	}
}

// GetData returns the runtime payload of an installed package.
func (o *PackageOps) GetData(ctx context.Context, packageID string) (*entity.PackageData, error) {
	if !validate.IsValidPackageID(packageID) {
		return nil, validationError([]string{"packageId must be lowercase letters, digits or underscores"})
	}
	rec, err := o.dal.read(ctx, entity.KindPackageData, packageID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.PackageData), nil
}
