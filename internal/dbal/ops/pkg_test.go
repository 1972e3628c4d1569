package ops

import (
	"context"
	"encoding/json"
	"testing"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestInstallAndGetPackage(t *testing.T) {
	dal, clock := newTestDAL()
	ctx := context.Background()

	pkg, err := dal.Packages.Install(ctx, InstallPackageInput{
		PackageID: "forms",
		Version:   "1.2.0",
		Enabled:   true,
		Config:    json.RawMessage(`{"maxFields":20}`),
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !pkg.InstalledAt.Equal(clock.Now()) {
		t.Fatalf("unexpected installedAt: %v", pkg.InstalledAt)
	}

	got, err := dal.Packages.Get(ctx, "forms")
	if err != nil || got.Version != "1.2.0" || !got.Enabled {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestInstallDuplicateConflicts(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	if _, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "1.0.0"}); err != nil {
		t.Fatalf("install: %v", err)
	}
	_, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "2.0.0"})
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInstallValidates(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Packages.Install(context.Background(), InstallPackageInput{PackageID: "Bad-Name", Version: "x"})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetEnabledAbsentNotFound(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Packages.SetEnabled(context.Background(), "ghost", true)
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetEnabledToggles(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	if _, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "1.0.0", Enabled: true}); err != nil {
		t.Fatalf("install: %v", err)
	}
	pkg, err := dal.Packages.SetEnabled(ctx, "forms", false)
	if err != nil || pkg.Enabled {
		t.Fatalf("disable: %+v %v", pkg, err)
	}
	pkg, err = dal.Packages.SetEnabled(ctx, "forms", true)
	if err != nil || !pkg.Enabled {
		t.Fatalf("enable: %+v %v", pkg, err)
	}
}

func TestPackageDataLifecycle(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	if _, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "1.0.0"}); err != nil {
		t.Fatalf("install: %v", err)
	}

	if _, err := dal.Packages.SetData(ctx, "forms", json.RawMessage(`{"entries":1}`)); err != nil {
		t.Fatalf("set data: %v", err)
	}
	if _, err := dal.Packages.SetData(ctx, "forms", json.RawMessage(`{"entries":2}`)); err != nil {
		t.Fatalf("overwrite data: %v", err)
	}

	data, err := dal.Packages.GetData(ctx, "forms")
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	var decoded struct {
		Entries int `json:"entries"`
	}
	if err := json.Unmarshal(data.Data, &decoded); err != nil || decoded.Entries != 2 {
		t.Fatalf("unexpected data: %s %v", data.Data, err)
	}
}

func TestSetDataRequiresInstall(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Packages.SetData(context.Background(), "ghost", json.RawMessage(`{}`))
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUninstallRemovesData(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	if _, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "1.0.0"}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := dal.Packages.SetData(ctx, "forms", json.RawMessage(`{"entries":1}`)); err != nil {
		t.Fatalf("set data: %v", err)
	}

	if err := dal.Packages.Uninstall(ctx, "forms"); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := dal.Packages.Get(ctx, "forms"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("package survived uninstall: %v", err)
	}
	if _, err := dal.Packages.GetData(ctx, "forms"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("package data survived uninstall: %v", err)
	}

	// Reinstall after uninstall is allowed.
	if _, err := dal.Packages.Install(ctx, InstallPackageInput{PackageID: "forms", Version: "2.0.0"}); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
}
