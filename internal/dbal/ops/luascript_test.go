package ops

import (
	"context"
	"testing"

	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestCreateScript(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	script, err := dal.Scripts.Create(ctx, CreateScriptInput{
		Name:        "greeter",
		Code:        "return 'hello'",
		IsSandboxed: true,
		TimeoutMs:   500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := dal.Scripts.Get(ctx, script.ID)
	if err != nil || got.Name != "greeter" || !got.IsSandboxed {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestCreateScriptRejectsBrokenSyntax(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Scripts.Create(context.Background(), CreateScriptInput{
		Name: "broken",
		Code: "function oops(",
	})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateScriptChecksNewCode(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	script, err := dal.Scripts.Create(ctx, CreateScriptInput{Name: "greeter", Code: "return 1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := dal.Scripts.Update(ctx, script.ID, entity.Fields{"code": "if x then"}); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// The stored code is untouched after the rejected update.
	got, err := dal.Scripts.Get(ctx, script.ID)
	if err != nil || got.Code != "return 1" {
		t.Fatalf("stored code changed: %+v %v", got, err)
	}

	updated, err := dal.Scripts.Update(ctx, script.ID, entity.Fields{"code": "return 2"})
	if err != nil || updated.Code != "return 2" {
		t.Fatalf("update: %+v %v", updated, err)
	}
}

func TestDeleteScript(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	script, err := dal.Scripts.Create(ctx, CreateScriptInput{Name: "greeter", Code: "return 1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := dal.Scripts.Delete(ctx, script.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := dal.Scripts.Get(ctx, script.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
