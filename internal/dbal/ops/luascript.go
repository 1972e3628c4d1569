package ops

import (
	"context"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	"github.com/kmarchand/studioforge/internal/luacheck"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// ScriptOps manages stored Lua scripts. Code is syntax-checked before it is
// stored; execution is out of scope for the data layer.
type ScriptOps struct {
	dal *DAL
}

// CreateScriptInput is the shape accepted by Create.
type CreateScriptInput struct {
	Name           string
	Code           string
	IsSandboxed    bool
	AllowedGlobals []string
	TimeoutMs      int
	CreatedBy      string
}

// Create registers a new script after validating its fields and syntax.
func (o *ScriptOps) Create(ctx context.Context, input CreateScriptInput) (*entity.LuaScript, error) {
	d := o.dal

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate script id", err)
	}
	script := &entity.LuaScript{
		ID:             newID,
		Name:           input.Name,
		Code:           input.Code,
		IsSandboxed:    input.IsSandboxed,
		AllowedGlobals: input.AllowedGlobals,
		TimeoutMs:      input.TimeoutMs,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      d.clock(),
	}
	if problems := validate.ValidateLuaScript(script); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if err := luacheck.Check(script.Code); err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, script); err != nil {
		return nil, err
	}
	return script, nil
}

// Get returns a script by id.
func (o *ScriptOps) Get(ctx context.Context, scriptID string) (*entity.LuaScript, error) {
	if problems := validate.ValidateID(scriptID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindLuaScript, scriptID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.LuaScript), nil
}

// Update applies a partial patch. A code change goes through the syntax
// check before anything is written.
func (o *ScriptOps) Update(ctx context.Context, scriptID string, patch entity.Fields) (*entity.LuaScript, error) {
	if problems := validate.ValidateID(scriptID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if value, ok := patch["code"]; ok {
		code, isString := value.(string)
		if !isString {
			return nil, validationError([]string{"code must be a string"})
		}
		if err := luacheck.Check(code); err != nil {
			return nil, err
		}
	}

	rec, err := o.dal.store.Update(ctx, entity.KindLuaScript, scriptID, patch)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindLuaScript, scriptID)
		}
		return nil, err
	}
	return rec.(*entity.LuaScript), nil
}

// Delete removes a script.
func (o *ScriptOps) Delete(ctx context.Context, scriptID string) error {
	if problems := validate.ValidateID(scriptID); len(problems) > 0 {
		return validationError(problems)
	}
	err := o.dal.store.Delete(ctx, entity.KindLuaScript, scriptID)
	if errors.Is(err, adapter.ErrNotFound) {
		return notFound(entity.KindLuaScript, scriptID)
	}
	return err
}

// List returns a page of scripts.
func (o *ScriptOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.LuaScript, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindLuaScript, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.LuaScript](res), res, nil
}
