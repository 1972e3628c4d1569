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

// WorkflowOps manages automation definitions. Every update bumps the
// workflow version so the builder UI can detect concurrent edits.
type WorkflowOps struct {
	dal *DAL
}

// CreateWorkflowInput is the shape accepted by Create.
type CreateWorkflowInput struct {
	Name     string
	Trigger  entity.WorkflowTrigger
	Nodes    json.RawMessage
	Edges    json.RawMessage
	Enabled  bool
	TenantID string
}

// Create registers a new workflow at version 1.
func (o *WorkflowOps) Create(ctx context.Context, input CreateWorkflowInput) (*entity.Workflow, error) {
	d := o.dal

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate workflow id", err)
	}
	wf := &entity.Workflow{
		ID:       newID,
		Name:     input.Name,
		Trigger:  input.Trigger,
		Nodes:    input.Nodes,
		Edges:    input.Edges,
		Enabled:  input.Enabled,
		Version:  1,
		TenantID: input.TenantID,
	}
	if problems := validate.ValidateWorkflow(wf); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if err := d.store.Create(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// Get returns a workflow by id.
func (o *WorkflowOps) Get(ctx context.Context, workflowID string) (*entity.Workflow, error) {
	if problems := validate.ValidateID(workflowID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindWorkflow, workflowID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.Workflow), nil
}

// Update applies a partial patch and increments the version.
func (o *WorkflowOps) Update(ctx context.Context, workflowID string, patch entity.Fields) (*entity.Workflow, error) {
	d := o.dal

	if problems := validate.ValidateID(workflowID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if value, ok := patch["trigger"]; ok {
		s, isString := value.(string)
		if !isString || !entity.WorkflowTrigger(s).Valid() {
			return nil, validationError([]string{"trigger is not recognized"})
		}
	}

	current, err := o.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	applied := make(entity.Fields, len(patch)+1)
	for key, value := range patch {
		applied[key] = value
	}
	applied["version"] = current.Version + 1

	rec, err := d.store.Update(ctx, entity.KindWorkflow, workflowID, applied)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindWorkflow, workflowID)
		}
		return nil, err
	}
	return rec.(*entity.Workflow), nil
}

// SetEnabled flips the enabled flag without bumping the version.
func (o *WorkflowOps) SetEnabled(ctx context.Context, workflowID string, enabled bool) (*entity.Workflow, error) {
	if problems := validate.ValidateID(workflowID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.store.Update(ctx, entity.KindWorkflow, workflowID, entity.Fields{"enabled": enabled})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindWorkflow, workflowID)
		}
		return nil, err
	}
	return rec.(*entity.Workflow), nil
}

// Delete removes a workflow.
func (o *WorkflowOps) Delete(ctx context.Context, workflowID string) error {
	if problems := validate.ValidateID(workflowID); len(problems) > 0 {
		return validationError(problems)
	}
	err := o.dal.store.Delete(ctx, entity.KindWorkflow, workflowID)
	if errors.Is(err, adapter.ErrNotFound) {
		return notFound(entity.KindWorkflow, workflowID)
	}
	return err
}

// List returns a page of workflows.
func (o *WorkflowOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.Workflow, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindWorkflow, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.Workflow](res), res, nil
}
