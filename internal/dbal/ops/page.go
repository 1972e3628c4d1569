package ops

import (
	"context"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// PageOps manages routed page definitions. Slugs are unique across pages.
type PageOps struct {
	dal *DAL
}

// CreatePageInput is the shape accepted by Create.
type CreatePageInput struct {
	Slug     string
	Title    string
	Level    int
	Layout   string
	IsActive bool
}

// Create registers a new page.
func (o *PageOps) Create(ctx context.Context, input CreatePageInput) (*entity.Page, error) {
	d := o.dal

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate page id", err)
	}
	page := &entity.Page{
		ID:       newID,
		Slug:     input.Slug,
		Title:    input.Title,
		Level:    input.Level,
		Layout:   input.Layout,
		IsActive: input.IsActive,
	}
	if problems := validate.ValidatePage(page); len(problems) > 0 {
		return nil, validationError(problems)
	}

	if err := d.claimUnique(ctx, d.slugs, entity.KindPage, "slug", page.Slug, page.ID); err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, page); err != nil {
		d.slugs.Release(page.Slug)
		return nil, err
	}
	return page, nil
}

// Get returns a page by id.
func (o *PageOps) Get(ctx context.Context, pageID string) (*entity.Page, error) {
	if problems := validate.ValidateID(pageID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindPage, pageID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.Page), nil
}

// GetBySlug returns a page by its unique slug.
func (o *PageOps) GetBySlug(ctx context.Context, slug string) (*entity.Page, error) {
	rec, err := o.dal.store.FindFirst(ctx, entity.KindPage, entity.Fields{"slug": slug})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindPage, slug)
		}
		return nil, err
	}
	return rec.(*entity.Page), nil
}

// Update applies a partial patch. Slug changes re-claim the unique slug.
func (o *PageOps) Update(ctx context.Context, pageID string, patch entity.Fields) (*entity.Page, error) {
	d := o.dal

	if problems := validate.ValidateID(pageID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if value, ok := patch["slug"]; ok {
		if s, ok := value.(string); !ok || !validate.IsValidSlug(s) {
			return nil, validationError([]string{"slug must be lowercase letters, digits, hyphens or slashes"})
		}
	}

	current, err := o.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}

	newSlug, slugChanged := patchString(patch, "slug", current.Slug)
	if slugChanged {
		if err := d.claimUnique(ctx, d.slugs, entity.KindPage, "slug", newSlug, pageID); err != nil {
			return nil, err
		}
	}

	rec, err := d.store.Update(ctx, entity.KindPage, pageID, patch)
	if err != nil {
		if slugChanged {
			d.slugs.Release(newSlug)
		}
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindPage, pageID)
		}
		return nil, err
	}
	if slugChanged {
		d.slugs.Release(current.Slug)
	}
	return rec.(*entity.Page), nil
}

// Delete removes a page and frees its slug.
func (o *PageOps) Delete(ctx context.Context, pageID string) error {
	d := o.dal

	page, err := o.Get(ctx, pageID)
	if err != nil {
		return err
	}
	if err := d.store.Delete(ctx, entity.KindPage, pageID); err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return notFound(entity.KindPage, pageID)
		}
		return err
	}
	d.slugs.Release(page.Slug)
	return nil
}

// List returns a page of pages.
func (o *PageOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.Page, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindPage, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.Page](res), res, nil
}
