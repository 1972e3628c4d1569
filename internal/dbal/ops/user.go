package ops

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// UserOps manages user accounts.
type UserOps struct {
	dal *DAL
}

// CreateUserInput is the shape accepted by Create.
type CreateUserInput struct {
	Username        string
	Email           string
	Password        string
	Role            entity.Role
	TenantID        string
	IsInstanceOwner bool
}

// Create registers a new user. When a password is given the matching
// credential is written in the same transaction. At most one user may be the
// instance owner.
func (o *UserOps) Create(ctx context.Context, input CreateUserInput) (*entity.User, error) {
	d := o.dal

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate user id", err)
	}
	user := &entity.User{
		ID:              newID,
		Username:        input.Username,
		Email:           input.Email,
		Role:            input.Role,
		TenantID:        input.TenantID,
		IsInstanceOwner: input.IsInstanceOwner,
		CreatedAt:       d.clock(),
	}
	if problems := validate.ValidateUser(user); len(problems) > 0 {
		return nil, validationError(problems)
	}

	if input.IsInstanceOwner {
		existing, err := d.store.FindFirst(ctx, entity.KindUser, entity.Fields{"isInstanceOwner": true})
		if err != nil && !errors.Is(err, adapter.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			return nil, apperrors.WithMetadata(apperrors.CodeConflict,
				"instance already has an owner",
				map[string]string{"ownerId": existing.RecordID()})
		}
	}

	if err := d.claimUnique(ctx, d.usernames, entity.KindUser, "username", user.Username, user.ID); err != nil {
		return nil, err
	}
	if err := d.claimUnique(ctx, d.emails, entity.KindUser, "email", user.Email, user.ID); err != nil {
		d.usernames.Release(user.Username)
		return nil, err
	}

	var hash []byte
	if input.Password != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			d.usernames.Release(user.Username)
			d.emails.Release(user.Email)
			return nil, apperrors.Wrap(apperrors.CodeInternal, "hash password", err)
		}
	}

	err = d.store.Transact(ctx, func(tx adapter.Adapter) error {
		if err := tx.Create(ctx, user); err != nil {
			return err
		}
		if hash == nil {
			return nil
		}
		return tx.Create(ctx, &entity.Credential{Username: user.Username, PasswordHash: string(hash)})
	})
	if err != nil {
		d.usernames.Release(user.Username)
		d.emails.Release(user.Email)
		return nil, err
	}
	return user, nil
}

// Get returns a user by id.
func (o *UserOps) Get(ctx context.Context, userID string) (*entity.User, error) {
	if problems := validate.ValidateID(userID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindUser, userID)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.User), nil
}

// GetByUsername returns a user by its unique username.
func (o *UserOps) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	rec, err := o.dal.store.FindFirst(ctx, entity.KindUser, entity.Fields{"username": username})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindUser, username)
		}
		return nil, err
	}
	return rec.(*entity.User), nil
}

// GetByEmail returns a user by its unique email.
func (o *UserOps) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	rec, err := o.dal.store.FindFirst(ctx, entity.KindUser, entity.Fields{"email": email})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindUser, email)
		}
		return nil, err
	}
	return rec.(*entity.User), nil
}

// Update applies a partial patch. Username and email changes re-claim their
// unique keys; the old keys are released only after the write succeeds. A
// patch cannot promote a second user to instance owner.
func (o *UserOps) Update(ctx context.Context, userID string, patch entity.Fields) (*entity.User, error) {
	d := o.dal

	if problems := validate.ValidateID(userID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	if problems := validate.ValidateUserPatch(patch); len(problems) > 0 {
		return nil, validationError(problems)
	}

	current, err := o.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if wantsOwner, ok := patch["isInstanceOwner"].(bool); ok && wantsOwner && !current.IsInstanceOwner {
		existing, err := d.store.FindFirst(ctx, entity.KindUser, entity.Fields{"isInstanceOwner": true})
		if err != nil && !errors.Is(err, adapter.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			return nil, apperrors.WithMetadata(apperrors.CodeConflict,
				"instance already has an owner",
				map[string]string{"ownerId": existing.RecordID()})
		}
	}

	newUsername, usernameChanged := patchString(patch, "username", current.Username)
	if usernameChanged {
		if err := d.claimUnique(ctx, d.usernames, entity.KindUser, "username", newUsername, userID); err != nil {
			return nil, err
		}
	}
	newEmail, emailChanged := patchString(patch, "email", current.Email)
	if emailChanged {
		if err := d.claimUnique(ctx, d.emails, entity.KindUser, "email", newEmail, userID); err != nil {
			if usernameChanged {
				d.usernames.Release(newUsername)
			}
			return nil, err
		}
	}

	rec, err := d.store.Update(ctx, entity.KindUser, userID, patch)
	if err != nil {
		if usernameChanged {
			d.usernames.Release(newUsername)
		}
		if emailChanged {
			d.emails.Release(newEmail)
		}
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindUser, userID)
		}
		return nil, err
	}

	if usernameChanged {
		d.usernames.Release(current.Username)
		// The credential record keys by username, so a rename moves it.
		if err := o.renameCredential(ctx, current.Username, newUsername); err != nil {
			return nil, err
		}
	}
	if emailChanged {
		d.emails.Release(current.Email)
	}
	return rec.(*entity.User), nil
}

func (o *UserOps) renameCredential(ctx context.Context, oldUsername, newUsername string) error {
	d := o.dal
	rec, err := d.store.Read(ctx, entity.KindCredential, oldUsername)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil
		}
		return err
	}
	cred := rec.(*entity.Credential)
	return d.store.Transact(ctx, func(tx adapter.Adapter) error {
		if err := tx.Delete(ctx, entity.KindCredential, oldUsername); err != nil {
			return err
		}
		return tx.Create(ctx, &entity.Credential{Username: newUsername, PasswordHash: cred.PasswordHash})
	})
}

// Delete removes a user along with its credential and sessions.
func (o *UserOps) Delete(ctx context.Context, userID string) error {
	d := o.dal

	user, err := o.Get(ctx, userID)
	if err != nil {
		return err
	}

	sessions, err := d.store.List(ctx, entity.KindSession, adapter.ListOptions{
		Filter: entity.Fields{"userId": userID},
		Limit:  adapter.MaxLimit,
	})
	if err != nil {
		return err
	}

	err = d.store.Transact(ctx, func(tx adapter.Adapter) error {
		if err := tx.Delete(ctx, entity.KindUser, userID); err != nil {
			return err
		}
		if err := tx.Delete(ctx, entity.KindCredential, user.Username); err != nil && !errors.Is(err, adapter.ErrNotFound) {
			return err
		}
		for _, rec := range sessions.Records {
			if err := tx.Delete(ctx, entity.KindSession, rec.RecordID()); err != nil && !errors.Is(err, adapter.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.usernames.Release(user.Username)
	d.emails.Release(user.Email)
	for _, rec := range sessions.Records {
		d.tokens.Release(rec.(*entity.Session).Token)
	}
	d.lockouts.Reset(user.Username)
	return nil
}

// List returns a page of users.
func (o *UserOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.User, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindUser, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.User](res), res, nil
}

// patchString reads a string field from a patch, reporting whether it
// changes the current value.
func patchString(patch entity.Fields, field, current string) (string, bool) {
	value, ok := patch[field]
	if !ok {
		return current, false
	}
	s, ok := value.(string)
	if !ok || s == current {
		return current, false
	}
	return s, true
}
