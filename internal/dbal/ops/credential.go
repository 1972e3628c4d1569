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

// dummyHash is compared against when the username has no credential, so
// verification takes the same time whether or not the account exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// CredentialOps manages password credentials. Credentials key by username
// and never leave this package unhashed.
type CredentialOps struct {
	dal *DAL
}

// Set stores or replaces the password for a username.
func (o *CredentialOps) Set(ctx context.Context, username, password string) error {
	d := o.dal

	if !validate.IsValidUsername(username) {
		return validationError([]string{"username must be 3-50 characters of letters, digits, underscore or hyphen"})
	}
	if password == "" {
		return validationError([]string{"password cannot be empty"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "hash password", err)
	}
	cred := &entity.Credential{Username: username, PasswordHash: string(hash)}

	_, err = d.store.Read(ctx, entity.KindCredential, username)
	switch {
	case err == nil:
		_, err = d.store.Update(ctx, entity.KindCredential, username, entity.Fields{"passwordHash": cred.PasswordHash})
		return err
	case errors.Is(err, adapter.ErrNotFound):
		return d.store.Create(ctx, cred)
	default:
		return err
	}
}

// Verify checks a password against the stored hash. A missing credential
// reports false without error; the caller decides how to respond.
func (o *CredentialOps) Verify(ctx context.Context, username, password string) (bool, error) {
	rec, err := o.dal.store.Read(ctx, entity.KindCredential, username)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return false, nil
		}
		return false, err
	}
	cred := rec.(*entity.Credential)
	return bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) == nil, nil
}

// Delete removes the credential for a username.
func (o *CredentialOps) Delete(ctx context.Context, username string) error {
	err := o.dal.store.Delete(ctx, entity.KindCredential, username)
	if errors.Is(err, adapter.ErrNotFound) {
		return notFound(entity.KindCredential, username)
	}
	return err
}

// Authenticate verifies a login attempt under the lockout policy and returns
// the matching user. Every failure path reports the same unauthorized error
// so callers cannot probe which accounts exist.
func (o *CredentialOps) Authenticate(ctx context.Context, username, password string) (*entity.User, error) {
	d := o.dal

	if d.lockouts.IsLocked(username) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "account temporarily locked")
	}

	ok, err := o.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		if d.lockouts.RecordFailure(username) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "account temporarily locked")
		}
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid credentials")
	}

	d.lockouts.Reset(username)
	user, err := d.Users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	return user, nil
}
