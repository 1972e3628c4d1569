package ops

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// SessionOps manages authenticated sessions. Sessions carry an opaque random
// token and expire after the configured TTL; expiry is enforced at read time
// and by the explicit sweep.
type SessionOps struct {
	dal *DAL
}

// CreateSessionInput is the shape accepted by Create.
type CreateSessionInput struct {
	UserID    string
	IPAddress string
	UserAgent string
}

func mintToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Create opens a session for an existing user.
func (o *SessionOps) Create(ctx context.Context, input CreateSessionInput) (*entity.Session, error) {
	d := o.dal

	if _, err := d.Users.Get(ctx, input.UserID); err != nil {
		return nil, err
	}

	sessionID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate session id", err)
	}
	token, err := mintToken()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate session token", err)
	}

	now := d.clock()
	session := &entity.Session{
		ID:           sessionID,
		UserID:       input.UserID,
		Token:        token,
		ExpiresAt:    now.Add(d.sessionTTL),
		CreatedAt:    now,
		LastActivity: now,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	}
	if problems := validate.ValidateSession(session); len(problems) > 0 {
		return nil, validationError(problems)
	}

	if err := d.claimUnique(ctx, d.tokens, entity.KindSession, "token", token, sessionID); err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, session); err != nil {
		d.tokens.Release(token)
		return nil, err
	}
	return session, nil
}

// Get returns a session by id. Expired sessions are removed and reported as
// missing.
func (o *SessionOps) Get(ctx context.Context, sessionID string) (*entity.Session, error) {
	if problems := validate.ValidateID(sessionID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := o.dal.read(ctx, entity.KindSession, sessionID)
	if err != nil {
		return nil, err
	}
	return o.liveOrExpire(ctx, rec.(*entity.Session))
}

// GetByToken resolves a session from its opaque token.
func (o *SessionOps) GetByToken(ctx context.Context, token string) (*entity.Session, error) {
	if token == "" {
		return nil, validationError([]string{"token cannot be empty"})
	}
	rec, err := o.dal.store.FindFirst(ctx, entity.KindSession, entity.Fields{"token": token})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindSession, "by token")
		}
		return nil, err
	}
	return o.liveOrExpire(ctx, rec.(*entity.Session))
}

func (o *SessionOps) liveOrExpire(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	d := o.dal
	if d.clock().Before(session.ExpiresAt) {
		return session, nil
	}
	if err := d.store.Delete(ctx, entity.KindSession, session.ID); err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return nil, err
	}
	d.tokens.Release(session.Token)
	return nil, notFound(entity.KindSession, session.ID)
}

// Touch records activity and slides the expiry window forward.
func (o *SessionOps) Touch(ctx context.Context, sessionID string) (*entity.Session, error) {
	d := o.dal

	session, err := o.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := d.clock()
	rec, err := d.store.Update(ctx, entity.KindSession, session.ID, entity.Fields{
		"lastActivity": now,
		"expiresAt":    now.Add(d.sessionTTL),
	})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindSession, sessionID)
		}
		return nil, err
	}
	return rec.(*entity.Session), nil
}

// Delete ends a session.
func (o *SessionOps) Delete(ctx context.Context, sessionID string) error {
	d := o.dal

	rec, err := d.store.Read(ctx, entity.KindSession, sessionID)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return notFound(entity.KindSession, sessionID)
		}
		return err
	}
	if err := d.store.Delete(ctx, entity.KindSession, sessionID); err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return notFound(entity.KindSession, sessionID)
		}
		return err
	}
	d.tokens.Release(rec.(*entity.Session).Token)
	return nil
}

// DeleteForUser ends every session of a user and returns how many were
// removed.
func (o *SessionOps) DeleteForUser(ctx context.Context, userID string) (int, error) {
	d := o.dal

	res, err := d.store.List(ctx, entity.KindSession, adapter.ListOptions{
		Filter: entity.Fields{"userId": userID},
		Limit:  adapter.MaxLimit,
	})
	if err != nil {
		return 0, err
	}

	var removed int
	for _, rec := range res.Records {
		session := rec.(*entity.Session)
		if err := d.store.Delete(ctx, entity.KindSession, session.ID); err != nil {
			if errors.Is(err, adapter.ErrNotFound) {
				continue
			}
			return removed, err
		}
		d.tokens.Release(session.Token)
		removed++
	}
	return removed, nil
}

// Sweep removes every expired session and returns how many were removed.
// Running it twice in a row is harmless.
func (o *SessionOps) Sweep(ctx context.Context) (int, error) {
	d := o.dal
	now := d.clock()

	// Gather first, delete after: removing rows mid-pagination would shift
	// later pages under the cursor.
	var expired []*entity.Session
	for page := 1; ; page++ {
		res, err := d.store.List(ctx, entity.KindSession, adapter.ListOptions{Page: page, Limit: adapter.MaxLimit})
		if err != nil {
			return 0, err
		}
		for _, rec := range res.Records {
			session := rec.(*entity.Session)
			if !now.Before(session.ExpiresAt) {
				expired = append(expired, session)
			}
		}
		if !res.HasMore {
			break
		}
	}

	var removed int
	for _, session := range expired {
		if err := d.store.Delete(ctx, entity.KindSession, session.ID); err != nil {
			if errors.Is(err, adapter.ErrNotFound) {
				continue
			}
			return removed, err
		}
		d.tokens.Release(session.Token)
		removed++
	}
	return removed, nil
}
