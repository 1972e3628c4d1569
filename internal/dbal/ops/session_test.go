package ops

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestCreateSession(t *testing.T) {
	dal, clock := newTestDAL(WithSessionTTL(time.Hour))
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	session, err := dal.Sessions.Create(ctx, CreateSessionInput{
		UserID:    user.ID,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Token == "" || len(session.Token) < 40 {
		t.Fatalf("unexpected token: %q", session.Token)
	}
	if !session.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", session.ExpiresAt)
	}
	if session.IPAddress != "203.0.113.7" || session.UserAgent != "test-agent" {
		t.Fatalf("client info lost: %+v", session)
	}
}

func TestCreateSessionRequiresUser(t *testing.T) {
	dal, _ := newTestDAL()
	_, err := dal.Sessions.Create(context.Background(), CreateSessionInput{
		UserID: "00000000-0000-4000-8000-000000000099",
	})
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetSessionByToken(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	session, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved, err := dal.Sessions.GetByToken(ctx, session.Token)
	if err != nil || resolved.ID != session.ID {
		t.Fatalf("resolve by token: %v %v", resolved, err)
	}
	if _, err := dal.Sessions.GetByToken(ctx, "bogus"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	dal, clock := newTestDAL(WithSessionTTL(time.Hour))
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	session, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := dal.Sessions.Get(ctx, session.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected expired session to be missing, got %v", err)
	}
	if _, err := dal.Sessions.GetByToken(ctx, session.Token); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected expired token to be missing, got %v", err)
	}
}

func TestTouchSlidesExpiry(t *testing.T) {
	dal, clock := newTestDAL(WithSessionTTL(time.Hour))
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	session, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(30 * time.Minute)
	touched, err := dal.Sessions.Touch(ctx, session.ID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !touched.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expiry did not slide: %v", touched.ExpiresAt)
	}
	if !touched.LastActivity.Equal(clock.Now()) {
		t.Fatalf("lastActivity not updated: %v", touched.LastActivity)
	}

	// 90 minutes after creation the touched session is still live.
	clock.Advance(45 * time.Minute)
	if _, err := dal.Sessions.Get(ctx, session.ID); err != nil {
		t.Fatalf("touched session expired early: %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	session, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := dal.Sessions.Delete(ctx, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := dal.Sessions.Delete(ctx, session.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteForUser(t *testing.T) {
	dal, _ := newTestDAL()
	ctx := context.Background()

	alice := seedUser(t, dal, "alice", "pw")
	bob := seedUser(t, dal, "bob", "pw")
	for i := 0; i < 3; i++ {
		if _, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: alice.ID}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	bobSession, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: bob.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := dal.Sessions.DeleteForUser(ctx, alice.ID)
	if err != nil || removed != 3 {
		t.Fatalf("delete for user = %d, %v", removed, err)
	}
	if _, err := dal.Sessions.Get(ctx, bobSession.ID); err != nil {
		t.Fatalf("unrelated session removed: %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	dal, clock := newTestDAL(WithSessionTTL(time.Hour))
	ctx := context.Background()

	user := seedUser(t, dal, "alice", "pw")
	if _, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID}); err != nil {
		t.Fatalf("create old: %v", err)
	}
	clock.Advance(30 * time.Minute)
	fresh, err := dal.Sessions.Create(ctx, CreateSessionInput{UserID: user.ID})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	clock.Advance(45 * time.Minute)
	removed, err := dal.Sessions.Sweep(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("sweep = %d, %v", removed, err)
	}
	if _, err := dal.Sessions.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("live session swept: %v", err)
	}

	removed, err = dal.Sessions.Sweep(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("second sweep = %d, %v", removed, err)
	}
}
