package uniqueindex

import (
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestClaimAndConflict(t *testing.T) {
	idx := New("username")

	if err := idx.Claim("alice", "u1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := idx.Claim("alice", "u1"); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	err := idx.Claim("alice", "u2")
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReleaseFreesKey(t *testing.T) {
	idx := New("email")

	if err := idx.Claim("a@example.com", "u1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	idx.Release("a@example.com")
	if err := idx.Claim("a@example.com", "u2"); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	idx.Release("never-claimed")
}

func TestLookup(t *testing.T) {
	idx := New("slug")
	if _, ok := idx.Lookup("home"); ok {
		t.Fatal("lookup on empty index should miss")
	}
	if err := idx.Claim("home", "p1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	id, ok := idx.Lookup("home")
	if !ok || id != "p1" {
		t.Fatalf("unexpected lookup result: %q %v", id, ok)
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	idx := New("token")

	var wg sync.WaitGroup
	winners := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", n)
			if err := idx.Claim("tok", id); err == nil {
				winners <- id
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	var count int
	for range winners {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestResetDropsClaims(t *testing.T) {
	idx := New("username")
	if err := idx.Claim("alice", "u1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	idx.Reset()
	if err := idx.Claim("alice", "u2"); err != nil {
		t.Fatalf("claim after reset: %v", err)
	}
}
