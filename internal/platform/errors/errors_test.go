package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeNotFound, "page missing")
	if !errors.Is(err, New(CodeNotFound, "other message")) {
		t.Fatal("expected code match")
	}
	if errors.Is(err, New(CodeConflict, "page missing")) {
		t.Fatal("expected code mismatch")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, "write record", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(CodeConflict, "dup")); got != CodeConflict {
		t.Fatalf("unexpected code: %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", New(CodeValidation, "bad input"))
	if got := CodeOf(wrapped); got != CodeValidation {
		t.Fatalf("unexpected code through chain: %s", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal for foreign errors, got %s", got)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	cases := map[Code]codes.Code{
		CodeValidation:   codes.InvalidArgument,
		CodeNotFound:     codes.NotFound,
		CodeConflict:     codes.AlreadyExists,
		CodeUnauthorized: codes.PermissionDenied,
		CodeInternal:     codes.Internal,
	}
	for code, want := range cases {
		if got := code.GRPCCode(); got != want {
			t.Fatalf("code %s: got %s want %s", code, got, want)
		}
	}
}

func TestToGRPCStatus(t *testing.T) {
	err := WithMetadata(CodeConflict, "username taken", map[string]string{"field": "username"})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.AlreadyExists {
		t.Fatalf("unexpected grpc code: %s", st.Code())
	}
	if st.Message() != "username taken" {
		t.Fatalf("unexpected message: %s", st.Message())
	}
}
