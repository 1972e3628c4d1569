package luacheck

import (
	"testing"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func TestCheckAcceptsValidLua(t *testing.T) {
	valid := []string{
		"return 1 + 1",
		"local x = 10\nprint(x)",
		"function greet(name) return 'hello ' .. name end",
		"for i = 1, 10 do print(i) end",
	}
	for _, code := range valid {
		if err := Check(code); err != nil {
			t.Errorf("Check(%q) = %v, want nil", code, err)
		}
	}
}

func TestCheckRejectsBrokenLua(t *testing.T) {
	broken := []string{
		"function broken(",
		"if x then",
		"local = 5",
		"return 1 +",
	}
	for _, code := range broken {
		err := Check(code)
		if apperrors.CodeOf(err) != apperrors.CodeValidation {
			t.Errorf("Check(%q) = %v, want validation error", code, err)
		}
	}
}

func TestCheckRejectsEmptyCode(t *testing.T) {
	for _, code := range []string{"", "   ", "\n\t"} {
		err := Check(code)
		if apperrors.CodeOf(err) != apperrors.CodeValidation {
			t.Errorf("Check(%q) = %v, want validation error", code, err)
		}
	}
}

func TestCheckDoesNotExecute(t *testing.T) {
	// Loading must not run top-level statements.
	if err := Check(`error("should never run")`); err != nil {
		t.Fatalf("compile-only check executed the script: %v", err)
	}
}
