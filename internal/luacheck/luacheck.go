// Package luacheck performs compile-only syntax validation of Lua source.
// Scripts are loaded into a throwaway interpreter state but never executed.
package luacheck

import (
	"strings"

	lua "github.com/Shopify/go-lua"

	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// Check compiles code and returns a validation error describing the first
// syntax problem. Valid code returns nil.
func Check(code string) error {
	if strings.TrimSpace(code) == "" {
		return apperrors.New(apperrors.CodeValidation, "lua code cannot be empty")
	}

	state := lua.NewState()
	if err := lua.LoadString(state, code); err != nil {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			"lua syntax error",
			map[string]string{"detail": err.Error()})
	}
	return nil
}
