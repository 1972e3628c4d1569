// Package scope carries the tenant context that namespaces key-value and
// blob access.
package scope

import (
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// Context identifies the tenant (and optionally the acting user) for a
// scoped operation.
type Context struct {
	TenantID string
	UserID   string
}

// Validate rejects a context without a tenant.
func (c Context) Validate() error {
	if c.TenantID == "" {
		return apperrors.New(apperrors.CodeValidation, "tenant id is required")
	}
	return nil
}

// Key namespaces a caller key under the tenant.
func (c Context) Key(key string) string {
	return c.TenantID + ":" + key
}
