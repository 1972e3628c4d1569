// Package errors provides structured error handling for the data layer.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code. The set is closed: every error the
// data layer surfaces carries exactly one of these.
type Code string

const (
	// CodeValidation indicates input failed a validator check.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeNotFound indicates a requested id or secondary key is absent.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates a uniqueness violation (duplicate username,
	// email, token, slug, package id, or pending transfer pair).
	CodeConflict Code = "CONFLICT"

	// CodeUnauthorized indicates the caller lacks the role the operation
	// requires.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeInternal indicates a backend-level failure.
	CodeInternal Code = "INTERNAL"
)

// GRPCCode maps domain codes to gRPC status codes for the route boundary.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeConflict:
		return codes.AlreadyExists
	case CodeUnauthorized:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}
