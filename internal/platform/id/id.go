// Package id generates entity identifiers.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a canonical lowercase UUIDv4 string.
//
// Operations take this as an injectable generator so tests can pin ids.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return value.String(), nil
}
