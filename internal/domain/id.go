package domain

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for request ids and metastore rows.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
