package models

import "github.com/google/uuid"

// NewID returns a fresh random identifier for any Mission Control entity.
func NewID() string {
	return uuid.New().String()
}
