package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used to tag runs.
func NewID() string {
	return uuid.NewString()
}
