package credstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Slot.Get when the key holds no value.
var ErrNotFound = errors.New("credential not found")

// Slot reads and writes one opaque value in durable storage.
type Slot interface {
	// Get returns the stored value. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context) ([]byte, error)

	// Set persists the value, overwriting any existing one. Backends that
	// support expiry may drop the value after expiresAt.
	Set(ctx context.Context, data []byte, expiresAt time.Time) error

	// Delete removes the value. Deleting an absent key is not an error.
	Delete(ctx context.Context) error
}
