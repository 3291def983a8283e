package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// KeyringSlot provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringSlot struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringSlot implements Slot
var _ Slot = (*KeyringSlot)(nil)

// NewKeyringSlot creates a KeyringSlot for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringSlot(service, user string) (*KeyringSlot, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringSlot{
		service: service,
		user:    user,
	}, nil
}

// Get returns the value from the system keyring.
func (k *KeyringSlot) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return []byte(secret), nil
}

// Set persists the value to the system keyring, overwriting any existing value.
func (k *KeyringSlot) Set(ctx context.Context, data []byte, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, k.user, string(data))
}

// Delete removes the keyring entry if present.
func (k *KeyringSlot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
