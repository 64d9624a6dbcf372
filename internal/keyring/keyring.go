package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/studyplanner/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored under the key
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Get retrieves the secret stored under key for this application.
func Get(key string) (string, error) {
	value, err := keyring.Get(constants.AppName, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func Set(key, value string) error {
	if value == "" {
		return errors.New("keyring value cannot be empty")
	}
	if err := keyring.Set(constants.AppName, key, value); err != nil {
		return fmt.Errorf("failed to store secret in keyring: %w", err)
	}
	return nil
}

// Delete removes the secret stored under key.
func Delete(key string) error {
	if err := keyring.Delete(constants.AppName, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete secret from keyring: %w", err)
	}
	return nil
}

// GetConnectionString retrieves the PostgreSQL connection string used when the
// configured store is the bare "postgres" keyword.
func GetConnectionString() (string, error) {
	return Get(constants.DefaultKeyringUser)
}

// SetConnectionString stores the PostgreSQL connection string.
func SetConnectionString(connStr string) error {
	return Set(constants.DefaultKeyringUser, connStr)
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// DeleteConnectionString removes the stored PostgreSQL connection string.
func DeleteConnectionString() error {
	return Delete(constants.DefaultKeyringUser)
}
