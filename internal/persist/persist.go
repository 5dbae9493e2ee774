// Package persist is the key-value port behind per-route filter storage.
package persist

import (
	"errors"
	"fmt"
)

// ErrUnknownDriver is returned by Open for an unsupported backend name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is a string key-value store scoped to one console session.
type Store interface {
	// Get returns the stored value; ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Close() error
}

// Drivers lists the backend names accepted by Open.
var Drivers = []string{"memory", "file", "sqlite"}

// Open constructs the named backend. path is ignored by the memory driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
