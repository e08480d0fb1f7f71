package testutils

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrHelperExists   = errors.New("test helper already registered")
	ErrHelperNotFound = errors.New("test helper is not registered")
	ErrHelperType     = errors.New("test helper has an unexpected type")
)

// Cleanup undoes what a helper did, helpers return one so tests can defer it
type Cleanup func() error

// Noop is a Cleanup with nothing to undo
func Noop() error { return nil }

// TestUtils is the registry of helpers providers expose to test suites
// (IE: lucid registers "db" with migrate, truncate and seed helpers)
type TestUtils struct {
	mu      sync.RWMutex
	helpers map[string]any
}

func New() *TestUtils {
	return &TestUtils{helpers: make(map[string]any)}
}

func (tu *TestUtils) Register(name string, helper any) error {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if _, exists := tu.helpers[name]; exists {
		return fmt.Errorf("%w: %s", ErrHelperExists, name)
	}

	tu.helpers[name] = helper
	return nil
}

func (tu *TestUtils) Get(name string) (any, bool) {
	tu.mu.RLock()
	defer tu.mu.RUnlock()

	h, ok := tu.helpers[name]
	return h, ok
}

// Helper returns a typed helper
//
//	db, err := testutils.Helper[*lucid.DBTestUtils](app.TestUtils(), "db")
func Helper[T any](tu *TestUtils, name string) (T, error) {
	var zero T

	h, ok := tu.Get(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrHelperNotFound, name)
	}

	t, ok := h.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrHelperType, name, h)
	}

	return t, nil
}

// Chain runs cleanups in reverse order joining the errors
func Chain(cleanups ...Cleanup) Cleanup {
	return func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cleanups[i] == nil {
				continue
			}
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
