package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbHelper struct{ name string }

func TestRegistry(t *testing.T) {
	tu := New()

	require.NoError(t, tu.Register("db", &dbHelper{name: "primary"}))
	assert.ErrorIs(t, tu.Register("db", &dbHelper{}), ErrHelperExists)

	h, err := Helper[*dbHelper](tu, "db")
	require.NoError(t, err)
	assert.Equal(t, "primary", h.name)

	_, err = Helper[*dbHelper](tu, "cache")
	assert.ErrorIs(t, err, ErrHelperNotFound)

	_, err = Helper[string](tu, "db")
	assert.ErrorIs(t, err, ErrHelperType)
}

func TestChain(t *testing.T) {
	var order []int

	cleanup := Chain(
		func() error { order = append(order, 1); return nil },
		nil,
		func() error { order = append(order, 2); return fmt.Errorf("second") },
		Noop,
	)

	err := cleanup()
	assert.EqualError(t, err, "second")
	assert.Equal(t, []int{2, 1}, order)
}
