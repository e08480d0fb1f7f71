package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("it should return nil for nil errors", func(t *testing.T) {
		assert.NoError(t, Wrap(ErrorForbidden, nil))
		assert.NoError(t, WrapNotFound(nil))
	})

	t.Run("it should keep the key and status of the template", func(t *testing.T) {
		err := WrapForbidden(fmt.Errorf("nope"))

		var ae Error
		require.True(t, stderrors.As(err, &ae))

		assert.Equal(t, "ERROR.FORBIDDEN", ae.Key)
		assert.Equal(t, http.StatusForbidden, ae.Status)
		assert.Equal(t, "nope", ae.Error())
		assert.NotEmpty(t, ae.Caller)
	})

	t.Run("it should match the template with errors.Is", func(t *testing.T) {
		err := WrapNotFound(fmt.Errorf("record not found"))

		assert.True(t, stderrors.Is(err, ErrorRecordNotFound))
		assert.False(t, stderrors.Is(err, ErrorForbidden))
	})

	t.Run("it should unwrap to the original error", func(t *testing.T) {
		base := fmt.Errorf("base")
		err := WrapUnprocessable(base)

		assert.ErrorIs(t, err, base)
	})
}

func TestWrapWithStatus(t *testing.T) {
	t.Run("it should pass keyed errors through", func(t *testing.T) {
		original := ErrorForbidden.NewError(fmt.Errorf("forbidden"))

		err := WrapWithStatus(ErrorRecordNotFound, original, http.StatusNotFound)
		assert.Equal(t, original, err)
	})
}

func TestUnwrap(t *testing.T) {
	t.Run("it should return the innermost keyed error", func(t *testing.T) {
		inner := ErrorRecordNotFound.NewError(fmt.Errorf("missing"))
		outer := ErrorGeneric.NewError(inner)

		assert.Equal(t, "ERROR.RECORD_NOT_FOUND", Unwrap(outer).Key)
	})

	t.Run("it should wrap unknown errors as generic", func(t *testing.T) {
		assert.Equal(t, "ERROR.UNKNOWN", Unwrap(fmt.Errorf("plain")).Key)
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"plain error", fmt.Errorf("plain"), http.StatusInternalServerError},
		{"not found", WrapNotFound(fmt.Errorf("x")), http.StatusNotFound},
		{"wrapped with fmt", fmt.Errorf("ctx: %w", WrapForbidden(fmt.Errorf("x"))), http.StatusForbidden},
		{"generic without status", Wrap(ErrorFatal, fmt.Errorf("x")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.err))
		})
	}
}

func TestSetData(t *testing.T) {
	err := SetData(ErrorInvalidFields.NewError(fmt.Errorf("invalid")), "email", "is taken")

	ae, ok := err.(Error)
	require.True(t, ok)
	assert.Equal(t, "is taken", ae.Data["email"])

	assert.Equal(t, fmt.Errorf("x"), SetData(fmt.Errorf("x"), "a", 1))
}
