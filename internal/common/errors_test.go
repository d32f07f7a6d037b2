package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	errs := []error{
		ErrNotFound,
		ErrInvalidPath,
		ErrInvalidConfig,
		ErrAuthExpired,
		ErrUnreachable,
		ErrDeliveryFailed,
		ErrStore,
	}

	t.Run("all errors are non-nil", func(t *testing.T) {
		t.Parallel()
		for i, err := range errs {
			require.NotNil(t, err, "error at index %d should not be nil", i)
		}
	})

	t.Run("all error messages are unique", func(t *testing.T) {
		t.Parallel()
		seen := make(map[string]bool)
		for _, err := range errs {
			msg := err.Error()
			assert.False(t, seen[msg], "duplicate error message: %s", msg)
			seen[msg] = true
		}
	})
}

func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	t.Run("single wrap", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("list courses/A: %w", ErrUnreachable)
		assert.True(t, errors.Is(wrapped, ErrUnreachable))
		assert.False(t, errors.Is(wrapped, ErrAuthExpired))
	})

	t.Run("auth escalation carries both", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("%w: %w", ErrUnreachable, ErrAuthExpired)
		assert.True(t, errors.Is(wrapped, ErrUnreachable))
		assert.True(t, errors.Is(wrapped, ErrAuthExpired))
	})

	t.Run("double wrap", func(t *testing.T) {
		t.Parallel()
		inner := fmt.Errorf("upsert: %w", ErrStore)
		outer := fmt.Errorf("dispatch: %w", inner)
		assert.True(t, errors.Is(outer, ErrStore))
		assert.Contains(t, outer.Error(), "store error")
	})
}
