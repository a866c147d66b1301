package sources

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Failure class wrapping ---.

func TestTransientWrapsAndPreservesChain(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	err := Transient(base)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPermanentWrapsAndPreservesChain(t *testing.T) {
	t.Parallel()

	base := errors.New("401 unauthorized")
	err := Permanent(base)

	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, base)
}

func TestNotFoundWrapsAndPreservesChain(t *testing.T) {
	t.Parallel()

	base := errors.New("http 404")
	err := NotFound(base)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, base)
}

func TestWrappingNilReturnsNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
	assert.NoError(t, NotFound(nil))
}

func TestWrappingIsIdempotent(t *testing.T) {
	t.Parallel()

	err := Transient(fmt.Errorf("fetch: %w", ErrTransient))

	// Already classified errors pass through unchanged.
	assert.Equal(t, "fetch: "+ErrTransient.Error(), err.Error())
}

func TestClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not_found", NotFound(errors.New("gone")), true},
		{"transient", Transient(errors.New("reset")), true},
		{"permanent", Permanent(errors.New("forbidden")), true},
		{"budget", fmt.Errorf("halt: %w", ErrBudgetExhausted), true},
		{"unclassified", errors.New("mystery"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Classified(tt.err))
		})
	}
}
