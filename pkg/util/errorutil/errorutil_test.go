package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicates_MatchWrappedErrors(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewRateLimitError("github", nil))

	assert.True(t, IsRateLimit(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsNetwork(err))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewTimeoutError("slow", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(NewNetworkError("refused", errors.New("dial tcp"))))
}

func TestToDomainError(t *testing.T) {
	t.Run("passes domain errors through", func(t *testing.T) {
		original := NewValidationError("bad id", map[string]any{"id": "x"})
		de := ToDomainError(original)
		require.NotNil(t, de)
		assert.Equal(t, CodeValidation, de.Code)
		assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	})

	t.Run("deadline becomes a network timeout", func(t *testing.T) {
		de := ToDomainError(context.DeadlineExceeded)
		assert.Equal(t, CodeNetwork, de.Code)
		assert.Equal(t, http.StatusGatewayTimeout, de.HTTPStatus)
	})

	t.Run("unknown errors are internal", func(t *testing.T) {
		de := ToDomainError(errors.New("boom"))
		assert.Equal(t, CodeInternal, de.Code)
		assert.Equal(t, "internal server error: boom", de.Error())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
	})
}
