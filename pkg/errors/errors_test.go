package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(sql.ErrConnDone)
	require.NotNil(t, err)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestCloneKeepsCode(t *testing.T) {
	clone := Clone(ErrConflict, "reward already requested")
	assert.Equal(t, ErrConflict.Code, clone.Code)
	assert.Equal(t, http.StatusConflict, clone.Status)
	assert.Equal(t, "reward already requested", clone.Message)
	assert.Equal(t, "conflict", ErrConflict.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", Clone(ErrNotEligible, "login streak too short"))
	assert.True(t, Is(wrapped, ErrNotEligible))
	assert.False(t, Is(wrapped, ErrConflict))
	assert.False(t, Is(nil, ErrConflict))
}

func TestWrapAsKeepsCause(t *testing.T) {
	err := WrapAs(sql.ErrNoRows, ErrNotFound, "reward request not found")
	assert.Equal(t, ErrNotFound.Code, err.Code)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	defaulted := WrapAs(sql.ErrConnDone, ErrInternal, "")
	assert.Equal(t, ErrInternal.Message, defaulted.Message)
}

func TestIsAny(t *testing.T) {
	err := Clone(ErrEventInactive, "event ended")
	assert.True(t, IsAny(err, ErrValidation, ErrEventInactive))
	assert.False(t, IsAny(err, ErrValidation, ErrNotFound))
	assert.False(t, IsAny(err))
}
