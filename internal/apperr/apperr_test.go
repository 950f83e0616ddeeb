package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("meetings.get", "meeting not found")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestExternalErrorMessage(t *testing.T) {
	cause := errors.New("rate limited")
	err := External("brain.complete", "openai", 429, cause)

	require.True(t, IsExternal(err))
	assert.Contains(t, err.Error(), "openai status 429")
	assert.Contains(t, err.Error(), "brain.complete")
	assert.ErrorIs(t, err, cause)
}

func TestPlaybackIsDistinct(t *testing.T) {
	err := Playback("call.play", errors.New("autoplay blocked"))
	assert.True(t, IsPlayback(err))
	assert.False(t, IsExternal(err))
}
