package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/huddle/internal/apperr"
)

func TestResolveConfirmedRunsActionOnce(t *testing.T) {
	r := NewRegistry(time.Minute)
	calls := 0
	d := r.Open("u1", "Are you sure?", "The following action will remove 2 associated meetings.", func(context.Context) (any, error) {
		calls++
		return 2, nil
	})
	assert.Equal(t, StateOpen, d.State)

	out, err := r.Resolve(context.Background(), "u1", d.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, out.Dialog.State)
	assert.Equal(t, 2, out.Result)
	assert.Equal(t, 1, calls)

	_, err = r.Resolve(context.Background(), "u1", d.ID, true)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestResolveDeclinedSkipsAction(t *testing.T) {
	r := NewRegistry(time.Minute)
	d := r.Open("u1", "t", "d", func(context.Context) (any, error) {
		t.Fatal("action must not run when declined")
		return nil, nil
	})
	out, err := r.Resolve(context.Background(), "u1", d.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StateDeclined, out.Dialog.State)
	assert.Zero(t, r.Pending())
}

func TestResolveOtherUserIsNotFound(t *testing.T) {
	r := NewRegistry(time.Minute)
	d := r.Open("u1", "t", "d", nil)
	_, err := r.Resolve(context.Background(), "u2", d.ID, true)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 1, r.Pending())
}

func TestExpiredConfirmationIsNotFound(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	d := r.Open("u1", "t", "d", nil)

	now = now.Add(2 * time.Minute)
	_, err := r.Get("u1", d.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestActionErrorIsReturned(t *testing.T) {
	r := NewRegistry(time.Minute)
	boom := errors.New("boom")
	d := r.Open("u1", "t", "d", func(context.Context) (any, error) { return nil, boom })
	_, err := r.Resolve(context.Background(), "u1", d.ID, true)
	assert.ErrorIs(t, err, boom)
}
