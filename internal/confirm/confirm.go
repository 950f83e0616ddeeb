// Package confirm holds pending confirmations for destructive actions.
//
// A Dialog is opened with the warning to show and the action to run. It is
// resolved exactly once: confirming runs the action, declining discards it.
package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/huddle/internal/apperr"
)

type State string

const (
	StateOpen      State = "open"
	StateConfirmed State = "confirmed"
	StateDeclined  State = "declined"
)

// Action runs when the dialog is confirmed. Its result is returned to the
// resolver.
type Action func(ctx context.Context) (any, error)

// Dialog is the view of a pending confirmation.
type Dialog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       State     `json:"state"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Outcome is what Resolve returns.
type Outcome struct {
	Dialog Dialog `json:"dialog"`
	Result any    `json:"result,omitempty"`
}

type entry struct {
	dialog Dialog
	action Action
}

type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]entry
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Registry{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[string]entry),
	}
}

// Open registers a confirmation owned by userID.
func (r *Registry) Open(userID, title, description string, action Action) Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.gcLocked(now)
	d := Dialog{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		State:       StateOpen,
		ExpiresAt:   now.Add(r.ttl),
	}
	r.pending[d.ID] = entry{dialog: d, action: action}
	return d
}

func (r *Registry) Get(userID, id string) (Dialog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(r.now())
	e, ok := r.pending[id]
	if !ok || e.dialog.UserID != userID {
		return Dialog{}, apperr.NotFound("confirm.get", "confirmation not found")
	}
	return e.dialog, nil
}

// Resolve settles a confirmation. The dialog is removed before the action
// runs so a second Resolve with the same id is NotFound.
func (r *Registry) Resolve(ctx context.Context, userID, id string, confirmed bool) (Outcome, error) {
	const op = "confirm.resolve"
	r.mu.Lock()
	r.gcLocked(r.now())
	e, ok := r.pending[id]
	if !ok || e.dialog.UserID != userID {
		r.mu.Unlock()
		return Outcome{}, apperr.NotFound(op, "confirmation not found")
	}
	delete(r.pending, id)
	r.mu.Unlock()

	d := e.dialog
	if !confirmed {
		d.State = StateDeclined
		return Outcome{Dialog: d}, nil
	}
	d.State = StateConfirmed
	if e.action == nil {
		return Outcome{Dialog: d}, nil
	}
	res, err := e.action(ctx)
	if err != nil {
		return Outcome{Dialog: d}, err
	}
	return Outcome{Dialog: d, Result: res}, nil
}

// Pending is the number of open confirmations.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(r.now())
	return len(r.pending)
}

func (r *Registry) gcLocked(now time.Time) {
	for id, e := range r.pending {
		if !now.Before(e.dialog.ExpiresAt) {
			delete(r.pending, id)
		}
	}
}
