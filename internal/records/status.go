package records

import (
	"strings"

	"github.com/antoniostano/huddle/internal/apperr"
)

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusProcessing Status = "processing"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusUpcoming,
	StatusActive,
	StatusProcessing,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus accepts any casing and rejects unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", apperr.Validation("records.parse_status", "unknown meeting status "+strings.TrimSpace(raw))
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusCompleted, StatusProcessing, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusUpcoming, StatusActive, StatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// Transitions only move forward; cancellation is only reachable from upcoming.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUpcoming:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}
