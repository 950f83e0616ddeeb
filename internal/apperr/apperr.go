// Package apperr defines the error taxonomy shared by every huddle package.
//
// Errors carry a Kind so transport layers can map them without string matching:
//
//	if apperr.IsNotFound(err) {
//	    // 404
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation to the caller.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindExternalService Kind = "external_service"
	KindPlayback        Kind = "playback"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

// Error is a classified error. Op names the operation that failed
// (e.g. "meetings.update"); Service names the upstream for external failures.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Service string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Service != "" && e.Status > 0 {
		msg = fmt.Sprintf("%s (%s status %d)", msg, e.Service, e.Status)
	} else if e.Service != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Service)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation reports invalid caller input.
func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// NotFound is returned for absent rows and rows owned by someone else alike.
func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func InvalidState(op, message string) error {
	return &Error{Kind: KindInvalidState, Op: op, Message: message}
}

// External wraps a failure of an upstream service (LLM, TTS, STT, transport, finalization).
func External(op, service string, status int, err error) error {
	return &Error{Kind: KindExternalService, Op: op, Message: "upstream request failed", Service: service, Status: status, Err: err}
}

func Playback(op string, err error) error {
	return &Error{Kind: KindPlayback, Op: op, Message: "audio playback failed", Err: err}
}

func Unauthorized(op string) error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: "sign in required"}
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
func IsExternal(err error) bool     { return KindOf(err) == KindExternalService }
func IsPlayback(err error) bool     { return KindOf(err) == KindPlayback }
