package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrValidation        = errors.New("validation failed")
)

type NotFoundError struct {
	RequestID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("request %s not found", e.RequestID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InvalidTransitionError struct {
	RequestID string
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("request %s: no transition from %q", e.RequestID, e.From)
	}
	return fmt.Sprintf("request %s: cannot move from %q to %q", e.RequestID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type NotAuthorizedError struct {
	ActorID string
	Action  string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("user %s may not %s", e.ActorID, e.Action)
}

func (e *NotAuthorizedError) Unwrap() error { return ErrNotAuthorized }
