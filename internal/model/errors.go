package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrUnknownCollection wraps ErrValidation so callers treat it as a malformed request.
	ErrUnknownCollection = wrapValidation("unknown collection")
)

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

func wrapValidation(msg string) error { return &validationError{msg: msg} }
