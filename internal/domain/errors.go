package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMalformedAccount  = errors.New("malformed account")
	ErrTransport         = errors.New("transport failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid action transition")
	ErrLockHeld          = errors.New("lock already held")
)
