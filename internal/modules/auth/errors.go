package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSessionNotIssued   = errors.New("session not issued")
)
