package admin

import "errors"

var (
	ErrInvalidRange         = errors.New("invalid slot range")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrInvalidID            = errors.New("invalid slot id")
)
