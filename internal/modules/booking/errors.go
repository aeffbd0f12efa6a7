package booking

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrNoSelection  = errors.New("no slot selected")
	ErrSlotBooked   = errors.New("slot is already booked")
	ErrSubmitting   = errors.New("a booking is already being submitted")
	ErrCancelled    = errors.New("booking was cancelled")
	ErrSlotNotFound = errors.New("slot not found")
)
