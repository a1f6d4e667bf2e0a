package domain

import "errors"

// Progress validation errors
var (
	ErrInvalidTimestamp = errors.New("invalid date format provided")
)
