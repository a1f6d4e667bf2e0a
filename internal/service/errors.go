package service

import "errors"

// Journal errors. Each maps to one HTTP status at the boundary.
var (
	ErrJournalNotFound    = errors.New("journal not found")
	ErrUnauthorized       = errors.New("sign in to save journal responses")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrPersistenceFailure = errors.New("failed to save journal progress")
)

// Session errors
var (
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)
