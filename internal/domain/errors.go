package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNoSession        = errors.New("no current user in session")
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrEmptyMessage     = errors.New("message must carry a body, image or doc")
	ErrInvalidInput     = errors.New("invalid input")
)
