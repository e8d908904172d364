package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnsupportedFile indicates an upload with a file type the service does not accept
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrUnavailable indicates the answer service could not be reached
	ErrUnavailable = errors.New("answer service unavailable")
)
