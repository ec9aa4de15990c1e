package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrMissingRequirements    = errors.New("requirements missing")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrAIConfigMissing        = errors.New("AI configuration not found")
	ErrCredentialsKeyMismatch = errors.New("AI credentials were encrypted with a different key")
)
