package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeGenerationFailed = "GENERATION_FAILED"
)

// Validation errors
var (
	ErrInvalidChatInput     = NewDomainError(ErrCodeValidation, "message must be a non-empty string")
	ErrInvalidRating        = NewDomainError(ErrCodeValidation, "rating must be 'up' or 'down'")
	ErrMissingSessionID     = NewDomainError(ErrCodeValidation, "sessionId is required")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrChatLogNotFound = NewDomainError(ErrCodeNotFound, "no chat log entry found for session")
	ErrSnippetNotFound = NewDomainError(ErrCodeNotFound, "knowledge snippet not found")
)

// Already exists errors
var (
	ErrFeedbackAlreadyRecorded = NewDomainError(ErrCodeAlreadyExists, "feedback already recorded for this message")
)

// Authorization errors
var (
	ErrInvalidAdminToken = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
)

// GenerationError reports a failed language-model call. The cause is kept
// for internal logs and never shown to chat callers.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err as a GenerationError.
func NewGenerationError(err error) *GenerationError {
	return &GenerationError{Err: err}
}
