package generation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	CodeTimeoutExceeded ErrorCode = "timeout_exceeded"
	CodeOpenRouter      ErrorCode = "openrouter_error"
	CodeParse           ErrorCode = "parse_error"
	CodeValidation      ErrorCode = "validation_error"
	CodeUnknown         ErrorCode = "unknown_error"
)

var (
	ErrSessionNotFound = errors.New("generation session not found")
	// ErrNotInProgress is returned when a terminal write finds the session already finished.
	ErrNotInProgress = errors.New("generation session is not in progress")
)

// GenerationError tags a background failure with the code stored on the session.
type GenerationError struct {
	Code ErrorCode
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func newError(code ErrorCode, format string, args ...any) *GenerationError {
	return &GenerationError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ValidationError rejects a submission before anything is stored.
type ValidationError struct {
	Field         string
	CurrentLength int
	MaxLength     int
	Message       string
}

func (e *ValidationError) Error() string { return e.Message }

type ConcurrentGenerationError struct {
	ActiveSessionID uuid.UUID
}

func (e *ConcurrentGenerationError) Error() string {
	return fmt.Sprintf("generation %s already in progress", e.ActiveSessionID)
}
