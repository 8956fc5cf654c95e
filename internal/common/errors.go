package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Extraction pipeline errors. Each one is recovered at the boundary of the
// component that raises it.
var (
	ErrUnsupportedDocumentType = errors.New("unsupported document type")
	ErrTextExtraction          = errors.New("text extraction failed")
	ErrOCRUnavailable          = errors.New("ocr unavailable")
	ErrCompletionFailure       = errors.New("completion failed")
	ErrMalformedJSON           = errors.New("malformed json")
)

// Error codes carried by AppError.
const (
	CodeConfig      = "CONFIG_ERROR"
	CodeUnsupported = "UNSUPPORTED_DOCUMENT_TYPE"
	CodeExtraction  = "TEXT_EXTRACTION_FAILURE"
	CodeOCR         = "OCR_UNAVAILABLE"
	CodeCompletion  = "COMPLETION_FAILURE"
	CodeMalformed   = "MALFORMED_JSON"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

func UnavailableError(message string) error {
	return status.Error(codes.Unavailable, message)
}

func DeadlineExceededError(message string) error {
	return status.Error(codes.DeadlineExceeded, message)
}
