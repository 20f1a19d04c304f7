package common

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes of the conversion taxonomy. Every failure that leaves the
// pipeline carries exactly one of these.
const (
	CodeParsing    = "PARSING_ERROR"
	CodeLLM        = "LLM_ERROR"
	CodeExtraction = "EXTRACTION_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeConfig     = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string

	// Diagnostic detail; which fields are set depends on Code.
	Field   string   // offending field (validation)
	Value   string   // offending value (validation)
	Missing []string // absent required fields (extraction)
	Raw     string   // raw backend reply (extraction)

	Cause error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s, value %q)", msg, e.Field, e.Value)
	}
	if len(e.Missing) > 0 {
		msg = fmt.Sprintf("%s (missing %s)", msg, strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches kind sentinels: errors.Is(err, common.ErrLLM).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Kind sentinels; compare with errors.Is.
var (
	ErrParsing    = &AppError{Code: CodeParsing}
	ErrLLM        = &AppError{Code: CodeLLM}
	ErrExtraction = &AppError{Code: CodeExtraction}
	ErrValidation = &AppError{Code: CodeValidation}
)

// Common application errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInputTooLarge = errors.New("input too large")
	ErrDatabase      = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewParsingError(message string, cause error) *AppError {
	return NewAppError(CodeParsing, message, cause)
}

func NewLLMError(message string, cause error) *AppError {
	return NewAppError(CodeLLM, message, cause)
}

// NewExtractionError keeps the raw reply so the transport can log it.
func NewExtractionError(message, raw string, missing []string, cause error) *AppError {
	return &AppError{
		Code:    CodeExtraction,
		Message: message,
		Missing: missing,
		Raw:     raw,
		Cause:   cause,
	}
}

func NewValidationError(field, value, message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsConversionError reports whether err belongs to the four conversion kinds.
func IsConversionError(err error) bool {
	ae, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch ae.Code {
	case CodeParsing, CodeLLM, CodeExtraction, CodeValidation:
		return true
	}
	return false
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

// GRPCStatus maps a conversion error to a short, user-safe gRPC status.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	ae, ok := AsAppError(err)
	if !ok {
		return InternalError("conversion failed")
	}
	switch {
	case errors.Is(err, ErrInputTooLarge):
		return status.Error(codes.ResourceExhausted, ae.Message)
	case ae.Code == CodeLLM:
		return status.Error(codes.Unavailable, ae.Message)
	case ae.Code == CodeParsing, ae.Code == CodeExtraction, ae.Code == CodeValidation:
		return InvalidArgumentError(ae.Message)
	}
	return InternalError(ae.Message)
}
