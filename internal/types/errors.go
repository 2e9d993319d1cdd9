package types

import (
	"errors"
	"fmt"
)

const (
	CodeCreation       = "CREATION_FAILED"
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION"
	CodeDisposal       = "DISPOSAL_WARNING"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeClosed         = "CLOSED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// CreationError reports a browsing context that could not be constructed or loaded.
func CreationError(url string, cause error) error {
	return &CodedError{Code: CodeCreation, Message: "create view for " + url, Cause: cause}
}

// NotFoundError reports an operation that referenced an unknown tab id.
func NotFoundError(tabID string) error {
	return &CodedError{Code: CodeNotFound, Message: "tab not found: " + tabID}
}

// HasCode reports whether err wraps a CodedError with the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
