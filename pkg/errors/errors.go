package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the failure classes of an acquisition or crop run
type ErrorType string

const (
	ErrorTypeFetch         ErrorType = "fetch"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypeAlreadyExists ErrorType = "already_exists"
	ErrorTypeNoContent     ErrorType = "no_content"
	ErrorTypeLayout        ErrorType = "layout"
	ErrorTypeExtract       ErrorType = "extract"
)

// Error carries the failure class plus whatever location information is known
type Error struct {
	Type    ErrorType
	Message string
	// URL is set for fetch and parse errors
	URL string
	// Path is set for filesystem related errors
	Path string
	// Code is the HTTP status code, 0 for network failures
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Type, e.Message)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s error (status %d): %s", e.Type, e.Code, e.Message)
	}
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Path != "" {
		msg += " [" + e.Path + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on the error type alone
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Type == e.Type
}

// Sentinels usable with errors.Is
var (
	ErrFetch         = &Error{Type: ErrorTypeFetch}
	ErrParse         = &Error{Type: ErrorTypeParse}
	ErrAlreadyExists = &Error{Type: ErrorTypeAlreadyExists}
	ErrNoContent     = &Error{Type: ErrorTypeNoContent}
	ErrLayout        = &Error{Type: ErrorTypeLayout}
	ErrExtract       = &Error{Type: ErrorTypeExtract}
)

// NewFetchError builds a fetch error for a non-success status or a network failure
func NewFetchError(url string, code int, err error) *Error {
	msg := "network failure"
	if code != 0 {
		msg = fmt.Sprintf("unexpected response %s", http.StatusText(code))
	}
	return &Error{Type: ErrorTypeFetch, Message: msg, URL: url, Code: code, Err: err}
}

// NewParseError builds a parse error for a missing or malformed HTML element
func NewParseError(url, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeParse, Message: fmt.Sprintf(format, args...), URL: url}
}

// NewAlreadyExistsError reports an output root that exists before the run
func NewAlreadyExistsError(path string) *Error {
	return &Error{Type: ErrorTypeAlreadyExists, Message: "output directory already exists", Path: path}
}

// NewNoContentError reports an image without any foreground contour
func NewNoContentError(path string) *Error {
	return &Error{Type: ErrorTypeNoContent, Message: "no foreground contour found", Path: path}
}

// NewLayoutError reports an unexpected state of the output layout
func NewLayoutError(path, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeLayout, Message: fmt.Sprintf(format, args...), Path: path}
}

// NewExtractError reports a failed extraction; the archive stays at path
func NewExtractError(path string, err error) *Error {
	return &Error{Type: ErrorTypeExtract, Message: "archive extraction failed, archive kept", Path: path, Err: err}
}

// TypeOf returns the error type of the first *Error in the chain
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

// Is reports whether err carries the given error type
func Is(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// IsRetryable reports whether an error is a transient fetch failure
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeFetch {
		return false
	}
	return IsRetryableStatusCode(e.Code)
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return false
	default:
		return statusCode >= 500
	}
}
