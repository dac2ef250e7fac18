package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes recorded on sessions and returned by the API.
const (
	// Fetch failures. Transient, retried by the caller.
	ErrCodeTimeout     = "FETCH_TIMEOUT"
	ErrCodeHTTPStatus  = "FETCH_HTTP_STATUS"
	ErrCodeBlocked     = "FETCH_BLOCKED"
	ErrCodeRateLimited = "FETCH_RATE_LIMITED"

	// Item-level: the payload could not be turned into an article.
	ErrCodeMalformedItem = "MALFORMED_ITEM"

	// Source-level: the whole sub-run for one source is aborted.
	ErrCodeCredentialMissing = "CREDENTIAL_MISSING"
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeBrowserCrash      = "BROWSER_CRASH"

	// Storage. Write conflicts are retried inside the store; one that
	// outlives the retries is reported as a plain store error.
	ErrCodeStore = "STORE_ERROR"

	// Run-level.
	ErrCodeCancelled    = "CANCELLED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Navigation is used by the browser path when a page cannot be loaded
	// for reasons other than a timeout.
	ErrCodeNavigation = "NAVIGATION_FAILED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string

	// URL is the page or endpoint the error refers to, if any.
	URL string

	// StatusCode is set for ErrCodeHTTPStatus and ErrCodeRateLimited.
	StatusCode int

	Err error // wrapped original error
}

func (e *ScrapeError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// WithURL returns e with URL set. It mutates and returns the receiver so it
// can be chained off a constructor.
func (e *ScrapeError) WithURL(url string) *ScrapeError {
	e.URL = url
	return e
}

// WithStatus returns e with StatusCode set.
func (e *ScrapeError) WithStatus(code int) *ScrapeError {
	e.StatusCode = code
	return e
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Transient reports whether the failure is worth retrying.
//
// HTTP statuses are only transient for 408 and 5xx; a 404 or 401 will not
// change on the next attempt.
func (e *ScrapeError) Transient() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeBlocked, ErrCodeRateLimited, ErrCodeNavigation:
		return true
	case ErrCodeHTTPStatus:
		return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode >= 500
	default:
		return false
	}
}

// CodeOf extracts the error code from err. Context errors map to the
// timeout and cancellation codes; anything else untyped is internal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeInternal
	}
}

// AsScrapeError returns err as a *ScrapeError, wrapping it with the code
// from CodeOf when it is not one already.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(CodeOf(err), err.Error(), err)
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
