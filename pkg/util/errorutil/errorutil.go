package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by providers, the aggregator and the HTTP layer.
const (
	CodeValidation = "VALIDATION_FAILED"
	CodeNetwork    = "NETWORK_ERROR"
	CodeRateLimit  = "RATE_LIMITED"
	CodePermission = "PERMISSION_DENIED"
	CodeParsing    = "PARSING_FAILED"
	CodeCache      = "CACHE_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeUnauthed   = "UNAUTHORIZED"
	CodeInternal   = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError reports malformed input such as a ticket id in the wrong format.
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(message string, err error) error {
	return &DomainError{Code: CodeNetwork, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// NewTimeoutError is a NetworkError caused by a deadline.
func NewTimeoutError(message string, err error) error {
	return &DomainError{
		Code:       CodeNetwork,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
		Details:    map[string]any{"timeout": true},
		Err:        err,
	}
}

// NewRateLimitError reports provider throttling.
func NewRateLimitError(provider string, details map[string]any) error {
	return NewDomainError(CodeRateLimit, fmt.Sprintf("%s rate limit exceeded", provider), http.StatusTooManyRequests, details)
}

// NewPermissionError reports missing scopes or a rejected token.
func NewPermissionError(message string, details map[string]any) error {
	return NewDomainError(CodePermission, message, http.StatusForbidden, details)
}

// NewParsingError reports a payload with an unexpected shape.
func NewParsingError(message string, err error) error {
	return &DomainError{Code: CodeParsing, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// NewCacheError indicates a cache in an impossible state. It should never surface.
func NewCacheError(message string) error {
	return NewDomainError(CodeCache, message, http.StatusInternalServerError, nil)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthed, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func IsValidation(err error) bool { return HasCode(err, CodeValidation) }
func IsNetwork(err error) bool    { return HasCode(err, CodeNetwork) }
func IsRateLimit(err error) bool  { return HasCode(err, CodeRateLimit) }
func IsPermission(err error) bool { return HasCode(err, CodePermission) }
func IsParsing(err error) bool    { return HasCode(err, CodeParsing) }
func IsNotFound(err error) bool   { return HasCode(err, CodeNotFound) }

// IsTimeout reports whether err is a NetworkError raised by a deadline.
func IsTimeout(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Code == CodeNetwork {
		if timeout, ok := domainErr.Details["timeout"].(bool); ok && timeout {
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if de, ok := NewTimeoutError("request timed out", err).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
