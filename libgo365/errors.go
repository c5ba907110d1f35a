package libgo365

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies failures returned by Microsoft Graph and the identity platform
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindInvalidPayload ErrorKind = "invalid_payload"
	KindNotFound       ErrorKind = "not_found"
	KindTransient      ErrorKind = "transient"
	KindUnknown        ErrorKind = "unknown"
)

// Error is returned for any failed Graph request or token exchange
type Error struct {
	Kind       ErrorKind
	Op         string // e.g. "POST /me/events"
	StatusCode int
	Code       string // Graph error code, e.g. "ErrorInvalidRequest"
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying
func (e *Error) Transient() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// IsKind reports whether err wraps a *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// graphErrorBody is the standard Graph error envelope
type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// KindForStatus maps an HTTP status code to an ErrorKind
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindInvalidPayload
	case status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

// newResponseError builds an *Error from a non-2xx Graph response
func newResponseError(op string, resp *http.Response, body []byte) *Error {
	apiErr := &Error{
		Kind:       KindForStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}

	var envelope graphErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	return apiErr
}
