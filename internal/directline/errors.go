package directline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"
)

// Kind classifies a failed Direct Line call.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindServerError  Kind = "server_error"
	KindBadGateway   Kind = "bad_gateway" // the bot failed, not the transport
	KindUnexpected   Kind = "unexpected"
)

// APIError is returned for every non-2xx response and for token supplier
// failures (Kind unauthorized, StatusCode 0).
type APIError struct {
	Op         string
	StatusCode int
	Kind       Kind
	Code       string // Direct Line error code from the response body
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("directline %s: %d %s: %s", e.Op, e.StatusCode, e.Kind, msg)
	}
	return fmt.Sprintf("directline %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindServerError, KindBadGateway:
		return true
	}
	return false
}

// Classify maps an HTTP status code to a Kind.
func Classify(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadGateway:
		return KindBadGateway
	case status >= 500 && status <= 599:
		return KindServerError
	default:
		return KindUnexpected
	}
}

// newAPIError builds an APIError from a response status, headers and body.
func newAPIError(op string, resp *http.Response, body []byte) *APIError {
	e := &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Kind:       Classify(resp.StatusCode),
	}

	var env errorResponse
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && (env.Error.Code != "" || env.Error.Message != "") {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
	} else {
		e.Message = truncate(string(body), 200)
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}

	if e.Kind == KindRateLimited || e.Kind == KindServerError {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return e
}

// maxRetryAfter bounds a server-sent delay.
const maxRetryAfter = 24 * time.Hour

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		if secs > int(maxRetryAfter/time.Second) {
			return maxRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, maxRetryAfter)
		}
	}
	return 0
}

func kindOf(err error) (Kind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return "", false
}

// IsAuth reports whether err is an authentication or authorization failure.
// These are never retried.
func IsAuth(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindUnauthorized || k == KindForbidden)
}

// IsNotFound reports whether the conversation (or resource) does not exist.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsTransient reports whether err is a rate limit, server error or bad gateway.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
