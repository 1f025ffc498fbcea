package protocol

import (
	"fmt"
	"strconv"
)

// RateLimitedError is returned when the service answers 429. RetryAfterSeconds
// is the server's hint, surfaced as sent.
type RateLimitedError struct {
	RetryAfterSeconds float64
	Reason            string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s seconds", e.RetryAfter())
}

// RetryAfter formats the hint without trailing zeros ("45", "2.5").
func (e *RateLimitedError) RetryAfter() string {
	return strconv.FormatFloat(e.RetryAfterSeconds, 'f', -1, 64)
}

// TransportError covers every non-success outcome other than 429. StatusCode
// is 0 when no response was received at all.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: request failed: %v", e.Endpoint, e.Err)
		}
		return fmt.Sprintf("%s: request failed", e.Endpoint)
	}
	return fmt.Sprintf("%s: http status %d", e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError means a success body did not conform to the expected shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: invalid response body: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
