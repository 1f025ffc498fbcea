package controller

import (
	"errors"
	"fmt"

	"carechat/internal/protocol"
)

// Describe renders err for the transcript and the error indicator.
// DecodeError reads like a transport failure to the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var rl *protocol.RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("Account locked. Try again in %s seconds.", rl.RetryAfter())
	}
	var te *protocol.TransportError
	if errors.As(err, &te) {
		if te.StatusCode == 0 {
			return "Could not reach the appointment service. Please try again."
		}
		return fmt.Sprintf("The appointment service returned HTTP %d. Please try again.", te.StatusCode)
	}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		return "The appointment service sent a response that could not be read. Please try again."
	}
	if errors.Is(err, ErrBusy) {
		return "Still waiting for the previous reply."
	}
	return "An error occurred: " + err.Error()
}

func errorKind(err error) string {
	var rl *protocol.RateLimitedError
	var te *protocol.TransportError
	var de *protocol.DecodeError
	switch {
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &de):
		return "decode"
	default:
		return "unknown"
	}
}
