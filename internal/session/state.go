// Package session holds the client's cached copy of the server-authoritative
// session state, the chat transcript that shares its lifecycle, and the
// identifier that scopes both.
package session

import (
	"strings"
	"time"
)

// VerificationState is the server's view of identity verification progress.
// Timestamps are kept exactly as the server sent them.
type VerificationState struct {
	FailedAttempts int     `json:"failed_attempts"`
	OTPRequired    bool    `json:"otp_required"`
	OTPAttempts    int     `json:"otp_attempts"`
	OTPExpiresAt   *string `json:"otp_expires_at"`
	LockoutUntil   *string `json:"lockout_until"`
}

// PatientPublic is the masked view of the matched patient. All fields are nil
// until the server matches a patient. Unmasked data never appears here.
type PatientPublic struct {
	PatientID   *string `json:"patient_id"`
	NameMasked  *string `json:"name_masked"`
	PhoneMasked *string `json:"phone_masked"`
	DOBMasked   *string `json:"dob_masked"`
}

// Matched reports whether the server has attached a patient to the session.
func (p PatientPublic) Matched() bool {
	return p.PatientID != nil || p.NameMasked != nil || p.PhoneMasked != nil || p.DOBMasked != nil
}

// ListEntry maps a per-listing ordinal to an appointment identifier.
type ListEntry struct {
	Ordinal       int    `json:"ordinal"`
	AppointmentID string `json:"appointment_id"`
}

// Times carries the session activity and expiry timestamps. The client only
// displays them.
type Times struct {
	LastActivity string `json:"last_activity"`
	ExpiresAt    string `json:"expires_at"`
}

// State is the server-authoritative session snapshot. The client replaces it
// wholesale on every successful turn and never computes any field itself.
type State struct {
	Verified         bool              `json:"verified"`
	Verification     VerificationState `json:"verification"`
	Patient          PatientPublic     `json:"patient"`
	LastListSnapshot []ListEntry       `json:"last_list_snapshot"`
	Session          Times             `json:"session"`
}

// Fresh returns the fresh-session default: unverified, zero attempts, no OTP,
// no lockout, no patient and an empty list.
func Fresh() State {
	return State{
		LastListSnapshot: []ListEntry{},
	}
}

// Clone returns a deep copy so the stored cell can never be aliased.
func (s State) Clone() State {
	out := s
	out.Verification.OTPExpiresAt = cloneString(s.Verification.OTPExpiresAt)
	out.Verification.LockoutUntil = cloneString(s.Verification.LockoutUntil)
	out.Patient = PatientPublic{
		PatientID:   cloneString(s.Patient.PatientID),
		NameMasked:  cloneString(s.Patient.NameMasked),
		PhoneMasked: cloneString(s.Patient.PhoneMasked),
		DOBMasked:   cloneString(s.Patient.DOBMasked),
	}
	if s.LastListSnapshot != nil {
		out.LastListSnapshot = make([]ListEntry, len(s.LastListSnapshot))
		copy(out.LastListSnapshot, s.LastListSnapshot)
	}
	return out
}

// LockedAt reports whether lockout_until is set and still in the future at now.
// A lockout value that cannot be parsed is treated as locked: the server set it,
// so the session should be shown as non-interactive.
func (s State) LockedAt(now time.Time) bool {
	if s.Verification.LockoutUntil == nil {
		return false
	}
	until, err := ParseTimestamp(*s.Verification.LockoutUntil)
	if err != nil {
		return true
	}
	return now.Before(until)
}

// LockRemaining is the display countdown for an active lockout.
func (s State) LockRemaining(now time.Time) time.Duration {
	return remaining(s.Verification.LockoutUntil, now)
}

// OTPRemaining is the display countdown for a pending OTP challenge.
func (s State) OTPRemaining(now time.Time) time.Duration {
	if !s.Verification.OTPRequired {
		return 0
	}
	return remaining(s.Verification.OTPExpiresAt, now)
}

// ParseTimestamp accepts RFC 3339 timestamps with or without fractional
// seconds, which covers what the reference backend emits.
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999999", trimmed)
}

func remaining(value *string, now time.Time) time.Duration {
	if value == nil {
		return 0
	}
	until, err := ParseTimestamp(*value)
	if err != nil || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
