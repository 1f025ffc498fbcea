package session

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func matchedState() State {
	return State{
		Verified: true,
		Verification: VerificationState{
			FailedAttempts: 2,
			OTPRequired:    true,
			OTPAttempts:    1,
			OTPExpiresAt:   strPtr("2025-01-02T10:05:00-08:00"),
		},
		Patient: PatientPublic{
			PatientID:   strPtr("p_001"),
			NameMasked:  strPtr("J*** D**"),
			PhoneMasked: strPtr("***-***-0123"),
			DOBMasked:   strPtr("**/**/1985"),
		},
		LastListSnapshot: []ListEntry{
			{Ordinal: 1, AppointmentID: "a_100"},
			{Ordinal: 2, AppointmentID: "a_101"},
		},
		Session: Times{
			LastActivity: "2025-01-02T10:00:00-08:00",
			ExpiresAt:    "2025-01-02T10:30:00-08:00",
		},
	}
}

func TestNewStoreStartsFresh(t *testing.T) {
	store := NewStore()
	if diff := cmp.Diff(Fresh(), store.State()); diff != "" {
		t.Fatalf("fresh state mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, store.Transcript())
	assert.Empty(t, store.Suggestions())
	assert.Empty(t, store.Error())
	assert.NotNil(t, store.State().LastListSnapshot)
}

func TestReplaceStateIsWholesale(t *testing.T) {
	store := NewStore()
	store.ReplaceState(matchedState())

	unmatched := Fresh()
	unmatched.Session = Times{LastActivity: "2025-01-02T10:01:00-08:00", ExpiresAt: "2025-01-02T10:31:00-08:00"}
	store.ReplaceState(unmatched)

	got := store.State()
	if diff := cmp.Diff(unmatched, got); diff != "" {
		t.Fatalf("state was merged instead of replaced (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.Patient.NameMasked)
	assert.False(t, got.Patient.Matched())
}

func TestReplaceStateNormalizesNilList(t *testing.T) {
	store := NewStore()
	next := matchedState()
	next.LastListSnapshot = nil
	store.ReplaceState(next)
	require.NotNil(t, store.State().LastListSnapshot)
	assert.Len(t, store.State().LastListSnapshot, 0)
}

func TestStateReadsDoNotAlias(t *testing.T) {
	store := NewStore()
	store.ReplaceState(matchedState())

	view := store.State()
	*view.Patient.NameMasked = "tampered"
	view.LastListSnapshot[0].AppointmentID = "tampered"
	view.Verified = false

	again := store.State()
	if diff := cmp.Diff(matchedState(), again); diff != "" {
		t.Fatalf("store state changed through a returned copy (-want +got):\n%s", diff)
	}
}

func TestAppendMessageOrdering(t *testing.T) {
	clock := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	store := NewStoreWithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	first := store.AppendMessage(RoleUser, "Hello")
	second := store.AppendMessage(RoleAssistant, "Hi there")

	assert.Less(t, first.Seq, second.Seq)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Timestamp.After(first.Timestamp))

	transcript := store.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, "Hi there", transcript[1].Content)
}

func TestResetClearsEverythingAndKeepsIDsUnique(t *testing.T) {
	store := NewStore()
	before := store.AppendMessage(RoleUser, "Hello")
	store.ReplaceState(matchedState())
	store.ReplaceSuggestions([]string{"List my appointments"})
	store.SetError("Account locked. Try again in 45 seconds.")
	gen := store.Generation()

	store.Reset()

	if diff := cmp.Diff(Fresh(), store.State()); diff != "" {
		t.Fatalf("reset state mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, store.Transcript())
	assert.Empty(t, store.Suggestions())
	assert.Empty(t, store.Error())
	assert.Equal(t, gen+1, store.Generation())

	after := store.AppendMessage(RoleUser, "Hello again")
	assert.Greater(t, after.Seq, before.Seq)
	assert.NotEqual(t, before.ID, after.ID)
}

func TestReplaceSuggestionsCopiesInput(t *testing.T) {
	store := NewStore()
	in := []string{"Confirm #1", "Cancel #2"}
	store.ReplaceSuggestions(in)
	in[0] = "tampered"
	assert.Equal(t, []string{"Confirm #1", "Cancel #2"}, store.Suggestions())
}

func TestNewIDShape(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.True(t, strings.HasPrefix(a, "session_"))
	assert.Len(t, a, len("session_")+32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a[len(a)-8:], ShortID(a))
	assert.Equal(t, "abc", ShortID("abc"))
}

func TestLockAndOTPCountdowns(t *testing.T) {
	now := time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC)
	state := Fresh()
	assert.False(t, state.LockedAt(now))
	assert.Zero(t, state.LockRemaining(now))

	state.Verification.LockoutUntil = strPtr("2025-01-02T10:05:00-08:00")
	assert.True(t, state.LockedAt(now))
	assert.Equal(t, 5*time.Minute, state.LockRemaining(now))
	assert.False(t, state.LockedAt(now.Add(10*time.Minute)))

	state.Verification.LockoutUntil = strPtr("not-a-time")
	assert.True(t, state.LockedAt(now))

	state.Verification.OTPExpiresAt = strPtr("2025-01-02T18:02:00Z")
	assert.Zero(t, state.OTPRemaining(now), "expiry without a pending OTP is not a countdown")
	state.Verification.OTPRequired = true
	assert.Equal(t, 2*time.Minute, state.OTPRemaining(now))
}

func TestParseTimestampAcceptsNaiveISO(t *testing.T) {
	parsed, err := ParseTimestamp("2025-01-02T10:05:00.123456")
	require.NoError(t, err)
	assert.Equal(t, 10, parsed.Hour())
}
