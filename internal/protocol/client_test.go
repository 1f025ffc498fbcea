package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okChatBody = `{
  "assistant": {"message": "Hi! Please share your phone and date of birth.", "suggestions": ["My phone is ...", "Help"]},
  "state": {
    "verified": false,
    "verification": {"failed_attempts": 0, "otp_required": false, "otp_attempts": 0, "otp_expires_at": null, "lockout_until": null},
    "patient": {"patient_id": null, "name_masked": null, "phone_masked": null, "dob_masked": null},
    "last_list_snapshot": [],
    "session": {"last_activity": "2025-01-02T10:00:00-08:00", "expires_at": "2025-01-02T10:30:00-08:00"}
  },
  "meta": {"session_id": "session_abc", "turn_id": "t-1", "timestamp": "2025-01-02T10:00:00-08:00"}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestNewResolvesBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
	assert.Equal(t, DefaultBaseURL, New("   ").BaseURL())
	assert.Equal(t, "http://localhost:9000", New("http://localhost:9000//").BaseURL())
}

func TestSendMessageEncodesRequestAndDecodesResponse(t *testing.T) {
	var got ChatRequest
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointChat, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okChatBody)
	})

	resp, err := client.SendMessage(context.Background(), ChatRequest{
		SessionID:  "session_abc",
		Message:    "Hello",
		ClientMeta: &ClientMeta{UserAgent: "carechat-test", AppVersion: "dev"},
	})
	require.NoError(t, err)

	assert.Equal(t, "session_abc", got.SessionID)
	assert.Equal(t, "Hello", got.Message)
	assert.False(t, got.Trace)
	require.NotNil(t, got.ClientMeta)
	assert.Equal(t, "dev", got.ClientMeta.AppVersion)

	assert.Equal(t, "Hi! Please share your phone and date of birth.", resp.Assistant.Message)
	assert.Equal(t, []string{"My phone is ...", "Help"}, resp.Assistant.Suggestions)
	assert.False(t, resp.State.Verified)
	assert.Nil(t, resp.State.Verification.LockoutUntil)
	assert.NotNil(t, resp.State.LastListSnapshot)
	assert.Equal(t, "t-1", resp.Meta.TurnID)
	assert.Nil(t, resp.Trace)
}

func TestSendMessagePassesTraceThrough(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["trace"])
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(okChatBody), &resp))
		resp["trace"] = map[string]any{"path": []string{"Guard", "Verify"}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	resp, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "Hello", Trace: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":["Guard","Verify"]}`, string(resp.Trace))
}

func TestSendMessageRateLimited(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"detail":{"error":"locked_out","retry_after_seconds":45}}`)
	})
	_, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "123456"})

	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl), "expected RateLimitedError, got %T", err)
	assert.Equal(t, 45.0, rl.RetryAfterSeconds)
	assert.Equal(t, "45", rl.RetryAfter())
	assert.Equal(t, "locked_out", rl.Reason)
}

func TestSendMessageRateLimitedFallsBackToHeader(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `slow down`)
	})
	_, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "hi"})
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 12.0, rl.RetryAfterSeconds)
}

func TestSendMessageTransportError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Internal server error"}`, http.StatusInternalServerError)
	})
	_, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "hi"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, EndpointChat, te.Endpoint)

	var rl *RateLimitedError
	assert.False(t, errors.As(err, &rl))
}

func TestSendMessageUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client := New(addr, WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	_, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "hi"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.Error(t, te.Unwrap())
}

func TestSendMessageDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"not json":          `<html>oops</html>`,
		"null":              `null`,
		"missing state":     `{"assistant":{"message":"x","suggestions":[]},"meta":{"session_id":"s","turn_id":"t","timestamp":"x"}}`,
		"missing verified":  replaceJSON(t, `state.verified`, nil),
		"missing patient":   replaceJSON(t, `state.patient`, nil),
		"missing meta":      replaceJSON(t, `meta`, nil),
		"negative attempts": replaceJSON(t, `state.verification.failed_attempts`, -1),
		"gapped ordinals": replaceJSON(t, `state.last_list_snapshot`, []map[string]any{
			{"ordinal": 1, "appointment_id": "a1"},
			{"ordinal": 3, "appointment_id": "a3"},
		}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "hi"})
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, EndpointChat, de.Endpoint)
		})
	}
}

func TestSendMessageAcceptsExpiryAfterOTPCleared(t *testing.T) {
	body := replaceJSON(t, `state.verification.otp_expires_at`, "2025-01-02T10:05:00-08:00")
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
	resp, err := client.SendMessage(context.Background(), ChatRequest{SessionID: "s", Message: "123456"})
	require.NoError(t, err)
	require.NotNil(t, resp.State.Verification.OTPExpiresAt)
	assert.False(t, resp.State.Verification.OTPRequired)
}

func TestResetSession(t *testing.T) {
	calls := 0
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, EndpointReset, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "session_abc", body["session_id"])
		_, _ = io.WriteString(w, `{"status":"reset"}`)
	})
	require.NoError(t, client.ResetSession(context.Background(), "session_abc"))
	require.NoError(t, client.ResetSession(context.Background(), "session_abc"))
	assert.Equal(t, 2, calls)
}

func TestResetSessionFailure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := client.ResetSession(context.Background(), "s")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"status":"healthy","timestamp":"2025-01-02T10:00:00-08:00"}`)
	})
	health, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2025-01-02T10:00:00-08:00"}`, string(health.Raw))
}

func TestHealthCheckFailure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.HealthCheck(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestDebugState(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointState, r.URL.Path)
		assert.Equal(t, "session_abc", r.URL.Query().Get("session_id"))
		_, _ = io.WriteString(w, `{"error":"Session not found"}`)
	})
	raw, err := client.DebugState(context.Background(), "session_abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Session not found"}`, string(raw))
}

// replaceJSON returns okChatBody with the dotted path set to value, or removed
// when value is nil.
func replaceJSON(t *testing.T, path string, value any) string {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(okChatBody), &doc))
	keys := strings.Split(path, ".")
	cur := doc
	for _, key := range keys[:len(keys)-1] {
		cur = cur[key].(map[string]any)
	}
	last := keys[len(keys)-1]
	if value == nil {
		delete(cur, last)
	} else {
		cur[last] = value
	}
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(out)
}
