// Package protocol is the transport and decode layer for the appointment
// assistant's HTTP JSON API. It makes no decisions about verification, OTP or
// lockout; it only moves requests and responses and classifies failures.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"carechat/internal/session"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://127.0.0.1:8000"

	EndpointChat   = "/chat"
	EndpointReset  = "/dev/reset_session"
	EndpointHealth = "/health"
	EndpointState  = "/dev/state"

	maxBodyBytes = 1 << 20
)

// Client talks to the assistant service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. Timeouts belong there.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for baseURL. An empty base URL resolves to DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "carechat",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage performs one chat turn. It fails with *RateLimitedError on 429,
// *TransportError on any other failure and *DecodeError when a success body
// does not conform.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	started := time.Now()
	status, body, header, err := c.do(ctx, http.MethodPost, EndpointChat, req)
	if err != nil {
		c.logger.Warn("chat request failed", zap.String("session_id", req.SessionID), zap.Error(err))
		return ChatResponse{}, err
	}
	if status == http.StatusTooManyRequests {
		rl := parseRateLimit(body, header)
		c.logger.Info("chat rate limited",
			zap.String("session_id", req.SessionID),
			zap.Float64("retry_after_seconds", rl.RetryAfterSeconds),
		)
		return ChatResponse{}, rl
	}
	if !isSuccess(status) {
		c.logger.Warn("chat http error", zap.String("session_id", req.SessionID), zap.Int("status", status))
		return ChatResponse{}, &TransportError{Endpoint: EndpointChat, StatusCode: status}
	}
	resp, err := decodeChatResponse(body)
	if err != nil {
		c.logger.Warn("chat response rejected", zap.String("session_id", req.SessionID), zap.Error(err))
		return ChatResponse{}, &DecodeError{Endpoint: EndpointChat, Err: err}
	}
	c.logger.Debug("chat turn complete",
		zap.String("session_id", req.SessionID),
		zap.String("turn_id", resp.Meta.TurnID),
		zap.Int("message_len", len(req.Message)),
		zap.Bool("verified", resp.State.Verified),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

// ResetSession asks the service to drop its session. Repeating it is harmless.
func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	status, _, _, err := c.do(ctx, http.MethodPost, EndpointReset, resetRequest{SessionID: sessionID})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &TransportError{Endpoint: EndpointReset, StatusCode: status}
	}
	c.logger.Info("session reset", zap.String("session_id", sessionID))
	return nil
}

// HealthCheck is best-effort and has no session implications.
func (c *Client) HealthCheck(ctx context.Context) (Health, error) {
	status, body, _, err := c.do(ctx, http.MethodGet, EndpointHealth, nil)
	if err != nil {
		return Health{}, err
	}
	if !isSuccess(status) {
		return Health{}, &TransportError{Endpoint: EndpointHealth, StatusCode: status}
	}
	health := Health{Raw: json.RawMessage(body)}
	if len(bytes.TrimSpace(body)) > 0 {
		// Non-object bodies are allowed; only Raw is filled then.
		_ = json.Unmarshal(body, &health)
	}
	return health, nil
}

// DebugState fetches the backend's stored session for display. It is a
// development endpoint and the body is returned verbatim.
func (c *Client) DebugState(ctx context.Context, sessionID string) (json.RawMessage, error) {
	path := EndpointState + "?session_id=" + url.QueryEscape(sessionID)
	status, body, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &TransportError{Endpoint: EndpointState, StatusCode: status}
	}
	if !json.Valid(body) {
		return nil, &DecodeError{Endpoint: EndpointState, Err: errors.New("body is not JSON")}
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, http.Header, error) {
	endpoint := endpointName(path)
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp.StatusCode, body, resp.Header, nil
}

func endpointName(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func parseRateLimit(body []byte, header http.Header) *RateLimitedError {
	out := &RateLimitedError{}
	var parsed rateLimitBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		out.Reason = parsed.Detail.Error
		if parsed.Detail.RetryAfterSeconds != nil {
			out.RetryAfterSeconds = *parsed.Detail.RetryAfterSeconds
			return out
		}
	}
	if raw := strings.TrimSpace(header.Get("Retry-After")); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds >= 0 {
			out.RetryAfterSeconds = seconds
		}
	}
	return out
}

func decodeChatResponse(body []byte) (ChatResponse, error) {
	var wire wireChatResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return ChatResponse{}, err
	}
	switch {
	case wire.Assistant == nil:
		return ChatResponse{}, errors.New("missing assistant")
	case wire.Assistant.Message == nil:
		return ChatResponse{}, errors.New("missing assistant.message")
	case wire.State == nil:
		return ChatResponse{}, errors.New("missing state")
	case wire.State.Verified == nil:
		return ChatResponse{}, errors.New("missing state.verified")
	case wire.State.Verification == nil:
		return ChatResponse{}, errors.New("missing state.verification")
	case wire.State.Patient == nil:
		return ChatResponse{}, errors.New("missing state.patient")
	case wire.State.Session == nil:
		return ChatResponse{}, errors.New("missing state.session")
	case wire.Meta == nil:
		return ChatResponse{}, errors.New("missing meta")
	}
	v := wire.State.Verification
	if v.FailedAttempts < 0 || v.OTPAttempts < 0 {
		return ChatResponse{}, errors.New("negative verification counter")
	}
	for i, entry := range wire.State.LastListSnapshot {
		if entry.Ordinal != i+1 {
			return ChatResponse{}, fmt.Errorf("last_list_snapshot[%d] has ordinal %d", i, entry.Ordinal)
		}
	}

	snapshot := wire.State.LastListSnapshot
	if snapshot == nil {
		snapshot = []session.ListEntry{}
	}
	suggestions := wire.Assistant.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	var trace json.RawMessage
	if len(wire.Trace) > 0 && string(wire.Trace) != "null" {
		trace = wire.Trace
	}
	return ChatResponse{
		Assistant: AssistantReply{
			Message:     *wire.Assistant.Message,
			Suggestions: suggestions,
		},
		State: session.State{
			Verified:         *wire.State.Verified,
			Verification:     *v,
			Patient:          *wire.State.Patient,
			LastListSnapshot: snapshot,
			Session:          *wire.State.Session,
		},
		Meta:  *wire.Meta,
		Trace: trace,
	}, nil
}
