// Package controller runs the per-turn state machine: it guards single-flight
// submission, appends the user's turn optimistically, calls the protocol
// client and applies either the server's state or an error turn.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"carechat/internal/protocol"
	"carechat/internal/session"
)

// Phase is the turn state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseApplying
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseApplying:
		return "applying"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyInput = errors.New("controller: input is empty")
	ErrBusy       = errors.New("controller: a turn is already in flight")
)

// Sender is the part of the protocol client the controller depends on.
type Sender interface {
	SendMessage(ctx context.Context, req protocol.ChatRequest) (protocol.ChatResponse, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// Turn is one submitted user input awaiting its response.
type Turn struct {
	Input      string
	Request    protocol.ChatRequest
	UserEntry  session.Message
	StartedAt  time.Time
	generation uint64
}

// Result is what Send produced for a turn.
type Result struct {
	Turn     *Turn
	Response protocol.ChatResponse
	Err      error
	Elapsed  time.Duration
}

// Outcome describes what Complete did.
type Outcome struct {
	Applied bool
	// Stale is set when the result belonged to a turn that a reset or a newer
	// turn superseded; nothing was changed.
	Stale     bool
	Err       error
	Assistant session.Message
	Trace     []byte
}

// Controller owns the session identifier and the store.
type Controller struct {
	mu           sync.Mutex
	phase        Phase
	lastTerminal Phase
	current      *Turn

	store     *session.Store
	sender    Sender
	sessionID string
	trace     bool
	meta      *protocol.ClientMeta
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionID pins the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(id) != "" {
			c.sessionID = strings.TrimSpace(id)
		}
	}
}

func WithTrace(enabled bool) Option {
	return func(c *Controller) { c.trace = enabled }
}

func WithClientMeta(meta protocol.ClientMeta) Option {
	return func(c *Controller) {
		m := meta
		c.meta = &m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used for turn timing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a controller. The session identifier is generated once here and
// reused for every request.
func New(store *session.Store, sender Sender, opts ...Option) *Controller {
	c := &Controller{
		phase:        PhaseIdle,
		lastTerminal: PhaseIdle,
		store:        store,
		sender:       sender,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionID == "" {
		c.sessionID = session.NewID()
	}
	return c
}

func (c *Controller) SessionID() string { return c.sessionID }

func (c *Controller) Store() *session.Store { return c.store }

// Phase returns the current phase. Applying and Failed are transient inside
// Complete, so callers observe Idle or Submitting.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastTerminal is the phase the most recent completed turn passed through
// (PhaseApplying or PhaseFailed), or PhaseIdle before the first turn.
func (c *Controller) LastTerminal() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTerminal
}

func (c *Controller) Trace() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trace
}

func (c *Controller) SetTrace(enabled bool) {
	c.mu.Lock()
	c.trace = enabled
	c.mu.Unlock()
}

// Begin starts a turn. It rejects blank input and any submission while another
// turn is in flight, with no side effects in either case. On success the user
// entry is already in the transcript and the error indicator is cleared.
func (c *Controller) Begin(input string) (*Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		c.logger.Debug("turn rejected while in flight", zap.String("session_id", c.sessionID))
		return nil, ErrBusy
	}
	c.phase = PhaseSubmitting
	c.store.ClearError()
	entry := c.store.AppendMessage(session.RoleUser, text)
	turn := &Turn{
		Input: text,
		Request: protocol.ChatRequest{
			SessionID:  c.sessionID,
			Message:    text,
			Trace:      c.trace,
			ClientMeta: c.meta,
		},
		UserEntry:  entry,
		StartedAt:  c.now(),
		generation: c.store.Generation(),
	}
	c.current = turn
	c.logger.Debug("turn submitted",
		zap.String("session_id", c.sessionID),
		zap.String("entry_id", entry.ID),
		zap.Int("message_len", len(text)),
	)
	return turn, nil
}

// Send performs the network call for turn. It touches no controller or store
// state, so it may run on any goroutine.
func (c *Controller) Send(ctx context.Context, turn *Turn) Result {
	resp, err := c.sender.SendMessage(ctx, turn.Request)
	return Result{Turn: turn, Response: resp, Err: err, Elapsed: c.now().Sub(turn.StartedAt)}
}

// Complete applies res and returns the controller to Idle. A result for a turn
// that is no longer current is discarded untouched.
func (c *Controller) Complete(res Result) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Turn == nil || res.Turn != c.current || res.Turn.generation != c.store.Generation() {
		c.logger.Info("stale turn result discarded", zap.String("session_id", c.sessionID))
		return Outcome{Stale: true, Err: res.Err}
	}
	defer func() {
		c.current = nil
		c.phase = PhaseIdle
	}()

	if res.Err != nil {
		c.phase = PhaseFailed
		c.lastTerminal = PhaseFailed
		text := Describe(res.Err)
		c.store.SetError(text)
		entry := c.store.AppendMessage(session.RoleAssistant, "Error: "+text)
		c.logger.Warn("turn failed",
			zap.String("session_id", c.sessionID),
			zap.String("kind", errorKind(res.Err)),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err),
		)
		return Outcome{Err: res.Err, Assistant: entry}
	}

	c.phase = PhaseApplying
	c.lastTerminal = PhaseApplying
	entry := c.store.AppendMessage(session.RoleAssistant, res.Response.Assistant.Message)
	c.store.ReplaceState(res.Response.State)
	c.store.ReplaceSuggestions(res.Response.Assistant.Suggestions)
	c.logger.Info("turn applied",
		zap.String("session_id", c.sessionID),
		zap.String("turn_id", res.Response.Meta.TurnID),
		zap.Bool("verified", res.Response.State.Verified),
		zap.Bool("otp_required", res.Response.State.Verification.OTPRequired),
		zap.Int("listed", len(res.Response.State.LastListSnapshot)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return Outcome{Applied: true, Assistant: entry, Trace: res.Response.Trace}
}

// Submit runs a whole turn synchronously.
func (c *Controller) Submit(ctx context.Context, input string) (Outcome, error) {
	turn, err := c.Begin(input)
	if err != nil {
		return Outcome{}, err
	}
	return c.Complete(c.Send(ctx, turn)), nil
}

// Reset asks the server to reset the session and, only if that succeeds,
// clears the local view and bumps the generation so any in-flight result is
// discarded. On failure local state is left as it was and the error indicator
// is set.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.sender.ResetSession(ctx, c.sessionID); err != nil {
		c.store.SetError("Failed to reset session: " + Describe(err))
		c.logger.Warn("session reset failed", zap.String("session_id", c.sessionID), zap.Error(err))
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
	c.current = nil
	c.phase = PhaseIdle
	c.lastTerminal = PhaseIdle
	c.logger.Info("session reset", zap.String("session_id", c.sessionID))
	return nil
}
