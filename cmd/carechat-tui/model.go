package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"carechat/internal/controller"
	"carechat/internal/presenter"
	"carechat/internal/protocol"
	"carechat/internal/session"
)

const (
	maxLogLines    = 50
	clockInterval  = time.Second
	probeTimeout   = 5 * time.Second
	inputCharLimit = 2000
)

type tabID int

const (
	tabChat tabID = iota
	tabHelp
	tabCount
)

type model struct {
	cfg    appConfig
	client *protocol.Client
	ctrl   *controller.Controller
	logger *zap.Logger

	renderer      *glamour.TermRenderer
	rendererWidth int

	statusLine  string
	logs        []string
	activeTab   tabID
	resetting   bool
	quitConfirm bool
	serviceOK   bool
	now         func() time.Time

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type turnDoneMsg struct {
	result controller.Result
}

type resetDoneMsg struct {
	err error
}

type healthDoneMsg struct {
	health protocol.Health
	err    error
}

type stateDoneMsg struct {
	raw []byte
	err error
}

type tickMsg time.Time

func newModel(cfg appConfig, client *protocol.Client, ctrl *controller.Controller, logger *zap.Logger) model {
	if logger == nil {
		logger = zap.NewNop()
	}
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = inputCharLimit
	input.Placeholder = "Ask about your appointments. Alt+1..9 sends a suggestion, /help lists commands."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ec4b6"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	return model{
		cfg:        cfg,
		client:     client,
		ctrl:       ctrl,
		logger:     logger,
		statusLine: "connecting to " + client.BaseURL() + "...",
		logs:       []string{},
		activeTab:  tabChat,
		now:        time.Now,
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.healthCmd(),
		tickEvery(clockInterval),
	)
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// busy reports whether a turn is awaiting its reply.
func (m model) busy() bool {
	return m.ctrl.Phase() != controller.PhaseIdle
}

func (m model) sendCmd(turn *controller.Turn) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return turnDoneMsg{result: ctrl.Send(context.Background(), turn)}
	}
}

func (m model) resetCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return resetDoneMsg{err: ctrl.Reset(context.Background())}
	}
}

func (m model) healthCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		health, err := client.HealthCheck(ctx)
		return healthDoneMsg{health: health, err: err}
	}
}

func (m model) stateCmd() tea.Cmd {
	client := m.client
	sessionID := m.ctrl.SessionID()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		raw, err := client.DebugState(ctx, sessionID)
		return stateDoneMsg{raw: raw, err: err}
	}
}

// submit starts a turn for text and returns the command that sends it.
func (m *model) submit(text string) tea.Cmd {
	if m.resetting {
		m.statusLine = "reset in progress, try again shortly"
		return nil
	}
	turn, err := m.ctrl.Begin(text)
	switch {
	case errors.Is(err, controller.ErrEmptyInput):
		return nil
	case errors.Is(err, controller.ErrBusy):
		m.statusLine = controller.Describe(err)
		return nil
	case err != nil:
		m.logError(err)
		return nil
	}
	m.statusLine = "waiting for the assistant..."
	m.renderPanes()
	m.timeline.GotoBottom()
	return m.sendCmd(turn)
}

// pick sends the n-th entry of the current suggestion/quick-action menu.
func (m *model) pick(n int) tea.Cmd {
	store := m.ctrl.Store()
	items := presenter.Menu(store.Suggestions(), store.State().Verified)
	item, ok := presenter.Pick(items, n)
	if !ok {
		m.statusLine = fmt.Sprintf("no menu item %d (1-%d available)", n, len(items))
		return nil
	}
	return m.submit(item.Text)
}

func (m *model) beginReset() tea.Cmd {
	if m.resetting {
		return nil
	}
	m.resetting = true
	m.statusLine = "resetting session..."
	return m.resetCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case turnDoneMsg:
		out := m.ctrl.Complete(msg.result)
		switch {
		case out.Stale:
			m.appendLog("discarded a reply that arrived after the session was reset")
		case out.Err != nil:
			m.statusLine = "turn failed: " + controller.Describe(out.Err)
			m.appendLog("turn failed: " + out.Err.Error())
		default:
			m.statusLine = fmt.Sprintf("reply received in %s", msg.result.Elapsed.Round(time.Millisecond))
			if len(out.Trace) > 0 {
				m.appendLog("trace: " + compactSingleLine(string(out.Trace), 400))
			}
		}
		m.renderPanes()
	case resetDoneMsg:
		m.resetting = false
		if msg.err != nil {
			m.statusLine = "reset failed: " + controller.Describe(msg.err)
			m.appendLog("reset failed: " + msg.err.Error())
		} else {
			m.input.SetValue("")
			m.statusLine = "session reset · " + session.ShortID(m.ctrl.SessionID())
			m.appendLog("session reset")
			m.timeline.GotoTop()
		}
		m.renderPanes()
	case healthDoneMsg:
		if msg.err != nil {
			m.serviceOK = false
			m.statusLine = "service unreachable: " + controller.Describe(msg.err)
			m.appendLog("health check failed: " + msg.err.Error())
			break
		}
		m.serviceOK = true
		m.statusLine = "connected · status=" + nullCoalesce(msg.health.Status, "ok")
		m.renderPanes()
	case stateDoneMsg:
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.appendLog("server state: " + compactSingleLine(string(msg.raw), 400))
		m.statusLine = "server state written to log"
		m.renderPanes()
	case tickMsg:
		m.renderPanes()
		cmds = append(cmds, tickEvery(clockInterval))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm || m.activeTab != tabChat {
			break
		}
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.quitConfirm {
			switch msg.String() {
			case "y", "Y", "enter":
				return m, tea.Quit
			case "n", "N", "esc":
				m.quitConfirm = false
				m.statusLine = "quit canceled"
				m.renderPanes()
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case "esc":
			if m.activeTab != tabChat {
				m.switchTab(tabChat)
				return m, tea.Batch(cmds...)
			}
			m.beginQuitConfirm()
			return m, tea.Batch(cmds...)
		case "tab":
			m.switchTab((m.activeTab + 1) % tabCount)
			return m, tea.Batch(cmds...)
		case "shift+tab":
			m.switchTab((m.activeTab + tabCount - 1) % tabCount)
			return m, tea.Batch(cmds...)
		case "ctrl+r":
			return m, m.beginReset()
		}

		if m.activeTab != tabChat {
			return m, tea.Batch(cmds...)
		}
		if n, ok := menuShortcut(msg.String()); ok {
			return m, m.pick(n)
		}
		switch msg.String() {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, tea.Batch(cmds...)
			}
			if strings.HasPrefix(raw, "/") {
				m.input.SetValue("")
				return m, m.handleSlash(raw)
			}
			if m.busy() {
				m.statusLine = controller.Describe(controller.ErrBusy)
				return m, tea.Batch(cmds...)
			}
			cmd := m.submit(raw)
			if cmd != nil {
				m.input.SetValue("")
			}
			return m, cmd
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
			return m, tea.Batch(cmds...)
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
			return m, tea.Batch(cmds...)
		case "home":
			m.timeline.GotoTop()
			return m, tea.Batch(cmds...)
		case "end":
			m.timeline.GotoBottom()
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func menuShortcut(key string) (int, bool) {
	if !strings.HasPrefix(key, "alt+") || len(key) != len("alt+1") {
		return 0, false
	}
	n, err := strconv.Atoi(key[len("alt+"):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (m *model) switchTab(tab tabID) {
	m.activeTab = tab
	if tab == tabChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	m.renderPanes()
}

func (m *model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	tail := parts[1:]
	switch cmd {
	case "/help":
		m.switchTab(tabHelp)
		return nil
	case "/quit", "/exit":
		m.beginQuitConfirm()
		return nil
	case "/reset":
		return m.beginReset()
	case "/pick":
		if len(tail) != 1 {
			m.statusLine = "usage: /pick <n>"
			return nil
		}
		n, err := strconv.Atoi(tail[0])
		if err != nil {
			m.statusLine = "usage: /pick <n>"
			return nil
		}
		if m.busy() {
			m.statusLine = controller.Describe(controller.ErrBusy)
			return nil
		}
		return m.pick(n)
	case "/trace":
		if len(tail) == 0 {
			m.statusLine = "trace: " + onOff(m.ctrl.Trace())
			return nil
		}
		switch strings.ToLower(tail[0]) {
		case "on":
			m.ctrl.SetTrace(true)
		case "off":
			m.ctrl.SetTrace(false)
		default:
			m.statusLine = "usage: /trace on|off"
			return nil
		}
		m.statusLine = "trace " + onOff(m.ctrl.Trace())
		m.renderPanes()
		return nil
	case "/health":
		m.statusLine = "checking service health..."
		return m.healthCmd()
	case "/state":
		m.statusLine = "fetching server state..."
		return m.stateCmd()
	default:
		m.statusLine = "unknown command: " + cmd
		return nil
	}
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit carechat?"
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", m.now().Format("15:04:05"), compactSingleLine(trimmed, 440)))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(controller.Describe(err), 160)
}
