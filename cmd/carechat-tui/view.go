package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"carechat/internal/presenter"
	"carechat/internal/session"
)

const sidebarLogLines = 8

func (m model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	sections := []string{header, content}
	if banner := m.renderErrorBanner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderInput(), m.renderFooter())
	out := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *model) contentWidth() int {
	return maxInt(40, m.width-4)
}

func (m *model) contentHeight() int {
	reserved := 12
	if m.ctrl.Store().Error() != "" {
		reserved++
	}
	return maxInt(8, m.height-reserved)
}

// paneWidths splits the chat row between the timeline and the sidebar.
func (m *model) paneWidths() (int, int) {
	contentWidth := m.contentWidth()
	leftWidth := int(float64(contentWidth) * 0.64)
	rightWidth := contentWidth - leftWidth - 1
	if rightWidth < 30 {
		rightWidth = 30
		leftWidth = contentWidth - rightWidth - 1
	}
	return leftWidth, rightWidth
}

func (m *model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabChat, "Chat"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	meta := fmt.Sprintf(" Session %s · %s", session.ShortID(m.ctrl.SessionID()), m.client.BaseURL())
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(m.contentWidth()).Render(joined)
}

func (m *model) renderContent() string {
	contentHeight := m.contentHeight()
	switch m.activeTab {
	case tabChat:
		leftWidth, rightWidth := m.paneWidths()
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Conversation") + "\n" + m.timeline.View(),
		)
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Session") + "\n" + m.sidebar.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabHelp:
		panel := m.theme.panel.Width(m.contentWidth()).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("carechat Help") + "\n" + m.renderHelp())
	default:
		return ""
	}
}

func (m *model) renderErrorBanner() string {
	text := m.ctrl.Store().Error()
	if text == "" {
		return ""
	}
	return m.theme.errorBanner.Width(m.contentWidth()).Render(compactSingleLine(text, m.contentWidth()-2))
}

func (m *model) renderInput() string {
	contentWidth := m.contentWidth()
	if m.activeTab != tabChat {
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Input disabled outside Chat tab. Press Tab or Esc to return."))
	}
	inputView := m.input.View()
	switch {
	case m.resetting:
		inputView = m.spinner.View() + " Resetting... " + inputView
	case m.busy():
		inputView = m.spinner.View() + " Thinking... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") || strings.Contains(lower, "unreachable") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Enter send · Alt+1..9 pick · Ctrl+R reset · PgUp/PgDn scroll · Tab switch view · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(m.contentWidth()).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := m.contentWidth()
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.5), 36, 64)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}

	body := strings.Join([]string{
		m.theme.errorStatus.Render("Quit carechat?"),
		"",
		m.theme.helpText.Render("The conversation lives on the server until the session expires."),
		m.theme.helpText.Render("Session " + session.ShortID(m.ctrl.SessionID())),
		"",
		m.theme.warn.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	panel := m.theme.modal.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(m.theme.canvas),
	)
}

func (m *model) resize() {
	m.input.Width = maxInt(20, m.contentWidth()-18)
}

func (m *model) renderPanes() {
	prevTimelineYOffset := m.timeline.YOffset
	prevTimelineAtBottom := m.timeline.AtBottom()

	leftWidth, rightWidth := m.paneWidths()
	paneHeight := m.contentHeight()
	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, paneHeight-3)
	m.sidebar.Width = maxInt(20, rightWidth-4)
	m.sidebar.Height = maxInt(5, paneHeight-3)
	m.ensureRenderer(m.timeline.Width - 2)

	m.timeline.SetContent(m.renderTimeline())
	if prevTimelineAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevTimelineYOffset)
	}
	m.sidebar.SetContent(m.renderSidebar())
}

// ensureRenderer keeps the markdown renderer's wrap width in step with the
// timeline pane.
func (m *model) ensureRenderer(width int) {
	if !m.cfg.markdown || width <= 0 || (m.renderer != nil && m.rendererWidth == width) {
		return
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		m.renderer = nil
		return
	}
	m.renderer = renderer
	m.rendererWidth = width
}

func (m *model) renderTimeline() string {
	transcript := m.ctrl.Store().Transcript()
	if len(transcript) == 0 {
		return m.theme.helpText.Render("No messages yet. Say hello, or press Alt+1 to send the first quick action.")
	}
	width := maxInt(24, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range transcript {
		speaker := "assistant"
		label := "assistant"
		if msg.Role == session.RoleUser {
			speaker = "user"
			label = "you"
		} else if strings.HasPrefix(msg.Content, "Error: ") {
			speaker = "error"
		}
		b.WriteString(m.theme.speaker[speaker].Render(fmt.Sprintf("%s [%s]", shortClock(msg.Timestamp), label)))
		b.WriteString("\n")
		if msg.Role == session.RoleAssistant {
			b.WriteString(m.renderAssistant(msg.Content, width))
		} else {
			b.WriteString(wrapText(msg.Content, width))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderAssistant(content string, width int) string {
	if m.renderer != nil {
		out, err := m.renderer.Render(content)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		m.logger.Debug("markdown render failed", zap.Error(err))
	}
	return wrapText(content, width)
}

func (m *model) renderSidebar() string {
	store := m.ctrl.Store()
	state := store.State()
	now := m.now()
	width := maxInt(20, m.sidebar.Width)

	row := func(label, value string, style ...lipgloss.Style) string {
		valueStyle := m.theme.value
		if len(style) > 0 {
			valueStyle = style[0]
		}
		return m.theme.label.Render(fmt.Sprintf("%-10s", label)) + " " + valueStyle.Render(value)
	}

	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Status") + "\n")
	b.WriteString(row("Session", session.ShortID(m.ctrl.SessionID())) + "\n")
	b.WriteString(row("Service", ternary(m.serviceOK, "online", "unknown"), ternary(m.serviceOK, m.theme.ok, m.theme.helpText)) + "\n")
	b.WriteString(row("Verified", yesNo(state.Verified), ternary(state.Verified, m.theme.ok, m.theme.warn)) + "\n")
	if state.Patient.Matched() {
		b.WriteString(row("Patient", derefOr(state.Patient.NameMasked, "-")) + "\n")
		b.WriteString(row("Phone", derefOr(state.Patient.PhoneMasked, "-")) + "\n")
		b.WriteString(row("DOB", derefOr(state.Patient.DOBMasked, "-")) + "\n")
	}
	if state.Verification.FailedAttempts > 0 {
		b.WriteString(row("Failed", fmt.Sprintf("%d attempt(s)", state.Verification.FailedAttempts), m.theme.warn) + "\n")
	}
	if state.Verification.OTPRequired {
		otp := "code pending"
		if left := state.OTPRemaining(now); left > 0 {
			otp += " · " + formatCountdown(left)
		}
		if state.Verification.OTPAttempts > 0 {
			otp += fmt.Sprintf(" · %d tried", state.Verification.OTPAttempts)
		}
		b.WriteString(row("OTP", otp, m.theme.warn) + "\n")
	}
	if state.LockedAt(now) {
		b.WriteString(row("Lockout", "locked · "+formatCountdown(state.LockRemaining(now)), m.theme.errorStatus) + "\n")
	}
	if n := len(state.LastListSnapshot); n > 0 {
		ordinals := make([]string, 0, n)
		for _, entry := range state.LastListSnapshot {
			ordinals = append(ordinals, fmt.Sprintf("#%d", entry.Ordinal))
		}
		b.WriteString(row("Listed", fmt.Sprintf("%d (%s)", n, strings.Join(ordinals, " "))) + "\n")
	}
	if expires, err := session.ParseTimestamp(state.Session.ExpiresAt); err == nil {
		b.WriteString(row("Expires", shortClock(expires)) + "\n")
	}
	b.WriteString(row("Trace", onOff(m.ctrl.Trace())) + "\n")

	items := presenter.Menu(store.Suggestions(), state.Verified)
	b.WriteString("\n" + m.renderMenu("Suggestions", items, presenter.SourceSuggestion, width))
	b.WriteString("\n" + m.renderMenu("Quick Actions", items, presenter.SourceQuickAction, width))

	if len(m.logs) > 0 {
		b.WriteString("\n" + m.theme.panelTitle.Render("Log") + "\n")
		start := maxInt(0, len(m.logs)-sidebarLogLines)
		for _, line := range m.logs[start:] {
			b.WriteString(m.theme.helpText.Render(wrapText(line, width)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderMenu(title string, items []presenter.Item, source presenter.Source, width int) string {
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render(title) + "\n")
	count := 0
	for _, item := range items {
		if item.Source != source {
			continue
		}
		count++
		index := m.theme.menuIndex.Render(fmt.Sprintf("[%d]", item.Index))
		b.WriteString(index + " " + m.theme.value.Render(truncate(item.Text, maxInt(8, width-5))) + "\n")
	}
	if count == 0 {
		b.WriteString(m.theme.helpText.Render("none") + "\n")
	}
	return b.String()
}

func (m *model) renderHelp() string {
	lines := []string{
		"Keys",
		"- Enter: send the message in the input box",
		"- Alt+1..Alt+9: send the numbered suggestion or quick action",
		"- Ctrl+R: reset the session on the server and clear this view",
		"- PgUp/PgDn, Home/End, mouse wheel: scroll the conversation",
		"- Tab / Shift+Tab: switch views",
		"- Esc: quit prompt (or back to Chat from Help)",
		"- Ctrl+C: quit",
		"",
		"Slash Commands",
		"- /reset",
		"- /pick <n>",
		"- /trace on|off",
		"- /health",
		"- /state    dump the server's copy of this session into the log",
		"- /help",
		"- /quit",
		"",
		"Notes",
		"- Verification, OTP and lockout are decided by the server. The sidebar only mirrors what it reports.",
		"- Suggestions come from the last reply; quick actions depend on whether you are verified.",
		"- Logs are written to " + nullCoalesce(m.cfg.logPath, "the log file") + ", never to this screen.",
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}
