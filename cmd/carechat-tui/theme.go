package main

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	errorBanner lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	label       lipgloss.Style
	value       lipgloss.Style
	warn        lipgloss.Style
	ok          lipgloss.Style
	menuIndex   lipgloss.Style
	modal       lipgloss.Style
	speaker     map[string]lipgloss.Style
	canvas      lipgloss.Color
}

func newTheme() uiTheme {
	teal := lipgloss.Color("#2ec4b6")
	sky := lipgloss.Color("#8ecae6")
	coral := lipgloss.Color("#ff6b6b")
	amber := lipgloss.Color("#ffb703")
	bg := lipgloss.Color("#0b1f2a")
	panelBg := lipgloss.Color("#12303d")
	text := lipgloss.Color("#edf6f9")
	muted := lipgloss.Color("#94a9b3")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(sky).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(teal).
			Foreground(lipgloss.Color("#04202a")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#1d4250")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(sky).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(teal).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(sky).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(coral).Bold(true),
		errorBanner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2b0a0a")).
			Background(coral).
			Bold(true).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		helpText:  lipgloss.NewStyle().Foreground(muted),
		label:     lipgloss.NewStyle().Foreground(sky),
		value:     lipgloss.NewStyle().Foreground(text),
		warn:      lipgloss.NewStyle().Foreground(amber).Bold(true),
		ok:        lipgloss.NewStyle().Foreground(teal).Bold(true),
		menuIndex: lipgloss.NewStyle().Foreground(amber),
		modal: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(coral).
			Padding(1, 2),
		speaker: map[string]lipgloss.Style{
			"user":      lipgloss.NewStyle().Foreground(teal).Bold(true),
			"assistant": lipgloss.NewStyle().Foreground(sky).Bold(true),
			"error":     lipgloss.NewStyle().Foreground(coral).Bold(true),
		},
		canvas: bg,
	}
}
