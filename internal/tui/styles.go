package tui

import "github.com/charmbracelet/lipgloss"

// Palette (ANSI 256).
const (
	colorAccent  = lipgloss.Color("212")
	colorUser    = lipgloss.Color("111")
	colorText    = lipgloss.Color("252")
	colorMuted   = lipgloss.Color("241")
	colorBar     = lipgloss.Color("236")
	colorSuccess = lipgloss.Color("78")
	colorWarn    = lipgloss.Color("214")
	colorError   = lipgloss.Color("196")
)

var (
	base = lipgloss.NewStyle()

	titleStyle    = base.Bold(true).Foreground(colorAccent)
	selectedStyle = base.Bold(true).Foreground(colorAccent)
	successStyle  = base.Foreground(colorSuccess)
	warnStyle     = base.Foreground(colorWarn)
	errorStyle    = base.Foreground(colorError)
	dimStyle      = base.Foreground(colorMuted)

	userMsgStyle      = base.Bold(true).Foreground(colorUser)
	assistantMsgStyle = base.Foreground(colorText)
	statusBarStyle    = base.Foreground(colorMuted).Background(colorBar).Padding(0, 1)
)
