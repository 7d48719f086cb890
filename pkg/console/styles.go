package console

import "github.com/charmbracelet/lipgloss"

// Event glyphs, so meaning does not rest on color alone.
const (
	GlyphLifecycle    = "◆"
	GlyphNotification = "•"
	GlyphApproval     = "?"
	GlyphError        = "✗"
	GlyphOK           = "✓"
)

var (
	colorGreen   = lipgloss.Color("42")
	colorRed     = lipgloss.Color("196")
	colorYellow  = lipgloss.Color("214")
	colorCyan    = lipgloss.Color("51")
	colorDim     = lipgloss.Color("240")
	colorMagenta = lipgloss.Color("201")
)

var (
	lifecycleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	okStyle        = lipgloss.NewStyle().Foreground(colorGreen)
	methodStyle    = lipgloss.NewStyle().Foreground(colorMagenta)
	dimStyle       = lipgloss.NewStyle().Foreground(colorDim)

	approvalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorYellow).
			Padding(0, 1)
)
