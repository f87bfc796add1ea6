package styles

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	// User message styles.
	UserPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	UserBlockStyle  = lipgloss.NewStyle().PaddingLeft(1)

	// Assistant answer styles.
	AnswerPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	AnswerBlockStyle  = lipgloss.NewStyle().PaddingLeft(1)

	// Reasoning styles.
	ReasoningStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ReasoningFooterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true)

	// Tool call styles.
	ToolNameStyle   = lipgloss.NewStyle().Bold(true)
	ToolResultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ToolErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red

	// Sources and attachments.
	SourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Underline(true)
	AttachmentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta

	// Actions under the last answer.
	ActionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	CopiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green

	// Spinner / animation styles.
	SpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))

	// General utility styles.
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	StatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Error block style.
	ErrorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1"))

	// Input styles.
	FocusedBorder  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("2"))
	DisabledBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
)

// Tree-drawing characters for nested display.
const (
	TreeCorner = "└ "
	TreePipe   = "│ "
)
