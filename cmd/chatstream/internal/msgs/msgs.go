package msgs

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/chatstream/pkg/aggregator"
	"github.com/germanamz/chatstream/pkg/attachment"
)

// --- Bridge → TUI messages ---

// ChangeMsg delivers an aggregator change from the bridge goroutine.
type ChangeMsg struct {
	Change aggregator.Change
}

// --- Internal messages ---

// SendCompleteMsg is returned by the tea.Cmd that runs a session request.
// Draft is set for submissions so a rejected message can be restored.
type SendCompleteMsg struct {
	Err      error
	Duration time.Duration
	Draft    *Draft
}

// Draft is a submitted message as the user composed it.
type Draft struct {
	Text        string
	Attachments []attachment.Attachment
}

// ProgramReadyMsg passes the *tea.Program to the model so it can start the bridge.
type ProgramReadyMsg struct {
	Program *tea.Program
}

// InitDrainMsg fires after a short delay so that stale terminal responses
// (e.g. OSC 11 background-color replies) are discarded before focusing input.
type InitDrainMsg struct{}

// CopiedExpiredMsg clears the transient "copied" marker of a message.
type CopiedExpiredMsg struct {
	MessageID string
}
