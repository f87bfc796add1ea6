package aggregator

import (
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
)

// Row is what a renderer needs to paint one message.
type Row struct {
	Message message.Message
	Index   int
	View    extract.View
	// IsLastAssistant marks the most recent assistant message.
	IsLastAssistant bool
	// ShowActions is false only for the last assistant message while it is
	// still streaming.
	ShowActions bool
	// CanRegenerate is set on the last assistant message when Regenerate
	// would be accepted.
	CanRegenerate bool
}

// Snapshot is a read-only copy of the conversation state.
type Snapshot struct {
	Status       Status
	ErrorMessage string
	Rows         []Row
}

// Snapshot copies the conversation and derives the view of every message.
// The result shares nothing with the aggregator.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	lastAsst := a.chat.LastIndexOf(role.Assistant)
	canRegen := a.status == StatusReady || a.status == StatusError

	snap := Snapshot{
		Status:       a.status,
		ErrorMessage: a.errMsg,
		Rows:         make([]Row, 0, a.chat.Len()),
	}

	a.chat.Each(func(i int, m message.Message) bool {
		m = m.Clone()
		isLast := i == lastAsst
		snap.Rows = append(snap.Rows, Row{
			Message:         m,
			Index:           i,
			View:            extract.Build(m, extract.WithReasoningPolicy(a.reasoning)),
			IsLastAssistant: isLast,
			ShowActions:     !(isLast && a.status == StatusStreaming),
			CanRegenerate:   isLast && canRegen,
		})
		return true
	})

	return snap
}
