// Package message defines the Message type of a chat conversation.
package message

import (
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/role"
)

// Message represents a single message in a conversation.
// It is a value type; Parts keep their arrival order, which is significant
// for rendering.
type Message struct {
	ID       string
	Role     role.Role
	Parts    []content.Part
	Metadata map[string]any
}

// New creates a message with the given id, role, and content parts.
func New(id string, r role.Role, parts ...content.Part) Message {
	return Message{
		ID:    id,
		Role:  r,
		Parts: parts,
	}
}

// NewText creates a message with a single Text content part.
func NewText(id string, r role.Role, text string) Message {
	return New(id, r, content.Text{Text: text})
}

// Clone returns a deep copy of the message; the copy shares no parts or
// metadata with m.
func (m Message) Clone() Message {
	cp := m
	cp.Parts = content.CloneAll(m.Parts)
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
