// Package stream defines the events a transport delivers while a response is
// in flight, and decodes the provider's UI message stream into them.
package stream

import (
	"github.com/germanamz/chatstream/pkg/chats/content"
)

// EventType identifies the kind of stream event.
type EventType string

const (
	// Chunk carries a content part: a text or reasoning delta, a source, a
	// file or an unknown part.
	Chunk EventType = "chunk"
	// ToolUpdate carries a content.Tool with the latest state of one call.
	ToolUpdate EventType = "tool-update"
	// Error reports a provider or transport failure.
	Error EventType = "error"
	// Done ends the stream.
	Done EventType = "done"
)

// Event is one incremental update of the in-flight assistant message.
type Event struct {
	Type EventType
	// MessageID is the provider's id for the assistant message, when known.
	MessageID string
	Part      content.Part
	// Err is the failure of an Error event. On a Chunk event it holds the
	// *chaterr.MalformedPartError of an ill-shaped part, for diagnostics.
	Err error
}

// NewChunk returns a chunk event for p.
func NewChunk(p content.Part) Event {
	return Event{Type: Chunk, Part: p}
}

// NewToolUpdate returns a tool-update event for t.
func NewToolUpdate(t content.Tool) Event {
	return Event{Type: ToolUpdate, Part: t}
}

// NewError returns an error event.
func NewError(err error) Event {
	return Event{Type: Error, Err: err}
}

// NewDone returns the end-of-stream event.
func NewDone() Event {
	return Event{Type: Done}
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == Done || e.Type == Error
}
