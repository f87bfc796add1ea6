// Package content defines the typed parts a chat message is made of.
//
// A message's parts arrive from the provider one stream event at a time. Every
// part has an immutable wire type; only its state and payload fields change
// while a response is streaming.
package content

import "strings"

// Kind is the semantic kind of a part, independent of its wire type.
type Kind string

const (
	KindText           Kind = "text"
	KindReasoning      Kind = "reasoning"
	KindSourceURL      Kind = "source-url"
	KindSourceDocument Kind = "source-document"
	KindFile           Kind = "file"
	KindTool           Kind = "tool"
	KindUnknown        Kind = "unknown"
)

// ToolTypePrefix prefixes the wire type of every tool part ("tool-weather").
const ToolTypePrefix = "tool-"

// Part is a piece of content within a message.
type Part interface {
	// PartKind returns the semantic kind used by extractors.
	PartKind() Kind
	// PartType returns the wire type, e.g. "text" or "tool-weather".
	PartType() string
}

// State is the streaming state of a text or reasoning part.
type State string

const (
	StateNone      State = ""
	StateStreaming State = "streaming"
	StateDone      State = "done"
)

// ToolState is the lifecycle state of a tool call.
type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolOutputError     ToolState = "output-error"
)

// Valid reports whether s is one of the four lifecycle states.
func (s ToolState) Valid() bool {
	switch s {
	case ToolInputStreaming, ToolInputAvailable, ToolOutputAvailable, ToolOutputError:
		return true
	}
	return false
}

// Terminal reports whether no further update is expected after s.
func (s ToolState) Terminal() bool {
	return s == ToolOutputAvailable || s == ToolOutputError
}

// Text is a plain text content part.
type Text struct {
	Text  string
	State State
}

func (Text) PartKind() Kind   { return KindText }
func (Text) PartType() string { return string(KindText) }

// Reasoning carries the model's reasoning trace. Metadata holds the
// provider metadata verbatim (e.g. "duration" or "latencyMs").
type Reasoning struct {
	Text     string
	State    State
	Metadata map[string]any
}

func (Reasoning) PartKind() Kind   { return KindReasoning }
func (Reasoning) PartType() string { return string(KindReasoning) }

// SourceURL cites a web page. Title is empty when the provider sent none.
type SourceURL struct {
	SourceID string
	URL      string
	Title    string
}

func (SourceURL) PartKind() Kind   { return KindSourceURL }
func (SourceURL) PartType() string { return string(KindSourceURL) }

// SourceDocument cites a document.
type SourceDocument struct {
	SourceID  string
	MediaType string
	Title     string
	Filename  string
}

func (SourceDocument) PartKind() Kind   { return KindSourceDocument }
func (SourceDocument) PartType() string { return string(KindSourceDocument) }

// File is a file referenced by URL, which may be a data URL.
// ID is minted locally when the part is ingested and is never sent on the wire.
type File struct {
	ID        string
	MediaType string
	Filename  string
	URL       string
}

func (File) PartKind() Kind   { return KindFile }
func (File) PartType() string { return string(KindFile) }

// Tool is one tool invocation. ToolCallID joins the successive updates of the
// same call. Input and Output are nil when absent.
type Tool struct {
	Name             string
	ToolCallID       string
	State            ToolState
	Input            any
	Output           any
	ErrorText        string
	ProviderExecuted bool
}

func (Tool) PartKind() Kind     { return KindTool }
func (t Tool) PartType() string { return ToolTypePrefix + t.Name }

// Unknown preserves a part this package does not interpret.
type Unknown struct {
	Type   string
	Fields map[string]any
}

func (Unknown) PartKind() Kind     { return KindUnknown }
func (u Unknown) PartType() string { return u.Type }

// ToolName strips the tool prefix from a wire type.
func ToolName(typ string) string {
	return strings.TrimPrefix(typ, ToolTypePrefix)
}
