package stream

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/chats/content"
)

// DoneSentinel is the payload some servers send after the final chunk.
const DoneSentinel = "[DONE]"

// Decoder turns UI message stream chunks into events. It keeps the state a
// stream spreads across chunks: the message id, the open text or reasoning
// block, tool names and partial tool input. A Decoder serves one stream and
// is not safe for concurrent use.
type Decoder struct {
	messageID string

	openKind content.Kind
	openID   string

	toolNames  map[string]string
	inputTexts map[string]string
}

// NewDecoder returns a decoder for a new stream.
func NewDecoder() *Decoder {
	return &Decoder{
		toolNames:  make(map[string]string),
		inputTexts: make(map[string]string),
	}
}

// MessageID returns the id announced by the stream's start chunk.
func (d *Decoder) MessageID() string {
	return d.messageID
}

// DecodeBytes decodes one JSON chunk, or the [DONE] sentinel.
func (d *Decoder) DecodeBytes(data []byte) ([]Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if string(data) == DoneSentinel {
		return d.stamp(NewDone()), nil
	}

	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("stream: decode chunk: %w", err)
	}
	return d.Decode(raw), nil
}

// Decode converts one decoded chunk into zero or more events.
func (d *Decoder) Decode(raw map[string]any) []Event {
	typ, _ := raw["type"].(string)

	switch typ {
	case "start":
		if id, ok := raw["messageId"].(string); ok {
			d.messageID = id
		}
		return nil

	case "start-step", "finish-step", "message-metadata":
		return nil

	case "text-start":
		return d.open(content.KindText, str(raw, "id"), content.Text{State: content.StateStreaming})
	case "text-delta":
		return d.stamp(NewChunk(content.Text{Text: str(raw, "delta"), State: content.StateStreaming}))
	case "text-end":
		d.openKind, d.openID = "", ""
		return d.stamp(NewChunk(content.Text{State: content.StateDone}))

	case "reasoning-start":
		return d.open(content.KindReasoning, str(raw, "id"), content.Reasoning{State: content.StateStreaming, Metadata: meta(raw)})
	case "reasoning-delta":
		return d.stamp(NewChunk(content.Reasoning{Text: str(raw, "delta"), State: content.StateStreaming, Metadata: meta(raw)}))
	case "reasoning-end":
		d.openKind, d.openID = "", ""
		return d.stamp(NewChunk(content.Reasoning{State: content.StateDone, Metadata: meta(raw)}))

	case "tool-input-start":
		id := str(raw, "toolCallId")
		d.toolNames[id] = str(raw, "toolName")
		return d.tool(raw, content.ToolInputStreaming)
	case "tool-input-delta":
		id := str(raw, "toolCallId")
		d.inputTexts[id] += str(raw, "inputTextDelta")
		t := d.toolPart(raw, content.ToolInputStreaming)
		t.Input = partialInput(d.inputTexts[id])
		return d.stamp(NewToolUpdate(t))
	case "tool-input-available":
		return d.tool(raw, content.ToolInputAvailable)
	case "tool-input-error", "tool-output-error":
		return d.tool(raw, content.ToolOutputError)
	case "tool-output-available":
		return d.tool(raw, content.ToolOutputAvailable)

	case "error":
		msg := str(raw, "errorText")
		if msg == "" {
			msg = "provider error"
		}
		return d.stamp(NewError(chaterr.NewTransport("stream", errors.New(msg))))

	case "finish", "abort":
		return d.stamp(NewDone())
	}

	// Whole parts: sources, files, data parts and anything newer.
	p, err := content.Parse(raw)
	if t, ok := p.(content.Tool); ok {
		return d.stamp(NewToolUpdate(t))
	}
	ev := NewChunk(p)
	ev.Err = err
	return d.stamp(ev)
}

// open starts a text or reasoning block. Another block left open by a missing
// end chunk is closed first.
func (d *Decoder) open(kind content.Kind, id string, p content.Part) []Event {
	var events []Event
	if d.openKind != "" && (d.openKind != kind || d.openID != id) {
		events = append(events, d.closeOpen()...)
	}
	d.openKind, d.openID = kind, id
	return append(events, d.stamp(NewChunk(p))...)
}

func (d *Decoder) closeOpen() []Event {
	var p content.Part = content.Text{State: content.StateDone}
	if d.openKind == content.KindReasoning {
		p = content.Reasoning{State: content.StateDone}
	}
	d.openKind, d.openID = "", ""
	return d.stamp(NewChunk(p))
}

func (d *Decoder) tool(raw map[string]any, state content.ToolState) []Event {
	t := d.toolPart(raw, state)
	if state != content.ToolInputStreaming {
		delete(d.inputTexts, t.ToolCallID)
	}
	return d.stamp(NewToolUpdate(t))
}

func (d *Decoder) toolPart(raw map[string]any, state content.ToolState) content.Tool {
	id := str(raw, "toolCallId")
	name := str(raw, "toolName")
	if name == "" {
		name = d.toolNames[id]
	} else {
		d.toolNames[id] = name
	}

	exec, _ := raw["providerExecuted"].(bool)
	return content.Tool{
		Name:             name,
		ToolCallID:       id,
		State:            state,
		Input:            raw["input"],
		Output:           raw["output"],
		ErrorText:        str(raw, "errorText"),
		ProviderExecuted: exec,
	}
}

func (d *Decoder) stamp(events ...Event) []Event {
	for i := range events {
		events[i].MessageID = d.messageID
	}
	return events
}

// partialInput returns the accumulated tool input as JSON when it already
// parses, and as raw text otherwise.
func partialInput(text string) any {
	if text == "" {
		return nil
	}
	var v any
	if err := sonic.UnmarshalString(text, &v); err == nil {
		return v
	}
	return text
}

func str(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func meta(raw map[string]any) map[string]any {
	m, _ := raw["providerMetadata"].(map[string]any)
	return m
}
