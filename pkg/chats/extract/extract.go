// Package extract folds a message's parts into the derived views a renderer
// paints: text, reasoning, sources, attachments and tool calls.
//
// Every function is pure and linear in the number of parts. Unknown parts are
// skipped by all of them. Views are projections; the parts stay the source of
// truth and callers recompute views whenever the parts change.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/message"
)

// DefaultSourceTitle is shown for sources the provider sent without a title.
const DefaultSourceTitle = "Source"

// ReasoningPolicy decides how several reasoning parts in one message surface.
type ReasoningPolicy string

const (
	// ReasoningFirst surfaces only the first reasoning part.
	ReasoningFirst ReasoningPolicy = "first"
	// ReasoningMerge joins every reasoning part into one block.
	ReasoningMerge ReasoningPolicy = "merge"
)

// ParseReasoningPolicy parses a policy name. An empty name is ReasoningFirst.
func ParseReasoningPolicy(s string) (ReasoningPolicy, error) {
	switch ReasoningPolicy(strings.ToLower(s)) {
	case "", ReasoningFirst:
		return ReasoningFirst, nil
	case ReasoningMerge:
		return ReasoningMerge, nil
	}
	return "", fmt.Errorf("extract: unknown reasoning policy %q", s)
}

// Options configures the extractors.
type Options struct {
	Reasoning ReasoningPolicy
}

// Option mutates Options.
type Option func(*Options)

// WithReasoningPolicy selects how multiple reasoning parts are surfaced.
func WithReasoningPolicy(p ReasoningPolicy) Option {
	return func(o *Options) { o.Reasoning = p }
}

func buildOptions(opts []Option) Options {
	o := Options{Reasoning: ReasoningFirst}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ReasoningData is the reasoning block of a message. Duration is nil, a
// float64 number of seconds, or the string the provider sent.
type ReasoningData struct {
	Content  string
	Duration any
}

// SourceData is one citation. Href is only set for URL sources.
type SourceData struct {
	Href        string
	Title       string
	Description string
	SourceID    string
}

// ToolCall is the derived record of one tool call.
type ToolCall struct {
	Name             string
	ToolCallID       string
	State            content.ToolState
	Input            any
	Output           any
	ErrorText        string
	ProviderExecuted bool
}

// View bundles every derived view of a message.
type View struct {
	Text        string
	Reasoning   *ReasoningData
	Sources     []SourceData
	Attachments []attachment.Attachment
	ToolCalls   []ToolCall
}

// Build computes every view of msg.
func Build(msg message.Message, opts ...Option) View {
	return View{
		Text:        Text(msg.Parts),
		Reasoning:   Reasoning(msg.Parts, opts...),
		Sources:     Sources(msg.Parts),
		Attachments: Attachments(msg.Parts),
		ToolCalls:   ToolCalls(msg.Parts),
	}
}

// Text concatenates the text of every text part, in order, with no separator.
func Text(parts []content.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// Reasoning returns the reasoning block of parts, or nil when there is none.
func Reasoning(parts []content.Part, opts ...Option) *ReasoningData {
	blocks := ReasoningBlocks(parts)
	if len(blocks) == 0 {
		return nil
	}

	if buildOptions(opts).Reasoning != ReasoningMerge || len(blocks) == 1 {
		return &blocks[0]
	}

	texts := make([]string, 0, len(blocks))
	var duration any
	for _, b := range blocks {
		if b.Content != "" {
			texts = append(texts, b.Content)
		}
		if duration == nil {
			duration = b.Duration
		}
	}
	return &ReasoningData{Content: strings.Join(texts, "\n\n"), Duration: duration}
}

// ReasoningBlocks returns one entry per reasoning part, in order.
func ReasoningBlocks(parts []content.Part) []ReasoningData {
	var blocks []ReasoningData
	for _, p := range parts {
		if r, ok := p.(content.Reasoning); ok {
			blocks = append(blocks, ReasoningData{Content: r.Text, Duration: duration(r.Metadata)})
		}
	}
	return blocks
}

// duration reads "duration" (seconds or string), else "latencyMs"
// (milliseconds, converted to seconds).
func duration(meta map[string]any) any {
	if meta == nil {
		return nil
	}
	if v, ok := meta["duration"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		if f, ok := number(v); ok {
			return f
		}
	}
	if ms, ok := number(meta["latencyMs"]); ok {
		return ms / 1000
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ String() string }:
		// json.Number and sonic's ast numbers.
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// Sources maps URL and document sources to citations, in arrival order.
// Documents carry a title only.
func Sources(parts []content.Part) []SourceData {
	var out []SourceData
	for _, p := range parts {
		switch s := p.(type) {
		case content.SourceURL:
			out = append(out, SourceData{Href: s.URL, Title: titleOrDefault(s.Title), SourceID: s.SourceID})
		case content.SourceDocument:
			out = append(out, SourceData{Title: titleOrDefault(s.Title), SourceID: s.SourceID})
		}
	}
	return out
}

func titleOrDefault(t string) string {
	if t == "" {
		return DefaultSourceTitle
	}
	return t
}

// Attachments maps file parts to attachments. Parts ingested by the
// aggregator carry a durable id; other parts fall back to "att-<index>",
// which is only good as a render key.
func Attachments(parts []content.Part) []attachment.Attachment {
	var out []attachment.Attachment
	for _, p := range parts {
		f, ok := p.(content.File)
		if !ok {
			continue
		}

		n := len(out)
		a := attachment.Attachment{
			ID:       f.ID,
			Name:     f.Filename,
			MimeType: f.MediaType,
			URI:      f.URL,
		}
		if a.ID == "" {
			a.ID = "att-" + strconv.Itoa(n)
		}
		if a.Name == "" {
			a.Name = "Attachment " + strconv.Itoa(n+1)
		}
		if a.MimeType == "" {
			a.MimeType = attachment.MIMEOctetStream
		}
		out = append(out, a)
	}
	return out
}

// ToolCalls maps tool parts to records, in arrival order.
func ToolCalls(parts []content.Part) []ToolCall {
	var out []ToolCall
	for _, p := range parts {
		if t, ok := p.(content.Tool); ok {
			out = append(out, ToolCall{
				Name:             t.Name,
				ToolCallID:       t.ToolCallID,
				State:            t.State,
				Input:            t.Input,
				Output:           t.Output,
				ErrorText:        t.ErrorText,
				ProviderExecuted: t.ProviderExecuted,
			})
		}
	}
	return out
}
