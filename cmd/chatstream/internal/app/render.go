package app

import (
	"fmt"
	"strings"

	"github.com/germanamz/chatstream/cmd/chatstream/internal/format"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/styles"
	"github.com/germanamz/chatstream/pkg/aggregator"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/role"
)

// RenderSnapshot paints the whole conversation. copiedID marks the message
// whose text was just copied.
func RenderSnapshot(snap aggregator.Snapshot, width int, copiedID string) string {
	blocks := make([]string, 0, len(snap.Rows)+1)

	for _, row := range snap.Rows {
		var b string
		switch row.Message.Role {
		case role.User:
			b = renderUser(row)
		case role.Assistant:
			b = renderAssistant(row, copiedID)
		default:
			continue
		}
		blocks = append(blocks, b)
	}

	if snap.Status == aggregator.StatusError {
		msg := snap.ErrorMessage
		if msg == "" {
			msg = "request failed"
		}
		blocks = append(blocks, styles.ErrorBlockStyle.Width(max(width-2, 10)).Render(
			styles.ToolErrorStyle.Render("error: "+msg)+"\n"+
				styles.DimStyle.Render("/retry to resend · /regenerate for a new answer · /clear to dismiss"),
		))
	}

	return strings.Join(blocks, "\n\n")
}

// RenderSuggestions paints the prompts offered on an empty conversation.
func RenderSuggestions(items []string) string {
	if len(items) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(styles.AnswerPrefixStyle.Render(" Try asking"))
	for i, s := range items {
		fmt.Fprintf(&sb, "\n  %s %s", styles.ActionStyle.Render(fmt.Sprintf("%d.", i+1)), s)
	}
	sb.WriteString("\n\n ")
	sb.WriteString(styles.DimStyle.Render("/suggest <n> to send one"))
	return sb.String()
}

func renderUser(row aggregator.Row) string {
	var sb strings.Builder
	sb.WriteString(styles.UserBlockStyle.Render(format.RenderUserMessage(row.View.Text)))
	for _, a := range row.View.Attachments {
		sb.WriteString("\n   ")
		sb.WriteString(format.AttachmentChip(a))
	}
	return sb.String()
}

func renderAssistant(row aggregator.Row, copiedID string) string {
	v := row.View
	parts := []string{styles.AnswerPrefixStyle.Render("🤖 Assistant")}

	if v.Reasoning != nil && v.Reasoning.Content != "" {
		parts = append(parts, renderReasoning(*v.Reasoning))
	}

	for _, tc := range v.ToolCalls {
		parts = append(parts, renderToolCall(tc))
	}

	if v.Text != "" {
		parts = append(parts, styles.AnswerBlockStyle.Render(format.RenderMarkdown(v.Text)))
	}

	if len(v.Sources) > 0 {
		parts = append(parts, renderSources(v.Sources))
	}

	for _, a := range v.Attachments {
		parts = append(parts, " "+format.AttachmentChip(a))
	}

	if row.ShowActions {
		if actions := renderActions(row, copiedID); actions != "" {
			parts = append(parts, actions)
		}
	}

	return strings.Join(parts, "\n")
}

func renderReasoning(r extract.ReasoningData) string {
	var sb strings.Builder
	for i, line := range strings.Split(r.Content, "\n") {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(" ")
		sb.WriteString(styles.TreePipe)
		sb.WriteString(styles.ReasoningStyle.Render(line))
	}

	footer := "💭 reasoning"
	if d := format.Duration(r.Duration); d != "" {
		footer += " · " + d
	}
	sb.WriteString("\n ")
	sb.WriteString(styles.TreeCorner)
	sb.WriteString(styles.ReasoningFooterStyle.Render(footer))
	return sb.String()
}

func renderToolCall(tc extract.ToolCall) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, " 🔧 %s %s", styles.ToolNameStyle.Render(tc.Name), styles.DimStyle.Render(toolStateLabel(tc)))

	if in := format.Payload(tc.Input); in != "" {
		writeIndented(&sb, "in: "+in, styles.ToolResultStyle.Render)
	}

	switch tc.State {
	case content.ToolOutputAvailable:
		if out := format.Payload(tc.Output); out != "" {
			writeIndented(&sb, "out: "+out, styles.ToolResultStyle.Render)
		}
	case content.ToolOutputError:
		text := tc.ErrorText
		if text == "" {
			text = "tool failed"
		}
		writeIndented(&sb, "error: "+format.Truncate(text, format.MaxPayloadWidth), styles.ToolErrorStyle.Render)
	}

	return sb.String()
}

func toolStateLabel(tc extract.ToolCall) string {
	label := string(tc.State)
	switch tc.State {
	case content.ToolInputStreaming, "":
		label = "preparing…"
	case content.ToolInputAvailable:
		label = "running…"
	case content.ToolOutputAvailable:
		label = "done"
	case content.ToolOutputError:
		label = "failed"
	}
	if tc.ProviderExecuted {
		label += " (provider)"
	}
	return label
}

func writeIndented(sb *strings.Builder, text string, render func(...string) string) {
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("\n    ")
		sb.WriteString(render(line))
	}
}

func renderSources(sources []extract.SourceData) string {
	var sb strings.Builder
	sb.WriteString(styles.DimStyle.Render(" Sources"))
	for i, s := range sources {
		sb.WriteString("\n ")
		if i == len(sources)-1 {
			sb.WriteString(styles.TreeCorner)
		} else {
			sb.WriteString(styles.TreePipe)
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, s.Title)
		if s.Href != "" {
			sb.WriteString(" ")
			sb.WriteString(styles.SourceStyle.Render(s.Href))
		}
	}
	return sb.String()
}

func renderActions(row aggregator.Row, copiedID string) string {
	var actions []string

	if row.Message.ID == copiedID {
		actions = append(actions, styles.CopiedStyle.Render("✓ copied"))
	} else if row.IsLastAssistant && row.View.Text != "" {
		actions = append(actions, "/copy")
	}

	if row.CanRegenerate {
		actions = append(actions, "/regenerate")
	}

	if len(actions) == 0 {
		return ""
	}
	return " " + styles.ActionStyle.Render(strings.Join(actions, " · "))
}
