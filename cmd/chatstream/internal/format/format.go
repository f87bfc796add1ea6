package format

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/mattn/go-runewidth"

	"github.com/germanamz/chatstream/cmd/chatstream/internal/styles"
	"github.com/germanamz/chatstream/pkg/attachment"
)

// MaxPayloadWidth caps tool inputs and outputs in the conversation view.
const MaxPayloadWidth = 500

// Ellipsis marks truncated payloads.
const Ellipsis = "…"

// IsDarkBG is set once before bubbletea starts (in main.go) so that glamour
// never issues its own OSC 11 query while the program is running.
var IsDarkBG bool

// SpinnerFrames are braille characters for smooth animation.
var SpinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

var (
	mdRenderer      *glamour.TermRenderer
	mdRendererMu    sync.Mutex
	mdRendererWidth int
)

// InitMarkdownRenderer initializes the glamour renderer at the given width.
func InitMarkdownRenderer(width int) {
	if width <= 0 {
		width = 100
	}
	mdRendererMu.Lock()
	defer mdRendererMu.Unlock()
	if width == mdRendererWidth && mdRenderer != nil {
		return
	}
	// glamour.WithAutoStyle() must not be used: it queries the terminal
	// (OSC 11), which races with bubbletea's input handling.
	style := glamourstyles.LightStyleConfig
	if IsDarkBG {
		style = glamourstyles.DarkStyleConfig
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
	mdRendererWidth = width
}

// RenderMarkdown converts markdown text to terminal-formatted output.
func RenderMarkdown(text string) string {
	mdRendererMu.Lock()
	r := mdRenderer
	mdRendererMu.Unlock()
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Truncate shortens s to at most n display columns, appending "…" when cut.
func Truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return runewidth.Truncate(s, n, Ellipsis)
}

// Payload renders a tool input or output for display: strings as they are,
// anything else as indented JSON, truncated to MaxPayloadWidth columns.
func Payload(v any) string {
	if v == nil {
		return ""
	}

	s, ok := v.(string)
	if !ok {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(data)
		}
	}

	return Truncate(s, MaxPayloadWidth)
}

// Duration renders a reasoning duration. Numbers are seconds.
func Duration(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case float64:
		return FmtDuration(time.Duration(d * float64(time.Second)))
	case string:
		return d
	}
	return fmt.Sprintf("%v", v)
}

// FmtDuration formats a duration for display.
func FmtDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, sec)
}

// AttachmentChip renders one pending or sent attachment.
func AttachmentChip(a attachment.Attachment) string {
	label := "📎 " + a.Name
	if a.Size > 0 {
		label += " (" + attachment.FormatSize(a.Size) + ")"
	}
	return styles.AttachmentStyle.Render(label)
}

// RenderUserMessage formats a user message for display.
func RenderUserMessage(text string) string {
	header := styles.UserPrefixStyle.Render("🧑 You")
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n ")
	sb.WriteString(styles.TreeCorner)
	sb.WriteString(lines[0])
	for _, line := range lines[1:] {
		sb.WriteString("\n   ")
		sb.WriteString(line)
	}
	return sb.String()
}
