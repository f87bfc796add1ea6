package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/germanamz/chatstream/cmd/chatstream/internal/bridge"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/format"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/msgs"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/styles"
	"github.com/germanamz/chatstream/pkg/aggregator"
	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/session"
	"github.com/germanamz/chatstream/pkg/transport"
)

const (
	inputMinHeight = 1
	inputMaxHeight = 5
	copiedFor      = 500 * time.Millisecond
)

// Option configures a Model.
type Option func(*Model)

// WithSuggestions sets the prompts offered while the conversation is empty.
func WithSuggestions(items []string) Option {
	return func(m *Model) { m.suggestions = items }
}

// WithRateLimit sets the source of the rate limit shown in the status line.
func WithRateLimit(fn func() *transport.RateLimitInfo) Option {
	return func(m *Model) { m.rateLimit = fn }
}

// Model is the root bubbletea model.
type Model struct {
	ctx          context.Context
	sess         *session.Session
	agg          *aggregator.Aggregator
	cancelBridge context.CancelFunc

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	spinning bool
	enabled  bool

	pending     attachment.List
	notice      string
	copiedID    string
	lastTurn    time.Duration
	suggestions []string
	rateLimit   func() *transport.RateLimitInfo
	width       int
	height      int

	// Clipboard writer, replaceable in tests.
	copy func(string) error
}

// New creates the root model for sess.
func New(ctx context.Context, sess *session.Session, opts ...Option) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message... (/help for commands)"
	ta.ShowLineNumbers = false
	ta.SetHeight(inputMinHeight)
	ta.CharLimit = 0
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = lipgloss.NewStyle()
	ta.BlurredStyle.Prompt = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{Frames: format.SpinnerFrames, FPS: 100 * time.Millisecond}
	sp.Style = styles.SpinnerStyle

	m := Model{
		ctx:      ctx,
		sess:     sess,
		agg:      sess.Aggregator(),
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		copy:     clipboard.WriteAll,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	// Delay focusing the input so that stale terminal escape-sequence
	// responses (e.g. OSC 11 background-color) are drained first.
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return msgs.InitDrainMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case msgs.InitDrainMsg:
		m.enabled = true
		return m, m.input.Focus()

	case msgs.ProgramReadyMsg:
		m.cancelBridge = bridge.Start(m.ctx, msg.Program, m.agg.Bus())
		return m, nil

	case msgs.ChangeMsg:
		m.refresh()
		return m, m.startSpinner()

	case spinner.TickMsg:
		if !m.agg.Busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case msgs.SendCompleteMsg:
		return m.handleComplete(msg)

	case msgs.CopiedExpiredMsg:
		if m.copiedID == msg.MessageID {
			m.copiedID = ""
			m.refresh()
		}
		return m, nil
	}

	if !m.enabled {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.pendingView(),
		m.inputView(),
		m.statusView(),
	)
}

// Close stops the bridge and any request in flight.
func (m Model) Close() {
	m.sess.Stop()
	if m.cancelBridge != nil {
		m.cancelBridge()
	}
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	format.InitMarkdownRenderer(m.width - 4)
	m.input.SetWidth(max(m.width-4, 10))
	m.refresh()

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.Close()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.sess.Busy() {
			m.sess.Stop()
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		if msg.Alt || !m.enabled {
			break
		}
		return m.handleSubmit(m.input.Value())
	}

	if !m.enabled {
		return m, nil
	}

	// Pre-set max height so the textarea has room during Update, then shrink
	// to the content.
	m.input.SetHeight(inputMaxHeight)
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.input.SetHeight(min(max(m.input.LineCount(), inputMinHeight), inputMaxHeight))
	m.layout()
	return m, cmd
}

func (m Model) handleSubmit(text string) (Model, tea.Cmd) {
	m.notice = ""

	if cmd, ok := ParseCommand(text); ok {
		m.resetInput()
		return m.runCommand(cmd)
	}

	return m.send(text)
}

// send submits text with the pending attachments. Submitting is disabled
// until the conversation is ready and there is something to send.
func (m Model) send(text string) (Model, tea.Cmd) {
	if m.sess.Busy() || !m.agg.CanSubmit(text, m.pending.Len()) {
		return m, nil
	}

	draft := &msgs.Draft{Text: text, Attachments: m.pending.Items()}
	m.pending.Clear()
	m.resetInput()
	m.layout()

	sess, ctx := m.sess, m.ctx
	return m, request(draft, func() error { return sess.Send(ctx, draft.Text, draft.Attachments) })
}

func (m Model) handleComplete(msg msgs.SendCompleteMsg) (Model, tea.Cmd) {
	m.lastTurn = msg.Duration

	// Transport failures are already shown by the conversation's error
	// banner. Anything else was rejected before the message was appended.
	if msg.Err != nil && m.ctx.Err() == nil {
		var rl *chaterr.RateLimitError
		switch {
		case errors.As(msg.Err, &rl) && rl.RetryAfter > 0:
			m.notice = "rate limited: /retry in " + format.FmtDuration(rl.RetryAfter)
		case !chaterr.IsTransport(msg.Err):
			m.notice = chaterr.Message(msg.Err)
			if msg.Draft != nil {
				m.restoreDraft(*msg.Draft)
			}
		}
	}

	m.refresh()
	return m, nil
}

// restoreDraft puts a rejected message back into the composer unless the
// user has started typing something else.
func (m *Model) restoreDraft(d msgs.Draft) {
	if m.input.Value() == "" {
		m.input.SetValue(d.Text)
	}
	m.pending.Add(d.Attachments...)
}

func (m Model) runCommand(c Command) (Model, tea.Cmd) {
	sess, ctx := m.sess, m.ctx

	switch c.Name {
	case "quit", "exit":
		m.Close()
		return m, tea.Quit

	case "help":
		m.notice = helpText()

	case "attach":
		a, err := AttachmentFromPath(c.Arg)
		if err != nil {
			m.notice = err.Error()
			break
		}
		m.pending.Add(a)

	case "detach":
		if err := Detach(&m.pending, c.Arg); err != nil {
			m.notice = err.Error()
		}

	case "suggest":
		text, err := Suggestion(m.suggestions, c.Arg)
		if err != nil {
			m.notice = err.Error()
			break
		}
		return m.send(text)

	case "regenerate":
		return m, request(nil, func() error { return sess.Regenerate(ctx) })

	case "retry":
		return m, request(nil, func() error { return sess.Retry(ctx) })

	case "clear":
		m.agg.ClearError()

	case "new":
		if err := sess.Reset(); err != nil {
			m.notice = chaterr.Message(err)
			break
		}
		m.lastTurn = 0
		m.copiedID = ""
		m.refresh()

	case "copy":
		return m.copyLast()

	default:
		m.notice = "unknown command /" + c.Name + " (try /help)"
	}

	m.layout()
	return m, nil
}

// request runs fn off the update loop and reports its outcome along with
// the draft it submitted, if any.
func request(draft *msgs.Draft, fn func() error) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		err := fn()
		return msgs.SendCompleteMsg{Err: err, Duration: time.Since(start), Draft: draft}
	}
}

func (m Model) copyLast() (Model, tea.Cmd) {
	msg, ok := m.agg.LastAssistant()
	if !ok {
		m.notice = "nothing to copy yet"
		return m, nil
	}

	if err := m.copy(extract.Text(msg.Parts)); err != nil {
		m.notice = "copy failed: " + err.Error()
		return m, nil
	}

	m.copiedID = msg.ID
	m.refresh()

	id := msg.ID
	return m, tea.Tick(copiedFor, func(time.Time) tea.Msg {
		return msgs.CopiedExpiredMsg{MessageID: id}
	})
}

func (m *Model) startSpinner() tea.Cmd {
	if m.spinning || !m.agg.Busy() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *Model) resetInput() {
	m.input.Reset()
	m.input.SetHeight(inputMinHeight)
}

// refresh repaints the conversation, following the tail when the view was
// already at the bottom.
func (m *Model) refresh() {
	m.layout()

	follow := m.viewport.AtBottom()
	snap := m.agg.Snapshot()
	if len(snap.Rows) == 0 && snap.Status == aggregator.StatusReady {
		m.viewport.SetContent(RenderSuggestions(m.suggestions))
	} else {
		m.viewport.SetContent(RenderSnapshot(snap, m.width, m.copiedID))
	}
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	chrome := lipgloss.Height(m.inputView()) + lipgloss.Height(m.statusView())
	if p := m.pendingView(); p != "" {
		chrome += lipgloss.Height(p)
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 1)
}

func (m Model) inputView() string {
	border := styles.FocusedBorder
	if !m.enabled || m.agg.Status() != aggregator.StatusReady {
		border = styles.DisabledBorder
	}
	return border.Width(max(m.width-2, 10)).Render(m.input.View())
}

func (m Model) pendingView() string {
	items := m.pending.Items()
	if len(items) == 0 {
		return ""
	}

	chips := make([]string, 0, len(items))
	for _, a := range items {
		chips = append(chips, format.AttachmentChip(a))
	}
	return " " + lipgloss.JoinHorizontal(lipgloss.Top, joinSpaced(chips)...)
}

func (m Model) statusView() string {
	var line string
	switch st := m.agg.Status(); st {
	case aggregator.StatusSubmitted:
		line = m.spinner.View() + " waiting for the model… (esc to stop)"
	case aggregator.StatusStreaming:
		line = m.spinner.View() + " streaming… (esc to stop)"
	case aggregator.StatusError:
		line = "error"
	default:
		line = "ready"
		if m.sess.Busy() {
			line = "preparing attachments… (esc to stop)"
		} else if m.lastTurn > 0 {
			line += " · last turn " + format.FmtDuration(m.lastTurn)
		}
	}
	if rl := m.rateLimitView(); rl != "" {
		line += " · " + rl
	}

	out := styles.StatusStyle.Render(" " + line)
	if m.notice != "" {
		out += "\n" + styles.DimStyle.Render(m.notice)
	}
	return out
}

func (m Model) rateLimitView() string {
	if m.rateLimit == nil {
		return ""
	}
	info := m.rateLimit()
	if info == nil {
		return ""
	}

	var parts []string
	if info.RemainingRequests > 0 {
		parts = append(parts, humanize.Comma(int64(info.RemainingRequests))+" requests left")
	}
	if info.RemainingTokens > 0 {
		parts = append(parts, humanize.Comma(int64(info.RemainingTokens))+" tokens left")
	}
	if len(parts) == 0 {
		parts = append(parts, "rate limit reached")
	}
	return strings.Join(parts, " · ")
}

func joinSpaced(items []string) []string {
	out := make([]string, 0, len(items)*2)
	for i, s := range items {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, s)
	}
	return out
}
