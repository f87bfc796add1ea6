// Package aggregator owns a conversation while responses stream into it.
//
// The Aggregator is the single writer of the conversation: it appends user
// messages, folds stream events into the in-flight assistant message and
// tracks the request status. Renderers read deep-copied snapshots and learn
// about changes through a Bus; they never touch the messages directly.
//
// Status transitions:
//
//	ready --submit--> submitted --first event--> streaming --stream end--> ready
//	any --transport error--> error --retry--> submitted
//	error --clear--> ready
//	ready|error --reset--> ready (empty conversation)
package aggregator

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/chats/chat"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
	"github.com/germanamz/chatstream/pkg/chats/toolcall"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/stream"
)

// Status is the request status of the conversation.
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

var (
	// ErrNotReady is returned when a submission is attempted while a request
	// is in flight or an error is waiting for retry.
	ErrNotReady = errors.New("aggregator: not ready to submit")
	// ErrNotInFlight is returned by Ingest when no request is in flight.
	ErrNotInFlight = errors.New("aggregator: no request in flight")
	// ErrNothingToRetry is returned by Retry outside the error status or when
	// there is no user message to resend.
	ErrNothingToRetry = errors.New("aggregator: nothing to retry")
)

// Trigger names why a request is sent.
type Trigger string

const (
	TriggerSubmit     Trigger = "submit-message"
	TriggerRegenerate Trigger = "regenerate-message"
)

// Request is what the transport must send after a submission.
type Request struct {
	Trigger Trigger
	// MessageID is the id of the user message the response answers.
	MessageID string
	// Messages is a deep copy of the conversation to send.
	Messages []message.Message
}

// Options configures an Aggregator.
type Options struct {
	Logger     *zap.Logger
	ToolPolicy toolcall.Policy
	Reasoning  extract.ReasoningPolicy
	NewID      func() string
	Bus        *Bus
	History    []message.Message
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithToolPolicy selects how out-of-protocol tool updates are handled.
func WithToolPolicy(p toolcall.Policy) Option {
	return func(o *Options) { o.ToolPolicy = p }
}

// WithReasoningPolicy selects how reasoning parts surface in snapshots.
func WithReasoningPolicy(p extract.ReasoningPolicy) Option {
	return func(o *Options) { o.Reasoning = p }
}

// WithIDGenerator replaces the uuid generator used for message and file ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) { o.NewID = fn }
}

// WithBus publishes changes on b instead of a private bus.
func WithBus(b *Bus) Option {
	return func(o *Options) { o.Bus = b }
}

// WithHistory seeds the conversation.
func WithHistory(msgs ...message.Message) Option {
	return func(o *Options) { o.History = msgs }
}

// Aggregator owns one conversation. It is safe for concurrent use; ingestion
// is expected from a single goroutine in arrival order.
type Aggregator struct {
	mu sync.RWMutex

	chat    *chat.Chat
	status  Status
	err     error
	errMsg  string
	tracker toolcall.Tracker

	// In-flight assistant message of the current turn, or -1.
	assistant int
	// Open text or reasoning part within the assistant message, or -1.
	open int

	log       *zap.Logger
	newID     func() string
	reasoning extract.ReasoningPolicy
	bus       *Bus
}

// New creates an Aggregator in the ready status.
func New(opts ...Option) *Aggregator {
	o := Options{
		ToolPolicy: toolcall.Permissive,
		Reasoning:  extract.ReasoningFirst,
		NewID:      uuid.NewString,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Bus == nil {
		o.Bus = NewBus()
	}

	history := make([]message.Message, len(o.History))
	for i, m := range o.History {
		history[i] = m.Clone()
	}

	a := &Aggregator{
		chat:      chat.New(history...),
		status:    StatusReady,
		assistant: -1,
		open:      -1,
		log:       logging.OrNop(o.Logger),
		newID:     o.NewID,
		reasoning: o.Reasoning,
		bus:       o.Bus,
	}
	a.tracker = toolcall.Tracker{
		Policy: o.ToolPolicy,
		OnViolation: func(e *toolcall.TransitionError) {
			a.log.Warn("out-of-protocol tool update",
				zap.String("tool_call_id", e.ToolCallID),
				zap.String("from", string(e.From)),
				zap.String("to", string(e.To)),
			)
		},
	}
	return a
}

// Bus returns the bus changes are published on.
func (a *Aggregator) Bus() *Bus {
	return a.bus
}

// AppendUserMessage appends a user message and moves to submitted. It is
// rejected with a *chaterr.ValidationError when text is blank and there are
// no attachments, and with ErrNotReady unless the status is ready. The
// message keeps the display form of each attachment (its URI); the
// transport sends the packaged form.
func (a *Aggregator) AppendUserMessage(text string, atts []attachment.Attachment) (Request, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusReady {
		return Request{}, ErrNotReady
	}
	if strings.TrimSpace(text) == "" && len(atts) == 0 {
		return Request{}, chaterr.NewValidation("text", "message is empty")
	}

	atts = append([]attachment.Attachment(nil), atts...)
	for i := range atts {
		if atts[i].ID == "" {
			atts[i].ID = a.newID()
		}
	}

	msg := message.New(a.newID(), role.User, attachment.DisplayParts(text, atts)...)
	a.chat.Append(msg)
	a.publish(Change{Kind: ChangeMessageAdded, Index: a.chat.Len() - 1, MessageID: msg.ID})

	return a.submitLocked(TriggerSubmit, msg.ID), nil
}

// Ingest folds one stream event into the conversation. Chunks and tool
// updates go to the in-flight assistant message, which is created by the
// first one; an error event is reported and a done event ends the stream.
// Mid-stream problems never surface as a returned error: they move the
// conversation to the error status instead.
func (a *Aggregator) Ingest(ev stream.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.inFlight() {
		return ErrNotInFlight
	}

	switch ev.Type {
	case stream.Error:
		a.reportErrorLocked(ev.Err)
		return nil
	case stream.Done:
		a.endStreamLocked()
		return nil
	case stream.Chunk, stream.ToolUpdate:
	default:
		a.log.Debug("ignoring stream event", zap.String("type", string(ev.Type)))
		return nil
	}

	if ev.Part == nil {
		return nil
	}
	if ev.Err != nil {
		a.log.Debug("malformed part kept as unknown", zap.Error(ev.Err))
	}

	idx := a.ensureAssistant(ev.MessageID)
	if a.status == StatusSubmitted {
		a.setStatus(StatusStreaming)
	}

	msg := a.chat.At(idx)
	if err := a.apply(&msg, ev.Part); err != nil {
		a.chat.Replace(idx, msg)
		a.reportErrorLocked(err)
		return nil
	}
	a.chat.Replace(idx, msg)
	a.publish(Change{Kind: ChangeMessageUpdated, Index: idx, MessageID: msg.ID})
	return nil
}

// EndStream ends the in-flight turn: the open part is committed and the
// status returns to ready. It is a no-op when nothing is in flight. A
// cancelled stream must end here, not through ReportError.
func (a *Aggregator) EndStream() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.inFlight() {
		return
	}
	a.endStreamLocked()
}

// ReportError moves the conversation to the error status. All messages are
// kept; a partial assistant message stays visible until retry.
func (a *Aggregator) ReportError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reportErrorLocked(err)
}

// Retry resends the last user message after an error. A trailing partial
// assistant message from the failed turn is dropped first.
func (a *Aggregator) Retry() (Request, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusError {
		return Request{}, ErrNothingToRetry
	}

	userIdx := a.chat.LastIndexOf(role.User)
	if userIdx < 0 {
		return Request{}, ErrNothingToRetry
	}

	if last := a.chat.Len() - 1; last > userIdx && a.chat.At(last).Role == role.Assistant {
		a.removeLocked(last)
	}

	return a.submitLocked(TriggerSubmit, a.chat.At(userIdx).ID), nil
}

// Regenerate asks for a new answer to the last user message. It is only
// valid in the ready or error status with at least one assistant message;
// otherwise it does nothing and returns false. The most recent assistant
// message is removed when it is the final message.
func (a *Aggregator) Regenerate() (Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusReady && a.status != StatusError {
		return Request{}, false
	}

	asstIdx := a.chat.LastIndexOf(role.Assistant)
	if asstIdx < 0 {
		return Request{}, false
	}

	userIdx := a.chat.LastIndexOf(role.User)
	if userIdx < 0 {
		return Request{}, false
	}

	userID := a.chat.At(userIdx).ID
	if asstIdx == a.chat.Len()-1 {
		a.removeLocked(asstIdx)
	}

	return a.submitLocked(TriggerRegenerate, userID), true
}

// ClearError dismisses an error and returns to ready without resending.
func (a *Aggregator) ClearError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusError {
		return
	}
	a.err, a.errMsg = nil, ""
	a.setStatus(StatusReady)
}

// Status returns the current status.
func (a *Aggregator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Err returns the error that moved the conversation to the error status.
func (a *Aggregator) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// ErrorMessage returns the displayable form of Err.
func (a *Aggregator) ErrorMessage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errMsg
}

// Busy reports whether a request is in flight.
func (a *Aggregator) Busy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inFlight()
}

// CanSubmit reports whether a message with the given text and number of
// attachments would be accepted right now.
func (a *Aggregator) CanSubmit(text string, attachments int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status == StatusReady && (strings.TrimSpace(text) != "" || attachments > 0)
}

// Len returns the number of messages.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chat.Len()
}

// Messages returns a deep copy of the conversation.
func (a *Aggregator) Messages() []message.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chat.Clone().Messages()
}

// LastAssistant returns a deep copy of the most recent assistant message.
func (a *Aggregator) LastAssistant() (message.Message, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i := a.chat.LastIndexOf(role.Assistant)
	if i < 0 {
		return message.Message{}, false
	}
	return a.chat.At(i).Clone(), true
}

// Reset empties the conversation and dismisses any error. It returns
// ErrNotReady while a request is in flight.
func (a *Aggregator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inFlight() {
		return ErrNotReady
	}
	for i := a.chat.Len() - 1; i >= 0; i-- {
		a.removeLocked(i)
	}
	a.err, a.errMsg = nil, ""
	a.assistant, a.open = -1, -1
	a.setStatus(StatusReady)
	return nil
}

func (a *Aggregator) inFlight() bool {
	return a.status == StatusSubmitted || a.status == StatusStreaming
}

func (a *Aggregator) submitLocked(trigger Trigger, userID string) Request {
	a.err, a.errMsg = nil, ""
	a.assistant, a.open = -1, -1
	a.setStatus(StatusSubmitted)

	return Request{
		Trigger:   trigger,
		MessageID: userID,
		Messages:  a.chat.Clone().Messages(),
	}
}

func (a *Aggregator) ensureAssistant(id string) int {
	if a.assistant >= 0 {
		return a.assistant
	}

	if id == "" || a.chat.IndexOf(id) >= 0 {
		id = a.newID()
	}
	a.chat.Append(message.New(id, role.Assistant))
	a.assistant = a.chat.Len() - 1
	a.open = -1
	a.publish(Change{Kind: ChangeMessageAdded, Index: a.assistant, MessageID: id})
	return a.assistant
}

func (a *Aggregator) apply(msg *message.Message, p content.Part) error {
	switch part := p.(type) {
	case content.Text, content.Reasoning:
		a.applyStreaming(msg, part)
		return nil
	case content.Tool:
		a.commitOpen(msg)
		parts, res, err := a.tracker.Apply(msg.Parts, content.Clone(part).(content.Tool))
		if err != nil {
			return err
		}
		msg.Parts = parts
		if res.Appended {
			a.log.Debug("tool call started",
				zap.String("tool_call_id", part.ToolCallID),
				zap.String("tool", part.Name),
			)
		}
		return nil
	case content.File:
		a.commitOpen(msg)
		if part.ID == "" {
			part.ID = a.newID()
		}
		msg.Parts = append(msg.Parts, part)
		return nil
	default:
		a.commitOpen(msg)
		msg.Parts = append(msg.Parts, content.Clone(part))
		return nil
	}
}

// applyStreaming continues the open part when p has the same kind, or
// starts a new part.
func (a *Aggregator) applyStreaming(msg *message.Message, p content.Part) {
	if a.open >= 0 {
		if merged, ok := continuePart(msg.Parts[a.open], p); ok {
			msg.Parts[a.open] = merged
			if partState(merged) != content.StateStreaming {
				a.open = -1
			}
			return
		}
		a.commitOpen(msg)
	}

	// A bare end marker with nothing open closes nothing.
	if partState(p) == content.StateDone && partText(p) == "" {
		return
	}

	msg.Parts = append(msg.Parts, content.Clone(p))
	if partState(p) == content.StateStreaming {
		a.open = len(msg.Parts) - 1
	}
}

// commitOpen freezes the open part in the done state.
func (a *Aggregator) commitOpen(msg *message.Message) {
	if a.open < 0 || a.open >= len(msg.Parts) {
		a.open = -1
		return
	}

	switch p := msg.Parts[a.open].(type) {
	case content.Text:
		p.State = content.StateDone
		msg.Parts[a.open] = p
	case content.Reasoning:
		p.State = content.StateDone
		msg.Parts[a.open] = p
	}
	a.open = -1
}

func continuePart(open, next content.Part) (content.Part, bool) {
	switch o := open.(type) {
	case content.Text:
		n, ok := next.(content.Text)
		if !ok || o.State != content.StateStreaming {
			return nil, false
		}
		o.Text += n.Text
		if n.State != "" {
			o.State = n.State
		}
		return o, true
	case content.Reasoning:
		n, ok := next.(content.Reasoning)
		if !ok || o.State != content.StateStreaming {
			return nil, false
		}
		o.Text += n.Text
		if n.State != "" {
			o.State = n.State
		}
		if len(n.Metadata) > 0 {
			merged := make(map[string]any, len(o.Metadata)+len(n.Metadata))
			for k, v := range o.Metadata {
				merged[k] = v
			}
			for k, v := range n.Metadata {
				merged[k] = v
			}
			o.Metadata = merged
		}
		return o, true
	}
	return nil, false
}

func partState(p content.Part) content.State {
	switch v := p.(type) {
	case content.Text:
		return v.State
	case content.Reasoning:
		return v.State
	}
	return content.StateNone
}

func partText(p content.Part) string {
	switch v := p.(type) {
	case content.Text:
		return v.Text
	case content.Reasoning:
		return v.Text
	}
	return ""
}

func (a *Aggregator) endStreamLocked() {
	if a.assistant >= 0 && a.assistant < a.chat.Len() {
		msg := a.chat.At(a.assistant)
		a.commitOpen(&msg)
		a.chat.Replace(a.assistant, msg)

		if pending := toolcall.Pending(msg.Parts); len(pending) > 0 {
			ids := make([]string, len(pending))
			for i, t := range pending {
				ids[i] = t.ToolCallID
			}
			a.log.Warn("stream ended with unfinished tool calls",
				zap.String("message_id", msg.ID),
				zap.Strings("tool_call_ids", ids),
			)
		}
		a.publish(Change{Kind: ChangeMessageUpdated, Index: a.assistant, MessageID: msg.ID})
	}

	a.assistant, a.open = -1, -1
	a.setStatus(StatusReady)
}

func (a *Aggregator) reportErrorLocked(err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	if a.assistant >= 0 && a.assistant < a.chat.Len() {
		msg := a.chat.At(a.assistant)
		a.commitOpen(&msg)
		a.chat.Replace(a.assistant, msg)
	}

	a.log.Error("request failed", zap.Error(err), zap.String("status", string(a.status)))

	a.err = err
	a.errMsg = chaterr.Message(err)
	a.assistant, a.open = -1, -1
	a.setStatus(StatusError)
}

func (a *Aggregator) removeLocked(i int) {
	removed := a.chat.RemoveAt(i)
	a.publish(Change{Kind: ChangeMessageRemoved, Index: i, MessageID: removed.ID})
}

func (a *Aggregator) setStatus(s Status) {
	if a.status == s {
		return
	}
	a.log.Debug("status", zap.String("from", string(a.status)), zap.String("to", string(s)))
	a.status = s
	a.publish(Change{Kind: ChangeStatus, Status: s})
}

func (a *Aggregator) publish(c Change) {
	if c.Status == "" {
		c.Status = a.status
	}
	a.bus.Publish(c)
}
