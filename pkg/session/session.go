// Package session drives one conversation against a streaming endpoint.
//
// A Session ties an aggregator to a transport: it packages attachments,
// submits, streams the response into the aggregator and lets another
// goroutine stop the request. At most one request is in flight at a time.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/germanamz/chatstream/pkg/aggregator"
	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chats/content"
	"github.com/germanamz/chatstream/pkg/chats/message"
	"github.com/germanamz/chatstream/pkg/chats/role"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/transport"
)

var (
	// ErrBusy is returned when a request is already in flight.
	ErrBusy = errors.New("session: request in flight")
	// ErrNothingToRegenerate is returned when there is no answer to replace.
	ErrNothingToRegenerate = errors.New("session: nothing to regenerate")
)

// Option configures a Session.
type Option func(*Session)

// WithPackager sets the packager used for outbound attachments. The default
// reads local files.
func WithPackager(p *attachment.Packager) Option {
	return func(s *Session) { s.packager = p }
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(s *Session) { s.model = model }
}

// WithChatID sets the conversation id sent with every request. The default
// is a fresh uuid.
func WithChatID(id string) Option {
	return func(s *Session) { s.chatID = id }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session sends requests for one conversation.
type Session struct {
	agg      *aggregator.Aggregator
	streamer transport.Streamer
	packager *attachment.Packager
	model    string
	chatID   string
	log      *zap.Logger

	// run is held for the whole life of a request, packaging included.
	run    sync.Mutex
	active atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	// Packaged parts of each user message, keyed by message id. Resends
	// reuse them; the conversation keeps the display parts.
	outbound map[string][]content.Part
}

// New creates a Session over agg that streams through st.
func New(agg *aggregator.Aggregator, st transport.Streamer, opts ...Option) *Session {
	s := &Session{
		agg:      agg,
		streamer: st,
		outbound: make(map[string][]content.Part),
	}
	for _, o := range opts {
		o(s)
	}

	if s.packager == nil {
		s.packager = &attachment.Packager{Opener: attachment.FileOpener{}}
	}
	if s.chatID == "" {
		s.chatID = uuid.NewString()
	}
	s.log = logging.OrNop(s.log)

	return s
}

// Aggregator returns the aggregator the session writes to.
func (s *Session) Aggregator() *aggregator.Aggregator { return s.agg }

// ChatID returns the conversation id.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Busy reports whether a request is running. Unlike the aggregator status
// it covers attachment packaging, before anything is submitted.
func (s *Session) Busy() bool { return s.active.Load() }

// Send packages the attachments, appends the user message and streams the
// answer into the aggregator. It blocks until the stream ends.
//
// Validation and packaging errors are returned before anything is appended.
// A Stop during packaging drops the message and returns nil. A failure to
// open the stream is reported to the aggregator and returned; failures
// after that only move the aggregator to the error status.
func (s *Session) Send(ctx context.Context, text string, atts []attachment.Attachment) error {
	ctx, end, ok := s.begin(ctx)
	if !ok {
		return ErrBusy
	}
	defer end()

	if s.agg.Status() != aggregator.StatusReady {
		return aggregator.ErrNotReady
	}

	// Attachments get their ids before packaging so both forms share them.
	atts = append([]attachment.Attachment(nil), atts...)
	for i := range atts {
		if atts[i].ID == "" {
			atts[i].ID = attachment.NewID()
		}
	}

	parts, err := s.packager.BuildMessageParts(ctx, text, atts)
	if ctx.Err() != nil {
		s.log.Debug("request stopped while packaging", zap.String("chat_id", s.ChatID()))
		return nil
	}
	if err != nil {
		return err
	}

	req, err := s.agg.AppendUserMessage(text, atts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.outbound[req.MessageID] = parts
	s.mu.Unlock()

	return s.stream(ctx, req)
}

// Regenerate asks for a new answer to the last user message.
func (s *Session) Regenerate(ctx context.Context) error {
	ctx, end, ok := s.begin(ctx)
	if !ok {
		return ErrBusy
	}
	defer end()

	req, ok := s.agg.Regenerate()
	if !ok {
		return ErrNothingToRegenerate
	}

	return s.stream(ctx, req)
}

// Retry resends the last user message after an error.
func (s *Session) Retry(ctx context.Context) error {
	ctx, end, ok := s.begin(ctx)
	if !ok {
		return ErrBusy
	}
	defer end()

	req, err := s.agg.Retry()
	if err != nil {
		return err
	}

	return s.stream(ctx, req)
}

// Reset starts a new conversation: the messages and packaged attachments
// are dropped and the chat gets a fresh id.
func (s *Session) Reset() error {
	if !s.run.TryLock() {
		return ErrBusy
	}
	defer s.run.Unlock()

	if err := s.agg.Reset(); err != nil {
		return err
	}

	s.mu.Lock()
	s.outbound = make(map[string][]content.Part)
	s.chatID = uuid.NewString()
	s.mu.Unlock()

	return nil
}

// Stop cancels the in-flight request. The turn ends as a normal stream end
// and keeps what has arrived. It is a no-op when nothing is in flight.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// begin claims the session for one request and returns the context Stop
// cancels. end releases it.
func (s *Session) begin(parent context.Context) (ctx context.Context, end func(), ok bool) {
	if !s.run.TryLock() {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.active.Store(true)

	return ctx, func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		s.active.Store(false)
		s.run.Unlock()
	}, true
}

func (s *Session) stream(ctx context.Context, req aggregator.Request) error {
	chatID := s.ChatID()
	log := s.log.With(
		zap.String("chat_id", chatID),
		zap.String("trigger", string(req.Trigger)),
		zap.String("message_id", req.MessageID),
	)
	log.Debug("request started", zap.Int("messages", len(req.Messages)))

	events, err := s.streamer.Stream(ctx, transport.Request{
		ChatID:    chatID,
		Model:     s.model,
		Trigger:   string(req.Trigger),
		MessageID: req.MessageID,
		Messages:  s.outboundMessages(req.Messages),
	})
	if err != nil {
		if ctx.Err() != nil {
			s.agg.EndStream()
			log.Debug("request stopped before streaming")
			return nil
		}
		s.agg.ReportError(err)
		return err
	}

	for ev := range events {
		if err := s.agg.Ingest(ev); err != nil {
			log.Debug("event dropped", zap.Error(err))
		}
	}

	// The channel closed without a final event: cancelled or cut off.
	if s.agg.Busy() {
		s.agg.EndStream()
	}

	log.Debug("request finished", zap.String("status", string(s.agg.Status())))
	return nil
}

// outboundMessages swaps the display parts of user messages for their
// packaged parts. msgs is already a private copy of the whole conversation,
// so entries for messages no longer in it are dropped.
func (s *Session) outboundMessages(msgs []message.Message) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string][]content.Part, len(s.outbound))
	for i, m := range msgs {
		if m.Role != role.User {
			continue
		}
		if parts, ok := s.outbound[m.ID]; ok {
			msgs[i].Parts = parts
			kept[m.ID] = parts
		}
	}
	s.outbound = kept
	return msgs
}
