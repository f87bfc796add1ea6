package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/stream"
)

// DefaultPath is the chat endpoint path used when a streamer has none.
const DefaultPath = "/api/chat"

// DefaultBuffer is the event channel buffer used when a streamer has none.
const DefaultBuffer = 64

// Streamer sends a request and delivers the response as events. Pre-stream
// failures are returned directly. The channel is closed after a done or error
// event, or without a final event when ctx is cancelled.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan stream.Event, error)
}

// SSEStreamer posts the request and reads the response as server-sent events,
// one UI message stream chunk per event.
type SSEStreamer struct {
	Client *Client
	Path   string
	Buffer int
	Logger *zap.Logger
}

// Stream implements Streamer.
func (s *SSEStreamer) Stream(ctx context.Context, req Request) (<-chan stream.Event, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := s.Client.NewRequest(ctx, http.MethodPost, pathOr(s.Path), bytes.NewReader(body))
	if err != nil {
		return nil, chaterr.NewTransport("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, chaterr.NewTransport("post", err)
	}

	if err := checkStatus("post", resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	out := make(chan stream.Event, bufferOr(s.Buffer))
	go s.read(ctx, resp.Body, out)

	return out, nil
}

func (s *SSEStreamer) read(ctx context.Context, body io.ReadCloser, out chan<- stream.Event) {
	defer close(out)
	defer func() { _ = body.Close() }()

	log := logging.OrNop(s.Logger)

	dec := stream.NewDecoder()
	e := emitter{ctx: ctx, out: out}

	// Collect "data:" lines until a blank line ends the event.
	var data strings.Builder
	flush := func() bool {
		raw := data.String()
		data.Reset()

		events, err := dec.DecodeBytes([]byte(raw))
		if err != nil {
			log.Debug("skipping undecodable chunk", zap.Error(err))
			return true
		}
		return e.send(events...)
	}

	br := bufio.NewReader(body)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			trim := strings.TrimRight(line, "\r\n")
			switch {
			case trim == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(trim, "data:"):
				if data.Len() > 0 {
					data.WriteString("\n")
				}
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(trim, "data:")))
			}
		}

		if err != nil {
			if !flush() {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				// Closed without a finish chunk: the turn still ends cleanly.
				e.send(stream.NewDone())
				return
			}
			e.send(stream.NewError(chaterr.NewTransport("read stream", err)))
			return
		}
	}
}

// emitter forwards events until a terminal one is sent or ctx is done.
type emitter struct {
	ctx  context.Context
	out  chan<- stream.Event
	done bool
}

// send reports whether the caller should keep reading.
func (e *emitter) send(events ...stream.Event) bool {
	for _, ev := range events {
		if e.done {
			return false
		}
		select {
		case e.out <- ev:
		case <-e.ctx.Done():
			e.done = true
			return false
		}
		if ev.Terminal() {
			e.done = true
		}
	}
	return !e.done
}

func pathOr(p string) string {
	if p == "" {
		return DefaultPath
	}
	return p
}

func bufferOr(n int) int {
	if n <= 0 {
		return DefaultBuffer
	}
	return n
}
