package transport

import (
	"context"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/germanamz/chatstream/pkg/chaterr"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/stream"
)

// WSStreamer sends the request as one text frame over a WebSocket and reads
// one UI message stream chunk per frame.
type WSStreamer struct {
	Client *Client
	Path   string
	Buffer int
	Logger *zap.Logger
}

// Stream implements Streamer.
func (s *WSStreamer) Stream(ctx context.Context, req Request) (<-chan stream.Event, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	conn, err := s.Client.DialWS(ctx, pathOr(s.Path))
	if err != nil {
		return nil, err
	}

	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return nil, chaterr.NewTransport("write websocket", err)
	}

	out := make(chan stream.Event, bufferOr(s.Buffer))
	go s.read(ctx, conn, out)

	return out, nil
}

func (s *WSStreamer) read(ctx context.Context, conn *websocket.Conn, out chan<- stream.Event) {
	defer close(out)

	log := logging.OrNop(s.Logger)

	dec := stream.NewDecoder()
	e := emitter{ctx: ctx, out: out}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				_ = conn.CloseNow()
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				e.send(stream.NewDone())
			default:
				e.send(stream.NewError(chaterr.NewTransport("read websocket", err)))
				_ = conn.CloseNow()
			}
			return
		}

		events, err := dec.DecodeBytes(data)
		if err != nil {
			log.Debug("skipping undecodable frame", zap.Error(err))
			continue
		}
		if !e.send(events...) {
			_ = conn.CloseNow()
			return
		}
	}
}
