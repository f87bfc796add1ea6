package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/germanamz/chatstream/pkg/aggregator"
	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/toolcall"
	"github.com/germanamz/chatstream/pkg/config"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/session"
	"github.com/germanamz/chatstream/pkg/transport"
)

// buildLogger opens the configured log file. The terminal belongs to the
// TUI, so without a file nothing is logged.
func buildLogger(cfg config.LogConfig) (*zap.Logger, func(), error) {
	if cfg.File == "" {
		return zap.NewNop(), func() {}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path comes from config
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger, err := logging.New(cfg.Level, cfg.Format, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	return logger, func() {
		_ = logger.Sync()
		_ = f.Close()
	}, nil
}

// buildSession wires the transport, packager and aggregator into a session.
// The client is returned so the TUI can show its rate limit.
func buildSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*session.Session, *transport.Client, error) {
	client := transport.NewClient(cfg.Provider.BaseURL, transport.Auth{
		Key:    cfg.Provider.APIKey,
		Header: cfg.Provider.AuthHeader,
		Scheme: cfg.Provider.AuthScheme,
	}, nil)
	client.Headers = cfg.Provider.Headers
	client.HeaderParser = transport.ParseRateLimitHeaders

	var streamer transport.Streamer
	if cfg.UseWebSocket() {
		streamer = &transport.WSStreamer{
			Client: client,
			Path:   cfg.Provider.Path,
			Buffer: cfg.Chat.EventBuffer,
			Logger: logger.Named("ws"),
		}
	} else {
		streamer = &transport.SSEStreamer{
			Client: client,
			Path:   cfg.Provider.Path,
			Buffer: cfg.Chat.EventBuffer,
			Logger: logger.Named("sse"),
		}
	}

	packager, err := buildPackager(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	toolPolicy, err := toolcall.ParsePolicy(cfg.Chat.ToolPolicy)
	if err != nil {
		return nil, nil, err
	}
	reasoning, err := extract.ParseReasoningPolicy(cfg.Chat.Reasoning)
	if err != nil {
		return nil, nil, err
	}

	agg := aggregator.New(
		aggregator.WithLogger(logger.Named("aggregator")),
		aggregator.WithToolPolicy(toolPolicy),
		aggregator.WithReasoningPolicy(reasoning),
	)

	sess := session.New(agg, streamer,
		session.WithModel(cfg.Provider.Model),
		session.WithPackager(packager),
		session.WithLogger(logger.Named("session")),
	)
	return sess, client, nil
}

func buildPackager(ctx context.Context, cfg config.Config) (*attachment.Packager, error) {
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil {
		return nil, err
	}
	s3cfg := cfg.Attachments.S3

	files := attachment.FileOpener{}
	schemes := map[string]attachment.Opener{"file": files}

	if s3cfg.Enabled {
		s3, err := attachment.NewS3Opener(ctx, attachment.S3Config{
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		schemes["s3"] = s3
	}

	return &attachment.Packager{
		Opener:  attachment.MuxOpener{Schemes: schemes, Default: files},
		MaxSize: maxSize,
	}, nil
}
