package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/germanamz/chatstream/cmd/chatstream/internal/app"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/format"
	"github.com/germanamz/chatstream/cmd/chatstream/internal/msgs"
	"github.com/germanamz/chatstream/pkg/config"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chatstream [flags]\n\nChat with a streaming model endpoint.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "chatstream.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	sess, client, err := buildSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Query the background before bubbletea takes over stdin.
	format.IsDarkBG = lipgloss.HasDarkBackground()

	model := app.New(ctx, sess,
		app.WithSuggestions(cfg.Chat.Suggestions),
		app.WithRateLimit(client.LastRateLimitInfo),
	)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Send the program reference so the model can start the bridge.
	go func() {
		p.Send(msgs.ProgramReadyMsg{Program: p})
	}()

	final, err := p.Run()
	if m, ok := final.(app.Model); ok {
		m.Close()
	}
	return err
}
