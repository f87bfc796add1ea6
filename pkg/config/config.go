// Package config loads the chatstream configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/germanamz/chatstream/pkg/attachment"
	"github.com/germanamz/chatstream/pkg/chats/extract"
	"github.com/germanamz/chatstream/pkg/chats/toolcall"
	"github.com/germanamz/chatstream/pkg/logging"
	"github.com/germanamz/chatstream/pkg/transport"
)

// Transport kinds.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config is the top-level configuration.
type Config struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Chat        ChatConfig        `yaml:"chat"`
	Log         LogConfig         `yaml:"log"`
}

// ProviderConfig describes the chat endpoint.
type ProviderConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Path       string            `yaml:"path"`
	APIKey     string            `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	AuthHeader string            `yaml:"auth_header"`
	AuthScheme string            `yaml:"auth_scheme"`
	Model      string            `yaml:"model"`
	Transport  string            `yaml:"transport"` // "sse" or "websocket".
	Headers    map[string]string `yaml:"headers"`
}

// AttachmentsConfig controls attachment packaging.
type AttachmentsConfig struct {
	MaxSize string   `yaml:"max_size"` // Human readable, e.g. "10MiB".
	S3      S3Config `yaml:"s3"`
}

// S3Config enables s3:// attachment URIs.
type S3Config struct {
	Enabled      bool   `yaml:"enabled"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// ChatConfig holds conversation behaviour settings.
type ChatConfig struct {
	ToolPolicy  string   `yaml:"tool_policy"` // "permissive" or "strict".
	Reasoning   string   `yaml:"reasoning"`   // "first" or "merge".
	EventBuffer int      `yaml:"event_buffer"`
	Suggestions []string `yaml:"suggestions"` // Prompts offered on an empty conversation.
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console".
	File   string `yaml:"file"`   // Empty disables logging; the terminal belongs to the TUI.
}

// Defaults returns a configuration with every optional value set.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Path:      transport.DefaultPath,
			Transport: TransportSSE,
		},
		Attachments: AttachmentsConfig{
			MaxSize: "10MiB",
		},
		Chat: ChatConfig{
			ToolPolicy:  string(toolcall.Permissive),
			Reasoning:   string(extract.ReasoningFirst),
			EventBuffer: transport.DefaultBuffer,
			Suggestions: []string{
				"What's the weather?",
				"Tell me a joke",
				"Explain React Native",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// Load reads a YAML file and returns a Config on top of Defaults.
// Environment variables referenced as ${VAR} or $VAR are expanded before
// parsing so secrets can stay in the environment or a .env file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML data on top of Defaults, expanding environment
// variables first.
func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return errors.New("config: provider.base_url is required")
	}
	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: provider.base_url %q is not an absolute URL", c.Provider.BaseURL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("config: provider.base_url: unsupported scheme %q", u.Scheme)
	}

	if c.Provider.Path != "" && !strings.HasPrefix(c.Provider.Path, "/") {
		return fmt.Errorf("config: provider.path %q must start with /", c.Provider.Path)
	}

	switch strings.ToLower(c.Provider.Transport) {
	case "", TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("config: provider.transport: unknown transport %q", c.Provider.Transport)
	}

	if _, err := c.MaxSizeBytes(); err != nil {
		return err
	}

	if _, err := toolcall.ParsePolicy(c.Chat.ToolPolicy); err != nil {
		return fmt.Errorf("config: chat.tool_policy: %w", err)
	}
	if _, err := extract.ParseReasoningPolicy(c.Chat.Reasoning); err != nil {
		return fmt.Errorf("config: chat.reasoning: %w", err)
	}
	if c.Chat.EventBuffer < 0 {
		return fmt.Errorf("config: chat.event_buffer must not be negative, got %d", c.Chat.EventBuffer)
	}
	for i, s := range c.Chat.Suggestions {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config: chat.suggestions[%d] is empty", i)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("config: log.format: unknown format %q", c.Log.Format)
	}

	return nil
}

// MaxSizeBytes parses attachments.max_size. An empty value is the packager
// default.
func (c Config) MaxSizeBytes() (int64, error) {
	if c.Attachments.MaxSize == "" {
		return attachment.DefaultMaxSize, nil
	}

	n, err := humanize.ParseBytes(c.Attachments.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("config: attachments.max_size: %w", err)
	}
	if n == 0 {
		return 0, errors.New("config: attachments.max_size must be positive")
	}
	return int64(n), nil //nolint:gosec // sizes fit in int64
}

// UseWebSocket reports whether the provider is reached over a WebSocket.
func (c Config) UseWebSocket() bool {
	return strings.EqualFold(c.Provider.Transport, TransportWebSocket)
}
