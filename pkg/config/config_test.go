package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
provider:
  base_url: https://chat.example.com
  path: /v1/chat
  api_key: sk-test
  auth_header: x-api-key
  model: gpt-test
  transport: websocket
  headers:
    X-Client: chatstream

attachments:
  max_size: 5MiB
  s3:
    enabled: true
    region: eu-west-1
    endpoint: http://localhost:9000
    use_path_style: true

chat:
  tool_policy: strict
  reasoning: merge
  event_buffer: 16
  suggestions:
    - Plan a trip to Lisbon
    - Review my resume

log:
  level: debug
  format: console
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://chat.example.com", cfg.Provider.BaseURL)
	assert.Equal(t, "/v1/chat", cfg.Provider.Path)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "x-api-key", cfg.Provider.AuthHeader)
	assert.Equal(t, "gpt-test", cfg.Provider.Model)
	assert.Equal(t, map[string]string{"X-Client": "chatstream"}, cfg.Provider.Headers)
	assert.True(t, cfg.UseWebSocket())

	size, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(5<<20), size)

	assert.True(t, cfg.Attachments.S3.Enabled)
	assert.Equal(t, "eu-west-1", cfg.Attachments.S3.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Attachments.S3.Endpoint)
	assert.True(t, cfg.Attachments.S3.UsePathStyle)

	assert.Equal(t, "strict", cfg.Chat.ToolPolicy)
	assert.Equal(t, "merge", cfg.Chat.Reasoning)
	assert.Equal(t, 16, cfg.Chat.EventBuffer)
	assert.Equal(t, []string{"Plan a trip to Lisbon", "Review my resume"}, cfg.Chat.Suggestions)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/no/such/file.yaml")
	assert.ErrorContains(t, err, "config: load")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("provider: [unclosed"))
	assert.ErrorContains(t, err, "config: parse")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("provider:\n  base_url: http://localhost:3000\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/api/chat", cfg.Provider.Path)
	assert.Equal(t, TransportSSE, cfg.Provider.Transport)
	assert.False(t, cfg.UseWebSocket())
	assert.Equal(t, "permissive", cfg.Chat.ToolPolicy)
	assert.Equal(t, "first", cfg.Chat.Reasoning)
	assert.Equal(t, 64, cfg.Chat.EventBuffer)
	assert.Equal(t, []string{"What's the weather?", "Tell me a joke", "Explain React Native"}, cfg.Chat.Suggestions)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, "json", cfg.Log.Format)

	size, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), size)
}

func TestParse_SuggestionsCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("provider:\n  base_url: http://localhost\nchat:\n  suggestions: []\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Empty(t, cfg.Chat.Suggestions)
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CHATSTREAM_TEST_API_KEY", "sk-from-env")

	cfg, err := Parse([]byte("provider:\n  base_url: http://localhost\n  api_key: ${CHATSTREAM_TEST_API_KEY}\n"))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Provider.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHATSTREAM_DOTENV_KEY=from-file\n"), 0o600))
	t.Setenv("CHATSTREAM_DOTENV_KEY", "")
	require.NoError(t, os.Unsetenv("CHATSTREAM_DOTENV_KEY"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CHATSTREAM_DOTENV_KEY"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Provider.BaseURL = "https://chat.example.com"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.Provider.BaseURL = "" }, "provider.base_url is required"},
		{"relative base url", func(c *Config) { c.Provider.BaseURL = "chat.example.com" }, "not an absolute URL"},
		{"bad scheme", func(c *Config) { c.Provider.BaseURL = "ftp://chat.example.com" }, "unsupported scheme"},
		{"bad path", func(c *Config) { c.Provider.Path = "api/chat" }, "must start with /"},
		{"bad transport", func(c *Config) { c.Provider.Transport = "grpc" }, "unknown transport"},
		{"bad max size", func(c *Config) { c.Attachments.MaxSize = "lots" }, "attachments.max_size"},
		{"zero max size", func(c *Config) { c.Attachments.MaxSize = "0B" }, "must be positive"},
		{"bad tool policy", func(c *Config) { c.Chat.ToolPolicy = "lenient" }, "chat.tool_policy"},
		{"bad reasoning", func(c *Config) { c.Chat.Reasoning = "last" }, "chat.reasoning"},
		{"blank suggestion", func(c *Config) { c.Chat.Suggestions = []string{"ok", "  "} }, "chat.suggestions[1] is empty"},
		{"negative buffer", func(c *Config) { c.Chat.EventBuffer = -1 }, "chat.event_buffer"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
