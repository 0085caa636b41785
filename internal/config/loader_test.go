package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvString(t *testing.T) {
	// Set test environment variables
	os.Setenv("TEST_API_KEY", "secret-key-123")
	os.Setenv("TEST_PATH", "/path/to/data")
	defer os.Unsetenv("TEST_API_KEY")
	defer os.Unsetenv("TEST_PATH")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "expand ${VAR} syntax",
			input:    "${TEST_API_KEY}",
			expected: "secret-key-123",
		},
		{
			name:     "expand $VAR syntax",
			input:    "$TEST_API_KEY",
			expected: "secret-key-123",
		},
		{
			name:     "expand in middle of string",
			input:    "key:${TEST_API_KEY}:end",
			expected: "key:secret-key-123:end",
		},
		{
			name:     "expand multiple variables",
			input:    "${TEST_API_KEY}:${TEST_PATH}",
			expected: "secret-key-123:/path/to/data",
		},
		{
			name:     "leave non-existent var unchanged",
			input:    "${NONEXISTENT_VAR}",
			expected: "${NONEXISTENT_VAR}",
		},
		{
			name:     "handle empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "handle string without variables",
			input:    "plain-text",
			expected: "plain-text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	// Set test environment variables
	os.Setenv("GITHUB_TOKEN_TEST", "ghp-test-123")
	os.Setenv("ANTHROPIC_KEY_TEST", "sk-ant-test")
	os.Setenv("REVIEWD_DB_TEST", "/custom/reviews.db")
	defer os.Unsetenv("GITHUB_TOKEN_TEST")
	defer os.Unsetenv("ANTHROPIC_KEY_TEST")
	defer os.Unsetenv("REVIEWD_DB_TEST")

	cfg := Config{
		Hosting: HostingConfig{
			Token: "${GITHUB_TOKEN_TEST}",
		},
		LLM: LLMConfig{
			APIKey: "${ANTHROPIC_KEY_TEST}",
		},
		Store: StoreConfig{
			Path: "${REVIEWD_DB_TEST}",
		},
	}

	expanded := expandEnvVars(cfg)

	assert.Equal(t, "ghp-test-123", expanded.Hosting.Token)
	assert.Equal(t, "sk-ant-test", expanded.LLM.APIKey)
	assert.Equal(t, "/custom/reviews.db", expanded.Store.Path)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 64, cfg.Queue.Capacity)
	assert.Equal(t, 3, cfg.Hosting.MaxRetries)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.True(t, cfg.Scanners.Pattern.Enabled)
	assert.True(t, cfg.Scanners.Gosec.Enabled)
	assert.True(t, cfg.Scanners.Semgrep.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  addr: ":9090"
queue:
  workers: 2
llm:
  enabled: false
scanners:
  semgrep:
    enabled: false
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewd.yaml"), []byte(content), 0o644))

	cfg, err := Load(LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.False(t, cfg.LLM.Enabled)
	assert.False(t, cfg.Scanners.Semgrep.Enabled)
	// Unset keys keep their defaults
	assert.True(t, cfg.Scanners.Gosec.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadExpandsFileValues(t *testing.T) {
	os.Setenv("TEST_HOSTING_TOKEN", "token-from-env")
	defer os.Unsetenv("TEST_HOSTING_TOKEN")

	dir := t.TempDir()
	content := `
hosting:
  token: "${TEST_HOSTING_TOKEN}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewd.yaml"), []byte(content), 0o644))

	cfg, err := Load(LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "token-from-env", cfg.Hosting.Token)
}

func TestLocateConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewd.yaml"), []byte("{}"), 0o644))

	found := locateConfigFile("reviewd", []string{t.TempDir(), dir})
	assert.Equal(t, filepath.Join(dir, "reviewd.yaml"), found)

	assert.Empty(t, locateConfigFile("missing", []string{dir}))
}
