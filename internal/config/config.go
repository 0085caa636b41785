package config

// Config represents the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Queue    QueueConfig    `yaml:"queue"`
	Hosting  HostingConfig  `yaml:"hosting"`
	LLM      LLMConfig      `yaml:"llm"`
	Scanners ScannersConfig `yaml:"scanners"`
	Git      GitConfig      `yaml:"git"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"readTimeout"`
	WriteTimeout    string `yaml:"writeTimeout"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig configures the background worker pool.
type QueueConfig struct {
	Workers  int `yaml:"workers"`
	Capacity int `yaml:"capacity"`
}

// HostingConfig configures the pull request host client.
type HostingConfig struct {
	Token          string `yaml:"token"`
	BaseURL        string `yaml:"baseURL"`
	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"maxRetries"`
	InitialBackoff string `yaml:"initialBackoff"`
}

// LLMConfig configures the AI review stage.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"apiKey"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"maxTokens"`
	Timeout   string `yaml:"timeout"`
}

// ScannerConfig configures one static-analysis backend.
type ScannerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ScannersConfig configures the scan stage.
type ScannersConfig struct {
	Pattern ScannerConfig `yaml:"pattern"`
	Gosec   ScannerConfig `yaml:"gosec"`
	Semgrep ScannerConfig `yaml:"semgrep"`
	Timeout string        `yaml:"timeout"`
}

// GitConfig configures local repository access for the check command.
type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
