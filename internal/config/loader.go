package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "reviewd"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "REVIEWD"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Expand environment variables in config values
	cfg = expandEnvVars(cfg)

	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.Server.Addr = expandEnvString(cfg.Server.Addr)

	cfg.Store.Path = expandEnvString(cfg.Store.Path)

	cfg.Hosting.Token = expandEnvString(cfg.Hosting.Token)
	cfg.Hosting.BaseURL = expandEnvString(cfg.Hosting.BaseURL)
	cfg.Hosting.Timeout = expandEnvString(cfg.Hosting.Timeout)
	cfg.Hosting.InitialBackoff = expandEnvString(cfg.Hosting.InitialBackoff)

	cfg.LLM.APIKey = expandEnvString(cfg.LLM.APIKey)
	cfg.LLM.Model = expandEnvString(cfg.LLM.Model)
	cfg.LLM.Timeout = expandEnvString(cfg.LLM.Timeout)

	cfg.Scanners.Timeout = expandEnvString(cfg.Scanners.Timeout)

	cfg.Git.RepositoryDir = expandEnvString(cfg.Git.RepositoryDir)

	cfg.Logging.Level = expandEnvString(cfg.Logging.Level)
	cfg.Logging.Format = expandEnvString(cfg.Logging.Format)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	// Replace ${VAR} syntax
	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	// Replace $VAR syntax (without braces)
	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Store defaults
	v.SetDefault("store.path", defaultStorePath())

	// Queue defaults
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.capacity", 64)

	// Hosting defaults
	v.SetDefault("hosting.timeout", "30s")
	v.SetDefault("hosting.maxRetries", 3)
	v.SetDefault("hosting.initialBackoff", "2s")

	// LLM defaults
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.maxTokens", 2000)
	v.SetDefault("llm.timeout", "90s")

	// Scanner defaults
	v.SetDefault("scanners.pattern.enabled", true)
	v.SetDefault("scanners.gosec.enabled", true)
	v.SetDefault("scanners.semgrep.enabled", true)
	v.SetDefault("scanners.timeout", "2m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./reviewd.db"
	}
	return filepath.Join(home, ".config", "reviewd", "reviewd.db")
}
