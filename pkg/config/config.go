// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads Spindle server configuration from a YAML file,
// SPINDLE_* environment variables, and built-in defaults, in that order
// of increasing precedence for env over file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultConfigFileName is the config file name without extension.
const DefaultConfigFileName = "spindle"

// Config holds all configuration for the Spindle server.
// Priority: CLI flags > env vars > config file > defaults.
type Config struct {
	// DataDir is the Spindle data directory. Set during initialization
	// from SPINDLE_DATA_DIR; not loaded from the config file.
	DataDir string `mapstructure:"-"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Storage configuration (where uploaded files come from)
	Storage StorageConfig `mapstructure:"storage"`

	// Materializer configuration (CSV memory ceilings)
	Materializer MaterializerConfig `mapstructure:"materializer"`

	// Agents configuration (remote database agent sessions)
	Agents AgentsConfig `mapstructure:"agents"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host to bind (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port for the HTTP API (default: 5080)
	Port int `mapstructure:"port"`

	// MaxPreviewRows bounds rows returned per query (default: 100)
	MaxPreviewRows int `mapstructure:"max_preview_rows"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Provider selects the LLM backend: "anthropic" or "openai-compat"
	Provider string `mapstructure:"provider"`

	// AnthropicModel overrides the default Anthropic model
	AnthropicModel string `mapstructure:"anthropic_model"`

	// OpenAIEndpoint is the chat-completions URL for openai-compat
	OpenAIEndpoint string `mapstructure:"openai_endpoint"`

	// OpenAIModel is the model name for openai-compat
	OpenAIModel string `mapstructure:"openai_model"`
}

// StorageConfig holds uploaded-file storage configuration.
type StorageConfig struct {
	// Backend selects the store: "fs" or "minio"
	Backend string `mapstructure:"backend"`

	// Dir is the root directory for the fs backend
	Dir string `mapstructure:"dir"`

	// Endpoint is the object-store endpoint for the minio backend
	Endpoint string `mapstructure:"endpoint"`

	// Bucket is the object-store bucket for the minio backend
	Bucket string `mapstructure:"bucket"`

	// AccessKey and SecretKey authenticate the minio backend. Prefer
	// SPINDLE_STORAGE_ACCESS_KEY / SPINDLE_STORAGE_SECRET_KEY over the
	// config file.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// UseSSL enables TLS to the object store
	UseSSL bool `mapstructure:"use_ssl"`
}

// MaterializerConfig holds CSV materialization limits.
type MaterializerConfig struct {
	// PerFileCeilingBytes caps one file's estimated footprint (default: 64MiB)
	PerFileCeilingBytes int64 `mapstructure:"per_file_ceiling_bytes"`

	// TotalCeilingBytes caps the aggregate footprint (default: 256MiB)
	TotalCeilingBytes int64 `mapstructure:"total_ceiling_bytes"`

	// MaxColumns rejects over-wide files (default: 512)
	MaxColumns int `mapstructure:"max_columns"`
}

// AgentsConfig holds remote database agent session configuration.
type AgentsConfig struct {
	// QueryTimeoutSeconds bounds one remote query round-trip (default: 60)
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`

	// SchemaCacheTTLSeconds bounds schema snapshot reuse (default: 300)
	SchemaCacheTTLSeconds int `mapstructure:"schema_cache_ttl_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the zap level: debug, info, warn, error (default: info)
	Level string `mapstructure:"level"`

	// Format is "json" or "console" (default: json)
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration with the standard lookup order. cfgFile,
// when non-empty, pins the config file explicitly.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(GetSpindleDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/spindle/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// No config file is fine; env vars and defaults apply.
	}

	viper.SetEnvPrefix("SPINDLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.DataDir = GetSpindleDataDir()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5080)
	viper.SetDefault("server.max_preview_rows", 100)

	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.openai_endpoint", "http://localhost:11434/v1/chat/completions")
	viper.SetDefault("llm.openai_model", "llama3.1")

	viper.SetDefault("storage.backend", "fs")
	viper.SetDefault("storage.dir", GetSpindleSubDir("uploads"))
	viper.SetDefault("storage.use_ssl", true)

	viper.SetDefault("materializer.per_file_ceiling_bytes", int64(64<<20))
	viper.SetDefault("materializer.total_ceiling_bytes", int64(256<<20))
	viper.SetDefault("materializer.max_columns", 512)

	viper.SetDefault("agents.query_timeout_seconds", 60)
	viper.SetDefault("agents.schema_cache_ttl_seconds", 300)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai-compat":
	default:
		return fmt.Errorf("unknown llm.provider %q (want anthropic or openai-compat)", c.LLM.Provider)
	}

	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the fs backend")
		}
	case "minio":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.endpoint and storage.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want fs or minio)", c.Storage.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Materializer.PerFileCeilingBytes > c.Materializer.TotalCeilingBytes {
		return fmt.Errorf("materializer.per_file_ceiling_bytes exceeds total_ceiling_bytes")
	}
	return nil
}

// BuildLogger constructs the process logger from the logging section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}

	var zapCfg zap.Config
	if c.Logging.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
