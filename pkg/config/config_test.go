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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	// A pinned-but-missing file is an error; an absent default file is not.
	require.Error(t, err)

	resetViper(t)
	t.Setenv("SPINDLE_DATA_DIR", t.TempDir())
	cfg, err = LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5080, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, int64(64<<20), cfg.Materializer.PerFileCeilingBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_FromFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "spindle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
server:
  port: 9099
llm:
  provider: openai-compat
  openai_model: llama3.1:70b
materializer:
  max_columns: 64
logging:
  level: debug
  format: console
`), 0o600))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 9099, cfg.Server.Port)
	assert.Equal(t, "openai-compat", cfg.LLM.Provider)
	assert.Equal(t, "llama3.1:70b", cfg.LLM.OpenAIModel)
	assert.Equal(t, 64, cfg.Materializer.MaxColumns)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep defaults")

	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	logger.Debug("configured")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("SPINDLE_DATA_DIR", t.TempDir())
	t.Setenv("SPINDLE_SERVER_PORT", "7070")
	t.Setenv("SPINDLE_LLM_PROVIDER", "openai-compat")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "openai-compat", cfg.LLM.Provider)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad provider", mutate: func(c *Config) { c.LLM.Provider = "gemini" }},
		{name: "bad storage backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }},
		{name: "fs without dir", mutate: func(c *Config) { c.Storage.Backend = "fs"; c.Storage.Dir = "" }},
		{name: "minio without endpoint", mutate: func(c *Config) { c.Storage.Backend = "minio" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 99999 }},
		{name: "per-file over total", mutate: func(c *Config) {
			c.Materializer.PerFileCeilingBytes = 10
			c.Materializer.TotalCeilingBytes = 5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:  ServerConfig{Port: 5080},
				LLM:     LLMConfig{Provider: "anthropic"},
				Storage: StorageConfig{Backend: "fs", Dir: "/tmp/x"},
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetSpindleDataDir(t *testing.T) {
	t.Setenv("SPINDLE_DATA_DIR", "/custom/spindle")
	assert.Equal(t, "/custom/spindle", GetSpindleDataDir())
	assert.Equal(t, "/custom/spindle/uploads", GetSpindleSubDir("uploads"))

	t.Setenv("SPINDLE_DATA_DIR", "")
	dir := GetSpindleDataDir()
	assert.True(t, filepath.IsAbs(dir) || dir == ".spindle")
}
