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
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/spindle/internal/version"
	"github.com/teradata-labs/spindle/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "spindle",
	Short:   "Spindle - natural language query routing service",
	Long:    `Spindle answers natural language questions over uploaded CSV files and remote databases. A routing agent picks the execution backend per question and keeps file-scoped requests away from database connections.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $SPINDLE_DATA_DIR/spindle.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("port", 5080, "HTTP server port")

	// LLM flags
	rootCmd.PersistentFlags().String("llm-provider", "anthropic", "LLM provider (anthropic, openai-compat)")
	rootCmd.PersistentFlags().String("anthropic-model", "", "Anthropic model override")
	rootCmd.PersistentFlags().String("openai-endpoint", "", "OpenAI-compatible chat completions URL")
	rootCmd.PersistentFlags().String("openai-model", "", "OpenAI-compatible model")

	// Storage flags
	rootCmd.PersistentFlags().String("storage-backend", "fs", "file storage backend (fs, minio)")
	rootCmd.PersistentFlags().String("storage-dir", "", "directory for the fs storage backend")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, console)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))

	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.anthropic_model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
	_ = viper.BindPFlag("llm.openai_endpoint", rootCmd.PersistentFlags().Lookup("openai-endpoint"))
	_ = viper.BindPFlag("llm.openai_model", rootCmd.PersistentFlags().Lookup("openai-model"))

	_ = viper.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("storage-backend"))
	_ = viper.BindPFlag("storage.dir", rootCmd.PersistentFlags().Lookup("storage-dir"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
