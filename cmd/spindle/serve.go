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
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/agenthub"
	"github.com/teradata-labs/spindle/pkg/backends/analysis"
	"github.com/teradata-labs/spindle/pkg/backends/csvsql"
	"github.com/teradata-labs/spindle/pkg/backends/dbagent"
	"github.com/teradata-labs/spindle/pkg/config"
	"github.com/teradata-labs/spindle/pkg/dispatch"
	"github.com/teradata-labs/spindle/pkg/llm"
	"github.com/teradata-labs/spindle/pkg/llm/anthropic"
	"github.com/teradata-labs/spindle/pkg/llm/openaicompat"
	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/routing"
	"github.com/teradata-labs/spindle/pkg/server"
	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/storage"
	"github.com/teradata-labs/spindle/pkg/tabular"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Spindle query server",
	Long: `Start the Spindle HTTP server.

The server will:
- Materialize uploaded CSV files on demand, within configured memory ceilings
- Route each question to an execution backend via the configured LLM
- Accept database agent websocket sessions on /ws/agent

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildProvider constructs the LLM provider from the llm config section.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			Model: cfg.LLM.AnthropicModel,
		}), nil
	case "openai-compat":
		return openaicompat.NewClient(openaicompat.Config{
			Endpoint: cfg.LLM.OpenAIEndpoint,
			Model:    cfg.LLM.OpenAIModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
}

// buildStore constructs the object store from the storage config section.
func buildStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "fs":
		return storage.NewFSStore(cfg.Storage.Dir)
	case "minio":
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			Bucket:          cfg.Storage.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
}

func runServe(_ *cobra.Command, _ []string) {
	logger, err := cfg.BuildLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tracer := observability.NewZapTracer(logger)

	provider, err := buildProvider(cfg)
	if err != nil {
		logger.Fatal("Failed to build LLM provider", zap.Error(err))
	}
	logger.Info("LLM provider configured",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()))

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("Failed to build object store", zap.Error(err))
	}

	arena, err := tabular.NewArena(tabular.ArenaConfig{
		Store:          store,
		PerFileCeiling: cfg.Materializer.PerFileCeilingBytes,
		TotalCeiling:   cfg.Materializer.TotalCeilingBytes,
		MaxColumns:     cfg.Materializer.MaxColumns,
		Logger:         logger,
		Tracer:         tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build arena", zap.Error(err))
	}

	hub := agenthub.NewHub(agenthub.Config{
		QueryTimeout: time.Duration(cfg.Agents.QueryTimeoutSeconds) * time.Second,
		Logger:       logger,
		Tracer:       tracer,
	})

	generator, err := sqlgen.NewService(sqlgen.Config{
		Provider: provider,
		Logger:   logger,
		Tracer:   tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build SQL generator", zap.Error(err))
	}

	router, err := routing.NewAgent(routing.Config{
		Provider: provider,
		Logger:   logger,
		Tracer:   tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build routing agent", zap.Error(err))
	}

	analysisBackend, err := analysis.NewBackend(analysis.Config{
		Provider: provider,
		Logger:   logger,
		Tracer:   tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build analysis backend", zap.Error(err))
	}

	csvsqlBackend, err := csvsql.NewBackend(csvsql.Config{
		Generator: generator,
		Logger:    logger,
		Tracer:    tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build csv-sql backend", zap.Error(err))
	}

	dbBackend, err := dbagent.NewBackend(dbagent.Config{
		Transport:      hub,
		Generator:      generator,
		SchemaCacheTTL: time.Duration(cfg.Agents.SchemaCacheTTLSeconds) * time.Second,
		Logger:         logger,
		Tracer:         tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build database backend", zap.Error(err))
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Arena:    arena,
		Router:   router,
		Analysis: analysisBackend,
		CSVSQL:   csvsqlBackend,
		Database: dbBackend,
		Formatter: dispatch.NewFormatter(dispatch.FormatterConfig{
			Explainer:      generator,
			MaxPreviewRows: cfg.Server.MaxPreviewRows,
			Logger:         logger,
		}),
		Logger: logger,
		Tracer: tracer,
	})
	if err != nil {
		logger.Fatal("Failed to build dispatcher", zap.Error(err))
	}

	srv, err := server.NewServer(server.Config{
		Addr:       fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Dispatcher: dispatcher,
		Hub:        hub,
		CORS:       server.DefaultCORSConfig(),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("Failed to build HTTP server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigch:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
