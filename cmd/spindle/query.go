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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/agenthub"
	"github.com/teradata-labs/spindle/pkg/backends/analysis"
	"github.com/teradata-labs/spindle/pkg/backends/csvsql"
	"github.com/teradata-labs/spindle/pkg/backends/dbagent"
	"github.com/teradata-labs/spindle/pkg/dispatch"
	"github.com/teradata-labs/spindle/pkg/routing"
	"github.com/teradata-labs/spindle/pkg/sqlgen"
	"github.com/teradata-labs/spindle/pkg/storage"
	"github.com/teradata-labs/spindle/pkg/tabular"
	"github.com/teradata-labs/spindle/pkg/types"
)

var (
	queryBackend string
	queryTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <file.csv> <question>",
	Short: "Answer one question against a local CSV file",
	Long: `Run a single question against a local CSV file without starting a server.

The file is materialized in-process and the question is routed to the
analysis or csv-sql backend by the configured LLM.`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryBackend, "backend", "", "force a backend (csv, csv_sql) instead of routing")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall deadline for the question")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	path, question := args[0], args[1]

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	logger := zap.NewNop()
	if cfg.Logging.Level == "debug" {
		if logger, err = cfg.BuildLogger(); err != nil {
			return err
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store, err := storage.NewFSStore(filepath.Dir(abs))
	if err != nil {
		return err
	}
	arena, err := tabular.NewArena(tabular.ArenaConfig{
		Store:          store,
		PerFileCeiling: cfg.Materializer.PerFileCeilingBytes,
		TotalCeiling:   cfg.Materializer.TotalCeilingBytes,
		MaxColumns:     cfg.Materializer.MaxColumns,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	generator, err := sqlgen.NewService(sqlgen.Config{Provider: provider, Logger: logger})
	if err != nil {
		return err
	}
	router, err := routing.NewAgent(routing.Config{Provider: provider, Logger: logger})
	if err != nil {
		return err
	}
	analysisBackend, err := analysis.NewBackend(analysis.Config{Provider: provider, Logger: logger})
	if err != nil {
		return err
	}
	csvsqlBackend, err := csvsql.NewBackend(csvsql.Config{Generator: generator, Logger: logger})
	if err != nil {
		return err
	}
	// No agent hub is listening in one-shot mode; database requests fail
	// as unavailable, which routing never selects for CSV sources anyway.
	dbBackend, err := dbagent.NewBackend(dbagent.Config{
		Transport: agenthub.NewHub(agenthub.Config{Logger: logger}),
		Generator: generator,
		Logger:    logger,
	})
	if err != nil {
		return err
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
	})
	if err != nil {
		return err
	}

	backend, err := types.ParseBackendKind(queryBackend)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	result, err := dispatcher.Handle(ctx, &types.QueryRequest{
		Question:         question,
		Source:           types.SourceCSV,
		FileRef:          filepath.Base(abs),
		Owner:            "cli",
		RequestedBackend: backend,
	})
	if err != nil {
		return err
	}

	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result *types.QueryResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Answer)
	if result.Routing != nil {
		fmt.Fprintf(out, "\nbackend: %s (confidence %.2f)\n", result.Routing.Backend, result.Routing.Confidence)
	}
	if result.GeneratedSQL != "" {
		fmt.Fprintf(out, "sql: %s\n", result.GeneratedSQL)
	}
	if len(result.Columns) > 0 {
		fmt.Fprintf(out, "\n%s\n", strings.Join(result.Columns, "\t"))
		for _, row := range result.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = fmt.Sprint(cell)
			}
			fmt.Fprintln(out, strings.Join(cells, "\t"))
		}
		if result.RowCount > len(result.Rows) {
			fmt.Fprintf(out, "(%d rows total, %d shown)\n", result.RowCount, len(result.Rows))
		}
	}
}
