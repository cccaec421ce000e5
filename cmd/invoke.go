// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources/postgres"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

// newInvokeCmd builds the one-shot local tool call used for operational
// debugging of the advisor/health pipeline without a full MCP client: it
// connects directly to the configured database, runs a single named tool,
// prints its JSON result to stdout, and exits.
func newInvokeCmd(root *Command) *cobra.Command {
	var paramsJSON string

	invokeCmd := &cobra.Command{
		Use:   "invoke <tool-name>",
		Short: "Run a single postgres_* tool against the configured database and print its JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runInvoke(c.Context(), root, args[0], paramsJSON)
		},
	}
	invokeCmd.Flags().StringVar(&paramsJSON, "params", "{}", "tool parameters as a JSON object")
	return invokeCmd
}

func runInvoke(ctx context.Context, root *Command, toolName, paramsJSON string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	uri := resolveDatabaseURI(root.databaseURI, os.Getenv("DATABASE_URI"))
	if uri == "" {
		return pgengine.ConfigurationErrorf("no database URI provided: pass it via --database-uri or the DATABASE_URI environment variable")
	}

	mode := pgtools.AccessMode(strings.ToLower(root.accessMode))
	if mode != pgtools.AccessModeUnrestricted && mode != pgtools.AccessModeRestricted {
		mode = pgtools.AccessModeUnrestricted
	}

	sourceCfg, err := postgres.ConfigFromURI(sourceName, uri)
	if err != nil {
		return err
	}
	tracer := trace.NewNoopTracerProvider().Tracer("postgres-dba-toolbox")
	src, err := sourceCfg.Initialize(ctx, tracer)
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", sourceName, err)
	}

	toolConfigs := defaultToolConfigs(mode)
	toolCfg, ok := toolConfigs[toolName]
	if !ok {
		return pgengine.ConfigurationErrorf("unknown tool %q; run without a subcommand and call tools/list over MCP to see the full set", toolName)
	}
	tool, err := toolCfg.Initialize(map[string]sources.Source{sourceName: src})
	if err != nil {
		return fmt.Errorf("unable to initialize tool %q: %w", toolName, err)
	}

	var rawParams map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &rawParams); err != nil {
		return pgengine.ConfigurationErrorf("--params must be a JSON object: %v", err)
	}
	params, err := tool.ParseParams(rawParams, nil)
	if err != nil {
		return pgengine.ConfigurationErrorf("invalid parameters for %q: %v", toolName, err)
	}

	result, err := tool.Invoke(ctx, params, "")
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal result: %w", err)
	}
	fmt.Fprintln(root.outStream, string(out))
	return nil
}

// resolveDatabaseURI applies the same flag-then-env priority root.go uses.
func resolveDatabaseURI(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return envValue
}
