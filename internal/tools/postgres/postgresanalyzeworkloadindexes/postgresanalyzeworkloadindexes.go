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

package postgresanalyzeworkloadindexes

import (
	"context"
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-analyze-workload-indexes"

func init() {
	if !tools.Register(kind, newConfig) {
		panic(fmt.Sprintf("tool kind %q already registered", kind))
	}
}

func newConfig(ctx context.Context, name string, decoder *yaml.Decoder) (tools.ToolConfig, error) {
	actual := Config{Name: name}
	if err := decoder.DecodeContext(ctx, &actual); err != nil {
		return nil, err
	}
	return actual, nil
}

// Config declares postgres_analyze_workload_indexes: the advisor (4.F) run
// over the top-K queries sourced from pg_stat_statements (4.G).
type Config struct {
	Name         string   `yaml:"name" validate:"required"`
	Kind         string   `yaml:"kind" validate:"required"`
	Source       string   `yaml:"source" validate:"required"`
	Description  string   `yaml:"description" validate:"required"`
	AuthRequired []string `yaml:"authRequired"`
}

var _ tools.ToolConfig = Config{}

func (cfg Config) ToolConfigKind() string { return kind }

func (cfg Config) Initialize(srcs map[string]sources.Source) (tools.Tool, error) {
	rawS, ok := srcs[cfg.Source]
	if !ok {
		return nil, fmt.Errorf("no source named %q configured", cfg.Source)
	}
	s, ok := rawS.(pgtools.CompatibleSource)
	if !ok {
		return nil, fmt.Errorf("invalid source for %q tool: source must be postgres-compatible", kind)
	}

	driver := pgengine.NewDriver(s.PostgresPool())
	probe := s.PostgresProbe()
	collector := pgengine.NewTopQueryCollector(driver, probe)
	explain := pgengine.NewExplainEngine(driver, probe)

	var proposer pgengine.Proposer
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		proposer = pgengine.NewOpenAIProposer(key, "")
	}
	advisor := pgengine.NewAdvisor(explain, proposer)

	params := tools.Parameters{
		tools.NewIntParameterWithDefault("top_k", 20, "number of top queries by total_time to source the workload from"),
		tools.NewIntParameterWithDefault("max_indexes", 10, "maximum number of indexes to recommend"),
		tools.NewIntParameterWithDefault("max_columns_per_index", 3, "maximum columns per candidate index"),
	}
	return Tool{
		authRequired: cfg.AuthRequired,
		allParams:    params,
		collector:    collector,
		advisor:      advisor,
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

var _ tools.Tool = Tool{}

// Tool implements postgres_analyze_workload_indexes.
type Tool struct {
	authRequired []string
	allParams    tools.Parameters
	collector    *pgengine.TopQueryCollector
	advisor      *pgengine.Advisor
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	pm := params.AsMap()
	topK, _ := pm["top_k"].(int)
	maxIndexes, _ := pm["max_indexes"].(int)
	maxColumns, _ := pm["max_columns_per_index"].(int)

	topQueries, err := t.collector.GetTopQueries(ctx, pgengine.OrderByTotalTime, topK)
	if err != nil {
		return nil, err
	}

	workload := make([]pgengine.WorkloadItem, 0, len(topQueries))
	for _, q := range topQueries {
		workload = append(workload, pgengine.WorkloadItem{
			QueryText:  q.QueryText,
			Calls:      q.Calls,
			MeanExecMs: q.MeanTimeMs,
			QueryID:    &q.QueryID,
		})
	}

	constraints := pgengine.DefaultAdvisorConstraints()
	if maxIndexes > 0 {
		constraints.MaxIndexes = maxIndexes
	}
	if maxColumns > 0 {
		constraints.MaxColumnsPerIndex = maxColumns
	}
	constraints.WallClockBudget = 60 * time.Second

	return t.advisor.Analyze(ctx, workload, constraints)
}

func (t Tool) ParseParams(data map[string]any, claims map[string]map[string]any) (tools.ParamValues, error) {
	return tools.ParseParams(t.allParams, data, claims)
}

func (t Tool) Manifest() tools.Manifest       { return t.manifest }
func (t Tool) McpManifest() tools.McpManifest { return t.mcpManifest }

func (t Tool) Authorized(verifiedAuthServices []string) bool {
	return tools.IsAuthorized(t.authRequired, verifiedAuthServices)
}

func (t Tool) RequiresClientAuthorization() bool { return false }
