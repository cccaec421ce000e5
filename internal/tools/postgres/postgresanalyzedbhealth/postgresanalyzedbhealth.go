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

package postgresanalyzedbhealth

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-analyze-db-health"

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

// Config declares postgres_analyze_db_health, a thin wrapper around the
// seven independent health calculators (4.H).
type Config struct {
	Name         string   `yaml:"name" validate:"required"`
	Kind         string   `yaml:"kind" validate:"required"`
	Source       string   `yaml:"source" validate:"required"`
	Description  string   `yaml:"description" validate:"required"`
	AuthRequired []string `yaml:"authRequired"`
}

var _ tools.ToolConfig = Config{}

func (cfg Config) ToolConfigKind() string { return kind }

var allHealthTypes = []pgengine.HealthType{
	pgengine.HealthIndex,
	pgengine.HealthBuffer,
	pgengine.HealthConnections,
	pgengine.HealthReplication,
	pgengine.HealthSequences,
	pgengine.HealthConstraints,
	pgengine.HealthVacuum,
}

func (cfg Config) Initialize(srcs map[string]sources.Source) (tools.Tool, error) {
	rawS, ok := srcs[cfg.Source]
	if !ok {
		return nil, fmt.Errorf("no source named %q configured", cfg.Source)
	}
	s, ok := rawS.(pgtools.CompatibleSource)
	if !ok {
		return nil, fmt.Errorf("invalid source for %q tool: source must be postgres-compatible", kind)
	}

	orchestrator := pgengine.NewHealthOrchestrator(pgengine.NewDriver(s.PostgresPool()), s.PostgresProbe())

	params := tools.Parameters{
		tools.NewArrayParameterWithDefault("checks", defaultCheckNames(), "subset of health checks to run: index, buffer, connection, replication, sequence, constraint, vacuum"),
	}
	return Tool{
		authRequired: cfg.AuthRequired,
		allParams:    params,
		orchestrator: orchestrator,
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

func defaultCheckNames() []string {
	names := make([]string, 0, len(allHealthTypes))
	for _, t := range allHealthTypes {
		names = append(names, string(t))
	}
	return names
}

var _ tools.Tool = Tool{}

// Tool implements postgres_analyze_db_health.
type Tool struct {
	authRequired []string
	allParams    tools.Parameters
	orchestrator *pgengine.HealthOrchestrator
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	pm := params.AsMap()

	var only []pgengine.HealthType
	if raw, ok := pm["checks"].([]string); ok {
		for _, name := range raw {
			only = append(only, pgengine.HealthType(name))
		}
	}

	return t.orchestrator.Analyze(ctx, only), nil
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
