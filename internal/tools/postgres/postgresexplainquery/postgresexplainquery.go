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

package postgresexplainquery

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-explain-query"

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

// Config declares postgres_explain_query, a thin wrapper around
// pgengine.ExplainEngine.
type Config struct {
	Name         string             `yaml:"name" validate:"required"`
	Kind         string             `yaml:"kind" validate:"required"`
	Source       string             `yaml:"source" validate:"required"`
	Description  string             `yaml:"description" validate:"required"`
	AuthRequired []string           `yaml:"authRequired"`
	AccessMode   pgtools.AccessMode `yaml:"accessMode"`
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

	mode := cfg.AccessMode
	if mode == "" {
		mode = pgtools.AccessModeUnrestricted
	}

	params := tools.Parameters{
		tools.NewStringParameter("sql", "SQL statement to explain"),
		tools.NewArrayParameter("params", "positional $1.. parameter values, as strings"),
		tools.NewBooleanParameterWithDefault("analyze", false, "actually run the query to get real timing (unrestricted mode, or read-only queries under restricted mode)"),
		tools.NewBooleanParameterWithDefault("buffers", false, "include buffer usage"),
		tools.NewBooleanParameterWithDefault("generic_plan", false, "produce a plan without substituting real parameter values (PG16+)"),
		tools.NewBooleanParameterWithDefault("memory", false, "include planning memory usage (PG17+)"),
		tools.NewBooleanParameterWithDefault("serialize", false, "include result serialization cost, requires analyze (PG17+)"),
	}
	return Tool{
		authRequired: cfg.AuthRequired,
		allParams:    params,
		mode:         mode,
		pool:         s.PostgresPool(),
		engine:       pgengine.NewExplainEngine(pgengine.NewDriver(s.PostgresPool()), s.PostgresProbe()),
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

var _ tools.Tool = Tool{}

// Tool implements postgres_explain_query.
type Tool struct {
	authRequired []string
	allParams    tools.Parameters
	mode         pgtools.AccessMode
	pool         *pgxpool.Pool
	engine       *pgengine.ExplainEngine
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	pm := params.AsMap()
	sql, _ := pm["sql"].(string)
	analyze, _ := pm["analyze"].(bool)

	if analyze && t.mode == pgtools.AccessModeRestricted {
		// Restricted mode only permits ANALYZE on statements the
		// gatekeeper would itself allow to execute as read-only.
		userSchemas, err := pgtools.DiscoverUserSchemas(ctx, t.pool)
		if err != nil {
			return nil, pgengine.InternalErrorf("", err)
		}
		restricted := pgengine.NewRestrictedDriver(pgengine.NewDriver(t.pool), userSchemas)
		if err := restricted.CheckSQL(sql); err != nil {
			return nil, err
		}
	}

	var bindParams []any
	if raw, ok := pm["params"].([]string); ok {
		for _, p := range raw {
			bindParams = append(bindParams, p)
		}
	}

	opts := pgengine.ExplainOptions{
		Analyze:     analyze,
		Buffers:     boolParam(pm, "buffers"),
		GenericPlan: boolParam(pm, "generic_plan"),
		Memory:      boolParam(pm, "memory"),
		Serialize:   boolParam(pm, "serialize"),
	}

	return t.engine.Explain(ctx, sql, bindParams, opts)
}

func boolParam(pm map[string]any, name string) bool {
	v, _ := pm[name].(bool)
	return v
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
