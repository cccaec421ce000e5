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

package postgresexecutesql

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-execute-sql"

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

// Config declares postgres_execute_sql. AccessMode is not user-configured
// per tool; it is stamped onto every generated Config by the server at
// startup from the CLI's --access-mode flag, since the whole server runs
// under one mode.
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
		tools.NewStringParameter("sql", "SQL statement to execute"),
		tools.NewArrayParameter("params", "positional $1.. parameter values, as strings"),
	}
	return Tool{
		authRequired: cfg.AuthRequired,
		allParams:    params,
		mode:         mode,
		source:       s,
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

var _ tools.Tool = Tool{}

// Tool implements postgres_execute_sql. In restricted mode every statement
// is routed through the gatekeeper in pgengine.RestrictedDriver; in
// unrestricted mode it runs directly against the base driver.
type Tool struct {
	authRequired []string
	allParams    tools.Parameters
	mode         pgtools.AccessMode
	source       pgtools.CompatibleSource
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	pm := params.AsMap()
	sql, _ := pm["sql"].(string)
	var bindParams []any
	if raw, ok := pm["params"].([]string); ok {
		for _, p := range raw {
			bindParams = append(bindParams, p)
		}
	}

	driver, err := pgtools.SelectDriver(ctx, t.mode, t.source.PostgresPool())
	if err != nil {
		return nil, err
	}
	rows, err := driver.Execute(ctx, sql, bindParams...)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out, nil
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
