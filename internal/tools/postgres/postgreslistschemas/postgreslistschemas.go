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

package postgreslistschemas

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-list-schemas"

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

// Config declares postgres_list_schemas: no parameters, lists every
// non-system schema the connecting role can see.
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

	params := tools.Parameters{}
	return Tool{
		name:         cfg.Name,
		authRequired: cfg.AuthRequired,
		allParams:    params,
		pool:         s.PostgresPool(),
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

var _ tools.Tool = Tool{}

// Tool implements postgres_list_schemas.
type Tool struct {
	name         string
	authRequired []string
	allParams    tools.Parameters
	pool         *pgxpool.Pool
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

const listSchemasSQL = `
	SELECT schema_name, schema_owner
	FROM information_schema.schemata
	WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		AND schema_name NOT LIKE 'pg_toast%'
		AND schema_name NOT LIKE 'pg_temp%'
	ORDER BY schema_name`

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	rows, err := t.pool.Query(ctx, listSchemasSQL)
	if err != nil {
		return nil, fmt.Errorf("unable to list schemas: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var name, owner string
		if err := rows.Scan(&name, &owner); err != nil {
			return nil, fmt.Errorf("unable to scan schema row: %w", err)
		}
		out = append(out, map[string]any{"schema_name": name, "owner": owner})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to list schemas: %w", err)
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
