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

package postgreslistobjects

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

const kind string = "postgres-list-objects"

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

// Config declares postgres_list_objects: a paginated listing of tables,
// views, and sequences in a schema, and of every extension available to
// the server, installed or not.
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

	params := tools.Parameters{
		tools.NewStringParameterWithDefault("schema", "public", "schema to list objects in"),
		tools.NewStringParameterWithDefault("object_type", "all", "one of table, view, sequence, extension, all"),
		tools.NewIntParameterWithDefault("limit", 100, "maximum objects to return per type"),
		tools.NewIntParameterWithDefault("offset", 0, "pagination offset"),
	}
	return Tool{
		authRequired: cfg.AuthRequired,
		allParams:    params,
		pool:         s.PostgresPool(),
		manifest:     tools.Manifest{Description: cfg.Description, Parameters: params.Manifest(), AuthRequired: cfg.AuthRequired},
		mcpManifest:  tools.GetMcpManifest(cfg.Name, cfg.Description, cfg.AuthRequired, params),
	}, nil
}

var _ tools.Tool = Tool{}

// Tool implements postgres_list_objects.
type Tool struct {
	authRequired []string
	allParams    tools.Parameters
	pool         *pgxpool.Pool
	manifest     tools.Manifest
	mcpManifest  tools.McpManifest
}

func (t Tool) Invoke(ctx context.Context, params tools.ParamValues, accessToken tools.AccessToken) (any, error) {
	pm := params.AsMap()
	schema, _ := pm["schema"].(string)
	objectType, _ := pm["object_type"].(string)
	limit, _ := pm["limit"].(int)
	offset, _ := pm["offset"].(int)

	result := map[string]any{}
	var err error

	if objectType == "all" || objectType == "table" {
		if result["tables"], err = t.listRelations(ctx, schema, "r", limit, offset); err != nil {
			return nil, err
		}
	}
	if objectType == "all" || objectType == "view" {
		if result["views"], err = t.listRelations(ctx, schema, "v", limit, offset); err != nil {
			return nil, err
		}
	}
	if objectType == "all" || objectType == "sequence" {
		if result["sequences"], err = t.listRelations(ctx, schema, "S", limit, offset); err != nil {
			return nil, err
		}
	}
	if objectType == "all" || objectType == "extension" {
		if result["extensions"], err = t.listExtensions(ctx, limit, offset); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// listRelations lists pg_class entries of relkind in schema, ordered by
// name, with a LIMIT/OFFSET for pagination.
func (t Tool) listRelations(ctx context.Context, schema, relkind string, limit, offset int) ([]any, error) {
	const q = `
		SELECT c.relname, c.relkind
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = $2
		ORDER BY c.relname
		LIMIT $3 OFFSET $4`
	rows, err := t.pool.Query(ctx, q, schema, relkind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("unable to list objects: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("unable to scan object row: %w", err)
		}
		out = append(out, map[string]any{"name": name, "kind": kind})
	}
	return out, rows.Err()
}

func (t Tool) listExtensions(ctx context.Context, limit, offset int) ([]any, error) {
	const q = `
		SELECT name, default_version, installed_version
		FROM pg_available_extensions
		ORDER BY name
		LIMIT $1 OFFSET $2`
	rows, err := t.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("unable to list extensions: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var name string
		var defaultVersion, installedVersion *string
		if err := rows.Scan(&name, &defaultVersion, &installedVersion); err != nil {
			return nil, fmt.Errorf("unable to scan extension row: %w", err)
		}
		out = append(out, map[string]any{
			"name": name, "default_version": defaultVersion, "installed_version": installedVersion, "installed": installedVersion != nil,
		})
	}
	return out, rows.Err()
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
