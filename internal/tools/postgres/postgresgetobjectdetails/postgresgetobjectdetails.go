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

package postgresgetobjectdetails

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

const kind string = "postgres-get-object-details"

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

// Config declares postgres_get_object_details: columns, constraints, and
// indexes for one schema-qualified relation.
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
		tools.NewStringParameterWithDefault("schema", "public", "schema the object lives in"),
		tools.NewStringParameter("object_name", "name of the table, view, or sequence"),
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

// Tool implements postgres_get_object_details.
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
	name, _ := pm["object_name"].(string)

	exists, err := t.objectExists(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, pgengine.ObjectNotFound(fmt.Sprintf("%s.%s", schema, name))
	}

	columns, err := t.columns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	constraints, err := t.constraints(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	indexes, err := t.indexes(ctx, schema, name)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"schema":      schema,
		"name":        name,
		"columns":     columns,
		"constraints": constraints,
		"indexes":     indexes,
	}, nil
}

func (t Tool) objectExists(ctx context.Context, schema, name string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1 AND c.relname = $2
		)`
	var exists bool
	if err := t.pool.QueryRow(ctx, q, schema, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("unable to check object existence: %w", err)
	}
	return exists, nil
}

func (t Tool) columns(ctx context.Context, schema, name string) ([]any, error) {
	const q = `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
	rows, err := t.pool.Query(ctx, q, schema, name)
	if err != nil {
		return nil, fmt.Errorf("unable to list columns: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var colName, dataType, nullable string
		var def *string
		if err := rows.Scan(&colName, &dataType, &nullable, &def); err != nil {
			return nil, fmt.Errorf("unable to scan column row: %w", err)
		}
		out = append(out, map[string]any{
			"name": colName, "data_type": dataType, "nullable": nullable == "YES", "default": def,
		})
	}
	return out, rows.Err()
}

func (t Tool) constraints(ctx context.Context, schema, name string) ([]any, error) {
	const q = `
		SELECT conname, contype, convalidated, pg_get_constraintdef(oid)
		FROM pg_constraint
		WHERE conrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass`
	rows, err := t.pool.Query(ctx, q, schema, name)
	if err != nil {
		return nil, fmt.Errorf("unable to list constraints: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var conname, contype, def string
		var validated bool
		if err := rows.Scan(&conname, &contype, &validated, &def); err != nil {
			return nil, fmt.Errorf("unable to scan constraint row: %w", err)
		}
		out = append(out, map[string]any{
			"name": conname, "type": contype, "validated": validated, "definition": def,
		})
	}
	return out, rows.Err()
}

func (t Tool) indexes(ctx context.Context, schema, name string) ([]any, error) {
	const q = `
		SELECT i.relname, ix.indisunique, ix.indisvalid, pg_get_indexdef(ix.indexrelid)
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		WHERE ix.indrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass`
	rows, err := t.pool.Query(ctx, q, schema, name)
	if err != nil {
		return nil, fmt.Errorf("unable to list indexes: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var idxName, def string
		var unique, valid bool
		if err := rows.Scan(&idxName, &unique, &valid, &def); err != nil {
			return nil, fmt.Errorf("unable to scan index row: %w", err)
		}
		out = append(out, map[string]any{
			"name": idxName, "unique": unique, "valid": valid, "definition": def,
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
