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
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

// fakeSource is a minimal pgtools.CompatibleSource for initializing the
// tool without a real database connection.
type fakeSource struct{}

func (fakeSource) SourceKind() string            { return "postgres" }
func (fakeSource) PostgresPool() *pgxpool.Pool    { return nil }
func (fakeSource) PostgresProbe() *pgengine.Probe { return nil }

var _ pgtools.CompatibleSource = fakeSource{}

func testConfig() Config {
	return Config{
		Name:        "postgres_execute_sql",
		Kind:        kind,
		Source:      "mydb",
		Description: "run arbitrary SQL",
	}
}

func TestInitialize_UnknownSourceErrors(t *testing.T) {
	cfg := testConfig()
	_, err := cfg.Initialize(map[string]sources.Source{})
	if err == nil {
		t.Fatal("expected an error for a missing source")
	}
}

func TestInitialize_IncompatibleSourceErrors(t *testing.T) {
	cfg := testConfig()
	_, err := cfg.Initialize(map[string]sources.Source{"mydb": incompatibleSource{}})
	if err == nil {
		t.Fatal("expected an error for a non-postgres-compatible source")
	}
}

type incompatibleSource struct{}

func (incompatibleSource) SourceKind() string { return "mysql" }

func TestInitialize_DefaultsToUnrestrictedMode(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got, ok := tool.(Tool)
	if !ok {
		t.Fatalf("expected Tool, got %T", tool)
	}
	if got.mode != pgtools.AccessModeUnrestricted {
		t.Fatalf("expected default mode %s, got %s", pgtools.AccessModeUnrestricted, got.mode)
	}
}

func TestInitialize_HonorsConfiguredMode(t *testing.T) {
	cfg := testConfig()
	cfg.AccessMode = pgtools.AccessModeRestricted
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got := tool.(Tool).mode; got != pgtools.AccessModeRestricted {
		t.Fatalf("expected restricted mode, got %s", got)
	}
}

func TestParseParams_RequiresSQL(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := tool.ParseParams(map[string]any{}, nil); err == nil {
		t.Fatal("expected an error when sql is missing")
	}
}

func TestParseParams_AcceptsSQLAndOptionalParams(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pv, err := tool.ParseParams(map[string]any{
		"sql":    "SELECT 1",
		"params": []any{"a", "b"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pm := pv.AsMap()
	if pm["sql"] != "SELECT 1" {
		t.Fatalf("unexpected sql value: %v", pm["sql"])
	}
}

func TestAuthorized_RequiresConfiguredAuthServices(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRequired = []string{"my-google-auth"}
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if tool.Authorized(nil) {
		t.Fatal("expected tool to be unauthorized with no verified auth services")
	}
	if !tool.Authorized([]string{"my-google-auth"}) {
		t.Fatal("expected tool to be authorized once the required auth service is verified")
	}
}

func TestRequiresClientAuthorization_AlwaysFalse(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if tool.RequiresClientAuthorization() {
		t.Fatal("postgres_execute_sql never requires client-side authorization")
	}
}
