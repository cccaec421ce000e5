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
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/sources"
	pgtools "github.com/pg-mcp/postgres-dba-toolbox/internal/tools/postgres"
)

type fakeSource struct{}

func (fakeSource) SourceKind() string            { return "postgres" }
func (fakeSource) PostgresPool() *pgxpool.Pool    { return nil }
func (fakeSource) PostgresProbe() *pgengine.Probe { return nil }

var _ pgtools.CompatibleSource = fakeSource{}

type incompatibleSource struct{}

func (incompatibleSource) SourceKind() string { return "mysql" }

func testConfig() Config {
	return Config{
		Name:        "postgres_explain_query",
		Kind:        kind,
		Source:      "mydb",
		Description: "explain a query",
	}
}

func TestInitialize_IncompatibleSourceErrors(t *testing.T) {
	cfg := testConfig()
	if _, err := cfg.Initialize(map[string]sources.Source{"mydb": incompatibleSource{}}); err == nil {
		t.Fatal("expected an error for a non-postgres-compatible source")
	}
}

func TestInitialize_DefaultsToUnrestrictedMode(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got := tool.(Tool).mode; got != pgtools.AccessModeUnrestricted {
		t.Fatalf("expected default mode %s, got %s", pgtools.AccessModeUnrestricted, got)
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

func TestParseParams_BooleanOptionsDefaultFalse(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pv, err := tool.ParseParams(map[string]any{"sql": "SELECT 1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pm := pv.AsMap()
	for _, name := range []string{"analyze", "buffers", "generic_plan", "memory", "serialize"} {
		if pm[name] != false {
			t.Fatalf("expected %s to default to false, got %v", name, pm[name])
		}
	}
}

func TestParseParams_BooleanOptionsOverridable(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pv, err := tool.ParseParams(map[string]any{"sql": "SELECT 1", "analyze": true, "buffers": true}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pm := pv.AsMap()
	if pm["analyze"] != true || pm["buffers"] != true {
		t.Fatalf("expected analyze/buffers to be true, got %+v", pm)
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
