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
		Name:        "postgres_get_object_details",
		Kind:        kind,
		Source:      "mydb",
		Description: "describe an object",
	}
}

func TestInitialize_IncompatibleSourceErrors(t *testing.T) {
	cfg := testConfig()
	if _, err := cfg.Initialize(map[string]sources.Source{"mydb": incompatibleSource{}}); err == nil {
		t.Fatal("expected an error for a non-postgres-compatible source")
	}
}

func TestParseParams_RequiresObjectName(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := tool.ParseParams(map[string]any{}, nil); err == nil {
		t.Fatal("expected an error when object_name is missing")
	}
}

func TestParseParams_DefaultsSchemaToPublic(t *testing.T) {
	cfg := testConfig()
	tool, err := cfg.Initialize(map[string]sources.Source{"mydb": fakeSource{}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pv, err := tool.ParseParams(map[string]any{"object_name": "users"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	pm := pv.AsMap()
	if pm["schema"] != "public" {
		t.Fatalf("expected default schema %q, got %v", "public", pm["schema"])
	}
	if pm["object_name"] != "users" {
		t.Fatalf("expected object_name %q, got %v", "users", pm["object_name"])
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
