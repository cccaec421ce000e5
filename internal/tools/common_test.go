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

package tools_test

import (
	"testing"

	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
)

func TestIsValidName(t *testing.T) {
	cases := map[string]bool{
		"postgres_list_schemas": true,
		"my-tool_2":             true,
		"":                      true,
		"has a space":           false,
		"has.dot":               false,
	}
	for name, want := range cases {
		if got := tools.IsValidName(name); got != want {
			t.Errorf("IsValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsAuthorized_NoRequirementAlwaysAllowed(t *testing.T) {
	if !tools.IsAuthorized(nil, nil) {
		t.Fatal("expected an empty AuthRequired list to always be authorized")
	}
}

func TestIsAuthorized_RequiresAtLeastOneVerifiedService(t *testing.T) {
	if tools.IsAuthorized([]string{"google"}, nil) {
		t.Fatal("expected authorization to fail with no verified services")
	}
	if tools.IsAuthorized([]string{"google"}, []string{"other"}) {
		t.Fatal("expected authorization to fail when the required service isn't verified")
	}
	if !tools.IsAuthorized([]string{"google"}, []string{"other", "google"}) {
		t.Fatal("expected authorization to succeed once the required service is verified")
	}
}

func TestGetMcpManifest(t *testing.T) {
	params := tools.Parameters{tools.NewStringParameter("sql", "the query")}
	m := tools.GetMcpManifest("my_tool", "does a thing", nil, params)
	if m.Name != "my_tool" || m.Description != "does a thing" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if _, ok := m.InputSchema.Properties["sql"]; !ok {
		t.Fatalf("expected input schema to contain the sql parameter, got %+v", m.InputSchema)
	}
}
