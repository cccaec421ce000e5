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
	"context"
	"testing"

	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
)

type fakeTool struct {
	manifest tools.McpManifest
}

func (f fakeTool) Invoke(context.Context, tools.ParamValues, tools.AccessToken) (any, error) {
	return nil, nil
}
func (f fakeTool) ParseParams(map[string]any, map[string]map[string]any) (tools.ParamValues, error) {
	return nil, nil
}
func (f fakeTool) Manifest() tools.Manifest         { return tools.Manifest{} }
func (f fakeTool) McpManifest() tools.McpManifest   { return f.manifest }
func (f fakeTool) Authorized([]string) bool         { return true }
func (f fakeTool) RequiresClientAuthorization() bool { return false }

func TestToolsetConfig_InitializeNamedSubset(t *testing.T) {
	toolsMap := map[string]tools.Tool{
		"a": fakeTool{manifest: tools.McpManifest{Name: "a"}},
		"b": fakeTool{manifest: tools.McpManifest{Name: "b"}},
	}
	cfg := tools.ToolsetConfig{Name: "my_set", ToolNames: []string{"b"}}
	ts, err := cfg.Initialize("1.0.0", toolsMap)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if ts.Name != "my_set" || len(ts.Tools) != 1 || ts.Tools[0] != "b" {
		t.Fatalf("unexpected toolset: %+v", ts)
	}
}

func TestToolsetConfig_InitializeEmptyNamesIncludesEverythingSorted(t *testing.T) {
	toolsMap := map[string]tools.Tool{
		"zeta":  fakeTool{manifest: tools.McpManifest{Name: "zeta"}},
		"alpha": fakeTool{manifest: tools.McpManifest{Name: "alpha"}},
	}
	cfg := tools.ToolsetConfig{Name: "default"}
	ts, err := cfg.Initialize("1.0.0", toolsMap)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []string{"alpha", "zeta"}
	if len(ts.Tools) != 2 || ts.Tools[0] != want[0] || ts.Tools[1] != want[1] {
		t.Fatalf("got %v, want %v", ts.Tools, want)
	}
}

func TestToolsetConfig_InitializeUnknownToolErrors(t *testing.T) {
	cfg := tools.ToolsetConfig{Name: "bad", ToolNames: []string{"missing"}}
	if _, err := cfg.Initialize("1.0.0", map[string]tools.Tool{}); err == nil {
		t.Fatal("expected an error for an unknown tool name")
	}
}
