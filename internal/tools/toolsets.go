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

package tools

import (
	"fmt"
	"slices"
)

// ToolsetConfig names a subset of the configured tools to expose together.
// An empty ToolNames list (the default toolset) is resolved by the server
// to every configured tool.
type ToolsetConfig struct {
	Name      string   `yaml:"name"`
	ToolNames []string `yaml:"tools"`
}

// Initialize resolves ToolNames against the configured tools map and
// returns the bound Toolset, failing if any named tool doesn't exist.
func (tc ToolsetConfig) Initialize(version string, toolsMap map[string]Tool) (Toolset, error) {
	names := tc.ToolNames
	if len(names) == 0 {
		names = make([]string, 0, len(toolsMap))
		for n := range toolsMap {
			names = append(names, n)
		}
		slices.Sort(names)
	}

	manifests := make([]McpManifest, 0, len(names))
	for _, name := range names {
		t, ok := toolsMap[name]
		if !ok {
			return Toolset{}, fmt.Errorf("invalid tool name in toolset %q: %q does not exist", tc.Name, name)
		}
		manifests = append(manifests, t.McpManifest())
	}

	return Toolset{
		Name:          tc.Name,
		ServerVersion: version,
		Tools:         names,
		McpManifest:   manifests,
	}, nil
}

// Toolset is a resolved, named group of tools ready to be served over MCP.
type Toolset struct {
	Name          string
	ServerVersion string
	Tools         []string
	McpManifest   []McpManifest
}
