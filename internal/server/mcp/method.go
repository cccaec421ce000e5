// Copyright 2025 Google LLC
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

package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
)

func Initialize(version string) InitializeResult {
	toolsListChanged := false
	result := InitializeResult{
		ProtocolVersion: LATEST_PROTOCOL_VERSION,
		Capabilities: ServerCapabilities{
			Tools: &ListChanged{
				ListChanged: &toolsListChanged,
			},
		},
		ServerInfo: Implementation{
			Name:    SERVER_NAME,
			Version: version,
		},
	}
	return result
}

// ToolsList return a ListToolsResult
func ToolsList(toolset tools.Toolset) ListToolsResult {
	mcpManifest := toolset.McpManifest

	result := ListToolsResult{
		Tools: mcpManifest,
	}
	return result
}

// ToolCall invokes tool with params and renders the result into the MCP
// tool-result content envelope: a single JSON text block, with isError set
// for both transport-level failures and structured engine errors.
func ToolCall(ctx context.Context, tool tools.Tool, params tools.ParamValues) CallToolResult {
	result, err := tool.Invoke(ctx, params, "")
	if err != nil {
		return CallToolResult{
			Content: []ToolContent{{Type: "text", Text: errorText(err)}},
			IsError: true,
		}
	}

	text, err := json.Marshal(result)
	if err != nil {
		return CallToolResult{
			Content: []ToolContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}
	}
	return CallToolResult{
		Content: []ToolContent{{Type: "text", Text: string(text)}},
		IsError: false,
	}
}

// errorText renders an engine error as the {kind, message, detail} the
// client sees; other errors fall back to their plain message.
func errorText(err error) string {
	var engineErr *pgengine.Error
	if errors.As(err, &engineErr) {
		payload := map[string]any{
			"kind":    engineErr.Kind,
			"message": engineErr.Msg,
		}
		if engineErr.Detail != "" {
			payload["detail"] = engineErr.Detail
		}
		if b, marshalErr := json.Marshal(payload); marshalErr == nil {
			return string(b)
		}
	}
	return err.Error()
}
