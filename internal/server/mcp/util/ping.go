// Copyright 2025 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import "github.com/pg-mcp/postgres-dba-toolbox/internal/server/mcp"

// PingHandler handles the "ping" method by returning an empty result, per
// the MCP keepalive convention clients use to detect a dead stdio pipe.
func PingHandler(id mcp.RequestId) (any, error) {
	return mcp.JSONRPCResponse{
		Jsonrpc: mcp.JSONRPC_VERSION,
		Id:      id,
		Result:  struct{}{},
	}, nil
}
