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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/server/mcp"
	mcputil "github.com/pg-mcp/postgres-dba-toolbox/internal/server/mcp/util"
)

type sseSession struct {
	sessionId  string
	writer     http.ResponseWriter
	flusher    http.Flusher
	done       chan struct{}
	eventQueue chan string
}

// sseManager manages and control access to sse sessions
type sseManager struct {
	mu          sync.RWMutex
	sseSessions map[string]*sseSession
}

func newSSEManager() *sseManager {
	return &sseManager{sseSessions: make(map[string]*sseSession)}
}

func (m *sseManager) get(id string) (*sseSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sseSessions[id]
	return session, ok
}

func (m *sseManager) add(id string, session *sseSession) {
	m.mu.Lock()
	m.sseSessions[id] = session
	m.mu.Unlock()
}

func (m *sseManager) remove(id string) {
	m.mu.Lock()
	delete(m.sseSessions, id)
	m.mu.Unlock()
}

// mcpRouter creates a router that represents the MCP JSON-RPC endpoint and,
// for the sse transport, its companion event stream.
func mcpRouter(s *Server) (chi.Router, error) {
	r := chi.NewRouter()

	r.Use(middleware.AllowContentType("application/json"))
	r.Use(middleware.StripSlashes)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/sse", func(w http.ResponseWriter, r *http.Request) { sseHandler(s, w, r) })
	r.Post("/", func(w http.ResponseWriter, r *http.Request) { mcpHandler(s, w, r) })

	return r, nil
}

// sseHandler handles sse initialization and message.
func sseHandler(s *Server, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		err := fmt.Errorf("unable to retrieve flusher for sse")
		_ = render.Render(w, r, newErrResponse(err, http.StatusInternalServerError))
		return
	}
	sessionId := uuid.New().String()
	session := &sseSession{
		sessionId:  sessionId,
		writer:     w,
		flusher:    flusher,
		done:       make(chan struct{}),
		eventQueue: make(chan string, 100),
	}
	s.sseManager.add(sessionId, session)
	defer s.sseManager.remove(sessionId)

	messageEndpoint := fmt.Sprintf("http://%s:%d/mcp?sessionId=%s", s.conf.Address, s.conf.Port, sessionId)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", messageEndpoint)
	flusher.Flush()

	clientClose := r.Context().Done()
	for {
		select {
		// Ensure that only a single responses are written at once
		case event := <-session.eventQueue:
			fmt.Fprint(w, event)
			flusher.Flush()
			// channel for client disconnection
		case <-clientClose:
			close(session.done)
			s.logger.DebugContext(context.Background(), "client disconnected")
			return
		}
	}
}

// mcpHandler handles all mcp messages arriving over HTTP (sse and
// streamable-http transports).
func mcpHandler(s *Server, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		id := uuid.New().String()
		render.JSON(w, r, newJSONRPCError(id, mcp.PARSE_ERROR, err.Error(), nil))
		return
	}

	res, ok := dispatchMCP(r.Context(), s, body)
	if !ok {
		// a notification: no response body expected
		w.WriteHeader(http.StatusAccepted)
		return
	}

	sessionId := r.URL.Query().Get("sessionId")
	session, ok := s.sseManager.get(sessionId)
	if !ok {
		s.logger.DebugContext(context.Background(), "sse session not available")
	} else {
		eventData, _ := json.Marshal(res)
		select {
		case session.eventQueue <- fmt.Sprintf("event: message\ndata: %s\n\n", eventData):
			s.logger.DebugContext(context.Background(), "event queue successful")
		case <-session.done:
			s.logger.DebugContext(context.Background(), "session is close")
		default:
			s.logger.DebugContext(context.Background(), "unable to add to event queue")
		}
	}

	render.JSON(w, r, res)
}

// dispatchMCP decodes and routes a single JSON-RPC message against the
// server's tool/toolset registry. The bool return is false for
// notifications, which never produce a response body.
func dispatchMCP(ctx context.Context, s *Server, body []byte) (mcp.JSONRPCMessage, bool) {
	var baseMessage struct {
		Jsonrpc string        `json:"jsonrpc"`
		Method  string        `json:"method"`
		Id      mcp.RequestId `json:"id,omitempty"`
	}
	if err := decodeJSON(bytes.NewBuffer(body), &baseMessage); err != nil {
		id := uuid.New().String()
		return newJSONRPCError(id, mcp.PARSE_ERROR, err.Error(), nil), true
	}

	if baseMessage.Method == "" {
		err := fmt.Errorf("method not found")
		return newJSONRPCError(baseMessage.Id, mcp.METHOD_NOT_FOUND, err.Error(), nil), true
	}

	if baseMessage.Jsonrpc != mcp.JSONRPC_VERSION {
		err := fmt.Errorf("invalid json-rpc version")
		return newJSONRPCError(baseMessage.Id, mcp.INVALID_REQUEST, err.Error(), nil), true
	}

	if baseMessage.Id == nil {
		var notification mcp.JSONRPCNotification
		if err := json.Unmarshal(body, &notification); err != nil {
			s.logger.DebugContext(ctx, fmt.Sprintf("invalid notification request: %s", err))
		}
		// Notifications do not expect a response; this server doesn't act on them yet.
		return nil, false
	}

	var res mcp.JSONRPCMessage
	switch baseMessage.Method {
	case "ping":
		result, err := mcputil.PingHandler(baseMessage.Id)
		if err != nil {
			res = newJSONRPCError(baseMessage.Id, mcp.INTERNAL_ERROR, err.Error(), nil)
			break
		}
		res = result
	case "initialize":
		var req mcp.InitializeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			err := fmt.Errorf("invalid mcp initialize request: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_REQUEST, err.Error(), nil)
			break
		}
		result := mcp.Initialize(s.conf.Version)
		res = mcp.JSONRPCResponse{
			Jsonrpc: mcp.JSONRPC_VERSION,
			Id:      baseMessage.Id,
			Result:  result,
		}
	case "tools/list":
		var req mcp.ListToolsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			err := fmt.Errorf("invalid mcp tools list request: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_REQUEST, err.Error(), nil)
			break
		}
		toolset, ok := s.toolsets[""]
		if !ok {
			err := fmt.Errorf("toolset does not exist")
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_REQUEST, err.Error(), nil)
			break
		}
		result := mcp.ToolsList(toolset)
		res = mcp.JSONRPCResponse{
			Jsonrpc: mcp.JSONRPC_VERSION,
			Id:      baseMessage.Id,
			Result:  result,
		}
	case "tools/call":
		var req mcp.CallToolRequest
		if err := json.Unmarshal(body, &req); err != nil {
			err := fmt.Errorf("invalid mcp tools call request: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_REQUEST, err.Error(), nil)
			break
		}
		toolName := req.Params.Name
		toolArgument := req.Params.Arguments
		tool, ok := s.tools[toolName]
		if !ok {
			err := fmt.Errorf("invalid tool name: tool with name %q does not exist", toolName)
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_PARAMS, err.Error(), nil)
			break
		}

		aMarshal, err := json.Marshal(toolArgument)
		if err != nil {
			err := fmt.Errorf("unable to marshal tools argument: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INTERNAL_ERROR, err.Error(), nil)
			break
		}
		var data map[string]any
		if err = decodeJSON(bytes.NewBuffer(aMarshal), &data); err != nil {
			err := fmt.Errorf("unable to decode tools argument: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INTERNAL_ERROR, err.Error(), nil)
			break
		}

		// MCP carries no bearer-auth concept here; tools are gated purely by
		// access mode, stamped at startup.
		claimsFromAuth := make(map[string]map[string]any)

		params, err := tool.ParseParams(data, claimsFromAuth)
		if err != nil {
			err = fmt.Errorf("provided parameters were invalid: %w", err)
			res = newJSONRPCError(baseMessage.Id, mcp.INVALID_PARAMS, err.Error(), nil)
			break
		}

		result := mcp.ToolCall(ctx, tool, params)
		res = mcp.JSONRPCResponse{
			Jsonrpc: mcp.JSONRPC_VERSION,
			Id:      baseMessage.Id,
			Result:  result,
		}
	default:
		res = newJSONRPCError(baseMessage.Id, mcp.METHOD_NOT_FOUND, fmt.Sprintf("invalid method %s", baseMessage.Method), nil)
	}

	return res, true
}

// newJSONRPCError is the response sent back when an error has been encountered in mcp.
func newJSONRPCError(id mcp.RequestId, code int, message string, data any) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		Jsonrpc: mcp.JSONRPC_VERSION,
		Id:      id,
		Error: mcp.McpError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// decodeJSON decodes JSON preserving number precision (json.Number) so
// tool argument values don't silently round-trip as float64.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// newErrResponse is a helper function initializing an errResponse.
func newErrResponse(err error, code int) *errResponse {
	return &errResponse{
		Err:            err,
		HTTPStatusCode: code,
		StatusText:     http.StatusText(code),
		ErrorText:      err.Error(),
	}
}

// errResponse is the response sent back when an error has been encountered.
type errResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}
