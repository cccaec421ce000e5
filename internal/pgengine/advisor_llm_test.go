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

package pgengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIProposer_DefaultsModel(t *testing.T) {
	p := NewOpenAIProposer("key", "")
	if p.Model != "gpt-4o-mini" {
		t.Fatalf("got model %q, want default %q", p.Model, "gpt-4o-mini")
	}
}

func TestNewOpenAIProposer_HonorsConfiguredModel(t *testing.T) {
	p := NewOpenAIProposer("key", "gpt-4o")
	if p.Model != "gpt-4o" {
		t.Fatalf("got model %q, want %q", p.Model, "gpt-4o")
	}
}

func TestBuildProposerPrompt_SummarizesWorkloadAndCandidates(t *testing.T) {
	workload := []WorkloadItem{{QueryText: "SELECT 1", Calls: 3, MeanExecMs: 1.5}}
	candidates := []IndexDefinition{{Table: TableRef{Name: "orders"}, Columns: []string{"customer_id"}}}
	prompt := buildProposerPrompt(workload, candidates)
	if !strings.Contains(prompt, "SELECT 1") {
		t.Fatalf("expected prompt to mention the query, got %q", prompt)
	}
	if !strings.Contains(prompt, "orders(customer_id)") {
		t.Fatalf("expected prompt to mention the candidate, got %q", prompt)
	}
}

func TestOpenAIProposer_ParsesValidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("got Authorization header %q, want %q", got, "Bearer test-key")
		}
		resp := openAIChatResponse{}
		resp.Choices = []struct {
			Message openAIChatMessage `json:"message"`
		}{
			{Message: openAIChatMessage{Role: "assistant", Content: `[{"table":{"name":"orders"},"columns":["customer_id"]}]`}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProposer("test-key", "")
	p.BaseURL = server.URL

	defs, err := p.Propose(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(defs) != 1 || defs[0].Table.Name != "orders" || defs[0].Columns[0] != "customer_id" {
		t.Fatalf("unexpected defs: %+v", defs)
	}
}

func TestOpenAIProposer_MalformedContentYieldsNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIChatResponse{}
		resp.Choices = []struct {
			Message openAIChatMessage `json:"message"`
		}{
			{Message: openAIChatMessage{Role: "assistant", Content: "not json"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProposer("test-key", "")
	p.BaseURL = server.URL

	defs, err := p.Propose(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("expected malformed model output to be swallowed, got error: %s", err)
	}
	if defs != nil {
		t.Fatalf("expected no candidates, got %+v", defs)
	}
}

func TestOpenAIProposer_NonOKStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewOpenAIProposer("test-key", "")
	p.BaseURL = server.URL

	if _, err := p.Propose(context.Background(), nil, nil); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
