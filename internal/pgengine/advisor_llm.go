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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIProposer implements Proposer against the OpenAI chat completions
// endpoint. It is only constructed when OPENAI_API_KEY is set; the advisor
// treats it as an optional refinement step with no effect on correctness
// guarantees — a failed or slow call just means fewer candidates, never an
// error surfaced to the caller.
type OpenAIProposer struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
	BaseURL    string
}

// NewOpenAIProposer returns a proposer using apiKey. model defaults to
// "gpt-4o-mini" when empty.
func NewOpenAIProposer(apiKey, model string) *OpenAIProposer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProposer{
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    "https://api.openai.com/v1/chat/completions",
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

// Propose asks the model to suggest additional index candidates beyond the
// mechanically-generated top set, given a summary of the workload. The
// model is expected to answer with a JSON array of IndexDefinition; any
// parse failure yields no extra candidates rather than an error.
func (p *OpenAIProposer) Propose(ctx context.Context, workload []WorkloadItem, topCandidates []IndexDefinition) ([]IndexDefinition, error) {
	prompt := buildProposerPrompt(workload, topCandidates)

	reqBody, err := json.Marshal(openAIChatRequest{
		Model: p.Model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: "You suggest PostgreSQL indexes as a JSON array of {\"table\":{\"schema\":\"\",\"name\":\"\"},\"columns\":[]}. Reply with only the JSON array."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("proposer: unexpected status %d: %s", resp.StatusCode, body)
	}

	var chat openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, err
	}
	if len(chat.Choices) == 0 {
		return nil, nil
	}

	var defs []IndexDefinition
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &defs); err != nil {
		return nil, nil //nolint:nilerr // malformed model output just yields no extra candidates
	}
	return defs, nil
}

func buildProposerPrompt(workload []WorkloadItem, topCandidates []IndexDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workload has %d distinct queries.\n", len(workload))
	for i, q := range workload {
		if i >= 10 {
			fmt.Fprintf(&b, "...and %d more.\n", len(workload)-10)
			break
		}
		fmt.Fprintf(&b, "- calls=%d mean_ms=%.2f: %s\n", q.Calls, q.MeanExecMs, q.QueryText)
	}
	fmt.Fprintf(&b, "Mechanically generated top candidates so far:\n")
	for _, c := range topCandidates {
		fmt.Fprintf(&b, "- %s(%s)\n", c.Table.Name, strings.Join(c.Columns, ","))
	}
	return b.String()
}
