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
	"context"
	"testing"
)

func TestLogFormat_DefaultsToStandard(t *testing.T) {
	var f logFormat
	if f.String() != "standard" {
		t.Fatalf("got %q, want %q", f.String(), "standard")
	}
}

func TestLogFormat_SetAcceptsKnownValues(t *testing.T) {
	var f logFormat
	if err := f.Set("JSON"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if f.String() != "json" {
		t.Fatalf("got %q, want %q", f.String(), "json")
	}
}

func TestLogFormat_SetRejectsUnknownValue(t *testing.T) {
	var f logFormat
	if err := f.Set("xml"); err == nil {
		t.Fatal("expected an error for an unrecognized log format")
	}
}

func TestStringLevel_DefaultsToInfo(t *testing.T) {
	var s StringLevel
	if s.String() != "info" {
		t.Fatalf("got %q, want %q", s.String(), "info")
	}
}

func TestStringLevel_SetAcceptsKnownValues(t *testing.T) {
	var s StringLevel
	if err := s.Set("WARN"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if s.String() != "warn" {
		t.Fatalf("got %q, want %q", s.String(), "warn")
	}
}

func TestStringLevel_SetRejectsUnknownValue(t *testing.T) {
	var s StringLevel
	if err := s.Set("verbose"); err == nil {
		t.Fatal("expected an error for an unrecognized log level")
	}
}

func TestUnmarshalResourceConfig_RejectsMissingKind(t *testing.T) {
	raw := []byte("name: foo\ntype: postgres\n")
	if _, _, _, err := UnmarshalResourceConfig(context.Background(), raw); err == nil {
		t.Fatal("expected an error when 'kind' is missing")
	}
}

func TestUnmarshalResourceConfig_RejectsUnknownKind(t *testing.T) {
	raw := []byte("kind: bogus\nname: foo\n")
	if _, _, _, err := UnmarshalResourceConfig(context.Background(), raw); err == nil {
		t.Fatal("expected an error for an unrecognized kind")
	}
}

func TestUnmarshalResourceConfig_RejectsMissingName(t *testing.T) {
	raw := []byte("kind: sources\ntype: postgres\n")
	if _, _, _, err := UnmarshalResourceConfig(context.Background(), raw); err == nil {
		t.Fatal("expected an error when 'name' is missing")
	}
}

func TestUnmarshalYAMLToolsetConfig_ParsesToolNames(t *testing.T) {
	ctx := context.Background()
	r := map[string]any{"tools": []string{"a", "b"}}
	cfg, err := UnmarshalYAMLToolsetConfig(ctx, "my_set", r)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.Name != "my_set" || len(cfg.ToolNames) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestUnmarshalYAMLSourceConfig_RejectsMissingType(t *testing.T) {
	ctx := context.Background()
	if _, err := UnmarshalYAMLSourceConfig(ctx, "my_source", map[string]any{}); err == nil {
		t.Fatal("expected an error when 'type' is missing")
	}
}

func TestUnmarshalYAMLToolConfig_RejectsMissingType(t *testing.T) {
	ctx := context.Background()
	if _, err := UnmarshalYAMLToolConfig(ctx, "my_tool", map[string]any{}); err == nil {
		t.Fatal("expected an error when 'type' is missing")
	}
}
