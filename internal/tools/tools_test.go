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

	yaml "github.com/goccy/go-yaml"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/tools"
)

func TestRegister_RejectsDuplicateKind(t *testing.T) {
	kind := "test-register-duplicate"
	factory := func(ctx context.Context, name string, decoder *yaml.Decoder) (tools.ToolConfig, error) {
		return nil, nil
	}
	if ok := tools.Register(kind, factory); !ok {
		t.Fatal("expected the first registration to succeed")
	}
	if ok := tools.Register(kind, factory); ok {
		t.Fatal("expected a duplicate registration to be rejected")
	}
}

func TestDecodeConfig_UnknownKindErrors(t *testing.T) {
	if _, err := tools.DecodeConfig(context.Background(), "no-such-kind", "n", nil); err == nil {
		t.Fatal("expected an error for an unregistered tool kind")
	}
}
