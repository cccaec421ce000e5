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

package postgres

import (
	"context"
	"testing"

	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
)

func TestSelectDriver_UnrestrictedReturnsBaseDriver(t *testing.T) {
	drv, err := SelectDriver(context.Background(), AccessModeUnrestricted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, ok := drv.(*pgengine.Driver); !ok {
		t.Fatalf("expected *pgengine.Driver for unrestricted mode, got %T", drv)
	}
}
