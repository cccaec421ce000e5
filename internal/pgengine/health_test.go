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
	"testing"
)

func TestMaxSeverity(t *testing.T) {
	if maxSeverity(SeverityOK, SeverityWarning) != SeverityWarning {
		t.Fatal("expected warning to outrank ok")
	}
	if maxSeverity(SeverityCritical, SeverityWarning) != SeverityCritical {
		t.Fatal("expected critical to outrank warning")
	}
	if maxSeverity(SeverityOK, SeverityOK) != SeverityOK {
		t.Fatal("expected ok to outrank nothing")
	}
}

func TestErrFinding_NilErrorYieldsUnknownFailure(t *testing.T) {
	f := errFinding(nil)
	if f["error"] != "unknown failure" {
		t.Fatalf("got %v, want %q", f["error"], "unknown failure")
	}
}

func TestErrFinding_WrapsErrorMessage(t *testing.T) {
	f := errFinding(ConfigurationErrorf("boom"))
	if f["error"] == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestHealthOrchestrator_AnalyzeRunsOnlySelectedCalculators(t *testing.T) {
	orch := NewHealthOrchestrator(NewDriver(nil), nil)
	composite := orch.Analyze(context.Background(), []HealthType{HealthIndex, HealthVacuum})
	if len(composite.Reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(composite.Reports))
	}
	seen := map[HealthType]bool{}
	for _, r := range composite.Reports {
		seen[r.Type] = true
	}
	if !seen[HealthIndex] || !seen[HealthVacuum] {
		t.Fatalf("expected index and vacuum reports, got %+v", composite.Reports)
	}
}

func TestHealthOrchestrator_AnalyzeDefaultsToAllCalculators(t *testing.T) {
	orch := NewHealthOrchestrator(NewDriver(nil), nil)
	composite := orch.Analyze(context.Background(), nil)
	if len(composite.Reports) != len(allHealthTypesForTest) {
		t.Fatalf("got %d reports, want %d", len(composite.Reports), len(allHealthTypesForTest))
	}
}

var allHealthTypesForTest = []HealthType{
	HealthIndex, HealthBuffer, HealthConnections, HealthReplication,
	HealthSequences, HealthConstraints, HealthVacuum,
}

func TestHealthOrchestrator_FailingCalculatorYieldsWarningNotPanic(t *testing.T) {
	orch := NewHealthOrchestrator(NewDriver(nil), nil)
	composite := orch.Analyze(context.Background(), []HealthType{HealthIndex})
	if composite.Reports[0].Severity == SeverityOK {
		t.Fatalf("expected a failing driver to surface at least a warning, got %+v", composite.Reports[0])
	}
}
