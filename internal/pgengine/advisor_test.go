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

import "testing"

func TestDefaultAdvisorConstraints(t *testing.T) {
	c := DefaultAdvisorConstraints()
	if c.MaxIndexes != 10 {
		t.Fatalf("got MaxIndexes %d, want 10", c.MaxIndexes)
	}
	if c.MaxColumnsPerIndex != 3 {
		t.Fatalf("got MaxColumnsPerIndex %d, want 3", c.MaxColumnsPerIndex)
	}
	if c.MinCostImprovement != 0.95 {
		t.Fatalf("got MinCostImprovement %v, want 0.95", c.MinCostImprovement)
	}
}

func TestExtractPredicateColumns_FindsWhereAndOrderBy(t *testing.T) {
	table, cols := extractPredicateColumns("SELECT * FROM orders WHERE customer_id = 5 ORDER BY created_at")
	if table.Name != "orders" {
		t.Fatalf("got table %q, want %q", table.Name, "orders")
	}
	if len(cols) != 2 || cols[0] != "customer_id" || cols[1] != "created_at" {
		t.Fatalf("got cols %v, want [customer_id created_at]", cols)
	}
}

func TestExtractPredicateColumns_NoFromReturnsEmpty(t *testing.T) {
	table, cols := extractPredicateColumns("SELECT 1")
	if table.Name != "" || cols != nil {
		t.Fatalf("expected empty result for query with no FROM clause, got table=%v cols=%v", table, cols)
	}
}

func TestContainsDefinition_MatchesByTableAndColumns(t *testing.T) {
	existing := []IndexDefinition{
		{Table: TableRef{Name: "orders"}, Columns: []string{"customer_id"}},
	}
	if !containsDefinition(existing, IndexDefinition{Table: TableRef{Name: "orders"}, Columns: []string{"customer_id"}}) {
		t.Fatal("expected an identical definition to be detected as a duplicate")
	}
	if containsDefinition(existing, IndexDefinition{Table: TableRef{Name: "orders"}, Columns: []string{"created_at"}}) {
		t.Fatal("expected a different column set to not be treated as a duplicate")
	}
}

func TestGenerateCandidates_SingleAndTwoColumn(t *testing.T) {
	workload := []WorkloadItem{
		{QueryText: "SELECT * FROM orders WHERE customer_id = 5 AND status = 'open'"},
	}
	candidates := generateCandidates(workload, 3)
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate index")
	}
	sawSingle, sawPair := false, false
	for _, c := range candidates {
		if len(c.Columns) == 1 {
			sawSingle = true
		}
		if len(c.Columns) == 2 {
			sawPair = true
		}
	}
	if !sawSingle || !sawPair {
		t.Fatalf("expected both single- and two-column candidates, got %+v", candidates)
	}
}

func TestGenerateCandidates_RespectsMaxColumnsOfOne(t *testing.T) {
	workload := []WorkloadItem{
		{QueryText: "SELECT * FROM orders WHERE customer_id = 5 AND status = 'open'"},
	}
	candidates := generateCandidates(workload, 1)
	for _, c := range candidates {
		if len(c.Columns) > 1 {
			t.Fatalf("expected no multi-column candidates when maxColumns=1, got %+v", c)
		}
	}
}

func TestMax64(t *testing.T) {
	if max64(3, 5) != 5 {
		t.Fatal("expected max64(3, 5) == 5")
	}
	if max64(5, 3) != 5 {
		t.Fatal("expected max64(5, 3) == 5")
	}
}

func TestSprintCandidateKey_IncludesSchemaTableAndColumns(t *testing.T) {
	got := sprintCandidateKey(IndexDefinition{Table: TableRef{Name: "orders"}, Columns: []string{"customer_id", "status"}})
	want := "public.orders(customer_id,status)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
