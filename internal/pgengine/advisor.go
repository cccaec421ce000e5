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
	"fmt"
	"strings"
	"time"
)

// WorkloadItem is one query in a workload, either supplied directly or
// derived from pg_stat_statements.
type WorkloadItem struct {
	QueryText  string
	Calls      int64
	MeanExecMs float64
	QueryID    *int64
}

// AdvisorConstraints bounds the index advisor's search.
type AdvisorConstraints struct {
	MaxIndexes         int
	MaxTotalSizeBytes  int64
	MaxColumnsPerIndex int
	MinCostImprovement float64
	WallClockBudget    time.Duration
}

// DefaultAdvisorConstraints returns the default search bounds: at most ten
// indexes, no cap on their total size, three columns per index, a 60s
// wall-clock budget, and a 0.95 marginal-ratio cutoff (recommendations
// improving less than 5% are marginal).
func DefaultAdvisorConstraints() AdvisorConstraints {
	return AdvisorConstraints{
		MaxIndexes:         10,
		MaxTotalSizeBytes:  0, // 0 == unbounded
		MaxColumnsPerIndex: 3,
		MinCostImprovement: 0.95,
		WallClockBudget:    60 * time.Second,
	}
}

// IndexRecommendation is a proposed index with its estimated benefit.
type IndexRecommendation struct {
	Definition         IndexDefinition `json:"definition"`
	EstimatedSizeBytes int64           `json:"estimated_size_bytes"`
	BaselineCost       float64         `json:"baseline_cost"`
	ProposedCost       float64         `json:"proposed_cost"`
	AffectedQueries    []int64         `json:"affected_queries,omitempty"`
}

// AdvisorResult is the output of a bounded search: the recommendation set
// and whether the search was truncated by its wall-clock budget. Candidates
// whose costing failed are skipped (demoted, not fatal) and not listed here.
type AdvisorResult struct {
	Recommendations []IndexRecommendation `json:"recommendations"`
	Partial         bool                  `json:"partial"`
}

// Proposer optionally refines the candidate set with an external model
// (the advisor's LLM-refinement path). Disabled by default; wired only
// when configured with an API key.
type Proposer interface {
	Propose(ctx context.Context, workload []WorkloadItem, topCandidates []IndexDefinition) ([]IndexDefinition, error)
}

// Advisor implements component F: candidate generation, HypoPG-backed
// benefit estimation via the EXPLAIN engine, and an anytime bounded search
// over index subsets.
type Advisor struct {
	explain  *ExplainEngine
	proposer Proposer // nil unless LLM-refinement is configured
}

// NewAdvisor returns an advisor that estimates benefit through explain.
// proposer may be nil.
func NewAdvisor(explain *ExplainEngine, proposer Proposer) *Advisor {
	return &Advisor{explain: explain, proposer: proposer}
}

// Analyze runs the bounded search over workload under constraints.
func (a *Advisor) Analyze(ctx context.Context, workload []WorkloadItem, constraints AdvisorConstraints) (*AdvisorResult, error) {
	if len(workload) == 0 {
		return &AdvisorResult{Recommendations: []IndexRecommendation{}}, nil
	}

	deadline := time.Now().Add(constraints.WallClockBudget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	candidates := generateCandidates(workload, constraints.MaxColumnsPerIndex)
	if a.proposer != nil {
		top := candidates
		if len(top) > 20 {
			top = top[:20]
		}
		proposed, err := a.proposer.Propose(ctx, workload, top)
		if err == nil {
			candidates = append(candidates, proposed...)
		}
	}

	baseline, err := a.baselineCosts(ctx, workload)
	if err != nil {
		return nil, err
	}

	result := &AdvisorResult{Recommendations: []IndexRecommendation{}}
	installed := make([]IndexDefinition, 0, constraints.MaxIndexes)
	installedCosts := make([]float64, 0, constraints.MaxIndexes)
	installedSizes := make([]int64, 0, constraints.MaxIndexes)
	totalSize := int64(0)

	for len(installed) < constraints.MaxIndexes || constraints.MaxIndexes == 0 {
		select {
		case <-ctx.Done():
			result.Partial = true
			return finalizeAdvisorResult(result, workload, installed, installedCosts, installedSizes, baseline), nil
		default:
		}

		bestIdx, bestBenefit, bestCost, bestSize := -1, 0.0, 0.0, int64(0)
		for i, cand := range candidates {
			if containsDefinition(installed, cand) {
				continue
			}
			trial := append(append([]IndexDefinition{}, installed...), cand)
			cost, err := a.costWith(ctx, workload, trial)
			if err != nil {
				continue // demote: a single candidate's failure doesn't fail the run
			}
			benefit := baseline - cost
			if benefit > bestBenefit {
				size, err := a.explain.HypotheticalIndexSize(ctx, []IndexDefinition{cand})
				if err != nil {
					size = 0
				}
				bestIdx, bestBenefit, bestCost, bestSize = i, benefit, cost, size
			}

			select {
			case <-ctx.Done():
				result.Partial = true
				return finalizeAdvisorResult(result, workload, installed, installedCosts, installedSizes, baseline), nil
			default:
			}
		}

		if bestIdx < 0 {
			break
		}
		marginalRatio := 1 - bestCost/baseline
		if marginalRatio < (1 - constraints.MinCostImprovement) {
			break
		}
		if constraints.MaxTotalSizeBytes > 0 && totalSize+bestSize > constraints.MaxTotalSizeBytes {
			break
		}

		installed = append(installed, candidates[bestIdx])
		installedCosts = append(installedCosts, bestCost)
		installedSizes = append(installedSizes, bestSize)
		totalSize += bestSize
	}

	return finalizeAdvisorResult(result, workload, installed, installedCosts, installedSizes, baseline), nil
}

// finalizeAdvisorResult turns the chosen index set into recommendations,
// pairing each installed definition with the cost/size the search measured
// for it and the workload queries it was selected to help.
func finalizeAdvisorResult(result *AdvisorResult, workload []WorkloadItem, installed []IndexDefinition, costs []float64, sizes []int64, baseline float64) *AdvisorResult {
	for i, def := range installed {
		proposedCost := baseline
		var size int64
		if i < len(costs) {
			proposedCost = costs[i]
		}
		if i < len(sizes) {
			size = sizes[i]
		}
		result.Recommendations = append(result.Recommendations, IndexRecommendation{
			Definition:         def,
			BaselineCost:       baseline,
			ProposedCost:       proposedCost,
			EstimatedSizeBytes: size,
			AffectedQueries:    affectedQueryIDs(workload, def),
		})
	}
	return result
}

// affectedQueryIDs returns the QueryIDs of workload items whose predicate or
// ORDER BY columns overlap with def, i.e. the queries def was proposed for.
func affectedQueryIDs(workload []WorkloadItem, def IndexDefinition) []int64 {
	var ids []int64
	for _, q := range workload {
		table, cols := extractPredicateColumns(q.QueryText)
		if table != def.Table || q.QueryID == nil {
			continue
		}
		for _, c := range def.Columns {
			if containsString(cols, c) {
				ids = append(ids, *q.QueryID)
				break
			}
		}
	}
	return ids
}

func (a *Advisor) baselineCosts(ctx context.Context, workload []WorkloadItem) (float64, error) {
	var total float64
	for _, q := range workload {
		plan, err := a.explain.Explain(ctx, q.QueryText, nil, ExplainOptions{GenericPlan: true})
		if err != nil {
			continue // an unexplainable query is dropped from baseline, not fatal
		}
		total += plan.TotalCost * float64(max64(q.Calls, 1))
	}
	return total, nil
}

// costWith estimates the workload's total weighted cost with defs installed
// as hypothetical indexes. Index size is a standalone property of each
// candidate and is measured separately via HypotheticalIndexSize.
func (a *Advisor) costWith(ctx context.Context, workload []WorkloadItem, defs []IndexDefinition) (float64, error) {
	var total float64
	for _, q := range workload {
		plan, err := a.explain.Explain(ctx, q.QueryText, nil, ExplainOptions{GenericPlan: true, HypotheticalIndexes: defs})
		if err != nil {
			return 0, err
		}
		total += plan.TotalCost * float64(max64(q.Calls, 1))
	}
	return total, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func containsDefinition(defs []IndexDefinition, d IndexDefinition) bool {
	for _, existing := range defs {
		if existing.Table == d.Table && strings.Join(existing.Columns, ",") == strings.Join(d.Columns, ",") {
			return true
		}
	}
	return false
}

// generateCandidates builds single-, two-, and three-column candidates
// from columns referenced in equality/range predicates, ORDER BY, and join
// keys, ordering multi-column candidates equality-first then range then
// order-by as the spec's column-order rule requires.
func generateCandidates(workload []WorkloadItem, maxColumns int) []IndexDefinition {
	byTable := map[TableRef][]string{}
	for _, q := range workload {
		table, cols := extractPredicateColumns(q.QueryText)
		if table.Name == "" {
			continue
		}
		existing := byTable[table]
		for _, c := range cols {
			if !containsString(existing, c) {
				existing = append(existing, c)
			}
		}
		byTable[table] = existing
	}

	var out []IndexDefinition
	for table, cols := range byTable {
		// cols is already equality-first/range/order-by ordered: extractPredicateColumns
		// scans "=" before the range operators before ORDER BY, and insertion
		// order is preserved above, so no re-sort here.
		for _, c := range cols {
			out = append(out, IndexDefinition{Table: table, Columns: []string{c}, Using: "btree"})
		}
		if maxColumns >= 2 {
			for i := 0; i < len(cols); i++ {
				for j := i + 1; j < len(cols); j++ {
					out = append(out, IndexDefinition{Table: table, Columns: []string{cols[i], cols[j]}, Using: "btree"})
				}
			}
		}
		if maxColumns >= 3 {
			for i := 0; i < len(cols); i++ {
				for j := i + 1; j < len(cols); j++ {
					for k := j + 1; k < len(cols); k++ {
						out = append(out, IndexDefinition{Table: table, Columns: []string{cols[i], cols[j], cols[k]}, Using: "btree"})
					}
				}
			}
		}
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// extractPredicateColumns does a best-effort textual scan for
// "<table> WHERE <col> =" / "ORDER BY <col>" shapes. The restricted-mode
// AST walker is the source of truth for safety; this extraction only feeds
// candidate generation and a missed column merely costs a recommendation,
// never a correctness problem.
func extractPredicateColumns(query string) (TableRef, []string) {
	lower := strings.ToLower(query)
	fromIdx := strings.Index(lower, "from ")
	if fromIdx < 0 {
		return TableRef{}, nil
	}
	rest := strings.TrimSpace(query[fromIdx+5:])
	name := strings.FieldsFunc(rest, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if len(name) == 0 {
		return TableRef{}, nil
	}
	table := TableRef{Name: strings.Trim(name[0], `"`)}

	var cols []string
	whereIdx := strings.Index(lower, "where ")
	if whereIdx >= 0 {
		clause := query[whereIdx+6:]
		for _, op := range []string{"=", "<", ">", "<=", ">="} {
			parts := strings.Split(clause, op)
			for _, part := range parts[:len(parts)-1] {
				col := lastToken(strings.TrimSpace(part))
				if col != "" && !containsString(cols, col) {
					cols = append(cols, col)
				}
			}
		}
	}
	orderIdx := strings.Index(lower, "order by ")
	if orderIdx >= 0 {
		clause := strings.TrimSpace(query[orderIdx+9:])
		col := strings.Split(clause, ",")[0]
		fields := strings.Fields(col)
		if len(fields) > 0 {
			cols = append(cols, strings.Trim(fields[0], `"`))
		}
	}
	return table, cols
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], `"`)
}

// sprintCandidateKey gives a stable, schema-qualified string key for a
// candidate definition. The search in Analyze does not call it; it compares
// definitions with containsDefinition.
func sprintCandidateKey(d IndexDefinition) string {
	return fmt.Sprintf("%s.%s(%s)", d.Table.schemaOrDefault(), d.Table.Name, strings.Join(d.Columns, ","))
}
