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
	"sync"
	"time"
)

// Severity is the finding level a health calculator reports.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func maxSeverity(a, b Severity) Severity {
	rank := map[Severity]int{SeverityOK: 0, SeverityWarning: 1, SeverityCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// HealthType names one of the seven independent calculators.
type HealthType string

const (
	HealthIndex        HealthType = "index"
	HealthBuffer       HealthType = "buffer"
	HealthConnections  HealthType = "connection"
	HealthReplication  HealthType = "replication"
	HealthSequences    HealthType = "sequence"
	HealthConstraints  HealthType = "constraint"
	HealthVacuum       HealthType = "vacuum"
)

// Report is one calculator's findings.
type Report struct {
	Type     HealthType `json:"health_type"`
	Severity Severity   `json:"severity"`
	Findings []any      `json:"findings"`
}

// calculatorTimeout bounds every individual calculator's wall clock, per
// the spec's "no calculator runs longer than 5s" rule.
const calculatorTimeout = 5 * time.Second

// Calculator is the uniform contract every health check implements.
type Calculator interface {
	Type() HealthType
	Run(ctx context.Context, driver *Driver, probe *Probe) Report
}

// CompositeReport is the orchestrator's fanned-out result.
type CompositeReport struct {
	Severity Severity `json:"severity"`
	Reports  []Report `json:"reports"`
}

// HealthOrchestrator fans the seven calculators out concurrently over a
// shared driver and composes their severities.
type HealthOrchestrator struct {
	driver      *Driver
	probe       *Probe
	calculators []Calculator
}

// NewHealthOrchestrator returns an orchestrator over the default seven
// calculators; Analyze runs all of them or a subset selected by
// Calculator.Type.
func NewHealthOrchestrator(driver *Driver, probe *Probe) *HealthOrchestrator {
	return &HealthOrchestrator{
		driver: driver,
		probe:  probe,
		calculators: []Calculator{
			indexHealthCalculator{},
			bufferCacheCalculator{},
			connectionsCalculator{},
			replicationCalculator{},
			sequencesCalculator{},
			constraintsCalculator{},
			vacuumCalculator{},
		},
	}
}

// Analyze runs the selected calculators (all, if only is empty) concurrently
// and returns the composite report.
func (h *HealthOrchestrator) Analyze(ctx context.Context, only []HealthType) CompositeReport {
	selected := h.calculators
	if len(only) > 0 {
		wanted := make(map[HealthType]bool, len(only))
		for _, t := range only {
			wanted[t] = true
		}
		selected = nil
		for _, c := range h.calculators {
			if wanted[c.Type()] {
				selected = append(selected, c)
			}
		}
	}

	reports := make([]Report, len(selected))
	var wg sync.WaitGroup
	for i, c := range selected {
		wg.Add(1)
		go func(i int, c Calculator) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, calculatorTimeout)
			defer cancel()
			reports[i] = runCalculatorSafely(cctx, c, h.driver, h.probe)
		}(i, c)
	}
	wg.Wait()

	composite := CompositeReport{Severity: SeverityOK, Reports: reports}
	for _, r := range reports {
		composite.Severity = maxSeverity(composite.Severity, r.Severity)
	}
	return composite
}

// runCalculatorSafely converts a calculator's own failure into a warning
// finding rather than failing the whole composite report.
func runCalculatorSafely(ctx context.Context, c Calculator, driver *Driver, probe *Probe) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			report = Report{Type: c.Type(), Severity: SeverityWarning, Findings: []any{map[string]any{"error": "calculator panicked"}}}
		}
	}()
	return c.Run(ctx, driver, probe)
}

type indexHealthCalculator struct{}

func (indexHealthCalculator) Type() HealthType { return HealthIndex }
func (indexHealthCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	const q = `
		SELECT schemaname, relname, indexrelname, idx_scan, indexrelid::regclass::text AS indexdef
		FROM pg_stat_user_indexes
		WHERE idx_scan = 0`
	rows, err := driver.Execute(ctx, q)
	if err != nil {
		return Report{Type: HealthIndex, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	findings := make([]any, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, map[string]any{"unused_index": r})
	}
	sev := SeverityOK
	if len(findings) > 0 {
		sev = SeverityWarning
	}
	return Report{Type: HealthIndex, Severity: sev, Findings: findings}
}

type bufferCacheCalculator struct{}

func (bufferCacheCalculator) Type() HealthType { return HealthBuffer }
func (bufferCacheCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	const q = `
		SELECT
			sum(heap_blks_hit) AS hit,
			sum(heap_blks_hit) + sum(heap_blks_read) AS total
		FROM pg_statio_user_tables`
	rows, err := driver.Execute(ctx, q)
	if err != nil || len(rows) == 0 {
		return Report{Type: HealthBuffer, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	hit, _ := toFloat(rows[0]["hit"])
	total, _ := toFloat(rows[0]["total"])
	ratio := 1.0
	if total > 0 {
		ratio = hit / total
	}
	sev := SeverityOK
	switch {
	case ratio < 0.90:
		sev = SeverityCritical
	case ratio < 0.95:
		sev = SeverityWarning
	}
	return Report{Type: HealthBuffer, Severity: sev, Findings: []any{map[string]any{"hit_ratio": ratio}}}
}

type connectionsCalculator struct{}

func (connectionsCalculator) Type() HealthType { return HealthConnections }
func (connectionsCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	const q = `
		SELECT
			count(*) AS used,
			(SELECT setting::int FROM pg_settings WHERE name = 'max_connections') AS max_conn,
			coalesce(max(extract(epoch FROM now() - state_change)) FILTER (WHERE state = 'idle in transaction'), 0) AS longest_idle_in_txn
		FROM pg_stat_activity`
	rows, err := driver.Execute(ctx, q)
	if err != nil || len(rows) == 0 {
		return Report{Type: HealthConnections, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	used, _ := toFloat(rows[0]["used"])
	maxConn, _ := toFloat(rows[0]["max_conn"])
	pct := 0.0
	if maxConn > 0 {
		pct = used / maxConn
	}
	sev := SeverityOK
	switch {
	case pct >= 0.90:
		sev = SeverityCritical
	case pct >= 0.70:
		sev = SeverityWarning
	}
	return Report{Type: HealthConnections, Severity: sev, Findings: []any{rows[0]}}
}

type replicationCalculator struct{}

func (replicationCalculator) Type() HealthType { return HealthReplication }
func (replicationCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	cols := "slot_name, active, restart_lsn"
	// PG17 added invalidation_reason/inactive_since to pg_replication_slots,
	// surfacing why a slot went invalid without a separate catalog join.
	hasInvalidation, err := probe.HasColumn(ctx, "pg_replication_slots", "invalidation_reason")
	if err == nil && hasInvalidation {
		cols += ", invalidation_reason, inactive_since"
	}
	rows, err := driver.Execute(ctx, "SELECT "+cols+" FROM pg_replication_slots")
	if err != nil {
		return Report{Type: HealthReplication, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	sev := SeverityOK
	findings := make([]any, 0, len(rows))
	for _, r := range rows {
		if active, ok := r["active"].(bool); ok && !active {
			sev = maxSeverity(sev, SeverityWarning)
		}
		if reason, ok := r["invalidation_reason"]; ok && reason != nil {
			sev = maxSeverity(sev, SeverityCritical)
		}
		findings = append(findings, r)
	}
	return Report{Type: HealthReplication, Severity: sev, Findings: findings}
}

type sequencesCalculator struct{}

func (sequencesCalculator) Type() HealthType { return HealthSequences }
func (sequencesCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	const q = `
		SELECT c.relname AS sequence_name,
			s.last_value::float8 / NULLIF(s.max_value, 0)::float8 AS fraction_consumed
		FROM pg_sequences s
		JOIN pg_class c ON c.relname = s.sequencename`
	rows, err := driver.Execute(ctx, q)
	if err != nil {
		return Report{Type: HealthSequences, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	sev := SeverityOK
	findings := make([]any, 0, len(rows))
	for _, r := range rows {
		frac, _ := toFloat(r["fraction_consumed"])
		switch {
		case frac >= 0.95:
			sev = maxSeverity(sev, SeverityCritical)
		case frac >= 0.80:
			sev = maxSeverity(sev, SeverityWarning)
		}
		findings = append(findings, r)
	}
	return Report{Type: HealthSequences, Severity: sev, Findings: findings}
}

type constraintsCalculator struct{}

func (constraintsCalculator) Type() HealthType { return HealthConstraints }
func (constraintsCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	cols := "conname, conrelid::regclass::text AS table_name, contype"
	where := "WHERE NOT convalidated"
	// PG18 added conenforced, distinguishing a NOT ENFORCED constraint (never
	// checked) from a merely NOT VALID one (checked going forward only).
	hasEnforced, err := probe.HasColumn(ctx, "pg_constraint", "conenforced")
	if err == nil && hasEnforced {
		cols += ", conenforced"
		where += " OR NOT conenforced"
	}
	rows, err := driver.Execute(ctx, "SELECT "+cols+" FROM pg_constraint "+where)
	if err != nil {
		return Report{Type: HealthConstraints, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	sev := SeverityOK
	if len(rows) > 0 {
		sev = SeverityWarning
	}
	findings := make([]any, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, r)
	}
	return Report{Type: HealthConstraints, Severity: sev, Findings: findings}
}

type vacuumCalculator struct{}

func (vacuumCalculator) Type() HealthType { return HealthVacuum }
func (vacuumCalculator) Run(ctx context.Context, driver *Driver, probe *Probe) Report {
	cols := "relname, last_autovacuum, n_dead_tup, n_live_tup, " +
		"CASE WHEN n_live_tup > 0 THEN n_dead_tup::float8 / n_live_tup ELSE 0 END AS dead_fraction"
	// PG18 added total_autovacuum_time to pg_stat_user_tables, giving a
	// direct cost figure instead of only a last-run timestamp.
	hasTiming, err := probe.HasColumn(ctx, "pg_stat_user_tables", "total_autovacuum_time")
	if err == nil && hasTiming {
		cols += ", total_autovacuum_time"
	}
	q := "SELECT " + cols + ` FROM pg_stat_user_tables
		WHERE (last_autovacuum IS NULL OR last_autovacuum < now() - interval '7 days')
			AND n_live_tup > 0
			AND n_dead_tup::float8 / GREATEST(n_live_tup, 1) > 0.20`
	rows, err := driver.Execute(ctx, q)
	if err != nil {
		return Report{Type: HealthVacuum, Severity: SeverityWarning, Findings: []any{errFinding(err)}}
	}
	sev := SeverityOK
	if len(rows) > 0 {
		sev = SeverityWarning
	}
	findings := make([]any, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, r)
	}
	return Report{Type: HealthVacuum, Severity: sev, Findings: findings}
}

func errFinding(err error) map[string]any {
	if err == nil {
		return map[string]any{"error": "unknown failure"}
	}
	return map[string]any{"error": err.Error()}
}
