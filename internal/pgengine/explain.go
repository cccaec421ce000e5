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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExplainOptions selects which EXPLAIN clauses to attach. ANALYZE actually
// runs the query; the caller is responsible for enforcing the access-mode
// rule around that before calling Explain.
type ExplainOptions struct {
	Analyze             bool
	Buffers             bool
	GenericPlan         bool
	Memory              bool
	Serialize           bool
	HypotheticalIndexes []IndexDefinition
}

// IndexDefinition fully describes a (possibly hypothetical) index.
type IndexDefinition struct {
	Table   TableRef `json:"table"`
	Columns []string `json:"columns"`
	Using   string   `json:"using"`
	Unique  bool     `json:"unique"`
	Where   string   `json:"where,omitempty"`
}

// TableRef names a schema-qualified table; Schema defaults to "public".
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

func (t TableRef) schemaOrDefault() string {
	if t.Schema == "" {
		return "public"
	}
	return t.Schema
}

func (t TableRef) qualified() string {
	return fmt.Sprintf("%q.%q", t.schemaOrDefault(), t.Name)
}

// CreateIndexDDL renders the CREATE INDEX statement for d. It is used both
// to install a real index and to feed hypopg_create_index for a
// hypothetical one.
func (d IndexDefinition) CreateIndexDDL(indexName string) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if d.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX %q ON %s USING %s (%s)", indexName, d.Table.qualified(), usingOrDefault(d.Using), strings.Join(quoteIdents(d.Columns), ", "))
	if d.Where != "" {
		fmt.Fprintf(&b, " WHERE %s", d.Where)
	}
	return b.String()
}

func usingOrDefault(using string) string {
	if using == "" {
		return "btree"
	}
	return using
}

func quoteIdents(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("%q", c)
	}
	return out
}

// ExplainPlan is the artifact returned by Explain: the PostgreSQL JSON plan
// merged with a small header. Unknown plan keys are preserved verbatim
// inside Raw to tolerate future server versions.
type ExplainPlan struct {
	ServerVersionNum    int               `json:"server_version_num"`
	Options             ExplainOptions    `json:"-"`
	HypotheticalIndexes []IndexDefinition `json:"hypothetical_indexes,omitempty"`
	TotalCost           float64           `json:"total_cost"`
	ActualTotalTimeMs   *float64          `json:"actual_total_time_ms,omitempty"`
	BestEffortPlan      bool              `json:"best_effort_plan,omitempty"`
	Raw                 json.RawMessage   `json:"plan"`
}

// ExplainEngine implements component E: EXPLAIN (FORMAT JSON, ...) with
// optional ANALYZE/BUFFERS/generic-plan/memory/serialize, and hypothetical
// index installation through HypoPG.
type ExplainEngine struct {
	driver *Driver
	probe  *Probe
}

// NewExplainEngine returns an engine bound to driver, using probe for
// capability gating of version-specific options.
func NewExplainEngine(driver *Driver, probe *Probe) *ExplainEngine {
	return &ExplainEngine{driver: driver, probe: probe}
}

// Explain runs EXPLAIN for sql under opts, returning the merged plan
// artifact. Hypothetical indexes are dropped unconditionally before
// Explain returns, whether it succeeds or fails.
func (e *ExplainEngine) Explain(ctx context.Context, sql string, params []any, opts ExplainOptions) (*ExplainPlan, error) {
	info, err := e.probe.ServerInfo(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Memory && info.Major < 17 {
		return nil, UnsupportedOption("memory", 17)
	}
	if opts.Serialize {
		if info.Major < 17 {
			return nil, UnsupportedOption("serialize", 17)
		}
		if !opts.Analyze {
			return nil, UnsupportedOption("serialize requires analyze", 17)
		}
	}

	conn, err := e.driver.Pool.Acquire(ctx)
	if err != nil {
		return nil, ConnectionError(err)
	}
	defer conn.Release()

	createdIndexes, err := e.installHypothetical(ctx, conn, opts.HypotheticalIndexes)
	defer e.dropHypothetical(ctx, conn, createdIndexes)
	if err != nil {
		return nil, err
	}

	plan, err := e.runExplain(ctx, conn, info, sql, params, opts)
	if err != nil {
		return nil, err
	}
	plan.ServerVersionNum = info.ServerVersionNum
	plan.HypotheticalIndexes = opts.HypotheticalIndexes
	plan.Options = opts
	return plan, nil
}

func (e *ExplainEngine) runExplain(ctx context.Context, conn *pgxPoolConn, info ServerInfo, sql string, params []any, opts ExplainOptions) (*ExplainPlan, error) {
	clauses := []string{"FORMAT JSON"}
	if opts.Analyze {
		clauses = append(clauses, "ANALYZE")
	}
	if opts.Buffers {
		clauses = append(clauses, "BUFFERS")
	}
	if opts.Memory {
		clauses = append(clauses, "MEMORY")
	}
	if opts.Serialize {
		clauses = append(clauses, "SERIALIZE")
	}

	bestEffort := false
	explainSQL := sql
	bindParams := params
	if opts.GenericPlan {
		if info.Major >= 16 {
			clauses = append(clauses, "GENERIC_PLAN")
			bindParams = nil
		} else {
			explainSQL = substituteBestEffortLiterals(sql, len(params))
			bindParams = nil
			bestEffort = true
		}
	}

	stmt := fmt.Sprintf("EXPLAIN (%s) %s", strings.Join(clauses, ", "), explainSQL)
	rows, err := conn.Query(ctx, stmt, bindParams...)
	if err != nil {
		return nil, wrapExecError(err)
	}
	defer rows.Close()

	var raw string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, wrapExecError(err)
		}
		if len(vals) > 0 {
			if s, ok := vals[0].(string); ok {
				raw = s
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecError(err)
	}

	return parsePlanJSON(raw, bestEffort)
}

// substituteBestEffortLiterals replaces $1..$n placeholders with NULL
// literals for servers that predate EXPLAIN (GENERIC_PLAN). The resulting
// plan is reported with BestEffortPlan=true since types are guessed.
func substituteBestEffortLiterals(sql string, n int) string {
	out := sql
	for i := n; i >= 1; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i), "NULL")
	}
	return out
}

func parsePlanJSON(raw string, bestEffort bool) (*ExplainPlan, error) {
	var docs []struct {
		Plan struct {
			TotalCost   float64 `json:"Total Cost"`
			ActualTotal *float64 `json:"Actual Total Time"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, InternalErrorf("", fmt.Errorf("decode explain output: %w", err))
	}
	if len(docs) == 0 {
		return nil, InternalErrorf("", fmt.Errorf("empty explain output"))
	}

	return &ExplainPlan{
		TotalCost:         docs[0].Plan.TotalCost,
		ActualTotalTimeMs: docs[0].Plan.ActualTotal,
		BestEffortPlan:    bestEffort,
		Raw:               json.RawMessage(raw),
	}, nil
}

// installHypothetical creates each index via hypopg_create_index, returning
// the names it successfully created so the caller can drop them. It stops
// and returns an error on the first failure; already-created indexes are
// still returned so the deferred drop cleans them up.
func (e *ExplainEngine) installHypothetical(ctx context.Context, conn *pgxPoolConn, defs []IndexDefinition) ([]string, error) {
	var created []string
	for i, def := range defs {
		name := fmt.Sprintf("hypo_idx_%d", i)
		ddl := def.CreateIndexDDL(name)
		if _, err := conn.Exec(ctx, "SELECT hypopg_create_index($1)", ddl); err != nil {
			return created, ExtensionUnavailable("hypopg")
		}
		created = append(created, name)
	}
	return created, nil
}

// HypotheticalIndexSize installs defs via HypoPG just long enough to sum
// hypopg_relation_size over the created indexes, then drops them. Returns 0
// for an empty defs list without acquiring a connection.
func (e *ExplainEngine) HypotheticalIndexSize(ctx context.Context, defs []IndexDefinition) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}

	conn, err := e.driver.Pool.Acquire(ctx)
	if err != nil {
		return 0, ConnectionError(err)
	}
	defer conn.Release()

	created, err := e.installHypothetical(ctx, conn, defs)
	defer e.dropHypothetical(ctx, conn, created)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range created {
		var size int64
		row := conn.QueryRow(ctx,
			"SELECT hypopg_relation_size(indexrelid) FROM hypopg_list_indexes() WHERE indexname = $1", name)
		if err := row.Scan(&size); err != nil {
			continue // a single missing size estimate doesn't fail the whole search
		}
		total += size
	}
	return total, nil
}

// dropHypothetical resets all hypothetical indexes in the session. It runs
// unconditionally (success or failure path) and swallows its own errors:
// cleanup must never mask the original result.
func (e *ExplainEngine) dropHypothetical(ctx context.Context, conn *pgxPoolConn, created []string) {
	if len(created) == 0 {
		return
	}
	_, _ = conn.Exec(ctx, "SELECT hypopg_reset()")
}

// pgxPoolConn is the narrow surface this file needs from an acquired
// connection; aliased so explain.go and advisor.go don't repeat the pgx
// import path everywhere they pass one around.
type pgxPoolConn = pgxpool.Conn
