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
)

// TopQueriesOrderBy is the set of columns the collector can sort by.
type TopQueriesOrderBy string

const (
	OrderByTotalTime TopQueriesOrderBy = "total_time"
	OrderByMeanTime  TopQueriesOrderBy = "mean_time"
	OrderByIOTime    TopQueriesOrderBy = "io_time"
	OrderByCalls     TopQueriesOrderBy = "calls"
)

const maxTopQueriesLimit = 200

// pgStatStatementsColumns is the version-normalized column mapping from
// spec 4.G: the physical column name backing each logical field, per PG
// major. An empty string means the column doesn't exist on that major and
// the logical field projects as null.
type pgStatStatementsColumns struct {
	totalTime       string
	meanTime        string
	sharedReadTime  string
	statsSince      string
	parallelWorkers string
}

func columnsForMajor(major int) pgStatStatementsColumns {
	switch {
	case major >= 17:
		return pgStatStatementsColumns{
			totalTime:       "total_exec_time",
			meanTime:        "mean_exec_time",
			sharedReadTime:  "shared_blk_read_time",
			statsSince:      "stats_since",
			parallelWorkers: "parallel_workers_launched",
		}
	case major >= 13:
		return pgStatStatementsColumns{
			totalTime:      "total_exec_time",
			meanTime:       "mean_exec_time",
			sharedReadTime: "blk_read_time",
		}
	default: // PG <= 12
		return pgStatStatementsColumns{
			totalTime:      "total_time",
			meanTime:       "mean_time",
			sharedReadTime: "blk_read_time",
		}
	}
}

// TopQuery is one normalized row of pg_stat_statements.
type TopQuery struct {
	QueryID                 int64    `json:"query_id"`
	QueryText               string   `json:"query_text"`
	Calls                   int64    `json:"calls"`
	TotalTimeMs             float64  `json:"total_time_ms"`
	MeanTimeMs              float64  `json:"mean_time_ms"`
	SharedReadTimeMs        *float64 `json:"shared_read_time_ms"`
	StatsSince              *string  `json:"stats_since"`
	ParallelWorkersLaunched *int64   `json:"parallel_workers_launched"`
}

// TopQueryCollector implements component G.
type TopQueryCollector struct {
	driver *Driver
	probe  *Probe
}

// NewTopQueryCollector returns a collector bound to driver and probe.
func NewTopQueryCollector(driver *Driver, probe *Probe) *TopQueryCollector {
	return &TopQueryCollector{driver: driver, probe: probe}
}

// GetTopQueries returns up to limit queries from pg_stat_statements ordered
// by orderBy descending. limit is clamped to maxTopQueriesLimit.
func (c *TopQueryCollector) GetTopQueries(ctx context.Context, orderBy TopQueriesOrderBy, limit int) ([]TopQuery, error) {
	info, err := c.probe.ServerInfo(ctx)
	if err != nil {
		return nil, err
	}

	has, err := c.probe.HasColumn(ctx, "pg_stat_statements", "queryid")
	if err != nil || !has {
		return nil, ExtensionUnavailable("pg_stat_statements")
	}

	if limit <= 0 || limit > maxTopQueriesLimit {
		limit = maxTopQueriesLimit
	}
	cols := columnsForMajor(info.Major)

	orderExpr, err := orderExpression(orderBy, cols)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT queryid, query, calls,
		%s AS total_time, %s AS mean_time,
		%s AS shared_read_time
		%s %s
		FROM pg_stat_statements
		ORDER BY %s DESC NULLS LAST
		LIMIT %d`,
		nullableColumn(cols.totalTime), nullableColumn(cols.meanTime),
		nullableColumn(cols.sharedReadTime),
		selectExtra(cols.statsSince, "stats_since"),
		selectExtra(cols.parallelWorkers, "parallel_workers"),
		orderExpr, limit,
	)

	rows, err := c.driver.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}

	out := make([]TopQuery, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToTopQuery(row))
	}
	return out, nil
}

func nullableColumn(col string) string {
	if col == "" {
		return "NULL"
	}
	return col
}

func selectExtra(col, alias string) string {
	if col == "" {
		return fmt.Sprintf(", NULL AS %s", alias)
	}
	return fmt.Sprintf(", %s AS %s", col, alias)
}

func orderExpression(orderBy TopQueriesOrderBy, cols pgStatStatementsColumns) (string, error) {
	switch orderBy {
	case OrderByTotalTime, "":
		return nullableColumn(cols.totalTime), nil
	case OrderByMeanTime:
		return nullableColumn(cols.meanTime), nil
	case OrderByIOTime:
		return nullableColumn(cols.sharedReadTime), nil
	case OrderByCalls:
		return "calls", nil
	default:
		return "", ConfigurationErrorf("unsupported order_by %q", orderBy)
	}
}

func rowToTopQuery(row Row) TopQuery {
	q := TopQuery{}
	if v, ok := row["queryid"].(int64); ok {
		q.QueryID = v
	}
	if v, ok := row["query"].(string); ok {
		q.QueryText = v
	}
	if v, ok := row["calls"].(int64); ok {
		q.Calls = v
	}
	if v, ok := toFloat(row["total_time"]); ok {
		q.TotalTimeMs = v
	}
	if v, ok := toFloat(row["mean_time"]); ok {
		q.MeanTimeMs = v
	}
	if v, ok := toFloat(row["shared_read_time"]); ok {
		q.SharedReadTimeMs = &v
	}
	if v, ok := row["stats_since"].(string); ok {
		q.StatsSince = &v
	}
	if v, ok := row["parallel_workers"].(int64); ok {
		q.ParallelWorkersLaunched = &v
	}
	return q
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
