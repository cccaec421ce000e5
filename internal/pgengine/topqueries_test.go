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

func TestColumnsForMajor_PG17UsesBlkAndParallelColumns(t *testing.T) {
	cols := columnsForMajor(17)
	if cols.totalTime != "total_exec_time" || cols.sharedReadTime != "shared_blk_read_time" {
		t.Fatalf("unexpected PG17 columns: %+v", cols)
	}
	if cols.parallelWorkers != "parallel_workers_launched" {
		t.Fatalf("expected PG17 to expose parallel_workers_launched, got %+v", cols)
	}
}

func TestColumnsForMajor_PG13NoParallelColumn(t *testing.T) {
	cols := columnsForMajor(13)
	if cols.totalTime != "total_exec_time" || cols.sharedReadTime != "blk_read_time" {
		t.Fatalf("unexpected PG13 columns: %+v", cols)
	}
	if cols.parallelWorkers != "" {
		t.Fatalf("expected PG13 to have no parallel_workers column, got %q", cols.parallelWorkers)
	}
}

func TestColumnsForMajor_PG12UsesLegacyNames(t *testing.T) {
	cols := columnsForMajor(12)
	if cols.totalTime != "total_time" || cols.meanTime != "mean_time" {
		t.Fatalf("unexpected PG12 columns: %+v", cols)
	}
}

func TestNullableColumn(t *testing.T) {
	if nullableColumn("") != "NULL" {
		t.Fatal("expected empty column to render as NULL")
	}
	if nullableColumn("total_exec_time") != "total_exec_time" {
		t.Fatal("expected a real column name to pass through unchanged")
	}
}

func TestSelectExtra(t *testing.T) {
	if got := selectExtra("", "stats_since"); got != ", NULL AS stats_since" {
		t.Fatalf("got %q", got)
	}
	if got := selectExtra("stats_since", "stats_since"); got != ", stats_since AS stats_since" {
		t.Fatalf("got %q", got)
	}
}

func TestOrderExpression_KnownOrderings(t *testing.T) {
	cols := columnsForMajor(17)
	cases := map[TopQueriesOrderBy]string{
		OrderByTotalTime: "total_exec_time",
		OrderByMeanTime:  "mean_exec_time",
		OrderByIOTime:    "shared_blk_read_time",
		OrderByCalls:     "calls",
		"":               "total_exec_time",
	}
	for orderBy, want := range cases {
		got, err := orderExpression(orderBy, cols)
		if err != nil {
			t.Fatalf("unexpected error for %q: %s", orderBy, err)
		}
		if got != want {
			t.Fatalf("order_by %q: got %q, want %q", orderBy, got, want)
		}
	}
}

func TestOrderExpression_UnknownOrderingErrors(t *testing.T) {
	cols := columnsForMajor(17)
	if _, err := orderExpression("bogus", cols); err == nil {
		t.Fatal("expected an error for an unrecognized order_by value")
	}
}

func TestRowToTopQuery_MapsKnownFields(t *testing.T) {
	row := Row{
		"queryid":          int64(42),
		"query":            "SELECT 1",
		"calls":            int64(7),
		"total_time":       12.5,
		"mean_time":        1.78,
		"shared_read_time": int64(3),
		"stats_since":      "2026-01-01T00:00:00Z",
		"parallel_workers": int64(2),
	}
	q := rowToTopQuery(row)
	if q.QueryID != 42 || q.QueryText != "SELECT 1" || q.Calls != 7 {
		t.Fatalf("unexpected base fields: %+v", q)
	}
	if q.TotalTimeMs != 12.5 || q.MeanTimeMs != 1.78 {
		t.Fatalf("unexpected timing fields: %+v", q)
	}
	if q.SharedReadTimeMs == nil || *q.SharedReadTimeMs != 3 {
		t.Fatalf("expected shared read time 3, got %v", q.SharedReadTimeMs)
	}
	if q.StatsSince == nil || *q.StatsSince != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected stats_since: %v", q.StatsSince)
	}
	if q.ParallelWorkersLaunched == nil || *q.ParallelWorkersLaunched != 2 {
		t.Fatalf("unexpected parallel_workers: %v", q.ParallelWorkersLaunched)
	}
}

func TestRowToTopQuery_MissingFieldsLeaveZeroValues(t *testing.T) {
	q := rowToTopQuery(Row{})
	if q.QueryID != 0 || q.QueryText != "" || q.SharedReadTimeMs != nil {
		t.Fatalf("expected zero values for an empty row, got %+v", q)
	}
}

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(1.5), 1.5, true},
		{float32(2.5), 2.5, true},
		{int64(3), 3, true},
		{"not a number", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := toFloat(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("toFloat(%v): got (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
