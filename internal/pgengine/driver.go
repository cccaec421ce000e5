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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is an ordered mapping from column name to a JSON-serializable value.
type Row = map[string]any

// RowBatch is one batch of rows produced by ExecuteStream.
type RowBatch []Row

// Driver runs parameterized statements against a pooled connection and
// coerces PostgreSQL types into JSON-compatible Go values. It never
// string-concatenates parameters; every call binds through pgx's native
// placeholder mechanism.
type Driver struct {
	Pool *pgxpool.Pool
}

// NewDriver returns a base driver bound to pool.
func NewDriver(pool *pgxpool.Pool) *Driver {
	return &Driver{Pool: pool}
}

// Execute runs one statement and returns every row. For statements that
// return no rows (DDL, DML without RETURNING) it returns an empty slice.
func (d *Driver) Execute(ctx context.Context, sql string, params ...any) ([]Row, error) {
	rows, err := d.Pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, wrapExecError(err)
	}
	defer rows.Close()

	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecError(err)
	}
	return out, nil
}

// ExecuteStream runs one statement and yields row batches of size batch
// over the returned channel. The channel is closed when the result set is
// exhausted or ctx is canceled; a send failure mid-stream is delivered on
// errCh and the channel is closed without a partial batch.
func (d *Driver) ExecuteStream(ctx context.Context, sql string, batch int, params ...any) (<-chan RowBatch, <-chan error) {
	batchCh := make(chan RowBatch)
	errCh := make(chan error, 1)

	go func() {
		defer close(batchCh)
		defer close(errCh)

		rows, err := d.Pool.Query(ctx, sql, params...)
		if err != nil {
			errCh <- wrapExecError(err)
			return
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		current := make(RowBatch, 0, batch)
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				errCh <- wrapExecError(err)
				return
			}
			current = append(current, rowFromValues(fields, values))
			if len(current) == batch {
				select {
				case batchCh <- current:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
				current = make(RowBatch, 0, batch)
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- wrapExecError(err)
			return
		}
		if len(current) > 0 {
			select {
			case batchCh <- current:
			case <-ctx.Done():
				errCh <- ctx.Err()
			}
		}
	}()

	return batchCh, errCh
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()
	out := make([]Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapExecError(err)
		}
		out = append(out, rowFromValues(fields, values))
	}
	return out, nil
}

func rowFromValues(fields []pgconn.FieldDescription, values []any) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		row[f.Name] = coerceValue(values[i])
	}
	return row
}

// coerceValue converts a value decoded by pgx into one safe to marshal as
// JSON without precision loss: numerics become strings, timestamps become
// ISO 8601, everything else passes through (pgx already decodes bool as
// bool and text as string).
func coerceValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case [16]byte: // uuid.UUID's underlying array shape from some pgx versions
		return fmt.Sprintf("%x", tv)
	case fmt.Stringer:
		return tv.String()
	default:
		return v
	}
}

func wrapExecError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" { // query_canceled, raised by statement_timeout
			return QueryTimeout(err)
		}
		return &Error{Kind: KindSqlSyntaxError, Msg: pgErr.Message, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return QueryTimeout(err)
	}
	return &Error{Kind: KindInternalError, Msg: "query execution failed", Cause: err}
}
