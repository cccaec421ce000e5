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

// Package postgres holds the nine postgres_* tools (component I), each a
// thin dispatcher into the engine in internal/pgengine selected by the
// configured access mode.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pg-mcp/postgres-dba-toolbox/internal/pgengine"
)

// AccessMode mirrors the CLI's --access-mode flag; every tool in this
// package is configured with one at startup and never mutates it.
type AccessMode string

const (
	AccessModeUnrestricted AccessMode = "unrestricted"
	AccessModeRestricted   AccessMode = "restricted"
)

// CompatibleSource is the minimal surface a source must expose for a
// postgres_* tool to bind to it.
type CompatibleSource interface {
	PostgresPool() *pgxpool.Pool
	PostgresProbe() *pgengine.Probe
}

// ExecDriver is satisfied by both *pgengine.Driver and
// *pgengine.RestrictedDriver so tool Invoke methods don't branch on access
// mode at call time, only at Initialize time.
type ExecDriver interface {
	Execute(ctx context.Context, sql string, params ...any) ([]pgengine.Row, error)
}

// SelectDriver returns the base driver for unrestricted mode or a
// restricted driver (gatekeeper enforced) otherwise. For restricted mode it
// queries the connecting role's owned schemas to scope the gatekeeper's
// catalog-schema check.
func SelectDriver(ctx context.Context, mode AccessMode, pool *pgxpool.Pool) (ExecDriver, error) {
	base := pgengine.NewDriver(pool)
	if mode != AccessModeRestricted {
		return base, nil
	}
	userSchemas, err := DiscoverUserSchemas(ctx, pool)
	if err != nil {
		return nil, err
	}
	return pgengine.NewRestrictedDriver(base, userSchemas), nil
}

// DiscoverUserSchemas returns schema names owned by the connecting role,
// used to scope the restricted-mode gatekeeper's catalog-schema check
// beyond pg_catalog/information_schema.
func DiscoverUserSchemas(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT schema_name FROM information_schema.schemata WHERE schema_owner = current_user`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}
