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
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerInfo is the immutable version fingerprint of a connected pool.
type ServerInfo struct {
	Major            int
	ServerVersionNum int
}

// Probe detects server capabilities once per pool and caches the answers
// for the pool's lifetime. A Probe is safe for concurrent use.
type Probe struct {
	pool *pgxpool.Pool

	infoOnce sync.Once
	info     ServerInfo
	infoErr  error

	mu         sync.Mutex
	hasColumns map[columnKey]bool
}

type columnKey struct {
	view   string
	column string
}

// NewProbe returns a Probe bound to pool. The probe does not query the
// server until ServerInfo or HasColumn is first called.
func NewProbe(pool *pgxpool.Pool) *Probe {
	return &Probe{pool: pool, hasColumns: make(map[columnKey]bool)}
}

// ServerInfo returns the cached server version, querying the server on
// first call. Failure to detect the version is treated as fatal: every
// caller that depends on version gating propagates the same error.
func (p *Probe) ServerInfo(ctx context.Context) (ServerInfo, error) {
	p.infoOnce.Do(func() {
		var num int
		row := p.pool.QueryRow(ctx, "SHOW server_version_num")
		var raw string
		if err := row.Scan(&raw); err != nil {
			p.infoErr = ConnectionError(fmt.Errorf("SHOW server_version_num: %w", err))
			return
		}
		if _, err := fmt.Sscanf(raw, "%d", &num); err != nil {
			p.infoErr = InternalErrorf("", fmt.Errorf("parse server_version_num %q: %w", raw, err))
			return
		}
		p.info = ServerInfo{Major: num / 10000, ServerVersionNum: num}
	})
	return p.info, p.infoErr
}

// HasColumn reports whether view (an information_schema-visible relation)
// has a column named column, caching the answer per (view, column).
func (p *Probe) HasColumn(ctx context.Context, view, column string) (bool, error) {
	key := columnKey{view: view, column: column}

	p.mu.Lock()
	has, ok := p.hasColumns[key]
	p.mu.Unlock()
	if ok {
		return has, nil
	}

	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = $1 AND column_name = $2
	)`
	row := p.pool.QueryRow(ctx, q, view, column)
	if err := row.Scan(&has); err != nil {
		return false, InternalErrorf("", fmt.Errorf("has_column(%s, %s): %w", view, column, err))
	}

	p.mu.Lock()
	p.hasColumns[key] = has
	p.mu.Unlock()
	return has, nil
}
