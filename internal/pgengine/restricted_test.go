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
	"errors"
	"testing"
)

func newTestRestrictedDriver(userSchemas ...string) *RestrictedDriver {
	return NewRestrictedDriver(nil, userSchemas)
}

func TestCheckSQL_AllowsPlainSelect(t *testing.T) {
	d := newTestRestrictedDriver("public")
	if err := d.CheckSQL("SELECT id, name FROM public.users WHERE id = 1"); err != nil {
		t.Fatalf("expected plain select to pass, got %v", err)
	}
}

func TestCheckSQL_AllowsCTEAndJoin(t *testing.T) {
	d := newTestRestrictedDriver("public")
	sql := `
		WITH recent AS (
			SELECT * FROM public.orders WHERE created_at > now() - interval '1 day'
		)
		SELECT u.id, count(r.id)
		FROM public.users u
		JOIN recent r ON r.user_id = u.id
		GROUP BY u.id
	`
	if err := d.CheckSQL(sql); err != nil {
		t.Fatalf("expected CTE+join select to pass, got %v", err)
	}
}

func TestCheckSQL_AllowsExplain(t *testing.T) {
	d := newTestRestrictedDriver("public")
	if err := d.CheckSQL("EXPLAIN SELECT * FROM public.users"); err != nil {
		t.Fatalf("expected EXPLAIN to pass, got %v", err)
	}
}

func TestCheckSQL_RejectsWriteStatements(t *testing.T) {
	d := newTestRestrictedDriver("public")
	cases := []string{
		"INSERT INTO public.users (id) VALUES (1)",
		"UPDATE public.users SET name = 'x'",
		"DELETE FROM public.users",
		"DROP TABLE public.users",
		"TRUNCATE public.users",
		"CREATE TABLE public.t (id int)",
	}
	for _, sql := range cases {
		err := d.CheckSQL(sql)
		if err == nil {
			t.Fatalf("expected %q to be rejected", sql)
		}
		var pgErr *Error
		if !errors.As(err, &pgErr) {
			t.Fatalf("expected *Error for %q, got %T", sql, err)
		}
		if pgErr.Kind != KindStatementNotAllowed {
			t.Fatalf("%q: expected KindStatementNotAllowed, got %s", sql, pgErr.Kind)
		}
	}
}

func TestCheckSQL_RejectsMultipleStatements(t *testing.T) {
	d := newTestRestrictedDriver("public")
	err := d.CheckSQL("SELECT 1; SELECT 2;")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindStatementNotAllowed {
		t.Fatalf("expected multi-statement rejection, got %v", err)
	}
}

func TestCheckSQL_RejectsEmptyStatement(t *testing.T) {
	d := newTestRestrictedDriver("public")
	err := d.CheckSQL("   ")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindSqlSyntaxError {
		t.Fatalf("expected sql syntax error for empty statement, got %v", err)
	}
}

func TestCheckSQL_RejectsDisallowedFunction(t *testing.T) {
	d := newTestRestrictedDriver("public")
	err := d.CheckSQL("SELECT pg_read_file('/etc/passwd')")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindStatementNotAllowed {
		t.Fatalf("expected disallowed function to be rejected, got %v", err)
	}
}

func TestCheckSQL_AllowsCuratedFunctions(t *testing.T) {
	d := newTestRestrictedDriver("public")
	sql := "SELECT pg_size_pretty(pg_total_relation_size('public.users')), now()"
	if err := d.CheckSQL(sql); err != nil {
		t.Fatalf("expected curated function call to pass, got %v", err)
	}
}

func TestCheckSQL_RejectsOtherUsersSchema(t *testing.T) {
	d := newTestRestrictedDriver("public")
	err := d.CheckSQL("SELECT * FROM other_app.secrets")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindStatementNotAllowed {
		t.Fatalf("expected schema rejection, got %v", err)
	}
}

func TestCheckSQL_RejectsPgToastRegardlessOfOwnership(t *testing.T) {
	// pg_toast_12345 is deliberately passed as an owned schema to verify the
	// prefix denylist wins over ownership.
	d := newTestRestrictedDriver("pg_toast_12345")
	err := d.CheckSQL("SELECT * FROM pg_toast_12345.pg_toast_67890")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindStatementNotAllowed {
		t.Fatalf("expected pg_toast to be rejected regardless of ownership, got %v", err)
	}
}

func TestCheckSQL_AllowsCatalogSchemas(t *testing.T) {
	d := newTestRestrictedDriver("public")
	if err := d.CheckSQL("SELECT * FROM pg_catalog.pg_class"); err != nil {
		t.Fatalf("expected pg_catalog access to pass, got %v", err)
	}
	if err := d.CheckSQL("SELECT * FROM information_schema.columns"); err != nil {
		t.Fatalf("expected information_schema access to pass, got %v", err)
	}
}

func TestCheckSQL_AllowsUserOwnedSchema(t *testing.T) {
	d := newTestRestrictedDriver("app_schema")
	if err := d.CheckSQL("SELECT * FROM app_schema.widgets"); err != nil {
		t.Fatalf("expected access to an owned schema to pass, got %v", err)
	}
}

func TestCheckSQL_RejectsSyntaxError(t *testing.T) {
	d := newTestRestrictedDriver("public")
	err := d.CheckSQL("SELECT FROM WHERE")
	var pgErr *Error
	if !errors.As(err, &pgErr) || pgErr.Kind != KindSqlSyntaxError {
		t.Fatalf("expected sql syntax error, got %v", err)
	}
}
