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

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// disallowedNodes is the denylist of parse-tree node kinds a restricted-mode
// statement must never contain anywhere in its tree: every statement kind
// that writes, alters schema, manages roles/extensions, or otherwise runs
// something other than a read. Everything else pg_query_go's JSON produces
// (ResTarget, ColumnRef, String/Integer/Float value nodes, List, SelectStmt,
// SortBy, and the rest of the structural/expression nodes a plain SELECT or
// EXPLAIN is built from) is left unlisted and so passes through unchanged.
// Names match the node keys pg_query_go's JSON serialization uses (the Go
// struct name for the statement). EXPLAIN and SHOW are read-only and so are
// never listed here.
var disallowedNodes = map[string]bool{
	"InsertStmt": true, "UpdateStmt": true, "DeleteStmt": true, "MergeStmt": true,
	"TruncateStmt": true, "CopyStmt": true,
	"CreateStmt": true, "CreateTableAsStmt": true, "CreateForeignTableStmt": true,
	"AlterTableStmt": true, "AlterTableCmd": true, "AlterTableMoveAllStmt": true,
	"RenameStmt": true, "DropStmt": true, "DropdbStmt": true, "CreatedbStmt": true,
	"AlterDatabaseStmt": true, "AlterDatabaseSetStmt": true,
	"GrantStmt": true, "GrantRoleStmt": true,
	"CreateRoleStmt": true, "AlterRoleStmt": true, "AlterRoleSetStmt": true, "DropRoleStmt": true,
	"CreateSchemaStmt": true,
	"CreateFunctionStmt": true, "AlterFunctionStmt": true,
	"DropOwnedStmt": true, "ReassignOwnedStmt": true,
	"CommentStmt": true, "SecLabelStmt": true,
	"DoStmt": true, "CallStmt": true,
	"TransactionStmt": true, "VariableSetStmt": true,
	"LockStmt": true, "CheckPointStmt": true, "ClusterStmt": true,
	"VacuumStmt": true, "ReindexStmt": true,
	"NotifyStmt": true, "ListenStmt": true, "UnlistenStmt": true,
	"LoadStmt": true, "DiscardStmt": true,
	"PrepareStmt": true, "ExecuteStmt": true, "DeallocateStmt": true,
	"CreateExtensionStmt": true, "AlterExtensionStmt": true, "AlterExtensionContentsStmt": true,
	"CreateFdwStmt": true, "AlterFdwStmt": true,
	"CreateForeignServerStmt": true, "AlterForeignServerStmt": true,
	"CreateUserMappingStmt": true, "AlterUserMappingStmt": true, "DropUserMappingStmt": true,
	"ImportForeignSchemaStmt": true,
	"CreatePolicyStmt": true, "AlterPolicyStmt": true,
	"CreateEventTrigStmt": true, "AlterEventTrigStmt": true,
	"RefreshMatViewStmt": true,
	"CreateSeqStmt": true, "AlterSeqStmt": true,
	"CreateTrigStmt": true,
	"CreateDomainStmt": true, "AlterDomainStmt": true,
	"CreateEnumStmt": true, "CreateRangeStmt": true, "AlterEnumStmt": true,
	"CreateOpClassStmt": true, "CreateOpFamilyStmt": true, "AlterOpFamilyStmt": true,
	"CreateConversionStmt": true, "CreateCastStmt": true, "CreateTransformStmt": true,
	"CreatePLangStmt": true,
	"CreateTableSpaceStmt": true, "DropTableSpaceStmt": true, "AlterTableSpaceOptionsStmt": true,
	"CreatePublicationStmt": true, "AlterPublicationStmt": true,
	"CreateSubscriptionStmt": true, "AlterSubscriptionStmt": true, "DropSubscriptionStmt": true,
	"RuleStmt": true, "ViewStmt": true, "IndexStmt": true,
	"DefineStmt": true, "CompositeTypeStmt": true,
	"CreateStatsStmt": true, "AlterStatsStmt": true,
	"AlterOwnerStmt": true, "AlterObjectSchemaStmt": true, "AlterObjectDependsStmt": true,
	"AlterOperatorStmt": true, "AlterTypeStmt": true, "AlterCollationStmt": true,
	"ConstraintsSetStmt": true, "AlterSystemStmt": true, "CreateAmStmt": true,
}

// allowedFunctions is the curated set of callable function names under
// restricted mode: catalog introspection, time/text/math builtins,
// aggregates, and HypoPG's what-if helpers. Anything that writes, executes
// code, or touches the filesystem is deliberately absent.
var allowedFunctions = map[string]bool{
	"pg_get_indexdef": true, "pg_get_constraintdef": true, "pg_get_viewdef": true,
	"pg_get_expr": true, "pg_get_serial_sequence": true, "format_type": true,
	"has_table_privilege": true, "has_schema_privilege": true, "has_column_privilege": true,
	"has_database_privilege": true, "has_function_privilege": true, "has_sequence_privilege": true,
	"now": true, "current_timestamp": true, "current_date": true, "clock_timestamp": true,
	"date_trunc": true, "date_part": true, "extract": true, "age": true,
	"lower": true, "upper": true, "length": true, "substr": true, "substring": true,
	"trim": true, "btrim": true, "replace": true, "concat": true, "concat_ws": true,
	"left": true, "right": true, "split_part": true, "to_char": true, "to_number": true,
	"round": true, "ceil": true, "floor": true, "abs": true, "power": true, "sqrt": true,
	"greatest": true, "least": true, "coalesce": true, "nullif": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"array_agg": true, "string_agg": true, "json_agg": true, "jsonb_agg": true,
	"json_build_object": true, "jsonb_build_object": true, "row_to_json": true,
	"unnest": true, "generate_series": true, "pg_relation_size": true, "pg_total_relation_size": true,
	"pg_size_pretty": true, "pg_indexes_size": true,
	"hypopg_create_index": true, "hypopg_drop_index": true, "hypopg_reset": true,
	"hypopg_list_indexes": true, "hypopg_relation_size": true, "hypopg": true,
}

// allowedCatalogSchemas is the schema whitelist outside the user's own
// schemas; anything else (pg_toast, information_schema internals not
// listed here would still be caught by ownership checks in practice).
var allowedCatalogSchemas = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
}

// disallowedSchemaPrefixes catches catalogs that must never be touched
// regardless of the user-schema ownership check, e.g. TOAST storage.
var disallowedSchemaPrefixes = []string{"pg_toast"}

const defaultStatementTimeoutMs = 30000

// RestrictedDriver wraps Driver and validates every statement against the
// restricted-mode gatekeeper before executing it.
type RestrictedDriver struct {
	base             *Driver
	statementTimeout int
	userSchemas      map[string]bool
}

// NewRestrictedDriver returns a driver that runs the restricted-mode
// gatekeeper (CheckSQL) on every call. userSchemas names schemas owned by the
// connecting role, which are permitted in addition to pg_catalog and
// information_schema.
func NewRestrictedDriver(base *Driver, userSchemas []string) *RestrictedDriver {
	m := make(map[string]bool, len(userSchemas))
	for _, s := range userSchemas {
		m[s] = true
	}
	return &RestrictedDriver{base: base, statementTimeout: defaultStatementTimeoutMs, userSchemas: m}
}

// Execute validates sql via CheckSQL, sets a per-statement timeout, and
// delegates to the base driver.
func (d *RestrictedDriver) Execute(ctx context.Context, sql string, params ...any) ([]Row, error) {
	if err := d.CheckSQL(sql); err != nil {
		return nil, err
	}

	conn, err := d.base.Pool.Acquire(ctx)
	if err != nil {
		return nil, ConnectionError(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, ConnectionError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", d.statementTimeout)); err != nil {
		return nil, InternalErrorf("", err)
	}

	rows, err := tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, wrapExecError(err)
	}
	out, err := collectRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecError(err)
	}

	return out, tx.Commit(ctx)
}

// CheckSQL parses sql and enforces the restricted-mode gatekeeper: a single
// top-level statement, no node kind listed in disallowedNodes anywhere in the
// tree, only FuncCalls named in allowedFunctions, and no reference to a
// disallowed schema. Node kinds are not checked against an allowlist: a kind
// absent from disallowedNodes is accepted.
func (d *RestrictedDriver) CheckSQL(sql string) error {
	jsonTree, err := pgquery.ParseToJSON(sql)
	if err != nil {
		return SqlSyntaxError(err)
	}

	var tree struct {
		Stmts []json.RawMessage `json:"stmts"`
	}
	if err := json.Unmarshal([]byte(jsonTree), &tree); err != nil {
		return InternalErrorf("", fmt.Errorf("decode parse tree: %w", err))
	}
	if len(tree.Stmts) > 1 {
		return StatementNotAllowed("MultiStatementNotAllowed")
	}
	if len(tree.Stmts) == 0 {
		return SqlSyntaxError(fmt.Errorf("empty statement"))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(tree.Stmts[0], &raw); err != nil {
		return InternalErrorf("", err)
	}
	stmtNode, ok := raw["stmt"]
	if !ok {
		return SqlSyntaxError(fmt.Errorf("malformed statement node"))
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal(stmtNode, &node); err != nil {
		return InternalErrorf("", err)
	}

	return d.walkNode(node)
}

// walkNode recursively validates every node kind, FuncCall name, and
// RangeVar schema reference found in a decoded parse-tree fragment.
func (d *RestrictedDriver) walkNode(node map[string]json.RawMessage) error {
	for kind, body := range node {
		if disallowedNodes[kind] {
			return StatementNotAllowed(kind)
		}

		switch kind {
		case "FuncCall":
			name, err := funcCallName(body)
			if err != nil {
				return err
			}
			if !allowedFunctions[name] {
				return StatementNotAllowed(fmt.Sprintf("FuncCall:%s", name))
			}
		case "RangeVar":
			schema, err := rangeVarSchema(body)
			if err != nil {
				return err
			}
			if schema != "" && !d.schemaAllowed(schema) {
				return StatementNotAllowed(fmt.Sprintf("RangeVar:%s", schema))
			}
		}

		if err := d.walkChildren(body); err != nil {
			return err
		}
	}
	return nil
}

func (d *RestrictedDriver) schemaAllowed(schema string) bool {
	for _, prefix := range disallowedSchemaPrefixes {
		if strings.HasPrefix(schema, prefix) {
			return false
		}
	}
	return allowedCatalogSchemas[schema] || d.userSchemas[schema]
}

// walkChildren descends into every object/array field of a raw JSON node,
// recursing into nested AST fragments regardless of field name.
func (d *RestrictedDriver) walkChildren(raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, v := range obj {
			if err := d.walkValue(v); err != nil {
				return err
			}
		}
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, v := range arr {
			if err := d.walkValue(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *RestrictedDriver) walkValue(raw json.RawMessage) error {
	var asNode map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asNode); err == nil && len(asNode) > 0 {
		return d.walkNode(asNode)
	}
	return d.walkChildren(raw)
}

func funcCallName(body json.RawMessage) (string, error) {
	var fc struct {
		Funcname []struct {
			String struct {
				Sval string `json:"sval"`
			} `json:"String"`
		} `json:"funcname"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		return "", InternalErrorf("", err)
	}
	if len(fc.Funcname) == 0 {
		return "", nil
	}
	return strings.ToLower(fc.Funcname[len(fc.Funcname)-1].String.Sval), nil
}

func rangeVarSchema(body json.RawMessage) (string, error) {
	var rv struct {
		Schemaname string `json:"schemaname"`
	}
	if err := json.Unmarshal(body, &rv); err != nil {
		return "", InternalErrorf("", err)
	}
	return rv.Schemaname, nil
}
