package smsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Generation is the schema family of a store.
type Generation int

const (
	GenerationAuto Generation = iota
	GenerationLegacy
	GenerationChat
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "legacy"
	case GenerationChat:
		return "chat"
	default:
		return "auto"
	}
}

// ParseGeneration accepts "auto", "legacy" or "chat".
func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return GenerationAuto, nil
	case "legacy":
		return GenerationLegacy, nil
	case "chat":
		return GenerationChat, nil
	default:
		return GenerationAuto, fmt.Errorf("unknown schema generation %q", s)
	}
}

var generationTables = map[Generation][]string{
	GenerationLegacy: {tableMessage, tableMsgGroup, tableGroupMember},
	GenerationChat:   {tableMessage, tableChat, tableHandle, tableChatMessageJoin, tableChatHandleJoin},
}

// DetectGeneration inspects the catalog. The chat generation wins when a
// store carries tables of both.
func (s *Store) DetectGeneration(ctx context.Context) (Generation, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return GenerationAuto, err
	}
	for _, g := range []Generation{GenerationChat, GenerationLegacy} {
		if hasAll(tables, generationTables[g]) {
			return g, nil
		}
	}
	return GenerationAuto, fmt.Errorf("%w: %s", ErrUnknownSchema, s.path)
}

// ResolveGeneration returns want if the catalog supports it, or the detected
// generation when want is GenerationAuto.
func (s *Store) ResolveGeneration(ctx context.Context, want Generation) (Generation, error) {
	if want == GenerationAuto {
		return s.DetectGeneration(ctx)
	}
	tables, err := s.tables(ctx)
	if err != nil {
		return GenerationAuto, err
	}
	if !hasAll(tables, generationTables[want]) {
		return GenerationAuto, fmt.Errorf("%w: %s has no %s tables", ErrUnknownSchema, s.path, want)
	}
	return want, nil
}

func (s *Store) tables(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, &QueryError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &QueryError{Op: "list tables", Err: err}
		}
		tables[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "list tables", Err: err}
	}
	return tables, nil
}

func hasAll(tables map[string]bool, names []string) bool {
	for _, n := range names {
		if !tables[strings.ToLower(n)] {
			return false
		}
	}
	return true
}

// Columns lists a table's columns in declaration order. Results are cached
// for the lifetime of the store.
func (s *Store) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	if cols, ok := s.columns[table]; ok {
		return cols, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, &QueryError{Op: "table info " + table, Err: err}
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString

		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, &QueryError{Op: "table info " + table, Err: err}
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "table info " + table, Err: err}
	}

	s.columns[table] = columns
	return columns, nil
}

func (s *Store) hasColumn(ctx context.Context, q Querier, table, column string) (bool, error) {
	cols, err := s.Columns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c, column) {
			return true, nil
		}
	}
	return false, nil
}

// requireColumns fails with ErrUnknownSchema naming every missing column.
func (s *Store) requireColumns(ctx context.Context, required map[string][]string) error {
	var missing []string
	for table, cols := range required {
		for _, col := range cols {
			ok, err := s.hasColumn(ctx, s.db, table, col)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %s", ErrUnknownSchema, strings.Join(missing, ", "))
	}
	return nil
}

// insertRow inserts the fields that exist as columns of table and returns
// the new rowid. Field names match columns case-insensitively; fields the
// table lacks are left out, columns without a field take their default.
func (s *Store) insertRow(ctx context.Context, q Querier, table string, fields map[string]any) (int64, error) {
	columns, err := s.Columns(ctx, q, table)
	if err != nil {
		return 0, err
	}

	byName := make(map[string]any, len(fields))
	for k, v := range fields {
		byName[strings.ToLower(k)] = v
	}

	names := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, col := range columns {
		if v, ok := byName[strings.ToLower(col)]; ok {
			names = append(names, quoteIdent(col))
			args = append(args, v)
		}
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: no writable columns in %s", ErrUnknownSchema, table)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &QueryError{Op: "insert " + table, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &QueryError{Op: "insert " + table, Err: err}
	}
	return id, nil
}

// lookupID runs a single-column rowid query. found is false when no row
// matches.
func lookupID(ctx context.Context, q Querier, op, query string, args ...any) (id int64, found bool, err error) {
	err = q.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &QueryError{Op: op, Err: err}
	}
	return id, true, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
