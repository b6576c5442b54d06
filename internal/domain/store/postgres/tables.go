package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hradmin/internal/domain/store"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func selectList(spec store.TableSpec) string {
	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		ident := pgx.Identifier{c}.Sanitize()
		if c == "id" {
			cols = append(cols, ident+"::text AS id")
			continue
		}
		cols = append(cols, ident)
	}
	return strings.Join(cols, ", ")
}

func selectRows(ctx context.Context, db querier, table string, q store.Query) ([]store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := spec.CheckQuery(q.Filters, q.OrderBy); err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := make([]any, 0, len(q.Filters)+1)
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList(spec), pgx.Identifier{table}.Sanitize())
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&sb, "%s::text = $%d", pgx.Identifier{f.Column}.Sanitize(), len(args))
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", pgx.Identifier{q.OrderBy}.Sanitize(), dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := db.Query(ctx, sb.String(), stringArgs(args, len(q.Filters))...)
	if err != nil {
		return nil, translate(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]store.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, store.Row(m))
	}
	return out, nil
}

func insertRow(ctx context.Context, db querier, table string, row store.Row) (store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	columns := sortedKeys(row)
	if err := spec.CheckColumns(columns...); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("empty row")
	}

	idents := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		idents[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pgx.Identifier{table}.Sanitize(), strings.Join(idents, ", "), strings.Join(placeholders, ", "), selectList(spec))
	return returningOne(ctx, db, sql, args)
}

func updateRow(ctx context.Context, db querier, table, id string, patch store.Row) (store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	columns := make([]string, 0, len(patch))
	for _, c := range sortedKeys(patch) {
		if c != "id" {
			columns = append(columns, c)
		}
	}
	if err := spec.CheckColumns(columns...); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("empty patch")
	}

	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, c := range columns {
		args = append(args, patch[c])
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args))
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id::text = $%d RETURNING %s",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), len(args), selectList(spec))
	return returningOne(ctx, db, sql, args)
}

func deleteRow(ctx context.Context, db querier, table, id string) error {
	if _, err := store.Lookup(table); err != nil {
		return err
	}
	tag, err := db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id::text = $1", pgx.Identifier{table}.Sanitize()), id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func returningOne(ctx context.Context, db querier, sql string, args []any) (store.Row, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, translate(err)
	}
	return store.Row(m), nil
}

// stringArgs renders the first n arguments (the filter values) as text so
// they compare against the column's text cast.
func stringArgs(args []any, n int) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if i < n {
			out[i] = fmt.Sprint(a)
			continue
		}
		out[i] = a
	}
	return out
}

func sortedKeys(row store.Row) []string {
	out := make([]string, 0, len(row))
	for k := range row {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case "22P02":
			return store.ErrNotFound
		}
	}
	return err
}
