// Package sqlrow builds the snapshot SQL shared by the database/sql backends
// and scans result sets into snapshot rows. Dialects differ only in their
// bind placeholders.
package sqlrow

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
)

// Table is the snapshot relation name.
const Table = "monthly_snapshots"

// Placeholder renders the i-th (1-based) bind parameter.
type Placeholder func(i int) string

// Question is the sqlite placeholder.
func Question(int) string { return "?" }

// Dollar is the postgres placeholder.
func Dollar(i int) string { return "$" + strconv.Itoa(i) }

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Upsert builds an INSERT ... ON CONFLICT(worker_id, year, month) DO UPDATE
// for the columns present in row.
func Upsert(row snapshot.Row, ph Placeholder) (string, []any, error) {
	cols := make([]string, 0, len(row))
	for col := range row {
		if !identifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	isKey := make(map[string]bool, len(snapshot.KeyColumns))
	for _, k := range snapshot.KeyColumns {
		isKey[k] = true
	}

	binds := make([]string, len(cols))
	args := make([]any, len(cols))
	var updates []string
	for i, col := range cols {
		binds[i] = ph(i + 1)
		args[i] = row[col]
		if !isKey[col] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		Table,
		strings.Join(cols, ", "),
		strings.Join(binds, ", "),
		strings.Join(snapshot.KeyColumns, ", "),
		strings.Join(updates, ", "),
	)
	return query, args, nil
}

// Find selects one row by compound key.
func Find(ph Placeholder) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE worker_id = %s AND year = %s AND month = %s",
		Table, ph(1), ph(2), ph(3))
}

// Query builds a filtered listing, newest period first.
func Query(filter payroll.ListFilter, ph Placeholder) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, ph(len(args))))
	}
	if filter.WorkerID != "" {
		add("worker_id = %s", filter.WorkerID)
	}
	if filter.Year != 0 {
		add("year = %s", filter.Year)
	}
	if filter.Month != 0 {
		add("month = %s", filter.Month)
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM " + Table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, filter.EffectiveLimit())
	b.WriteString(" ORDER BY year DESC, month DESC, worker_id ASC LIMIT " + ph(len(args)))
	return b.String(), args
}

// Scan reads every remaining row of rows into snapshot rows keyed by column
// name. []byte values are copied into strings.
func Scan(rows *sql.Rows) ([]snapshot.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []snapshot.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(snapshot.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
