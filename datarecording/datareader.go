package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// Filter selects and orders the rows of a table.
type Filter struct {
	// Where is an SQL condition without the WHERE keyword.
	Where string
	Args  []any

	// OrderBy is an SQL ordering without the ORDER BY keywords.
	OrderBy string

	// Limit caps the number of rows. 0 reads every row.
	Limit int
}

func (f Filter) clauses() string {
	var b strings.Builder

	if f.Where != "" {
		b.WriteString(" WHERE " + f.Where)
	}

	if f.OrderBy != "" {
		b.WriteString(" ORDER BY " + f.OrderBy)
	}

	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}

	return b.String()
}

// Reader reads back a database written by a DataRecorder.
type Reader struct {
	db *sql.DB
}

// OpenReader opens a recording. The ".sqlite3" suffix that New appends may
// be left out.
func OpenReader(path string) (*Reader, error) {
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	// Opening a missing file would create an empty database.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a Reader on an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Tables lists the tables of the recording by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

// Count returns the number of rows that pass the filter's condition. The
// order and the limit are ignored.
func (r *Reader) Count(
	ctx context.Context,
	table string,
	f Filter,
) (int, error) {
	cond := Filter{Where: f.Where}

	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+cond.clauses(), f.Args...).Scan(&n)

	return n, err
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Read decodes the rows of a table into values of T. Columns are matched to
// the exported fields of T by name. Columns without a field are dropped.
func Read[T any](
	ctx context.Context,
	r *Reader,
	table string,
	f Filter,
) ([]T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntry, t)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+table+f.clauses(), f.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var (
		out     []T
		discard any
	)

	for rows.Next() {
		var entry T

		v := reflect.ValueOf(&entry).Elem()
		dest := make([]any, len(columns))

		for i, col := range columns {
			dest[i] = &discard

			if field := v.FieldByName(col); field.IsValid() &&
				field.CanSet() {
				dest[i] = field.Addr().Interface()
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}

		out = append(out, entry)
	}

	return out, rows.Err()
}
