package reader

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kronigert/timsCompare/internal/method"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Scheduling table names.
const (
	TableDiaWindows    = "DiaWindowsSpecification"
	TableDiagonal      = "Template"
	TablePasefSchedule = "PasefSchedule"
)

// tableSpec names a scheduling table and the file that holds it.
type tableSpec struct {
	File  string
	Table string
}

var modeTables = map[method.Mode][]tableSpec{
	method.ModePASEF:         {{File: "pasefSchedule.pasefsqlite", Table: TablePasefSchedule}},
	method.ModeDiaPASEF:      {{File: "diasettings.diasqlite", Table: TableDiaWindows}},
	method.ModeDiagonalPASEF: {{File: "synchroSettings.syncsqlite", Table: TableDiagonal}},
}

func tablesFor(m method.Mode) []tableSpec {
	return modeTables[m]
}

// Row is one table row: column name to raw text. NULL columns are absent.
type Row map[string]string

// Table is a scheduling table read from a method directory.
type Table struct {
	Name    string
	File    string
	Columns []string
	Rows    []Row
}

// readTable reads spec.Table from the first file in dir named spec.File.
// A missing file yields a nil table and no error.
func readTable(ctx context.Context, dir string, spec tableSpec) (*Table, error) {
	path, err := findFile(dir, spec.File)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", spec.File, err)
	}
	if path == "" {
		return nil, nil
	}
	return ReadTableFile(ctx, path, spec.Table)
}

// ReadTableFile reads every row of table from the SQLite file at path. The
// database is opened read-only.
func ReadTableFile(ctx context.Context, path, table string) (*Table, error) {
	dsn, err := readOnlyURI(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT * FROM "`+table+`"`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}

	t := &Table{Name: table, File: path, Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if s, ok := cellText(vals[i]); ok {
				row[c] = s
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return t, nil
}

func cellText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case []byte:
		return string(x), true
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(x), true
	}
}

// readOnlyURI returns the SQLite URI that opens path read-only. The path is
// percent-encoded so that '?', '#' and '%' in directory names survive.
func readOnlyURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // drive letter
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro"}
	return u.String(), nil
}
