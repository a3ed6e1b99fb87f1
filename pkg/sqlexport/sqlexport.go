// pkg/sqlexport/sqlexport.go
// Package sqlexport dumps a document into a SQLite database for ad-hoc
// querying: every scalar leaf lands in a flattened path/value table, and
// each top-level table object also becomes its own SQL table.
package sqlexport

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"weft/pkg/document"
	"weft/pkg/opset"
	"weft/pkg/types"
)

// Export writes the document's current value into a SQLite database at
// path. Existing export tables are replaced.
func Export(doc *document.Document, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := exportFlat(doc, db); err != nil {
		return err
	}
	return exportTables(doc, db)
}

// exportFlat writes every scalar leaf as a (path, value) row.
func exportFlat(doc *document.Document, db *sql.DB) error {
	if _, err := db.Exec(`DROP TABLE IF EXISTS weft_values`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE TABLE weft_values (path TEXT PRIMARY KEY, value)`); err != nil {
		return err
	}
	stmt, err := db.Prepare(`INSERT INTO weft_values (path, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return walkLeaves(doc, types.RootObj, "$", func(path string, v any) error {
		_, err := stmt.Exec(path, v)
		return err
	})
}

func walkLeaves(doc *document.Document, obj types.ObjID, prefix string, fn func(string, any) error) error {
	kind, err := doc.ObjKind(obj)
	if err != nil {
		return err
	}
	if kind == types.ObjText {
		text, err := doc.Text(obj, nil)
		if err != nil {
			return err
		}
		return fn(prefix, text)
	}
	if kind.IsSequence() {
		entries, err := doc.ListRange(obj, nil)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := walkValue(doc, e.Value, fmt.Sprintf("%s[%d]", prefix, e.Index), fn); err != nil {
				return err
			}
		}
		return nil
	}
	entries, err := doc.MapRange(obj, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := walkValue(doc, e.Value, prefix+"."+e.Key, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkValue(doc *document.Document, v opset.Value, path string, fn func(string, any) error) error {
	if v.IsObj {
		return walkLeaves(doc, v.Obj, path, fn)
	}
	return fn(path, scalarToSQL(v.Scalar))
}

func scalarToSQL(s types.ScalarValue) any {
	switch s.Kind() {
	case types.KindNull:
		return nil
	case types.KindBool:
		return s.Bool()
	case types.KindUint:
		return int64(s.Uint())
	case types.KindInt, types.KindCounter, types.KindTimestamp:
		return s.Int()
	case types.KindF64:
		return s.F64()
	case types.KindStr:
		return s.Str()
	default:
		return s.Bytes()
	}
}

// exportTables maps each top-level Table object onto a SQL table: one row
// per entry, one column per property used by any row.
func exportTables(doc *document.Document, db *sql.DB) error {
	entries, err := doc.MapRange(types.RootObj, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Value.IsObj || e.Value.Kind != types.ObjTable {
			continue
		}
		if err := exportTable(doc, db, e.Key, e.Value.Obj); err != nil {
			return err
		}
	}
	return nil
}

func exportTable(doc *document.Document, db *sql.DB, name string, table types.ObjID) error {
	rows, err := doc.MapRange(table, nil)
	if err != nil {
		return err
	}
	colSet := make(map[string]struct{})
	type rowData struct {
		id   string
		vals map[string]any
	}
	var data []rowData
	for _, row := range rows {
		rd := rowData{id: row.Key, vals: map[string]any{}}
		if row.Value.IsObj && !row.Value.Kind.IsSequence() {
			fields, err := doc.MapRange(row.Value.Obj, nil)
			if err != nil {
				return err
			}
			for _, f := range fields {
				if f.Value.IsObj {
					continue // nested containers stay in weft_values
				}
				colSet[f.Key] = struct{}{}
				rd.vals[f.Key] = scalarToSQL(f.Value.Scalar)
			}
		}
		data = append(data, rd)
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	qname := quoteIdent(name)
	if _, err := db.Exec(`DROP TABLE IF EXISTS ` + qname); err != nil {
		return err
	}
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, `_id TEXT PRIMARY KEY`)
	for _, c := range cols {
		defs = append(defs, quoteIdent(c))
	}
	if _, err := db.Exec(`CREATE TABLE ` + qname + ` (` + strings.Join(defs, ", ") + `)`); err != nil {
		return err
	}
	colNames := make([]string, 0, len(cols)+1)
	colNames = append(colNames, "_id")
	placeholders := []string{"?"}
	for _, c := range cols {
		colNames = append(colNames, quoteIdent(c))
		placeholders = append(placeholders, "?")
	}
	stmt, err := db.Prepare(`INSERT INTO ` + qname + ` (` + strings.Join(colNames, ", ") +
		`) VALUES (` + strings.Join(placeholders, ", ") + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rd := range data {
		args := make([]any, 0, len(cols)+1)
		args = append(args, rd.id)
		for _, c := range cols {
			args = append(args, rd.vals[c])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
