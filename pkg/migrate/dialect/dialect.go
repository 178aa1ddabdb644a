// package dialect
//
// builds the drain and insert statements for each supported store kind
package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/baderkha/events-migrator/pkg/migrate/config/storecfg"
)

// ErrNoExtraction : the store kind can only be used as a target
var ErrNoExtraction = errors.New("store type cannot be used as a source")

// Extraction : how one transfer removes and returns the source rows.
// When Delete is set the extraction is two-phase: Query locks and reads the rows,
// Delete removes them and must affect exactly as many rows as Query returned.
type Extraction struct {
	Query     string
	Delete    string
	TxOptions *sql.TxOptions
}

// TwoPhase : true when the store has no single remove-and-return statement
func (e Extraction) TwoPhase() bool {
	return e.Delete != ""
}

// Dialect : sql flavour of one store kind
type Dialect struct {
	Kind      storecfg.Kind
	maxParams int
	// maxRows : row tuples allowed in one VALUES list, 0 when only maxParams applies
	maxRows int
}

// For : dialect of the store kind
func For(kind storecfg.Kind) (Dialect, error) {
	switch kind {
	case storecfg.Postgres, storecfg.MariaDB, storecfg.MySQL:
		return Dialect{Kind: kind, maxParams: 65535}, nil
	case storecfg.SQLServer:
		return Dialect{Kind: kind, maxParams: 2000, maxRows: 1000}, nil
	case storecfg.SQLite:
		return Dialect{Kind: kind, maxParams: 32766}, nil
	case storecfg.Snowflake:
		return Dialect{Kind: kind, maxParams: 16384, maxRows: 16384}, nil
	}
	return Dialect{}, fmt.Errorf("no sql dialect for store type %q", kind)
}

// Placeholder : bind variable for the n-th (1 based) argument
func (d Dialect) Placeholder(n int) string {
	switch d.Kind {
	case storecfg.Postgres:
		return "$" + strconv.Itoa(n)
	case storecfg.SQLServer:
		return "@p" + strconv.Itoa(n)
	}
	return "?"
}

// Extraction : statements removing every row of table and returning cols
func (d Dialect) Extraction(table string, cols []string) (Extraction, error) {
	colList := strings.Join(cols, ",")
	switch d.Kind {
	case storecfg.Postgres, storecfg.MariaDB, storecfg.SQLite:
		return Extraction{
			Query: fmt.Sprintf("DELETE FROM %s RETURNING %s", table, colList),
		}, nil
	case storecfg.SQLServer:
		deleted := make([]string, len(cols))
		for i, c := range cols {
			deleted[i] = "DELETED." + c
		}
		return Extraction{
			Query: fmt.Sprintf("DELETE FROM %s OUTPUT %s", table, strings.Join(deleted, ",")),
		}, nil
	case storecfg.MySQL:
		// FOR UPDATE under REPEATABLE READ takes next-key locks over the whole table,
		// no row can appear or vanish between the read and the delete
		return Extraction{
			Query:     fmt.Sprintf("SELECT %s FROM %s FOR UPDATE", colList, table),
			Delete:    fmt.Sprintf("DELETE FROM %s", table),
			TxOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead},
		}, nil
	}
	return Extraction{}, fmt.Errorf("%s : %w", d.Kind, ErrNoExtraction)
}

// RowsPerInsert : rows that fit in one multi row INSERT, capped by batchRows when positive
func (d Dialect) RowsPerInsert(arity int, batchRows int) int {
	if arity <= 0 {
		return 1
	}
	n := d.maxParams / arity
	if d.maxRows > 0 && d.maxRows < n {
		n = d.maxRows
	}
	if batchRows > 0 && batchRows < n {
		n = batchRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InsertStatement : multi row INSERT of rows rows into cols of table
func (d Dialect) InsertStatement(table string, cols []string, rows int) string {
	var (
		b   strings.Builder
		arg = 1
	)
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ","))
	b.WriteString(") VALUES ")
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteString(d.Placeholder(arg))
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}
