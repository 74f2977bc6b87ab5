// Package table provides an in-memory tabular dataset with named columns
// and a row index. Tables serialize to CSV (index column included) and
// render to the HTML table markup used in message bodies.
package table

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var (
	// ErrRaggedRow indicates a row whose width differs from the column count.
	ErrRaggedRow = errors.New("row width does not match column count")

	// ErrIndexLength indicates an index whose length differs from the row count.
	ErrIndexLength = errors.New("index length does not match row count")

	// ErrUnknownColumn indicates a column name that is not in the table.
	ErrUnknownColumn = errors.New("unknown column")
)

// Table is an immutable rows-by-named-columns dataset. Every row carries an
// index label, which defaults to its zero-based position.
type Table struct {
	columns []string
	index   []string
	rows    [][]string
}

// New builds a table with a range index (0..n-1).
func New(columns []string, rows ...[]string) (*Table, error) {
	return NewIndexed(columns, rangeIndex(0, len(rows)), rows...)
}

// NewIndexed builds a table with explicit index labels.
func NewIndexed(columns, index []string, rows ...[]string) (*Table, error) {
	if len(index) != len(rows) {
		return nil, fmt.Errorf("%w: %d labels for %d rows", ErrIndexLength, len(index), len(rows))
	}

	copied := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedRow, i, len(row), len(columns))
		}
		copied[i] = slices.Clone(row)
	}

	return &Table{
		columns: slices.Clone(columns),
		index:   slices.Clone(index),
		rows:    copied,
	}, nil
}

// Columns returns the column names.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Index returns the row labels.
func (t *Table) Index() []string { return slices.Clone(t.index) }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of row i.
func (t *Table) Row(i int) []string { return slices.Clone(t.rows[i]) }

// Head returns the first n rows, keeping their index labels.
func (t *Table) Head(n int) *Table {
	n = max(0, min(n, len(t.rows)))
	return &Table{
		columns: slices.Clone(t.columns),
		index:   slices.Clone(t.index[:n]),
		rows:    cloneRows(t.rows[:n]),
	}
}

// Select returns a table restricted to the named columns, in the order given.
func (t *Table) Select(columns ...string) (*Table, error) {
	positions := make([]int, len(columns))
	for i, name := range columns {
		pos := slices.Index(t.columns, name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		positions[i] = pos
	}

	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		selected := make([]string, len(positions))
		for j, pos := range positions {
			selected[j] = row[pos]
		}
		rows[i] = selected
	}

	return &Table{
		columns: slices.Clone(columns),
		index:   slices.Clone(t.index),
		rows:    rows,
	}, nil
}

func rangeIndex(start, n int) []string {
	index := make([]string, n)
	for i := range index {
		index[i] = strconv.Itoa(start + i)
	}
	return index
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = slices.Clone(row)
	}
	return out
}
