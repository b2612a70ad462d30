/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package table holds the in-memory tabular model shared by every stage of the
// extraction pipeline: typed cells, column-named tables, the table registry
// and the per-kind schemas.
package table

import (
	"fmt"
	"strings"
)

// Row is one record, aligned positionally with the table's columns.
type Row []Value

// Table is a named, ordered collection of rows. Tables handed out by a
// Registry are read-only; call Copy before mutating.
type Table struct {
	Name    string
	columns []string
	index   map[string]int
	rows    []Row
}

// New creates an empty table. Column names are used verbatim and must be
// unique.
func New(name string, columns []string) (*Table, error) {
	t := &Table{
		Name:    name,
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, c)
		}
		t.columns[i] = c
		t.index[c] = i
	}
	return t, nil
}

// MustNew is New for statically known column sets.
func MustNew(name string, columns ...string) *Table {
	t, err := New(name, columns)
	if err != nil {
		panic(err)
	}
	return t
}

// UpperColumns upper-cases every column name in place. It fails if two
// columns collapse to the same name.
func (t *Table) UpperColumns() error {
	index := make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		u := strings.ToUpper(strings.TrimSpace(c))
		if _, dup := index[u]; dup {
			return fmt.Errorf("table %s: columns collide after upper-casing: %q", t.Name, u)
		}
		t.columns[i] = u
		index[u] = i
	}
	t.index = index
	return nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Len returns the number of rows. A nil table has no rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

func (t *Table) Empty() bool { return t.Len() == 0 }

// Append adds a row. The values are copied.
func (t *Table) Append(values ...Value) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("table %s: row has %d values, expected %d", t.Name, len(values), len(t.columns))
	}
	row := make(Row, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// Get returns the cell at row i in the named column, or null when the column
// does not exist.
func (t *Table) Get(i int, column string) Value {
	c, ok := t.index[column]
	if !ok {
		return Null()
	}
	return t.rows[i][c]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	out := make(Row, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// Column returns a copy of every value in the named column.
func (t *Table) Column(name string) ([]Value, error) {
	c, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("table %s: no column %q", t.Name, name)
	}
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[c]
	}
	return out, nil
}

// Copy returns an independent deep copy under a new name.
func (t *Table) Copy(name string) *Table {
	out := &Table{
		Name:    name,
		columns: t.Columns(),
		index:   make(map[string]int, len(t.index)),
		rows:    make([]Row, len(t.rows)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i := range t.rows {
		out.rows[i] = t.Row(i)
	}
	return out
}

// Filter returns a new table holding copies of the rows for which keep
// returns true.
func (t *Table) Filter(name string, keep func(i int) bool) *Table {
	out := &Table{
		Name:    name,
		columns: t.Columns(),
		index:   make(map[string]int, len(t.index)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, t.Row(i))
		}
	}
	return out
}

// FilterIn keeps the rows whose column key is a member of keys. Rows with a
// null key never match. A missing column yields an empty table.
func (t *Table) FilterIn(name, column string, keys map[string]struct{}) *Table {
	c, ok := t.index[column]
	return t.Filter(name, func(i int) bool {
		if !ok {
			return false
		}
		v := t.rows[i][c]
		if v.IsNull() {
			return false
		}
		_, in := keys[v.Key()]
		return in
	})
}

// SetColumn replaces the named column, or appends it when absent. Only call
// this on a table the caller derived itself.
func (t *Table) SetColumn(name string, values []Value) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("table %s: column %s has %d values, expected %d", t.Name, name, len(values), len(t.rows))
	}
	c, ok := t.index[name]
	if !ok {
		c = len(t.columns)
		t.columns = append(t.columns, name)
		t.index[name] = c
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], Null())
		}
	}
	for i := range t.rows {
		t.rows[i][c] = values[i]
	}
	return nil
}

// Keys returns the distinct non-null keys of a column.
func (t *Table) Keys(column string) map[string]struct{} {
	out := make(map[string]struct{})
	c, ok := t.index[column]
	if !ok {
		return out
	}
	for _, r := range t.rows {
		if r[c].IsNull() {
			continue
		}
		out[r[c].Key()] = struct{}{}
	}
	return out
}
