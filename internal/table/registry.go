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
package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDuplicateTable is returned when two inputs resolve to the same logical
// table name.
var ErrDuplicateTable = errors.New("duplicate table name")

// Registry maps logical table names to tables. It is built once at pipeline
// start and read-only afterwards.
type Registry struct {
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Add registers t under its canonical name. A second table with the same
// name is rejected; the first one stays registered.
func (r *Registry) Add(t *Table) error {
	key := canonicalName(t.Name)
	if key == "" {
		return fmt.Errorf("table name is empty")
	}
	if _, exists := r.tables[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, key)
	}
	t.Name = key
	r.tables[key] = t
	return nil
}

// Lookup returns the named table, or false when it was never loaded.
func (r *Registry) Lookup(name string) (*Table, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tables[canonicalName(name)]
	return t, ok
}

// Names returns the registered table names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tables)
}

// Schema returns each table's column names, keyed by table name.
func (r *Registry) Schema() map[string][]string {
	out := make(map[string][]string, len(r.tables))
	for name, t := range r.tables {
		out[name] = t.Columns()
	}
	return out
}

// TableName derives the logical table name from a file path: the directory
// prefix and the extension are stripped and the result lower-cased.
func TableName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return canonicalName(base)
}

func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
