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

// Package vocab loads a drug vocabulary export (RxNav table download) and
// reduces it to the set of concept codes used to classify medications.
package vocab

import (
	"errors"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/source"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// TableName is the logical name of the loaded vocabulary table.
const TableName = "vocabulary"

// Entry is one vocabulary row.
type Entry struct {
	Code     string
	TermType string
	Name     string
}

// ConceptCodeSet holds canonical code keys. An empty set classifies nothing.
type ConceptCodeSet map[string]struct{}

// Contains reports whether v's canonical key is in the set. Null never is.
func (s ConceptCodeSet) Contains(v table.Value) bool {
	if v.IsNull() {
		return false
	}
	_, ok := s[v.Key()]
	return ok
}

func (s ConceptCodeSet) Len() int { return len(s) }

// Sorted returns the codes in lexical order.
func (s ConceptCodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Placeholder is the empty vocabulary used when the file cannot be loaded.
func Placeholder() *table.Table {
	return table.MustNew(TableName, table.ColRxCUI, table.ColTermType)
}

// Load reads the vocabulary file, skipping skip preamble lines, and keeps only
// rows whose term type is in termTypes. A missing or unreadable file yields
// the empty placeholder and a warning instead of an error.
func Load(path string, skip int, termTypes []string, dc *diag.Collector) *table.Table {
	t, err := source.ReadCSVFile(path, TableName, skip)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			dc.Warn(diag.MissingInput, TableName, "RxNorm file not found at %s", path)
		} else {
			dc.Warn(diag.LoadFailure, TableName, "Could not load vocabulary %s: %v", path, err)
		}
		return Placeholder()
	}

	restricted := Restrict(t, termTypes)
	dc.Logger().Info("Loaded vocabulary",
		zap.String("path", path),
		zap.Int("rows", t.Len()),
		zap.Int("kept", restricted.Len()))
	return restricted
}

// Restrict keeps the rows whose TERMTYPE is in termTypes. A table without a
// TERMTYPE column restricts to nothing.
func Restrict(t *table.Table, termTypes []string) *table.Table {
	allowed := make(map[string]struct{}, len(termTypes))
	for _, tt := range termTypes {
		allowed[strings.ToUpper(strings.TrimSpace(tt))] = struct{}{}
	}
	return t.Filter(t.Name, func(i int) bool {
		v := t.Get(i, table.ColTermType)
		if v.IsNull() {
			return false
		}
		_, ok := allowed[strings.ToUpper(v.Key())]
		return ok
	})
}

// codeColumn returns the column holding concept codes: RXCUI as exported by
// RxNav, or a generic CODE column.
func codeColumn(t *table.Table) (string, bool) {
	for _, c := range []string{table.ColRxCUI, table.ColCode} {
		if t.HasColumn(c) {
			return c, true
		}
	}
	return "", false
}

// Entries decodes the vocabulary rows. It returns nil when the table does not
// have the vocabulary schema.
func Entries(t *table.Table) []Entry {
	if t == nil || table.VocabularySchema.Check(t) != nil {
		return nil
	}
	col, _ := codeColumn(t)
	out := make([]Entry, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code := t.Get(i, col)
		if code.IsNull() {
			continue
		}
		e := Entry{Code: code.Key(), TermType: t.Get(i, table.ColTermType).Key()}
		if name := t.Get(i, table.ColName); !name.IsNull() {
			e.Name = name.Key()
		}
		out = append(out, e)
	}
	return out
}

// Codes builds the ConceptCodeSet from an already restricted vocabulary
// table. Missing columns produce an empty set, never an error.
func Codes(t *table.Table, dc *diag.Collector) ConceptCodeSet {
	set := make(ConceptCodeSet)
	if err := table.VocabularySchema.Check(t); err != nil {
		dc.Warn(diag.MissingInput, TableName, "Vocabulary unusable, no medication will be classified: %v", err)
		return set
	}
	for _, e := range Entries(t) {
		set[e.Code] = struct{}{}
	}
	return set
}

// TermTypeCounts counts the vocabulary rows per term type.
func TermTypeCounts(t *table.Table) map[string]int {
	out := make(map[string]int)
	for _, e := range Entries(t) {
		out[e.TermType]++
	}
	return out
}
