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

// Package cohort selects subjects and events whose free-text description
// matches a diagnosis pattern.
package cohort

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// DefaultPattern matches words starting with "diab": diabetes, diabetic,
// Diabetes mellitus. It does not match prediabetes or nondiabolical.
const DefaultPattern = `\bdiab`

// Index is the pair of identifier sets a cohort is made of.
type Index struct {
	SubjectIDs map[string]struct{}
	EventIDs   map[string]struct{}
}

// NewIndex returns an empty index.
func NewIndex() Index {
	return Index{
		SubjectIDs: make(map[string]struct{}),
		EventIDs:   make(map[string]struct{}),
	}
}

func (ix Index) Empty() bool { return len(ix.SubjectIDs) == 0 && len(ix.EventIDs) == 0 }

// Subjects returns the subject ids in sorted order.
func (ix Index) Subjects() []string { return sortedKeys(ix.SubjectIDs) }

// Events returns the event ids in sorted order.
func (ix Index) Events() []string { return sortedKeys(ix.EventIDs) }

// Selector finds matching rows in a condition-like table.
type Selector struct {
	re                *regexp.Regexp
	DescriptionColumn string
	SubjectColumn     string
	EventColumn       string
}

// NewSelector compiles pattern case-insensitively. Column names default to
// DESCRIPTION, PATIENT and ENCOUNTER.
func NewSelector(pattern string) (*Selector, error) {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid cohort pattern: %w", err)
	}
	return &Selector{
		re:                re,
		DescriptionColumn: table.ColDescription,
		SubjectColumn:     table.ColPatient,
		EventColumn:       table.ColEncounter,
	}, nil
}

// Matches reports whether a description cell matches. Null never matches.
func (s *Selector) Matches(v table.Value) bool {
	if v.IsNull() {
		return false
	}
	return s.re.MatchString(v.String())
}

// Select scans t and projects the subject and event ids of matching rows.
// An absent table or missing columns produce an empty index and a warning.
func (s *Selector) Select(t *table.Table, dc *diag.Collector) Index {
	ix := NewIndex()
	if t == nil {
		dc.Warn(diag.MissingInput, table.Conditions, "No conditions table, cohort is empty")
		return ix
	}
	for _, c := range []string{s.DescriptionColumn, s.SubjectColumn, s.EventColumn} {
		if !t.HasColumn(c) {
			dc.Warn(diag.MissingInput, t.Name, "Column %s missing, cohort is empty", c)
			return ix
		}
	}

	matched := 0
	for i := 0; i < t.Len(); i++ {
		if !s.Matches(t.Get(i, s.DescriptionColumn)) {
			continue
		}
		matched++
		if v := t.Get(i, s.SubjectColumn); !v.IsNull() {
			ix.SubjectIDs[v.Key()] = struct{}{}
		}
		if v := t.Get(i, s.EventColumn); !v.IsNull() {
			ix.EventIDs[v.Key()] = struct{}{}
		}
	}

	dc.Logger().Info("Selected cohort",
		zap.String("pattern", s.re.String()),
		zap.Int("matched_rows", matched),
		zap.Int("subjects", len(ix.SubjectIDs)),
		zap.Int("events", len(ix.EventIDs)))
	return ix
}

// Difference returns the members of a that are not in b, sorted.
func Difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
