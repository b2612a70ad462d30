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

// Package join implements the keyed left joins of the extraction pipeline and
// the cardinality checks that guard them.
package join

import (
	"fmt"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// Spec describes a left join. When LeftKey and RightKey are the same column
// name the key appears once in the output; otherwise both key columns are
// kept. Any other column present on both sides gets the side's suffix.
type Spec struct {
	LeftKey     string
	RightKey    string
	LeftSuffix  string
	RightSuffix string
}

func (s Spec) sharedKey() bool { return s.LeftKey == s.RightKey }

// RightName returns the output name of a right-hand column.
func (s Spec) RightName(left *table.Table, col string) string {
	if left.HasColumn(col) {
		return col + s.RightSuffix
	}
	return col
}

// LeftName returns the output name of a left-hand column.
func (s Spec) LeftName(right *table.Table, col string) string {
	if s.sharedKey() && col == s.LeftKey {
		return col
	}
	if right.HasColumn(col) {
		return col + s.LeftSuffix
	}
	return col
}

// LeftJoin joins every row of left to the rows of right with an equal key.
// Left rows without a match are kept once with null right-hand columns. Null
// keys never match. Output order follows left, then right.
func LeftJoin(name string, left, right *table.Table, spec Spec) (*table.Table, error) {
	if !left.HasColumn(spec.LeftKey) {
		return nil, fmt.Errorf("join %s: left table %s has no key column %s", name, left.Name, spec.LeftKey)
	}
	if !right.HasColumn(spec.RightKey) {
		return nil, fmt.Errorf("join %s: right table %s has no key column %s", name, right.Name, spec.RightKey)
	}

	leftCols := left.Columns()
	rightCols := right.Columns()

	var columns []string
	for _, c := range leftCols {
		columns = append(columns, spec.LeftName(right, c))
	}
	var rightIdx []int
	for i, c := range rightCols {
		if spec.sharedKey() && c == spec.RightKey {
			continue
		}
		columns = append(columns, spec.RightName(left, c))
		rightIdx = append(rightIdx, i)
	}

	out, err := table.New(name, columns)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", name, err)
	}

	byKey := make(map[string][]int)
	for j := 0; j < right.Len(); j++ {
		k := right.Get(j, spec.RightKey)
		if k.IsNull() {
			continue
		}
		byKey[k.Key()] = append(byKey[k.Key()], j)
	}

	values := make([]table.Value, len(columns))
	for i := 0; i < left.Len(); i++ {
		lrow := left.Row(i)
		copy(values, lrow)

		var matches []int
		if k := left.Get(i, spec.LeftKey); !k.IsNull() {
			matches = byKey[k.Key()]
		}

		if len(matches) == 0 {
			for n := range rightIdx {
				values[len(lrow)+n] = table.Null()
			}
			if err := out.Append(values...); err != nil {
				return nil, err
			}
			continue
		}
		for _, j := range matches {
			rrow := right.Row(j)
			for n, ri := range rightIdx {
				values[len(lrow)+n] = rrow[ri]
			}
			if err := out.Append(values...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
