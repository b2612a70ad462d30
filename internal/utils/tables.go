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
package utils

import (
	"fmt"
	"sort"
	"strings"
)

// TableColumns is one table and the columns selected from it.
type TableColumns struct {
	Table   string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
}

// ParseTablesFlag parses a --tables value such as
// "patients[ID,BIRTHDATE],conditions". Table names are lower-cased and
// column names upper-cased to match loaded tables. A table without brackets
// selects all of its columns (nil slice).
func ParseTablesFlag(tablesFlag string) (map[string][]string, error) {
	tableColumns := make(map[string][]string)
	if tablesFlag == "" {
		return tableColumns, nil
	}

	// strip any whitespace
	tablesFlag = strings.ReplaceAll(tablesFlag, " ", "")

	for _, part := range SplitOutsideBrackets(tablesFlag) {
		if part == "" {
			continue
		}

		bracketStart := strings.Index(part, "[")
		if bracketStart == -1 {
			tableColumns[strings.ToLower(part)] = nil
			continue
		}
		bracketEnd := strings.Index(part, "]")
		if bracketEnd == -1 || bracketEnd < bracketStart {
			return nil, fmt.Errorf("missing closing bracket in: %s", part)
		}

		tableName := strings.ToLower(part[:bracketStart])
		if tableName == "" {
			return nil, fmt.Errorf("missing table name in: %s", part)
		}
		var columns []string
		for _, col := range strings.Split(part[bracketStart+1:bracketEnd], ",") {
			if col != "" {
				columns = append(columns, strings.ToUpper(col))
			}
		}
		tableColumns[tableName] = columns
	}

	return tableColumns, nil
}

// SplitOutsideBrackets splits s by commas that are not within brackets.
func SplitOutsideBrackets(s string) []string {
	var result []string
	var current strings.Builder
	inBrackets := false

	for _, char := range s {
		switch char {
		case '[':
			inBrackets = true
			current.WriteRune(char)
		case ']':
			inBrackets = false
			current.WriteRune(char)
		case ',':
			if inBrackets {
				current.WriteRune(char)
			} else {
				result = append(result, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterSchema applies parsed --tables filters to a table -> columns schema.
// With no filters every table is kept. Tables are returned sorted; selected
// columns keep the table's own order, and unknown names are ignored.
func FilterSchema(schema map[string][]string, filters map[string][]string) []TableColumns {
	var names []string
	for name := range schema {
		if len(filters) > 0 {
			if _, ok := filters[name]; !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TableColumns, 0, len(names))
	for _, name := range names {
		out = append(out, TableColumns{Table: name, Columns: filterColumns(schema[name], filters[name])})
	}
	return out
}

func filterColumns(all, wanted []string) []string {
	if len(wanted) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(wanted))
	for _, c := range wanted {
		allowed[c] = true
	}
	filtered := make([]string, 0, len(wanted))
	for _, c := range all {
		if allowed[c] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
