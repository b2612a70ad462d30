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
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// ScanTable drains rows into a table named name. Driver values are mapped
// onto table cells: integers and floats become numbers, timestamps dates,
// byte slices and strings strings, NULL null.
func ScanTable(name string, rows *sql.Rows) (*table.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading column names: %w", err)
	}

	t, err := table.New(name, cols)
	if err != nil {
		return nil, err
	}
	if err := t.UpperColumns(); err != nil {
		return nil, err
	}

	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	values := make([]table.Value, len(cols))

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		for i, v := range raw {
			values[i] = ToValue(v)
		}
		if err := t.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return t, nil
}

// ToValue converts a value produced by a database/sql driver into a cell.
func ToValue(v interface{}) table.Value {
	switch x := v.(type) {
	case nil:
		return table.Null()
	case int:
		return table.Number(float64(x))
	case int32:
		return table.Number(float64(x))
	case int64:
		return table.Number(float64(x))
	case float32:
		return table.Number(float64(x))
	case float64:
		return table.Number(x)
	case bool:
		return table.String(strconv.FormatBool(x))
	case time.Time:
		return table.Date(x)
	case []byte:
		return table.String(string(x))
	case string:
		return table.String(x)
	case fmt.Stringer:
		return table.String(x.String())
	default:
		return table.String(fmt.Sprintf("%v", x))
	}
}
