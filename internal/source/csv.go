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
package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// isoLayouts are the only layouts a CSV column is typed as a date for.
// Anything looser stays a string and is parsed on demand.
var isoLayouts = []string{"2006-01-02", time.RFC3339}

// ReadCSVFile reads a comma-separated file with a header row into a table
// named name. skip leading physical lines are discarded before the header.
// Column names are upper-cased.
func ReadCSVFile(path, name string, skip int) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f, name, skip)
}

// ReadCSV is ReadCSVFile over an arbitrary reader.
func ReadCSV(r io.Reader, name string, skip int) (*table.Table, error) {
	br := bufio.NewReader(r)
	for i := 0; i < skip; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: file ended while skipping line %d of %d", name, i+1, skip)
			}
			return nil, err
		}
	}

	cr := csv.NewReader(br)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: no header row", name)
		}
		return nil, fmt.Errorf("%s: reading header: %w", name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	t, err := table.New(name, header)
	if err != nil {
		return nil, err
	}
	if err := t.UpperColumns(); err != nil {
		return nil, err
	}

	columns := make([][]table.Value, len(header))
	for c := range header {
		raw := make([]string, len(recs))
		for i, rec := range recs {
			raw[i] = rec[c]
		}
		columns[c] = inferColumn(raw)
	}

	row := make([]table.Value, len(header))
	for i := range recs {
		for c := range header {
			row[c] = columns[c][i]
		}
		if err := t.Append(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// inferColumn types a whole column at once: numeric when every non-empty
// cell parses as a number, a date when every non-empty cell is an ISO date
// or timestamp, otherwise string. Empty cells are null.
func inferColumn(raw []string) []table.Value {
	numeric, dated, seen := true, true, false
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen = true
		if numeric {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				numeric = false
			}
		}
		if dated {
			if _, ok := parseISO(s); !ok {
				dated = false
			}
		}
		if !numeric && !dated {
			break
		}
	}

	out := make([]table.Value, len(raw))
	for i, s := range raw {
		trimmed := strings.TrimSpace(s)
		switch {
		case trimmed == "":
			out[i] = table.Null()
		case seen && numeric:
			f, _ := strconv.ParseFloat(trimmed, 64)
			out[i] = table.Number(f)
		case seen && dated:
			t, _ := parseISO(trimmed)
			out[i] = table.Date(t)
		default:
			out[i] = table.String(s)
		}
	}
	return out
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
