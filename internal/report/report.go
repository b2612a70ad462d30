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

// Package report renders pipeline results as text, JSON or YAML.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/pipeline"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/survival"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/utils"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Writer renders documents in one format. Aligned controls whether text
// output is padded into columns or written tab separated.
type Writer struct {
	Out     io.Writer
	Format  string
	Aligned bool
}

// NewWriter returns a Writer for out. Text output is aligned only when out
// is a terminal.
func NewWriter(out io.Writer, format string) *Writer {
	return &Writer{Out: out, Format: strings.ToLower(format), Aligned: IsTerminal(out)}
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Extraction renders the full result of an extract run.
func (w *Writer) Extraction(res *pipeline.Result) error {
	if w.Format != FormatText {
		return w.encode(res)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Run %s (as of %s)\n\n", res.RunID, res.AsOf.Format("2006-01-02"))

	buf.WriteString("--- Cohort linkage ---\n")
	w.table(&buf, []string{"STAGE", "COUNT"}, [][]string{
		{"tables loaded", strconv.Itoa(res.Stats.Tables)},
		{"concept codes", strconv.Itoa(res.Stats.ConceptCodes)},
		{"cohort subjects", strconv.Itoa(res.Stats.CohortSubjects)},
		{"cohort events", strconv.Itoa(res.Stats.CohortEvents)},
		{"restricted subjects", strconv.Itoa(res.Stats.Subjects)},
		{"restricted events", strconv.Itoa(res.Stats.Events)},
		{"linkage rows", strconv.Itoa(res.Stats.LinkageRows)},
		{"classified medications", strconv.Itoa(res.Stats.ClassifiedMeds)},
		{"medication join rows", strconv.Itoa(res.Stats.MedicationRows)},
		{"rows with medication", strconv.Itoa(res.Stats.MedicationMatches)},
	})

	if n := len(res.Orphans.SubjectsWithoutEvents) + len(res.Orphans.EventSubjectsOutsideCohort); n > 0 {
		buf.WriteString("\n--- Orphans ---\n")
		fmt.Fprintf(&buf, "  subjects without events: %s\n", joinOrNone(res.Orphans.SubjectsWithoutEvents))
		fmt.Fprintf(&buf, "  event subjects outside cohort: %s\n", joinOrNone(res.Orphans.EventSubjectsOutsideCohort))
	}

	buf.WriteString("\n")
	w.summary(&buf, res.Summary)
	w.warnings(&buf, res)

	_, err := w.Out.Write(buf.Bytes())
	return err
}

// Survival renders only the age summary.
func (w *Writer) Survival(res *pipeline.Result) error {
	if w.Format != FormatText {
		return w.encode(struct {
			RunID    string           `json:"run_id" yaml:"run_id"`
			AsOf     string           `json:"as_of" yaml:"as_of"`
			Summary  []survival.Group `json:"summary" yaml:"summary"`
			Warnings int              `json:"warnings" yaml:"warnings"`
		}{res.RunID.String(), res.AsOf.Format("2006-01-02"), res.Summary, len(res.Warnings)})
	}
	var buf bytes.Buffer
	w.summary(&buf, res.Summary)
	w.warnings(&buf, res)
	_, err := w.Out.Write(buf.Bytes())
	return err
}

// Tables renders a table -> columns listing.
func (w *Writer) Tables(tables []utils.TableColumns) error {
	if w.Format != FormatText {
		return w.encode(tables)
	}
	if len(tables) == 0 {
		_, err := io.WriteString(w.Out, "No tables found.\n")
		return err
	}
	var buf bytes.Buffer
	for i, t := range tables {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "--- Table: %s ---\n", t.Table)
		for _, c := range t.Columns {
			fmt.Fprintf(&buf, "  Column: %s\n", c)
		}
	}
	_, err := w.Out.Write(buf.Bytes())
	return err
}

// VocabularySummary is what the vocabulary command reports.
type VocabularySummary struct {
	Path      string         `json:"path" yaml:"path"`
	Codes     int            `json:"codes" yaml:"codes"`
	TermTypes map[string]int `json:"term_types" yaml:"term_types"`
}

// Vocabulary renders the concept code set size and term type breakdown.
func (w *Writer) Vocabulary(v VocabularySummary) error {
	if w.Format != FormatText {
		return w.encode(v)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Vocabulary %s: %d concept code(s)\n\n", v.Path, v.Codes)
	types := make([]string, 0, len(v.TermTypes))
	for tt := range v.TermTypes {
		types = append(types, tt)
	}
	sort.Strings(types)
	rows := make([][]string, 0, len(types))
	for _, tt := range types {
		rows = append(rows, []string{tt, strconv.Itoa(v.TermTypes[tt])})
	}
	w.table(&buf, []string{"TERMTYPE", "ROWS"}, rows)
	_, err := w.Out.Write(buf.Bytes())
	return err
}

func (w *Writer) encode(v interface{}) error {
	switch w.Format {
	case FormatJSON:
		enc := json.NewEncoder(w.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %q", w.Format)
	}
}

func (w *Writer) summary(buf *bytes.Buffer, groups []survival.Group) {
	buf.WriteString("--- Age by survival status ---\n")
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			strconv.FormatBool(g.Alive),
			strconv.Itoa(g.Count),
			formatFloat(g.Mean),
			formatFloat(g.Min),
			formatFloat(g.Max),
		})
	}
	w.table(buf, []string{"ALIVE", "COUNT", "MEAN", "MIN", "MAX"}, rows)
}

func (w *Writer) warnings(buf *bytes.Buffer, res *pipeline.Result) {
	if len(res.Warnings) == 0 {
		return
	}
	fmt.Fprintf(buf, "\n%d warning(s), see log for details\n", len(res.Warnings))
}

// table writes header and rows, padded when w.Aligned, else tab separated.
func (w *Writer) table(buf *bytes.Buffer, header []string, rows [][]string) {
	if !w.Aligned {
		buf.WriteString(strings.Join(header, "\t") + "\n")
		for _, r := range rows {
			buf.WriteString(strings.Join(r, "\t") + "\n")
		}
		return
	}
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}

func formatFloat(f null.Float) string {
	if !f.Valid {
		return table.NullMarker
	}
	return strconv.FormatFloat(f.Float64, 'f', 2, 64)
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
