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

// Package survival derives each subject's age at death or at the reference
// date, and summarizes those ages by vital status.
package survival

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

// DaysPerYear converts a day count to years.
const DaysPerYear = 365.25

// Record is one subject's censored duration. The derived fields are null
// when a date could not be parsed or the birth date is missing.
type Record struct {
	ID        string     `json:"id" yaml:"id"`
	BirthDate null.Time  `json:"birth_date" yaml:"birth_date"`
	DeathDate null.Time  `json:"death_date" yaml:"death_date"`
	Alive     null.Bool  `json:"alive" yaml:"alive"`
	EndDate   null.Time  `json:"end_date" yaml:"end_date"`
	Age       null.Float `json:"age" yaml:"age"`
}

// Known reports whether the record takes part in the statistics.
func (r Record) Known() bool { return r.Age.Valid && r.Alive.Valid }

// Group is the summary of one vital status.
type Group struct {
	Alive bool       `json:"alive" yaml:"alive"`
	Count int        `json:"count" yaml:"count"`
	Mean  null.Float `json:"mean" yaml:"mean"`
	Min   null.Float `json:"min" yaml:"min"`
	Max   null.Float `json:"max" yaml:"max"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Censor computes the derived fields of p against today. The censoring date
// is the earlier of the death date and today; comparisons are on whole days.
func Censor(p table.Patient, today time.Time) Record {
	r := Record{ID: p.ID, BirthDate: p.BirthDate, DeathDate: p.DeathDate}
	if len(p.Invalid) > 0 || !p.BirthDate.Valid {
		return r
	}

	end := Day(today)
	if p.DeathDate.Valid {
		if died := Day(p.DeathDate.Time); died.Before(end) {
			end = died
		}
	}
	days := end.Sub(Day(p.BirthDate.Time)).Hours() / 24

	r.Alive = null.BoolFrom(!p.DeathDate.Valid)
	r.EndDate = null.TimeFrom(end)
	r.Age = null.FloatFrom(days / DaysPerYear)
	return r
}

// Compute censors every row of a patients table. An absent or malformed
// table yields no records and a MissingInput warning. Rows with unparseable
// dates are kept with null derived fields and reported once.
func Compute(patients *table.Table, today time.Time, dc *diag.Collector) []Record {
	if patients == nil {
		dc.Warn(diag.MissingInput, table.Patients, "No patients table, no ages computed")
		return nil
	}
	decoded, err := table.PatientsFrom(patients)
	if err != nil {
		dc.Warn(diag.MissingInput, patients.Name, "Patients unusable, no ages computed: %v", err)
		return nil
	}

	out := make([]Record, len(decoded))
	var invalid []string
	for i, p := range decoded {
		if len(p.Invalid) > 0 {
			invalid = append(invalid, p.ID+"("+strings.Join(p.Invalid, ",")+")")
		}
		out[i] = Censor(p, today)
	}
	if len(invalid) > 0 {
		dc.Warn(diag.TypeCoercionFailure, patients.Name,
			"%d patient(s) with unparseable dates excluded from age statistics: %s",
			len(invalid), strings.Join(invalid, " "))
	}

	dc.Logger().Info("Computed ages",
		zap.Int("patients", len(out)),
		zap.Int("excluded", len(invalid)),
		zap.Time("as_of", Day(today)))
	return out
}

// Summarize groups the known records by vital status. Both groups are always
// returned, deceased first; an empty group has a zero count and null stats.
func Summarize(records []Record) []Group {
	groups := []Group{{Alive: false}, {Alive: true}}
	sums := [2]float64{}
	for _, r := range records {
		if !r.Known() {
			continue
		}
		i := 0
		if r.Alive.Bool {
			i = 1
		}
		g := &groups[i]
		age := r.Age.Float64
		if g.Count == 0 || age < g.Min.Float64 {
			g.Min = null.FloatFrom(age)
		}
		if g.Count == 0 || age > g.Max.Float64 {
			g.Max = null.FloatFrom(age)
		}
		g.Count++
		sums[i] += age
	}
	for i := range groups {
		if groups[i].Count > 0 {
			groups[i].Mean = null.FloatFrom(sums[i] / float64(groups[i].Count))
		}
	}
	return groups
}
