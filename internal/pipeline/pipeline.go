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

// Package pipeline wires the extraction stages together: cohort selection,
// vocabulary classification, the two joins and the age summary.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/cohort"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/join"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/medication"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/source"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/survival"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/vocab"
)

// Options are the computation settings of a run.
type Options struct {
	VocabularyPath string
	SkipLines      int
	TermTypes      []string
	Pattern        string
	Today          time.Time
}

// OptionsFromConfig extracts the run options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		VocabularyPath: cfg.Vocabulary.Path,
		SkipLines:      cfg.Vocabulary.SkipLines,
		TermTypes:      cfg.Vocabulary.TermTypes,
		Pattern:        cfg.Cohort.Pattern,
		Today:          cfg.Today(),
	}
}

// Orphans are the identifiers that fall between the condition cohort and
// the encounter table.
type Orphans struct {
	// SubjectsWithoutEvents are cohort subjects with no restricted encounter.
	SubjectsWithoutEvents []string `json:"subjects_without_events" yaml:"subjects_without_events"`
	// EventSubjectsOutsideCohort are subjects referenced by a restricted
	// encounter but absent from the condition cohort.
	EventSubjectsOutsideCohort []string `json:"event_subjects_outside_cohort" yaml:"event_subjects_outside_cohort"`
}

// Stats are the row counts of each stage.
type Stats struct {
	Tables            int `json:"tables" yaml:"tables"`
	ConceptCodes      int `json:"concept_codes" yaml:"concept_codes"`
	CohortSubjects    int `json:"cohort_subjects" yaml:"cohort_subjects"`
	CohortEvents      int `json:"cohort_events" yaml:"cohort_events"`
	Subjects          int `json:"subjects" yaml:"subjects"`
	Events            int `json:"events" yaml:"events"`
	LinkageRows       int `json:"linkage_rows" yaml:"linkage_rows"`
	ClassifiedMeds    int `json:"classified_medications" yaml:"classified_medications"`
	MedicationRows    int `json:"medication_rows" yaml:"medication_rows"`
	MedicationMatches int `json:"medication_matches" yaml:"medication_matches"`
}

// Result is everything a run produces.
type Result struct {
	RunID    uuid.UUID        `json:"run_id" yaml:"run_id"`
	AsOf     time.Time        `json:"as_of" yaml:"as_of"`
	Stats    Stats            `json:"stats" yaml:"stats"`
	Orphans  Orphans          `json:"orphans" yaml:"orphans"`
	Summary  []survival.Group `json:"summary" yaml:"summary"`
	Warnings []diag.Warning   `json:"warnings" yaml:"warnings"`

	Codes       vocab.ConceptCodeSet `json:"-" yaml:"-"`
	Cohort      cohort.Index         `json:"-" yaml:"-"`
	Linkage     *table.Table         `json:"-" yaml:"-"`
	Medications *table.Table         `json:"-" yaml:"-"`
	Ages        []survival.Record    `json:"-" yaml:"-"`
}

// Run loads the source and the vocabulary, then runs Extract.
func Run(ctx context.Context, src source.Source, opts Options, dc *diag.Collector) (*Result, error) {
	reg, err := src.Load(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	vt := vocab.Load(opts.VocabularyPath, opts.SkipLines, opts.TermTypes, dc)
	return Extract(reg, vt, opts, dc)
}

// Extract runs every stage over an already loaded registry. The only error
// it returns besides an invalid pattern is a *join.CardinalityError.
func Extract(reg *table.Registry, vocabulary *table.Table, opts Options, dc *diag.Collector) (*Result, error) {
	res := newResult(opts)
	opts.Today = res.AsOf
	log := dc.Logger().With(zap.String("run_id", res.RunID.String()))
	log.Info("Starting extraction", zap.Int("tables", reg.Len()), zap.Time("as_of", res.AsOf))

	sel, err := cohort.NewSelector(opts.Pattern)
	if err != nil {
		return nil, err
	}

	res.Codes = vocab.Codes(vocabulary, dc)
	res.Stats.Tables = reg.Len()
	res.Stats.ConceptCodes = res.Codes.Len()

	conditions := lookup(reg, table.Conditions, dc)
	patients := lookup(reg, table.Patients, dc)
	encounters := lookup(reg, table.Encounters, dc)
	meds := lookup(reg, table.Medications, dc)

	res.Cohort = sel.Select(conditions, dc)
	res.Stats.CohortSubjects = len(res.Cohort.SubjectIDs)
	res.Stats.CohortEvents = len(res.Cohort.EventIDs)

	subjects, events := join.Restrict(patients, encounters, res.Cohort)
	res.Stats.Subjects = subjects.Len()
	res.Stats.Events = events.Len()
	res.Orphans = findOrphans(res.Cohort, events)
	log.Debug("Cohort orphans",
		zap.Strings("subjects_without_events", res.Orphans.SubjectsWithoutEvents),
		zap.Strings("event_subjects_outside_cohort", res.Orphans.EventSubjectsOutsideCohort))

	linkage, err := join.LinkSubjectsToEvents(subjects, events, dc)
	if err != nil {
		return nil, err
	}
	if err := join.ValidateLinkage(linkage, events, log); err != nil {
		return nil, err
	}
	res.Linkage = linkage
	res.Stats.LinkageRows = linkage.Len()

	classified := medication.Classify(meds, res.Codes, dc)
	res.Stats.ClassifiedMeds = classified.Len()

	linkedMeds, err := join.LinkToMedications(linkage, classified, dc)
	if err != nil {
		return nil, err
	}
	res.Medications = linkedMeds
	res.Stats.MedicationRows = linkedMeds.Len()
	res.Stats.MedicationMatches = countMatches(linkedMeds, linkage)

	res.Ages = survival.Compute(patients, opts.Today, dc)
	res.Summary = survival.Summarize(res.Ages)

	res.Warnings = dc.Warnings()
	log.Info("Extraction finished",
		zap.Int("linkage_rows", res.Stats.LinkageRows),
		zap.Int("medication_matches", res.Stats.MedicationMatches),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// Survival runs only the age branch over the patients table of reg.
func Survival(reg *table.Registry, opts Options, dc *diag.Collector) *Result {
	res := newResult(opts)
	opts.Today = res.AsOf
	res.Stats.Tables = reg.Len()
	patients := lookup(reg, table.Patients, dc)
	res.Ages = survival.Compute(patients, opts.Today, dc)
	res.Summary = survival.Summarize(res.Ages)
	res.Warnings = dc.Warnings()
	return res
}

func newResult(opts Options) *Result {
	today := opts.Today
	if today.IsZero() {
		today = time.Now()
	}
	return &Result{RunID: uuid.New(), AsOf: survival.Day(today)}
}

// lookup returns nil with a MissingInput warning when name is not loaded.
func lookup(reg *table.Registry, name string, dc *diag.Collector) *table.Table {
	if reg != nil {
		if t, ok := reg.Lookup(name); ok {
			return t
		}
	}
	dc.Warn(diag.MissingInput, name, "Table %s was not loaded", name)
	return nil
}

func findOrphans(ix cohort.Index, events *table.Table) Orphans {
	eventSubjects := make(map[string]struct{})
	if events != nil {
		eventSubjects = events.Keys(table.ColPatient)
	}
	return Orphans{
		SubjectsWithoutEvents:      cohort.Difference(ix.SubjectIDs, eventSubjects),
		EventSubjectsOutsideCohort: cohort.Difference(eventSubjects, ix.SubjectIDs),
	}
}

// countMatches counts the rows of the medication join that found a
// medication, detected by a non-null medication CODE.
func countMatches(linkedMeds, linkage *table.Table) int {
	if linkedMeds.Empty() {
		return 0
	}
	code := join.MedicationSpec.RightName(linkage, table.ColCode)
	n := 0
	for i := 0; i < linkedMeds.Len(); i++ {
		if !linkedMeds.Get(i, code).IsNull() {
			n++
		}
	}
	return n
}
