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
package join

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/cohort"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

const (
	LinkageTable    = "linkage"
	MedicationTable = "linkage_medications"

	SubjectSuffix    = "_PATIENT"
	EventSuffix      = "_ENCOUNTER"
	LinkageSuffix    = "_DIAB"
	MedicationSuffix = "_MED"
)

// LinkageSpec joins subjects (patients.ID) to their events (encounters.PATIENT).
var LinkageSpec = Spec{
	LeftKey:     table.ColID,
	RightKey:    table.ColPatient,
	LeftSuffix:  SubjectSuffix,
	RightSuffix: EventSuffix,
}

// MedicationSpec joins the linkage to medications on the shared ENCOUNTER key.
var MedicationSpec = Spec{
	LeftKey:     table.ColEncounter,
	RightKey:    table.ColEncounter,
	LeftSuffix:  LinkageSuffix,
	RightSuffix: MedicationSuffix,
}

// Restrict limits patients and encounters to the cohort's subject and event
// ids. A nil input table stays nil.
func Restrict(patients, encounters *table.Table, ix cohort.Index) (subjects, events *table.Table) {
	if patients != nil {
		subjects = patients.FilterIn(patients.Name, table.ColID, ix.SubjectIDs)
	}
	if encounters != nil {
		events = encounters.FilterIn(encounters.Name, table.ColID, ix.EventIDs)
	}
	return subjects, events
}

// LinkSubjectsToEvents left-joins the restricted subjects to the restricted
// events and materializes the ENCOUNTER column from the event id. When either
// side is empty the result is an empty table and a MissingInput warning is
// recorded. It does not validate cardinality; see ValidateLinkage.
func LinkSubjectsToEvents(subjects, events *table.Table, dc *diag.Collector) (*table.Table, error) {
	if subjects.Empty() || events.Empty() {
		dc.Warn(diag.MissingInput, LinkageTable,
			"Patient (%d row(s)) or encounter (%d row(s)) data is empty, skipping merge",
			subjects.Len(), events.Len())
		return table.MustNew(LinkageTable), nil
	}

	linkage, err := LeftJoin(LinkageTable, subjects, events, LinkageSpec)
	if err != nil {
		return nil, err
	}

	eventID := LinkageSpec.RightName(subjects, table.ColID)
	ids, err := linkage.Column(eventID)
	if err != nil {
		return nil, fmt.Errorf("linkage has no event id column: %w", err)
	}
	if err := linkage.SetColumn(table.ColEncounter, ids); err != nil {
		return nil, err
	}

	dc.Logger().Info("Linked subjects to events",
		zap.Int("subjects", subjects.Len()),
		zap.Int("events", events.Len()),
		zap.Int("rows", linkage.Len()))
	return linkage, nil
}

// ValidateLinkage enforces one linkage row per restricted event. Duplicate
// subject keys, subjects without events and events without a subject all
// break it. An empty linkage means the merge was skipped and is not checked.
func ValidateLinkage(linkage, events *table.Table, log *zap.Logger) error {
	if log == nil {
		log = zap.L()
	}
	switch {
	case linkage.Empty() && events.Len() > 0:
		log.Warn("Linkage is empty, skipping row count validation", zap.Int("encounters", events.Len()))
		return nil
	case events.Len() > 0 && linkage.Len() != events.Len():
		return &CardinalityError{
			Table:    table.Encounters,
			Expected: events.Len(),
			Got:      linkage.Len(),
			Msg:      "Join rows do not match the encounter dataset",
		}
	case events.Len() == 0 && linkage.Len() > 0:
		return &CardinalityError{
			Table:    table.Encounters,
			Expected: 0,
			Got:      linkage.Len(),
			Msg:      "Encounter data is empty but the join produced rows",
		}
	}
	log.Info("All clear: linkage has one row per encounter", zap.Int("rows", linkage.Len()))
	return nil
}

// LinkToMedications left-joins the linkage to the classified medications on
// ENCOUNTER. Either side empty yields an empty table and a warning.
func LinkToMedications(linkage, meds *table.Table, dc *diag.Collector) (*table.Table, error) {
	if linkage.Empty() || meds.Empty() {
		dc.Warn(diag.MissingInput, MedicationTable,
			"Linkage (%d row(s)) or medication (%d row(s)) data is empty, skipping merge",
			linkage.Len(), meds.Len())
		return table.MustNew(MedicationTable), nil
	}

	out, err := LeftJoin(MedicationTable, linkage, meds, MedicationSpec)
	if err != nil {
		return nil, err
	}
	dc.Logger().Info("Linked events to medications",
		zap.Int("linkage", linkage.Len()),
		zap.Int("medications", meds.Len()),
		zap.Int("rows", out.Len()))
	return out, nil
}
