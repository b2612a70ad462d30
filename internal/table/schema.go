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
package table

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/guregu/null.v3"
)

// Logical table names.
const (
	Patients    = "patients"
	Encounters  = "encounters"
	Conditions  = "conditions"
	Medications = "medications"
)

// Canonical (upper-cased) column names.
const (
	ColID          = "ID"
	ColPatient     = "PATIENT"
	ColEncounter   = "ENCOUNTER"
	ColDescription = "DESCRIPTION"
	ColCode        = "CODE"
	ColTotalCost   = "TOTALCOST"
	ColBirthDate   = "BIRTHDATE"
	ColDeathDate   = "DEATHDATE"
	ColRxCUI       = "RXCUI"
	ColTermType    = "TERMTYPE"
	ColName        = "NAME"
)

// Schema lists the columns a logical table kind must carry.
type Schema struct {
	Kind     string
	Required []string
	// AnyOf lists alternatives of which at least one must be present.
	AnyOf []string
}

var (
	PatientSchema    = Schema{Kind: "patient", Required: []string{ColID, ColBirthDate}}
	EncounterSchema  = Schema{Kind: "encounter", Required: []string{ColID, ColPatient}}
	ConditionSchema  = Schema{Kind: "condition", Required: []string{ColPatient, ColEncounter, ColDescription}}
	MedicationSchema = Schema{Kind: "medication", Required: []string{ColEncounter, ColCode}}
	VocabularySchema = Schema{Kind: "vocabulary", Required: []string{ColTermType}, AnyOf: []string{ColRxCUI, ColCode}}
)

// SchemaError reports the columns a table lacks for its kind.
type SchemaError struct {
	Table   string
	Kind    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s is not a valid %s table: missing column(s) %s", e.Table, e.Kind, strings.Join(e.Missing, ", "))
}

// Check returns a *SchemaError when t lacks required columns. A nil table
// is missing everything.
func (s Schema) Check(t *Table) error {
	var missing []string
	name := "<absent>"
	if t != nil {
		name = t.Name
	}
	for _, c := range s.Required {
		if t == nil || !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(s.AnyOf) > 0 {
		found := false
		for _, c := range s.AnyOf {
			if t != nil && t.HasColumn(c) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(s.AnyOf, "|"))
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Table: name, Kind: s.Kind, Missing: missing}
	}
	return nil
}

// IsSchemaError reports whether err is a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// Patient is the typed view of a patients row used for censoring.
type Patient struct {
	ID        string
	BirthDate null.Time
	DeathDate null.Time

	// Invalid holds the columns that had a value which could not be parsed,
	// so callers know the record was built from incomplete data.
	Invalid []string
}

// PatientsFrom decodes every row of a patients table. Unparseable dates are
// left null and recorded in Invalid; they never fail the batch.
func PatientsFrom(t *Table) ([]Patient, error) {
	if err := PatientSchema.Check(t); err != nil {
		return nil, err
	}
	out := make([]Patient, t.Len())
	for i := 0; i < t.Len(); i++ {
		p := Patient{ID: t.Get(i, ColID).Key()}

		born, err := t.Get(i, ColBirthDate).Time()
		switch {
		case err == nil:
			p.BirthDate = null.TimeFrom(born)
		case !errors.Is(err, ErrNullValue):
			p.Invalid = append(p.Invalid, ColBirthDate)
		}

		died, err := t.Get(i, ColDeathDate).Time()
		switch {
		case err == nil:
			p.DeathDate = null.TimeFrom(died)
		case !errors.Is(err, ErrNullValue):
			p.Invalid = append(p.Invalid, ColDeathDate)
		}

		out[i] = p
	}
	return out, nil
}
