package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/cohort"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

func patients(t *testing.T, ids ...string) *table.Table {
	t.Helper()
	rows := make([][]table.Value, len(ids))
	for i, id := range ids {
		rows[i] = []table.Value{s(id), s("1980-01-01")}
	}
	return build(t, table.Patients, []string{"ID", "BIRTHDATE"}, rows...)
}

// encounters takes id/patient pairs.
func encounters(t *testing.T, pairs ...string) *table.Table {
	t.Helper()
	var rows [][]table.Value
	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, []table.Value{s(pairs[i]), s(pairs[i+1])})
	}
	return build(t, table.Encounters, []string{"ID", "PATIENT"}, rows...)
}

func TestRestrict(t *testing.T) {
	ix := cohort.NewIndex()
	ix.SubjectIDs["p1"] = struct{}{}
	ix.EventIDs["e1"] = struct{}{}
	ix.EventIDs["e9"] = struct{}{}

	subjects, events := Restrict(patients(t, "p1", "p2"), encounters(t, "e1", "p1", "e2", "p2"), ix)
	assert.Equal(t, 1, subjects.Len())
	assert.Equal(t, 1, events.Len())
	assert.Equal(t, table.Patients, subjects.Name)

	subjects, events = Restrict(nil, nil, ix)
	assert.Nil(t, subjects)
	assert.Nil(t, events)
}

func TestLinkSubjectsToEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dc := diag.NewCollector(zap.New(core))

	events := encounters(t, "e1", "p1", "e2", "p1", "e3", "p2")
	linkage, err := LinkSubjectsToEvents(patients(t, "p1", "p2"), events, dc)
	require.NoError(t, err)

	assert.Equal(t, []string{"ID_PATIENT", "BIRTHDATE", "ID_ENCOUNTER", "PATIENT", "ENCOUNTER"}, linkage.Columns())
	require.Equal(t, 3, linkage.Len())
	for i := 0; i < linkage.Len(); i++ {
		assert.Equal(t, linkage.Get(i, "ID_ENCOUNTER"), linkage.Get(i, "ENCOUNTER"))
		assert.Equal(t, linkage.Get(i, "ID_PATIENT").Key(), linkage.Get(i, "PATIENT").Key())
	}
	assert.Empty(t, dc.Warnings())

	require.NoError(t, ValidateLinkage(linkage, events, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("All clear: linkage has one row per encounter").Len())
}

func TestLinkSubjectsToEventsEmptySide(t *testing.T) {
	dc := diag.NewCollector(nil)

	linkage, err := LinkSubjectsToEvents(patients(t), encounters(t, "e1", "p1"), dc)
	require.NoError(t, err)
	assert.True(t, linkage.Empty())
	assert.Empty(t, linkage.Columns())
	assert.Equal(t, LinkageTable, linkage.Name)

	linkage, err = LinkSubjectsToEvents(patients(t, "p1"), nil, dc)
	require.NoError(t, err)
	assert.True(t, linkage.Empty())
	assert.Equal(t, 2, dc.Count(diag.MissingInput))

	assert.NoError(t, ValidateLinkage(linkage, nil, nil), "empty linkage over empty events is fine")
}

func TestValidateLinkageCardinality(t *testing.T) {
	tests := []struct {
		name     string
		subjects *table.Table
		events   *table.Table
		expected int
		got      int
	}{
		{
			name:     "duplicate subject rows",
			subjects: patients(t, "p1", "p1"),
			events:   encounters(t, "e1", "p1"),
			expected: 1,
			got:      2,
		},
		{
			name:     "subject without events",
			subjects: patients(t, "p1", "p2"),
			events:   encounters(t, "e1", "p1"),
			expected: 1,
			got:      2,
		},
		{
			name:     "event without subject",
			subjects: patients(t, "p1"),
			events:   encounters(t, "e1", "p1", "e2", "p9"),
			expected: 2,
			got:      1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linkage, err := LinkSubjectsToEvents(tt.subjects, tt.events, nil)
			require.NoError(t, err)

			err = ValidateLinkage(linkage, tt.events, nil)
			require.Error(t, err)
			assert.True(t, IsCardinalityError(err))

			var ce *CardinalityError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, table.Encounters, ce.Table)
			assert.Equal(t, tt.expected, ce.Expected)
			assert.Equal(t, tt.got, ce.Got)
			assert.Equal(t, "Join rows do not match the encounter dataset", ce.Msg)
		})
	}
}

func TestValidateLinkageSkippedMerge(t *testing.T) {
	events := encounters(t, "e1", "p1", "e2", "p2")
	tests := []struct {
		name     string
		subjects *table.Table
	}{
		{name: "no patients table", subjects: nil},
		{name: "no cohort patients", subjects: patients(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := diag.NewCollector(nil)
			linkage, err := LinkSubjectsToEvents(tt.subjects, events, dc)
			require.NoError(t, err)
			assert.Equal(t, 1, dc.Count(diag.MissingInput))

			assert.NoError(t, ValidateLinkage(linkage, events, nil))
		})
	}
}

func TestValidateLinkageRowsWithoutEvents(t *testing.T) {
	linkage := build(t, LinkageTable, []string{"ENCOUNTER"}, []table.Value{s("e1")})
	err := ValidateLinkage(linkage, table.MustNew(table.Encounters, "ID", "PATIENT"), nil)

	var ce *CardinalityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Expected)
	assert.Equal(t, "Encounter data is empty but the join produced rows: encounters has 0 row(s), linkage has 1", err.Error())
	assert.False(t, IsCardinalityError(nil))
}

func TestLinkToMedications(t *testing.T) {
	linkage, err := LinkSubjectsToEvents(patients(t, "p1"), encounters(t, "e1", "p1", "e2", "p1"), nil)
	require.NoError(t, err)
	meds := build(t, "medications_classified", []string{"PATIENT", "ENCOUNTER", "CODE"},
		[]table.Value{s("p1"), s("e1"), table.Number(860975)},
		[]table.Value{s("p1"), s("e1"), table.Number(861004)},
	)

	out, err := LinkToMedications(linkage, meds, nil)
	require.NoError(t, err)
	assert.Equal(t, MedicationTable, out.Name)
	require.Equal(t, 3, out.Len(), "two medications on e1 plus unmatched e2")
	assert.True(t, out.HasColumn("PATIENT_DIAB"))
	assert.True(t, out.HasColumn("PATIENT_MED"))
	assert.True(t, out.Get(2, "CODE").IsNull())

	dc := diag.NewCollector(nil)
	out, err = LinkToMedications(linkage, table.MustNew("medications_classified", "ENCOUNTER", "CODE"), dc)
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Equal(t, 1, dc.Count(diag.MissingInput))
}
