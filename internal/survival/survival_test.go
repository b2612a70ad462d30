package survival

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/guregu/null.v3"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCensorAlive(t *testing.T) {
	today := time.Date(2020, 1, 1, 17, 45, 0, 0, time.UTC)
	r := Censor(table.Patient{ID: "p1", BirthDate: null.TimeFrom(date(2000, 1, 1))}, today)

	require.True(t, r.Known())
	assert.True(t, r.Alive.Bool)
	assert.Equal(t, date(2020, 1, 1), r.EndDate.Time)
	assert.InDelta(t, 20.0, r.Age.Float64, 0.01)
}

func TestCensorDeceased(t *testing.T) {
	today := date(2020, 1, 1)
	r := Censor(table.Patient{
		ID:        "p2",
		BirthDate: null.TimeFrom(date(1950, 1, 1)),
		DeathDate: null.TimeFrom(time.Date(2000, 1, 1, 23, 0, 0, 0, time.UTC)),
	}, today)

	require.True(t, r.Known())
	assert.False(t, r.Alive.Bool)
	assert.Equal(t, date(2000, 1, 1), r.EndDate.Time)
	assert.InDelta(t, 50.0, r.Age.Float64, 0.01)
}

func TestCensorDeathAfterToday(t *testing.T) {
	r := Censor(table.Patient{
		BirthDate: null.TimeFrom(date(2000, 1, 1)),
		DeathDate: null.TimeFrom(date(2030, 1, 1)),
	}, date(2020, 1, 1))

	assert.False(t, r.Alive.Bool, "a recorded death date means deceased")
	assert.Equal(t, date(2020, 1, 1), r.EndDate.Time)
	assert.InDelta(t, 20.0, r.Age.Float64, 0.01)
}

func TestCensorUnknown(t *testing.T) {
	r := Censor(table.Patient{ID: "p3"}, date(2020, 1, 1))
	assert.False(t, r.Known())
	assert.False(t, r.EndDate.Valid)

	r = Censor(table.Patient{ID: "p4", BirthDate: null.TimeFrom(date(2000, 1, 1)), Invalid: []string{table.ColDeathDate}}, date(2020, 1, 1))
	assert.False(t, r.Known(), "an unparseable death date makes the status unknown")
	assert.True(t, r.BirthDate.Valid)
}

func TestCompute(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dc := diag.NewCollector(zap.New(core))

	patients := table.MustNew(table.Patients, "ID", "BIRTHDATE", "DEATHDATE")
	require.NoError(t, patients.Append(table.String("p1"), table.Date(date(2000, 1, 1)), table.Null()))
	require.NoError(t, patients.Append(table.String("p2"), table.String("1950-01-01"), table.String("2000-01-01")))
	require.NoError(t, patients.Append(table.String("p3"), table.String("1990-13-40"), table.Null()))

	records := Compute(patients, date(2020, 1, 1), dc)
	require.Len(t, records, 3)
	assert.True(t, records[0].Known())
	assert.True(t, records[1].Known())
	assert.False(t, records[2].Known())

	warnings := dc.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, diag.TypeCoercionFailure, warnings[0].Kind)
	assert.Contains(t, warnings[0].Msg, "p3(BIRTHDATE)")
	assert.Equal(t, 1, logs.FilterMessage("Computed ages").Len())
}

func TestComputeWithoutPatients(t *testing.T) {
	dc := diag.NewCollector(nil)
	assert.Nil(t, Compute(nil, date(2020, 1, 1), dc))
	assert.Nil(t, Compute(table.MustNew(table.Patients, "ID"), date(2020, 1, 1), dc))
	assert.Equal(t, 2, dc.Count(diag.MissingInput))
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Alive: null.BoolFrom(true), Age: null.FloatFrom(20)},
		{Alive: null.BoolFrom(true), Age: null.FloatFrom(40)},
		{Alive: null.BoolFrom(false), Age: null.FloatFrom(70)},
		{ID: "unknown"},
	}
	groups := Summarize(records)
	require.Len(t, groups, 2)

	assert.Equal(t, Group{
		Alive: false, Count: 1,
		Mean: null.FloatFrom(70), Min: null.FloatFrom(70), Max: null.FloatFrom(70),
	}, groups[0])
	assert.Equal(t, Group{
		Alive: true, Count: 2,
		Mean: null.FloatFrom(30), Min: null.FloatFrom(20), Max: null.FloatFrom(40),
	}, groups[1])
}

func TestSummarizeEmptyGroups(t *testing.T) {
	groups := Summarize(nil)
	require.Len(t, groups, 2)
	for i, g := range groups {
		assert.Equal(t, i == 1, g.Alive)
		assert.Zero(t, g.Count)
		assert.False(t, g.Mean.Valid)
		assert.False(t, g.Min.Valid)
		assert.False(t, g.Max.Valid)
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, date(2020, 1, 1), Day(time.Date(2020, 1, 2, 5, 0, 0, 0, loc)))
}
