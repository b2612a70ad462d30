package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/cohort"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/config"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/join"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/source"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/table"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/vocab"
)

var asOf = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	patientsCSV = `Id,BIRTHDATE,DEATHDATE
p1,2000-01-01,
p2,1950-01-01,2000-01-01
p3,1980-01-01,
`
	encountersCSV = `Id,PATIENT
e1,p1
e2,p2
e3,p3
`
	conditionsCSV = `PATIENT,ENCOUNTER,DESCRIPTION
p1,e1,Diabetes mellitus type 2 (disorder)
p2,e2,Diabetic retinopathy
p3,e3,Prediabetes
`
	medicationsCSV = `PATIENT,ENCOUNTER,CODE,TOTALCOST
p1,e1,860975,2.5
p3,e3,860975,10
`
	vocabularyCSV = `Metformin RxNav table
Downloaded from RxNav
RXCUI,NAME,TERMTYPE
860975,metformin hydrochloride 500 MG Oral Tablet,SCD
`
)

func newTestCollector() (*diag.Collector, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return diag.NewCollector(zap.New(core)), logs
}

func writeFixtures(t *testing.T) (dataDir, vocabPath string) {
	t.Helper()
	dataDir = t.TempDir()
	files := map[string]string{
		"patients.csv":    patientsCSV,
		"encounters.csv":  encountersCSV,
		"conditions.csv":  conditionsCSV,
		"medications.csv": medicationsCSV,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644))
	}
	vocabPath = filepath.Join(t.TempDir(), "Metformin_RxNav_6809_table.csv")
	require.NoError(t, os.WriteFile(vocabPath, []byte(vocabularyCSV), 0o644))
	return dataDir, vocabPath
}

func options(vocabPath string) Options {
	return Options{
		VocabularyPath: vocabPath,
		SkipLines:      2,
		TermTypes:      config.DefaultTermTypes,
		Pattern:        cohort.DefaultPattern,
		Today:          asOf,
	}
}

func TestRunEndToEnd(t *testing.T) {
	dataDir, vocabPath := writeFixtures(t)
	dc, logs := newTestCollector()

	res, err := Run(context.Background(), source.NewDirectory(dataDir), options(vocabPath), dc)
	require.NoError(t, err)

	assert.Equal(t, asOf, res.AsOf)
	assert.Equal(t, Stats{
		Tables:            4,
		ConceptCodes:      1,
		CohortSubjects:    2,
		CohortEvents:      2,
		Subjects:          2,
		Events:            2,
		LinkageRows:       2,
		ClassifiedMeds:    2,
		MedicationRows:    2,
		MedicationMatches: 1,
	}, res.Stats)
	assert.Equal(t, []string{"p1", "p2"}, res.Cohort.Subjects())
	assert.Empty(t, res.Orphans.SubjectsWithoutEvents)
	assert.Empty(t, res.Orphans.EventSubjectsOutsideCohort)
	assert.Empty(t, res.Warnings)

	meds := res.Medications
	require.Equal(t, 2, meds.Len())
	for i := 0; i < meds.Len(); i++ {
		assert.NotEqual(t, "p3", meds.Get(i, "PATIENT_DIAB").Key(), "subjects outside the cohort never reach the output")
		switch meds.Get(i, table.ColEncounter).Key() {
		case "e1":
			assert.Equal(t, "860975", meds.Get(i, table.ColCode).Key())
			assert.Equal(t, table.Number(2), meds.Get(i, "TOTALCOST_ROUNDED"))
		case "e2":
			assert.True(t, meds.Get(i, table.ColCode).IsNull())
			assert.True(t, meds.Get(i, "PATIENT_MED").IsNull())
		default:
			t.Fatalf("unexpected encounter %s", meds.Get(i, table.ColEncounter))
		}
	}

	require.Len(t, res.Summary, 2)
	assert.False(t, res.Summary[0].Alive)
	assert.Equal(t, 1, res.Summary[0].Count)
	assert.InDelta(t, 50.0, res.Summary[0].Mean.Float64, 0.01)
	assert.True(t, res.Summary[1].Alive)
	assert.Equal(t, 2, res.Summary[1].Count)
	assert.InDelta(t, 20.0, res.Summary[1].Min.Float64, 0.01)

	assert.Equal(t, 1, logs.FilterMessage("All clear: linkage has one row per encounter").Len())
	finished := logs.FilterMessage("Extraction finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, res.RunID.String(), finished[0].ContextMap()["run_id"])
}

func TestRunEmptyVocabulary(t *testing.T) {
	dataDir, _ := writeFixtures(t)
	dc, _ := newTestCollector()

	res, err := Run(context.Background(), source.NewDirectory(dataDir), options(filepath.Join(dataDir, "absent.csv")), dc)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Stats.ConceptCodes)
	assert.Equal(t, 2, res.Stats.LinkageRows, "the linkage does not depend on the vocabulary")
	assert.Equal(t, 0, res.Stats.ClassifiedMeds)
	assert.True(t, res.Medications.Empty())
	assert.Equal(t, 2, dc.Count(diag.MissingInput), "missing vocabulary file and skipped medication merge")
}

func TestRunMissingDataDirectory(t *testing.T) {
	_, vocabPath := writeFixtures(t)
	dc, _ := newTestCollector()

	res, err := Run(context.Background(), source.NewDirectory(filepath.Join(t.TempDir(), "absent")), options(vocabPath), dc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Tables)
	assert.True(t, res.Linkage.Empty())
	assert.Equal(t, 0, res.Summary[0].Count+res.Summary[1].Count)
	assert.NotZero(t, dc.Count(diag.MissingInput))
}

func registry(t *testing.T, dataDir string) *table.Registry {
	t.Helper()
	reg, err := source.NewDirectory(dataDir).Load(context.Background(), nil)
	require.NoError(t, err)
	return reg
}

func TestExtractCardinalityFailure(t *testing.T) {
	dataDir, vocabPath := writeFixtures(t)
	patients := patientsCSV + "p1,2001-01-01,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "patients.csv"), []byte(patients), 0o644))

	dc, _ := newTestCollector()
	vt := vocab.Load(vocabPath, 2, config.DefaultTermTypes, dc)
	_, err := Extract(registry(t, dataDir), vt, options(vocabPath), dc)
	require.Error(t, err)
	assert.True(t, join.IsCardinalityError(err))
}

func TestExtractOrphans(t *testing.T) {
	dataDir, vocabPath := writeFixtures(t)
	conditions := conditionsCSV + "p4,e2,Diabetes\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "conditions.csv"), []byte(conditions), 0o644))
	encounters := encountersCSV + "e4,p1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "encounters.csv"), []byte(encounters), 0o644))

	dc, _ := newTestCollector()
	res, err := Extract(registry(t, dataDir), vocab.Placeholder(), options(vocabPath), dc)
	require.NoError(t, err)

	assert.Equal(t, []string{"p4"}, res.Orphans.SubjectsWithoutEvents)
	assert.Empty(t, res.Orphans.EventSubjectsOutsideCohort)
	assert.Equal(t, 2, res.Stats.LinkageRows)
}

func TestExtractDegradedInputs(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string // empty removes the file
		deceased int
		alive    int
	}{
		{name: "no patients", file: "patients.csv"},
		{name: "no cohort patients", file: "patients.csv", content: "Id,BIRTHDATE,DEATHDATE\np9,1990-01-01,\n", alive: 1},
		{name: "no encounters", file: "encounters.csv", deceased: 1, alive: 2},
		{name: "no conditions", file: "conditions.csv", deceased: 1, alive: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir, vocabPath := writeFixtures(t)
			path := filepath.Join(dataDir, tt.file)
			if tt.content == "" {
				require.NoError(t, os.Remove(path))
			} else {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}

			dc, _ := newTestCollector()
			res, err := Run(context.Background(), source.NewDirectory(dataDir), options(vocabPath), dc)
			require.NoError(t, err)

			assert.True(t, res.Linkage.Empty())
			assert.True(t, res.Medications.Empty())
			assert.Equal(t, 0, res.Stats.MedicationMatches)
			assert.NotZero(t, dc.Count(diag.MissingInput))

			require.Len(t, res.Summary, 2)
			assert.Equal(t, tt.deceased, res.Summary[0].Count)
			assert.Equal(t, tt.alive, res.Summary[1].Count)
		})
	}
}

func TestExtractInvalidPattern(t *testing.T) {
	opts := options("")
	opts.Pattern = "diab("
	_, err := Extract(table.NewRegistry(), vocab.Placeholder(), opts, nil)
	assert.ErrorContains(t, err, "invalid cohort pattern")
}

func TestSurvival(t *testing.T) {
	dataDir, _ := writeFixtures(t)
	res := Survival(registry(t, dataDir), Options{Today: asOf}, nil)

	assert.Equal(t, 4, res.Stats.Tables)
	require.Len(t, res.Ages, 3)
	assert.Equal(t, 1, res.Summary[0].Count)
	assert.Equal(t, 2, res.Summary[1].Count)
	assert.NotEqual(t, res.RunID.String(), Survival(table.NewRegistry(), Options{}, nil).RunID.String())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.AsOf = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.Vocabulary.Path, opts.VocabularyPath)
	assert.Equal(t, 2, opts.SkipLines)
	assert.Equal(t, `\bdiab`, opts.Pattern)
	assert.Equal(t, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), opts.Today)
}
