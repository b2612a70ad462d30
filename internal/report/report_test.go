package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/GoogleCloudPlatform/cohort-extractor/internal/diag"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/pipeline"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/survival"
	"github.com/GoogleCloudPlatform/cohort-extractor/internal/utils"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID: uuid.MustParse("6f1c2b8e-3d4a-4c5b-9e6f-7a8b9c0d1e2f"),
		AsOf:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Stats: pipeline.Stats{Tables: 4, ConceptCodes: 1, LinkageRows: 2, MedicationMatches: 1},
		Orphans: pipeline.Orphans{
			SubjectsWithoutEvents: []string{"p4"},
		},
		Summary: []survival.Group{
			{Alive: false, Count: 1, Mean: null.FloatFrom(50), Min: null.FloatFrom(50), Max: null.FloatFrom(50)},
			{Alive: true},
		},
		Warnings: []diag.Warning{{Kind: diag.MissingInput, Table: "medications", Msg: "Table medications was not loaded"}},
	}
}

func TestExtractionText(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "TEXT")
	require.False(t, w.Aligned)
	require.NoError(t, w.Extraction(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Run 6f1c2b8e-3d4a-4c5b-9e6f-7a8b9c0d1e2f (as of 2020-01-01)")
	assert.Contains(t, out, "--- Cohort linkage ---\nSTAGE\tCOUNT\n")
	assert.Contains(t, out, "linkage rows\t2\n")
	assert.Contains(t, out, "rows with medication\t1\n")
	assert.Contains(t, out, "subjects without events: p4\n")
	assert.Contains(t, out, "event subjects outside cohort: none\n")
	assert.Contains(t, out, "ALIVE\tCOUNT\tMEAN\tMIN\tMAX\nfalse\t1\t50.00\t50.00\t50.00\ntrue\t0\tNA\tNA\tNA\n")
	assert.Contains(t, out, "1 warning(s), see log for details")
}

func TestExtractionTextAligned(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{Out: &buf, Format: FormatText, Aligned: true}
	res := sampleResult()
	res.Orphans = pipeline.Orphans{}
	res.Warnings = nil
	require.NoError(t, w.Extraction(res))

	out := buf.String()
	assert.NotContains(t, out, "\t")
	assert.NotContains(t, out, "--- Orphans ---")
	assert.NotContains(t, out, "warning(s)")
	assert.Contains(t, out, "STAGE                   COUNT")
}

func TestExtractionJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatJSON).Extraction(sampleResult()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "6f1c2b8e-3d4a-4c5b-9e6f-7a8b9c0d1e2f", got["run_id"])
	assert.Equal(t, float64(2), got["stats"].(map[string]interface{})["linkage_rows"])
	assert.NotContains(t, got, "Linkage")

	summary := got["summary"].([]interface{})
	require.Len(t, summary, 2)
	assert.Nil(t, summary[1].(map[string]interface{})["mean"])
	assert.Len(t, got["warnings"], 1)
}

func TestSurvivalYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatYAML).Survival(sampleResult()))

	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "2020-01-01", got["as_of"])
	assert.Equal(t, 1, got["warnings"])
	assert.Len(t, got["summary"], 2)
}

func TestSurvivalText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, FormatText).Survival(sampleResult()))
	assert.Equal(t, "--- Age by survival status ---\n"+
		"ALIVE\tCOUNT\tMEAN\tMIN\tMAX\n"+
		"false\t1\t50.00\t50.00\t50.00\n"+
		"true\t0\tNA\tNA\tNA\n"+
		"\n1 warning(s), see log for details\n", buf.String())
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatText)
	require.NoError(t, w.Tables(nil))
	assert.Equal(t, "No tables found.\n", buf.String())

	buf.Reset()
	require.NoError(t, w.Tables([]utils.TableColumns{
		{Table: "encounters", Columns: []string{"ID", "PATIENT"}},
		{Table: "patients", Columns: []string{"ID"}},
	}))
	assert.Equal(t, "--- Table: encounters ---\n  Column: ID\n  Column: PATIENT\n\n--- Table: patients ---\n  Column: ID\n", buf.String())

	buf.Reset()
	require.NoError(t, NewWriter(&buf, FormatJSON).Tables([]utils.TableColumns{{Table: "patients", Columns: []string{"ID"}}}))
	assert.JSONEq(t, `[{"table":"patients","columns":["ID"]}]`, buf.String())
}

func TestVocabulary(t *testing.T) {
	var buf bytes.Buffer
	v := VocabularySummary{Path: "rx.csv", Codes: 3, TermTypes: map[string]int{"SCD": 2, "BN": 1}}
	require.NoError(t, NewWriter(&buf, FormatText).Vocabulary(v))
	assert.Equal(t, "Vocabulary rx.csv: 3 concept code(s)\n\nTERMTYPE\tROWS\nBN\t1\nSCD\t2\n", buf.String())
}

func TestUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf, "xml").Extraction(sampleResult())
	assert.ErrorContains(t, err, "unsupported format")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}
