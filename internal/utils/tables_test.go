package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTablesFlag(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    map[string][]string
		wantErr bool
	}{
		{name: "empty", flag: "", want: map[string][]string{}},
		{name: "bare tables", flag: "Patients, conditions", want: map[string][]string{"patients": nil, "conditions": nil}},
		{
			name: "columns",
			flag: "patients[Id, birthdate],encounters",
			want: map[string][]string{"patients": {"ID", "BIRTHDATE"}, "encounters": nil},
		},
		{name: "empty brackets", flag: "patients[]", want: map[string][]string{"patients": nil}},
		{name: "trailing comma", flag: "patients,", want: map[string][]string{"patients": nil}},
		{name: "missing closing bracket", flag: "patients[ID", wantErr: true},
		{name: "reversed brackets", flag: "patients]ID[", wantErr: true},
		{name: "missing table name", flag: "[ID]", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTablesFlag(tt.flag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitOutsideBrackets(t *testing.T) {
	assert.Equal(t, []string{"a[x,y]", "b", "c[z]"}, SplitOutsideBrackets("a[x,y],b,c[z]"))
	assert.Nil(t, SplitOutsideBrackets(""))
}

func TestFilterSchema(t *testing.T) {
	schema := map[string][]string{
		"patients":   {"ID", "BIRTHDATE", "DEATHDATE"},
		"encounters": {"ID", "PATIENT"},
	}

	assert.Equal(t, []TableColumns{
		{Table: "encounters", Columns: []string{"ID", "PATIENT"}},
		{Table: "patients", Columns: []string{"ID", "BIRTHDATE", "DEATHDATE"}},
	}, FilterSchema(schema, nil))

	filters := map[string][]string{
		"patients":    {"DEATHDATE", "ID", "UNKNOWN"},
		"medications": nil,
	}
	assert.Equal(t, []TableColumns{
		{Table: "patients", Columns: []string{"ID", "DEATHDATE"}},
	}, FilterSchema(schema, filters))

	assert.Empty(t, FilterSchema(map[string][]string{}, nil))
}
