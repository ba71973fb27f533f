package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `record_id,data_json
1,"{""phone"": ""9876543210"", ""city"": ""Pune""}"
2,"{""name"": ""Priya Sharma"", ""email"": ""priya@example.com""}"
3,not json
`

func writeInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"too many arguments", []string{"a.csv", "b.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)

			assert.Equal(t, 1, code)
			assert.Equal(t, usage+"\n", stdout.String())
		})
	}
}

func TestRunCSV(t *testing.T) {
	input := writeInput(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{input, "--workers", "2", "--batch-size", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "Redacted output written to redacted_output.csv\n", stdout.String())

	data, err := os.ReadFile("redacted_output.csv")
	require.NoError(t, err)

	expected := `record_id,redacted_data_json,is_pii
1,"{""phone"": ""98XXXXXX10"", ""city"": ""Pune""}",True
2,"{""name"": ""PXXX SXXX"", ""email"": ""prXXX@example.com""}",True
3,{},False
`
	assert.Equal(t, expected, string(data))
}

func TestRunFormats(t *testing.T) {
	input := writeInput(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--format", "jsonl", input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.FileExists(t, "redacted_output.jsonl")

	stdout.Reset()
	code = run(context.Background(), []string{"--format", "parquet", input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.FileExists(t, "redacted_output.parquet")

	stderr.Reset()
	code = run(context.Background(), []string{"--format", "xml", input}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unsupported output format")
}

func TestRunMissingInput(t *testing.T) {
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"missing.csv"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
	assert.Empty(t, stdout.String())
}
