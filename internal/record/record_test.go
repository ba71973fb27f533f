package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantID   string
		wantData string
	}{
		{"string id and encoded data", `{"record_id": "r-1", "data_json": "{\"a\": 1}"}`, "r-1", `{"a": 1}`},
		{"numeric id", `{"record_id": 17, "data_json": "{}"}`, "17", `{}`},
		{"inline object data", `{"record_id": 3, "data_json": {"name": "Jane"}}`, "3", `{"name": "Jane"}`},
		{"null id and missing data", `{"record_id": null}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Input
			require.NoError(t, json.Unmarshal([]byte(tt.input), &in))
			assert.Equal(t, tt.wantID, in.RecordID)
			assert.Equal(t, tt.wantData, in.DataJSON)
		})
	}
}

func TestOutputJSON(t *testing.T) {
	data, err := json.Marshal(Output{RecordID: "1", RedactedDataJSON: `{"a":"b"}`, IsPII: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"record_id":"1","redacted_data_json":"{\"a\":\"b\"}","is_pii":true}`, string(data))
}
