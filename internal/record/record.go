// Package record defines the tabular row shapes exchanged between the
// readers, the redaction pipeline, the HTTP API and the result sinks.
package record

import (
	"encoding/json"
	"strings"
)

// Input is one source row
type Input struct {
	RecordID string `json:"record_id" parquet:"record_id"`
	DataJSON string `json:"data_json" parquet:"data_json"`
}

// Output is one redacted row
type Output struct {
	RecordID         string `json:"record_id" parquet:"record_id" db:"record_id"`
	RedactedDataJSON string `json:"redacted_data_json" parquet:"redacted_data_json" db:"redacted_data_json"`
	IsPII            bool   `json:"is_pii" parquet:"is_pii" db:"is_pii"`
}

// UnmarshalJSON accepts record_id as any JSON scalar and data_json either as
// an encoded string or as an inline object.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw struct {
		RecordID json.RawMessage `json:"record_id"`
		DataJSON json.RawMessage `json:"data_json"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	in.RecordID = scalarString(raw.RecordID)

	data = raw.DataJSON
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		in.DataJSON = s
		return nil
	}
	in.DataJSON = string(data)
	return nil
}

// scalarString renders a raw JSON scalar as plain text: strings lose their
// quotes, numbers and booleans keep their literal form, null becomes "".
func scalarString(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal([]byte(text), &s); err == nil {
			return s
		}
	}
	return text
}
