package etl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/pii-sentinel/internal/record"
)

// RecordWriter persists redacted rows in the order they are written
type RecordWriter interface {
	Write(out record.Output) error
	Close() error
}

// CreateWriter creates filePath and returns the writer matching its extension
func CreateWriter(filePath string) (RecordWriter, error) {
	switch DetectFileFormat(filePath) {
	case FormatParquet:
		return newParquetWriter(filePath)
	case FormatJSON:
		return newJSONWriter(filePath)
	default:
		return newCSVWriter(filePath)
	}
}

// FormatBool renders is_pii the way the CSV output spells it
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func newCSVWriter(filePath string) (*csvWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"record_id", "redacted_data_json", "is_pii"}); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &csvWriter{file: file, writer: writer}, nil
}

func (w *csvWriter) Write(out record.Output) error {
	return w.writer.Write([]string{out.RecordID, out.RedactedDataJSON, FormatBool(out.IsPII)})
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return w.file.Close()
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.Writer
}

func newParquetWriter(filePath string) (*parquetWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet file: %w", err)
	}

	return &parquetWriter{
		file:   file,
		writer: parquet.NewWriter(file, parquet.SchemaOf(new(record.Output))),
	}, nil
}

func (w *parquetWriter) Write(out record.Output) error {
	return w.writer.Write(&out)
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize Parquet output: %w", err)
	}
	return w.file.Close()
}

type jsonWriter struct {
	file    *os.File
	encoder *json.Encoder
}

func newJSONWriter(filePath string) (*jsonWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)
	return &jsonWriter{file: file, encoder: encoder}, nil
}

func (w *jsonWriter) Write(out record.Output) error {
	return w.encoder.Encode(out)
}

func (w *jsonWriter) Close() error {
	return w.file.Close()
}
