package etl

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/pii-sentinel/internal/record"
)

const (
	columnRecordID = "record_id"
	columnDataJSON = "data_json"
)

// RecordReader yields input rows in file order and returns io.EOF when done
type RecordReader interface {
	Read() (record.Input, error)
	Close() error
}

// OpenReader opens filePath with the reader matching its extension
func OpenReader(filePath string) (RecordReader, error) {
	switch DetectFileFormat(filePath) {
	case FormatParquet:
		return newParquetReader(filePath)
	case FormatJSON:
		return newJSONReader(filePath)
	default:
		return newCSVReader(filePath)
	}
}

// csvReader reads CSV files with a header row naming record_id and data_json
type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idIdx   int
	dataIdx int
}

func newCSVReader(filePath string) (*csvReader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, idIdx: -1, dataIdx: -1}
	for i, column := range header {
		switch strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")) {
		case columnRecordID:
			r.idIdx = i
		case columnDataJSON:
			r.dataIdx = i
		}
	}

	if r.idIdx < 0 || r.dataIdx < 0 {
		file.Close()
		return nil, fmt.Errorf("CSV header must contain %q and %q columns, got %v", columnRecordID, columnDataJSON, header)
	}

	return r, nil
}

func (r *csvReader) Read() (record.Input, error) {
	row, err := r.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return record.Input{}, io.EOF
		}
		return record.Input{}, fmt.Errorf("failed to read CSV record: %w", err)
	}

	var in record.Input
	if r.idIdx < len(row) {
		in.RecordID = row[r.idIdx]
	}
	if r.dataIdx < len(row) {
		in.DataJSON = row[r.dataIdx]
	}
	return in, nil
}

func (r *csvReader) Close() error {
	return r.file.Close()
}

// parquetReader reads Parquet files with string record_id and data_json columns
type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
}

func newParquetReader(filePath string) (*parquetReader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	return &parquetReader{file: file, reader: parquet.NewReader(file)}, nil
}

func (r *parquetReader) Read() (record.Input, error) {
	var in record.Input
	if err := r.reader.Read(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return record.Input{}, io.EOF
		}
		return record.Input{}, fmt.Errorf("failed to read Parquet record: %w", err)
	}
	return in, nil
}

func (r *parquetReader) Close() error {
	readerErr := r.reader.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return readerErr
}

// jsonReader reads one JSON object per line (or any stream of objects)
type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
}

func newJSONReader(filePath string) (*jsonReader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}

	return &jsonReader{file: file, decoder: json.NewDecoder(file)}, nil
}

func (r *jsonReader) Read() (record.Input, error) {
	var in record.Input
	if err := r.decoder.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return record.Input{}, io.EOF
		}
		return record.Input{}, fmt.Errorf("failed to read JSON record: %w", err)
	}
	return in, nil
}

func (r *jsonReader) Close() error {
	return r.file.Close()
}
