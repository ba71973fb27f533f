package etl

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/record"
)

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords  int64            `json:"total_records"`
	PIIRecords    int64            `json:"pii_records"`
	ParseFailures int64            `json:"parse_failures"`
	SinkFailures  int64            `json:"sink_failures"`
	Findings      map[string]int64 `json:"findings"`
	Duration      time.Duration    `json:"duration"`
	RedactTime    time.Duration    `json:"redact_time"`
	SinkTime      time.Duration    `json:"sink_time"`
}

func newProcessingResult() *ProcessingResult {
	return &ProcessingResult{Findings: make(map[string]int64)}
}

// Config contains ETL pipeline configuration
type Config struct {
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int           `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`         // 3
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`         // 500ms
	ProgressReport int           `yaml:"progress_report" mapstructure:"progress_report"` // 10000
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      1000,
		WorkerCount:    4,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		ProgressReport: 10000,
	}
}

// ProcessingStats tracks cumulative statistics across runs and requests
type ProcessingStats struct {
	StartTime        time.Time `json:"start_time"`
	RecordsProcessed int64     `json:"records_processed"`
	PIIRecords       int64     `json:"pii_records"`
	ParseFailures    int64     `json:"parse_failures"`
	SinkFailures     int64     `json:"sink_failures"`
	ProcessingRate   float64   `json:"processing_rate"` // records per second
}

// Redaction is everything learned while redacting one record
type Redaction struct {
	Output   record.Output
	Findings []privacy.Finding
	Parsed   bool // false when data_json was replaced by {}
}

// Observer is called once per redacted record, in input order. ctx is the
// context of the batch being committed.
type Observer func(ctx context.Context, r Redaction)

// Sink receives redacted batches in input order
type Sink interface {
	Name() string
	WriteBatch(ctx context.Context, outputs []record.Output) error
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}

// OutputFileName returns the fixed output name for a format
func OutputFileName(format FileFormat) string {
	switch format {
	case FormatParquet:
		return "redacted_output.parquet"
	case FormatJSON:
		return "redacted_output.jsonl"
	default:
		return "redacted_output.csv"
	}
}
