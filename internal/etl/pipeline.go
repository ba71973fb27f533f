package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/pii-sentinel/internal/observability"
	"github.com/raaihank/pii-sentinel/internal/payload"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/record"
)

var tracer = otel.Tracer("github.com/raaihank/pii-sentinel/internal/etl")

// Pipeline redacts record batches and fans the results out to sinks
type Pipeline struct {
	classifier atomic.Pointer[privacy.Classifier]
	sinks      []Sink
	metrics    *observability.Metrics
	observer   Observer
	config     *Config
	logger     *zap.Logger
	stats      *ProcessingStats
	mu         sync.RWMutex
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithSinks registers result sinks. Each batch is offered to every sink.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) {
		for _, s := range sinks {
			if s != nil {
				p.sinks = append(p.sinks, s)
			}
		}
	}
}

// WithMetrics records per-record and per-sink metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithObserver registers a callback invoked for every redacted record
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// NewPipeline creates a new redaction pipeline
func NewPipeline(classifier *privacy.Classifier, config *Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		config: &cfg,
		logger: logger,
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}
	p.classifier.Store(classifier)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetClassifier swaps the classifier used for subsequent batches
func (p *Pipeline) SetClassifier(c *privacy.Classifier) {
	p.classifier.Store(c)
}

// Classifier returns the classifier currently in use
func (p *Pipeline) Classifier() *privacy.Classifier {
	return p.classifier.Load()
}

// ProcessFile redacts every record of inputPath into outputPath. Both formats
// are chosen by file extension.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	ctx, span := tracer.Start(ctx, "etl.process_file")
	defer span.End()
	span.SetAttributes(
		attribute.String("etl.input", inputPath),
		attribute.String("etl.output", outputPath),
	)

	p.logger.Info("Starting redaction pipeline",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	result := newProcessingResult()

	err := p.processFile(ctx, inputPath, outputPath, result)
	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int64("etl.total_records", result.TotalRecords),
		attribute.Int64("etl.pii_records", result.PIIRecords),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	p.logger.Info("Redaction pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("pii_records", result.PIIRecords),
		zap.Int64("parse_failures", result.ParseFailures),
		zap.Int64("sink_failures", result.SinkFailures),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("redact_time", result.RedactTime),
		zap.Duration("sink_time", result.SinkTime))

	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, inputPath, outputPath string, result *ProcessingResult) error {
	reader, err := OpenReader(inputPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	p.logger.Info("Detected file formats",
		zap.String("input_format", string(DetectFileFormat(inputPath))),
		zap.String("output_format", string(DetectFileFormat(outputPath))))

	writer, err := CreateWriter(outputPath)
	if err != nil {
		return err
	}

	if err := p.processBatches(ctx, reader, writer, result); err != nil {
		writer.Close()
		return err
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// processBatches reads, redacts and writes until the reader is exhausted
func (p *Pipeline) processBatches(ctx context.Context, reader RecordReader, writer RecordWriter, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, done, err := readBatch(reader, p.config.BatchSize)
		if err != nil {
			return err
		}

		if len(batch) > 0 {
			redactions, err := p.processBatch(ctx, batch, result)
			if err != nil {
				return err
			}

			for _, r := range redactions {
				if err := writer.Write(r.Output); err != nil {
					return fmt.Errorf("failed to write record %s: %w", r.Output.RecordID, err)
				}
			}

			previous := result.TotalRecords
			p.commit(ctx, redactions, result)
			p.maybeReportProgress(previous, result)
		}

		if done {
			return nil
		}
	}
}

// readBatch reads up to size records. done reports that the reader hit EOF.
func readBatch(reader RecordReader, size int) ([]record.Input, bool, error) {
	batch := make([]record.Input, 0, size)
	for len(batch) < size {
		in, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		batch = append(batch, in)
	}
	return batch, false, nil
}

// ProcessRecords redacts an in-memory batch and returns outputs in input order.
// Results are pushed to the configured sinks.
func (p *Pipeline) ProcessRecords(ctx context.Context, inputs []record.Input) ([]record.Output, error) {
	ctx, span := tracer.Start(ctx, "etl.process_records")
	defer span.End()
	span.SetAttributes(attribute.Int("etl.batch_size", len(inputs)))

	result := newProcessingResult()
	outputs := make([]record.Output, 0, len(inputs))

	for start := 0; start < len(inputs); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(inputs))

		redactions, err := p.processBatch(ctx, inputs[start:end], result)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for _, r := range redactions {
			outputs = append(outputs, r.Output)
		}
		p.commit(ctx, redactions, result)
	}

	span.SetAttributes(attribute.Int64("etl.pii_records", result.PIIRecords))
	return outputs, nil
}

// RedactRecord redacts a single record. It bypasses sinks and statistics.
func (p *Pipeline) RedactRecord(in record.Input) record.Output {
	return p.redact(p.Classifier(), in).Output
}

// processBatch redacts a batch on up to WorkerCount goroutines, keeping order
func (p *Pipeline) processBatch(ctx context.Context, batch []record.Input, result *ProcessingResult) ([]Redaction, error) {
	classifier := p.Classifier()
	redactions := make([]Redaction, len(batch))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)

	for i := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			redactions[i] = p.redact(classifier, batch[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch redaction interrupted: %w", err)
	}
	result.RedactTime += time.Since(start)

	p.logger.Debug("Batch redacted",
		zap.Int("batch_size", len(batch)),
		zap.Duration("duration", time.Since(start)))

	return redactions, nil
}

// redact parses, classifies and re-encodes one record
func (p *Pipeline) redact(classifier *privacy.Classifier, in record.Input) Redaction {
	start := time.Now()

	data, parsed := payload.ParseOrEmpty([]byte(in.DataJSON))
	if !parsed {
		p.logger.Debug("Unparseable payload replaced with empty object",
			zap.String("record_id", in.RecordID))
	}

	classified := classifier.Classify(data)

	encoded, err := classified.Redacted.MarshalJSON()
	if err != nil {
		p.logger.Warn("Failed to encode redacted payload",
			zap.String("record_id", in.RecordID),
			zap.Error(err))
		encoded = []byte("{}")
	}

	p.metrics.ObserveRecord(classified.IsPII, parsed, time.Since(start))
	for _, f := range classified.Findings {
		p.metrics.ObserveFinding(string(f.Category), string(f.Kind))
	}

	return Redaction{
		Output: record.Output{
			RecordID:         in.RecordID,
			RedactedDataJSON: string(encoded),
			IsPII:            classified.IsPII,
		},
		Findings: classified.Findings,
		Parsed:   parsed,
	}
}

// commit accounts a redacted batch, notifies the observer and feeds the sinks
func (p *Pipeline) commit(ctx context.Context, redactions []Redaction, result *ProcessingResult) {
	var piiCount, parseFailures int64
	outputs := make([]record.Output, len(redactions))

	for i, r := range redactions {
		outputs[i] = r.Output
		if r.Output.IsPII {
			piiCount++
		}
		if !r.Parsed {
			parseFailures++
		}
		for _, f := range r.Findings {
			result.Findings[string(f.Category)]++
		}
		if p.observer != nil {
			p.observer(ctx, r)
		}
	}

	sinkStart := time.Now()
	sinkFailures := p.writeSinks(ctx, outputs)
	result.SinkTime += time.Since(sinkStart)

	result.TotalRecords += int64(len(redactions))
	result.PIIRecords += piiCount
	result.ParseFailures += parseFailures
	result.SinkFailures += sinkFailures

	p.mu.Lock()
	p.stats.RecordsProcessed += int64(len(redactions))
	p.stats.PIIRecords += piiCount
	p.stats.ParseFailures += parseFailures
	p.stats.SinkFailures += sinkFailures
	p.mu.Unlock()
}

// writeSinks offers outputs to every sink with retries. Failures are logged
// and counted; they never abort processing.
func (p *Pipeline) writeSinks(ctx context.Context, outputs []record.Output) int64 {
	if len(p.sinks) == 0 || len(outputs) == 0 {
		return 0
	}

	var failures int64
	for _, sink := range p.sinks {
		attempts := 0
		err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
			attempts++
			if err := sink.WriteBatch(ctx, outputs); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			failures++
			p.metrics.ObserveSinkFailure(sink.Name())
			p.logger.Warn("Sink write failed",
				zap.String("sink", sink.Name()),
				zap.Int("records", len(outputs)),
				zap.Int("attempts", attempts),
				zap.Error(err))
			continue
		}

		p.logger.Debug("Sink batch written",
			zap.String("sink", sink.Name()),
			zap.Int("records", len(outputs)))
	}
	return failures
}

func (p *Pipeline) backoff() retry.Backoff {
	delay := p.config.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	retries := p.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewFibonacci(delay))
}

// maybeReportProgress logs whenever the running total crosses a ProgressReport boundary
func (p *Pipeline) maybeReportProgress(previous int64, result *ProcessingResult) {
	every := int64(p.config.ProgressReport)
	if every <= 0 || result.TotalRecords/every == previous/every {
		return
	}

	elapsed := time.Since(p.GetStats().StartTime)
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("pii_records", result.PIIRecords),
		zap.Int64("parse_failures", result.ParseFailures),
		zap.Float64("rate_per_sec", float64(result.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

// GetStats returns cumulative statistics since the pipeline was created
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	if elapsed := time.Since(stats.StartTime).Seconds(); elapsed > 0 {
		stats.ProcessingRate = float64(stats.RecordsProcessed) / elapsed
	}
	return &stats
}
