package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/raaihank/pii-sentinel/internal/record"
)

// rows per INSERT statement; keeps both drivers well under their bind limits
const insertChunkSize = 500

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS redaction_results (
		record_id          TEXT PRIMARY KEY,
		redacted_data_json TEXT NOT NULL,
		is_pii             BOOLEAN NOT NULL,
		updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_redaction_results_is_pii ON redaction_results (is_pii)`,
}

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store persists redaction results in PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// NewStore opens the database, checks connectivity and applies the schema
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	driver := strings.ToLower(config.Driver)
	dsn := config.DSN

	switch driver {
	case DriverPostgres:
	case DriverSQLite, "sqlite3":
		driver = DriverSQLite
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", config.Driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		driver: driver,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Result store initialized successfully",
		zap.String("driver", driver),
		zap.String("dsn", maskDatabaseURL(config.DSN)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// Name identifies the store in sink logs and metrics
func (s *Store) Name() string {
	return s.driver
}

// Migrate creates the results table when it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// WriteBatch upserts outputs keyed by record ID. Later rows win when a batch
// repeats an ID.
func (s *Store) WriteBatch(ctx context.Context, outputs []record.Output) error {
	_, err := s.BatchUpsert(ctx, outputs)
	return err
}

// BatchUpsert upserts outputs in chunks and reports how many rows were written
func (s *Store) BatchUpsert(ctx context.Context, outputs []record.Output) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{}

	rows := dedupeByRecordID(outputs)
	if len(rows) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for begin := 0; begin < len(rows); begin += insertChunkSize {
		chunk := rows[begin:min(begin+insertChunkSize, len(rows))]

		valueStrings := make([]string, 0, len(chunk))
		valueArgs := make([]interface{}, 0, len(chunk)*3)
		for _, out := range chunk {
			valueStrings = append(valueStrings, "(?, ?, ?)")
			valueArgs = append(valueArgs, out.RecordID, out.RedactedDataJSON, out.IsPII)
		}

		query := fmt.Sprintf(`
			INSERT INTO redaction_results (record_id, redacted_data_json, is_pii)
			VALUES %s
			ON CONFLICT (record_id) DO UPDATE SET
				redacted_data_json = excluded.redacted_data_json,
				is_pii = excluded.is_pii,
				updated_at = CURRENT_TIMESTAMP`,
			strings.Join(valueStrings, ","))

		if _, err := tx.ExecContext(ctx, tx.Rebind(query), valueArgs...); err != nil {
			s.logger.Error("Batch upsert failed", zap.Error(err))
			return result, fmt.Errorf("batch upsert failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit batch: %w", err)
	}

	result.Written = int64(len(rows))
	result.Duration = time.Since(start)

	s.logger.Debug("Batch upsert completed",
		zap.Int64("written", result.Written),
		zap.Int("duplicates_collapsed", len(outputs)-len(rows)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Get returns the stored result for recordID
func (s *Store) Get(ctx context.Context, recordID string) (*record.Output, error) {
	var out record.Output
	query := s.db.Rebind(`
		SELECT record_id, redacted_data_json, is_pii
		FROM redaction_results
		WHERE record_id = ?`)

	if err := s.db.GetContext(ctx, &out, query, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &out, nil
}

// GetStats returns result counts
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN is_pii THEN 1 END) AS pii
		FROM redaction_results`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get result stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// dedupeByRecordID keeps the last output per record ID, in first-seen order
func dedupeByRecordID(outputs []record.Output) []record.Output {
	index := make(map[string]int, len(outputs))
	rows := make([]record.Output, 0, len(outputs))
	for _, out := range outputs {
		if i, ok := index[out.RecordID]; ok {
			rows[i] = out
			continue
		}
		index[out.RecordID] = len(rows)
		rows = append(rows, out)
	}
	return rows
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	userInfo := url[:at]
	start := 0
	if scheme >= 0 {
		start = scheme + 3
	}
	colon := strings.Index(userInfo[start:], ":")
	if colon < 0 {
		return url
	}
	return userInfo[:start+colon+1] + "***" + url[at:]
}
