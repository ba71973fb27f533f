package store

import (
	"errors"
	"time"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when no result is stored for a record ID
var ErrNotFound = errors.New("redaction result not found")

// Config contains database configuration
type Config struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Stats represents result table statistics
type Stats struct {
	TotalRecords int64 `db:"total" json:"total_records"`
	PIIRecords   int64 `db:"pii" json:"pii_records"`
}

// BatchResult reports the outcome of one WriteBatch call
type BatchResult struct {
	Written  int64         `json:"written"`
	Duration time.Duration `json:"duration"`
}
