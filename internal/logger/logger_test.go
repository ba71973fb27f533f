package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("JSONFormat", func(t *testing.T) {
		log, err := New(Config{Level: "info", Format: "json"})
		require.NoError(t, err)
		require.NotNil(t, log.Logger)
	})

	t.Run("ConsoleFormat", func(t *testing.T) {
		log, err := New(Config{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(-1), "debug level should be enabled")
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := New(Config{Level: "verbose", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("FileOutput", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sentinel.log")
		log, err := New(Config{
			Level:  "info",
			Format: "json",
			File:   &FileConfig{Enabled: true, Path: path},
		})
		require.NoError(t, err)

		log.WithComponent("etl").WithRecordID("42").Info("record redacted")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		line := string(data)
		assert.True(t, strings.Contains(line, `"component":"etl"`), line)
		assert.True(t, strings.Contains(line, `"record_id":"42"`), line)
		assert.True(t, strings.Contains(line, `"timestamp"`), line)
	})
}
