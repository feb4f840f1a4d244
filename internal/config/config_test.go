package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"itemdb/pkg/domain"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, JournalSQLite, cfg.Journal.Driver)
	assert.Equal(t, domain.LastEditWins, cfg.Filter())
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itemdb.yaml")
	doc := "journal:\n  driver: blob\nblob:\n  driver: memory\nworld:\n  filter: unabridged\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, JournalBlob, cfg.Journal.Driver)
	assert.Equal(t, BlobMemory, cfg.Blob.Driver)
	assert.Equal(t, domain.Unabridged, cfg.Filter())
	assert.Equal(t, "./itemdb.db", cfg.Journal.SQLitePath, "unset fields keep defaults")
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "itemdb.yaml")
	cfg := Default()
	cfg.Server.Listen = "127.0.0.1:9999"
	require.NoError(t, cfg.SaveToFile(path))
	back, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		"ITEMDB_JOURNAL_DRIVER":     "blob",
		"ITEMDB_BLOB_DRIVER":        "s3",
		"ITEMDB_BLOB_S3_BUCKET":     "records",
		"ITEMDB_BLOB_S3_PATH_STYLE": "TRUE",
		"ITEMDB_ARCHIVE_SYNC":       "true",
		"ITEMDB_HTTP_TIMEOUT":       "5s",
		"ITEMDB_CACHE_SIZE":         "12",
		"ITEMDB_LOG_LEVEL":          "",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "records", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.True(t, cfg.Archive.Synchronous)
	assert.Equal(t, 5*time.Second, cfg.Journal.HTTPTimeout)
	assert.Equal(t, 12, cfg.World.CacheSize)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	for _, key := range []string{"ITEMDB_ARCHIVE_SYNC", "ITEMDB_HTTP_TIMEOUT", "ITEMDB_CACHE_SIZE"} {
		t.Run(key, func(t *testing.T) {
			err := Default().ApplyEnv(envOf(map[string]string{key: "nope"}))
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown journal", func(c *Config) { c.Journal.Driver = "tape" }},
		{"postgres without dsn", func(c *Config) { c.Journal.Driver = JournalPostgres }},
		{"http without url", func(c *Config) { c.Journal.Driver = JournalHTTP }},
		{"s3 without bucket", func(c *Config) { c.Journal.Driver = JournalBlob; c.Blob.Driver = BlobS3 }},
		{"unknown blob driver", func(c *Config) { c.Journal.Driver = JournalBlob; c.Blob.Driver = "ftp" }},
		{"unknown archive kind", func(c *Config) { c.Archive.Kind = "snapshot" }},
		{"unsupported filter", func(c *Config) { c.World.Filter = "democratic" }},
		{"unknown filter", func(c *Config) { c.World.Filter = "newest" }},
		{"zero cache", func(c *Config) { c.World.CacheSize = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUnsupportedFilterWrapsSentinel(t *testing.T) {
	cfg := Default()
	cfg.World.Filter = "SINGLE_USER"
	assert.ErrorIs(t, cfg.Validate(), domain.ErrUnsupportedFilter)
}

func TestConfigureLogger(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "debug", Format: "json"}
	l := logrus.New()
	require.NoError(t, cfg.ConfigureLogger(l))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	cfg.Log.Format = "xml"
	assert.Error(t, cfg.ConfigureLogger(l))
}
