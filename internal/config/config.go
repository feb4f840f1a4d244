// Package config loads itemdb configuration from an optional YAML file and
// ITEMDB_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"itemdb/pkg/domain"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Journal drivers.
const (
	JournalBlob     = "blob"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
	JournalHTTP     = "http"
	JournalMemory   = "memory"
)

// Blob drivers.
const (
	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// Config is the complete itemdb configuration.
type Config struct {
	Journal JournalConfig `yaml:"journal"`
	Blob    BlobConfig    `yaml:"blob"`
	Archive ArchiveConfig `yaml:"archive"`
	World   WorldConfig   `yaml:"world"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// JournalConfig selects where fragments and the user list are kept.
type JournalConfig struct {
	// Driver is one of blob, sqlite, postgres, http, memory (default sqlite).
	Driver      string        `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	HTTPURL     string        `yaml:"http_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// Prefix namespaces fragment keys in the blob journal.
	Prefix string `yaml:"prefix"`
}

// BlobConfig configures the blob store behind the blob journal.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 or MinIO connection settings. Credentials come from the
// default AWS chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// ArchiveConfig selects the archive variant.
type ArchiveConfig struct {
	// Kind is dump, log or txlog.
	Kind string `yaml:"kind"`
	// Synchronous writes each save to the journal before returning.
	Synchronous bool `yaml:"synchronous"`
}

// WorldConfig tunes the in-memory index.
type WorldConfig struct {
	Filter    string `yaml:"filter"`
	CacheSize int    `yaml:"cache_size"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures `itemdb serve`.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Journal: JournalConfig{
			Driver:      JournalSQLite,
			SQLitePath:  "./itemdb.db",
			HTTPTimeout: 30 * time.Second,
			Prefix:      "itemdb/",
		},
		Blob: BlobConfig{
			Driver: BlobFilesystem,
			FSRoot: "./blobdata",
			S3:     S3Config{Region: "us-east-1"},
		},
		Archive: ArchiveConfig{Kind: "log"},
		World:   WorldConfig{Filter: domain.LastEditWins.String(), CacheSize: 4096},
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Listen: ":8080"},
	}
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the file at path
// when path is not empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ITEMDB_* variables found by lookup.
//
//	ITEMDB_JOURNAL_DRIVER: blob|sqlite|postgres|http|memory
//	ITEMDB_SQLITE_PATH, ITEMDB_POSTGRES_DSN, ITEMDB_HTTP_URL, ITEMDB_HTTP_TIMEOUT
//	ITEMDB_JOURNAL_PREFIX
//	ITEMDB_BLOB_DRIVER: fs|s3|memory
//	ITEMDB_BLOB_FS_ROOT
//	ITEMDB_BLOB_S3_BUCKET, ITEMDB_BLOB_S3_REGION, ITEMDB_BLOB_S3_ENDPOINT, ITEMDB_BLOB_S3_PATH_STYLE
//	ITEMDB_ARCHIVE_KIND: dump|log|txlog
//	ITEMDB_ARCHIVE_SYNC
//	ITEMDB_FILTER, ITEMDB_CACHE_SIZE
//	ITEMDB_LOG_LEVEL, ITEMDB_LOG_FORMAT
//	ITEMDB_LISTEN
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ITEMDB_JOURNAL_DRIVER", &c.Journal.Driver)
	str("ITEMDB_SQLITE_PATH", &c.Journal.SQLitePath)
	str("ITEMDB_POSTGRES_DSN", &c.Journal.PostgresDSN)
	str("ITEMDB_HTTP_URL", &c.Journal.HTTPURL)
	str("ITEMDB_JOURNAL_PREFIX", &c.Journal.Prefix)
	str("ITEMDB_BLOB_DRIVER", &c.Blob.Driver)
	str("ITEMDB_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("ITEMDB_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("ITEMDB_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("ITEMDB_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("ITEMDB_ARCHIVE_KIND", &c.Archive.Kind)
	str("ITEMDB_FILTER", &c.World.Filter)
	str("ITEMDB_LOG_LEVEL", &c.Log.Level)
	str("ITEMDB_LOG_FORMAT", &c.Log.Format)
	str("ITEMDB_LISTEN", &c.Server.Listen)

	if v, ok := lookup("ITEMDB_BLOB_S3_PATH_STYLE"); ok && v != "" {
		c.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ITEMDB_ARCHIVE_SYNC"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ITEMDB_ARCHIVE_SYNC: %w", err)
		}
		c.Archive.Synchronous = b
	}
	if v, ok := lookup("ITEMDB_HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ITEMDB_HTTP_TIMEOUT: %w", err)
		}
		c.Journal.HTTPTimeout = d
	}
	if v, ok := lookup("ITEMDB_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ITEMDB_CACHE_SIZE: %w", err)
		}
		c.World.CacheSize = n
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Journal.Driver {
	case JournalSQLite, JournalMemory:
	case JournalBlob:
		switch c.Blob.Driver {
		case BlobFilesystem, BlobMemory:
		case BlobS3:
			if c.Blob.S3.Bucket == "" {
				return fmt.Errorf("blob.s3.bucket is required for the s3 blob driver")
			}
		default:
			return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
		}
	case JournalPostgres:
		if c.Journal.PostgresDSN == "" {
			return fmt.Errorf("journal.postgres_dsn is required for the postgres journal")
		}
	case JournalHTTP:
		if c.Journal.HTTPURL == "" {
			return fmt.Errorf("journal.http_url is required for the http journal")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	switch c.Archive.Kind {
	case "", "dump", "log", "txlog":
	default:
		return fmt.Errorf("unknown archive kind %q", c.Archive.Kind)
	}
	f, err := domain.ParseRetrievalFilter(c.World.Filter)
	if err != nil {
		return err
	}
	if !f.Supported() {
		return fmt.Errorf("world.filter: %w: %s", domain.ErrUnsupportedFilter, f)
	}
	if c.World.CacheSize <= 0 {
		return fmt.Errorf("world.cache_size must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Filter returns the configured retrieval filter. Call after Validate.
func (c *Config) Filter() domain.RetrievalFilter {
	f, _ := domain.ParseRetrievalFilter(c.World.Filter)
	return f
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ConfigureLogger applies level and format to l.
func (c *Config) ConfigureLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	switch c.Log.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
