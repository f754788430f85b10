// Package config loads runtime configuration from an optional JSON file,
// validated against an embedded schema, with environment variables taking
// precedence.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type Config struct {
	// TransportDSN selects the messaging transport by scheme, e.g.
	// "memory://".
	TransportDSN string `json:"transport_dsn"`
	// DatabaseDSN selects the storage engine by scheme: postgres://... or
	// sqlite://path.
	DatabaseDSN string `json:"database_dsn"`
	// ListenAddr is the websocket subscriber endpoint.
	ListenAddr string `json:"listen_addr"`
	// LogFile duplicates logs to a file when set.
	LogFile string `json:"log_file"`
	// LogLevel is a zerolog level name.
	LogLevel string `json:"log_level"`

	FlushInterval    Duration `json:"flush_interval"`
	SyncInterval     Duration `json:"sync_interval"`
	ScheduleInterval Duration `json:"schedule_interval"`
	StreamWait       Duration `json:"stream_wait"`
	CheckpointEvery  int      `json:"checkpoint_every"`
	MutationQueue    int      `json:"mutation_queue"`
	WorkQueue        int      `json:"work_queue"`
}

// Duration unmarshals from a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"transport_dsn": {"type": "string", "minLength": 1},
		"database_dsn": {"type": "string", "minLength": 1},
		"listen_addr": {"type": "string", "minLength": 1},
		"log_file": {"type": "string"},
		"log_level": {"enum": ["trace", "debug", "info", "warn", "error"]},
		"flush_interval": {"type": "string", "pattern": "^[0-9]"},
		"sync_interval": {"type": "string", "pattern": "^[0-9]"},
		"schedule_interval": {"type": "string", "pattern": "^[0-9]"},
		"stream_wait": {"type": "string", "pattern": "^[0-9]"},
		"checkpoint_every": {"type": "integer", "minimum": 1},
		"mutation_queue": {"type": "integer", "minimum": 1},
		"work_queue": {"type": "integer", "minimum": 1}
	}
}`

func Default() Config {
	return Config{
		TransportDSN:     "memory://",
		DatabaseDSN:      "sqlite://telegram-indexer.db",
		ListenAddr:       "localhost:5123",
		LogLevel:         "info",
		FlushInterval:    Duration(time.Second),
		SyncInterval:     Duration(20 * time.Second),
		ScheduleInterval: Duration(60 * time.Second),
		StreamWait:       Duration(time.Second),
		CheckpointEvery:  1000,
		MutationQueue:    4096,
		WorkQueue:        1024,
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (if non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	if err := validate(raw); err != nil {
		return errors.Wrapf(err, "config file %s", path)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return errors.Wrap(err, "decode config file")
	}
	return nil
}

func validate(raw []byte) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", schemaDoc); err != nil {
		return err
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}

func applyEnv(cfg *Config) {
	cfg.TransportDSN = strEnv("INDEXER_TRANSPORT_DSN", cfg.TransportDSN)
	cfg.DatabaseDSN = strEnv("INDEXER_DATABASE_DSN", cfg.DatabaseDSN)
	cfg.ListenAddr = strEnv("INDEXER_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogFile = strEnv("INDEXER_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = strEnv("INDEXER_LOG_LEVEL", cfg.LogLevel)
	cfg.FlushInterval = durationEnv("INDEXER_FLUSH_INTERVAL", cfg.FlushInterval)
	cfg.SyncInterval = durationEnv("INDEXER_SYNC_INTERVAL", cfg.SyncInterval)
	cfg.ScheduleInterval = durationEnv("INDEXER_SCHEDULE_INTERVAL", cfg.ScheduleInterval)
	cfg.StreamWait = durationEnv("INDEXER_STREAM_WAIT", cfg.StreamWait)
	cfg.CheckpointEvery = intEnv("INDEXER_CHECKPOINT_EVERY", cfg.CheckpointEvery)
	cfg.MutationQueue = intEnv("INDEXER_MUTATION_QUEUE", cfg.MutationQueue)
	cfg.WorkQueue = intEnv("INDEXER_WORK_QUEUE", cfg.WorkQueue)
}

func strEnv(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback Duration) Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return Duration(value)
}
