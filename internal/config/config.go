// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/rating"
	"github.com/okian/skillboard/internal/domain/report"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver selects the store backend: sqlite, postgres or pgx.
	DBDriver string `koanf:"db_driver"`
	// DBDSN is the driver specific data source name.
	DBDSN string `koanf:"db_dsn"`

	// ParseMode selects tier extraction: line or score.
	ParseMode string `koanf:"parse_mode"`
	// Model names the rating model.
	Model string `koanf:"model"`
	// DecayAmount is subtracted from mu of every absent player per report.
	DecayAmount float64 `koanf:"decay_amount"`
	// MinMu is the floor decay never pushes mu below.
	MinMu float64 `koanf:"min_mu"`

	// ReportAuthorID, ReportAuthorName and ReportMarker identify puzzle bot reports.
	ReportAuthorID   string `koanf:"report_author_id"`
	ReportAuthorName string `koanf:"report_author_name"`
	ReportMarker     string `koanf:"report_marker"`

	// QueueSize bounds the single-writer mailbox.
	QueueSize int `koanf:"queue_size"`
	// DedupeSize sets how many message ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// ReplyWithLeaderboard posts the board after every applied live report.
	ReplyWithLeaderboard bool `koanf:"reply_with_leaderboard"`

	// WebhookURL enables the chat webhook notifier when set.
	WebhookURL        string  `koanf:"webhook_url"`
	WebhookRatePerSec float64 `koanf:"webhook_rate_per_sec"`

	// NATSURL enables the NATS subscriber when set.
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`
	// NATSQueueGroup spreads deliveries over subscribers sharing the group.
	NATSQueueGroup string `koanf:"nats_queue_group"`

	// ServerURL is where the rebuild and ingest commands reach a running
	// server. The server owns the store; those commands never write to it.
	ServerURL string `koanf:"server_url"`

	// HistoryFile replaces the message journal as rebuild source when set.
	HistoryFile string `koanf:"history_file"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		DBDriver:          repository.DriverSQLite,
		DBDSN:             "file:skillboard.db?_pragma=busy_timeout(5000)",
		ParseMode:         string(report.ModeLine),
		Model:             rating.NamePlackettLuce,
		DecayAmount:       1.0,
		MinMu:             1.0,
		ReportAuthorID:    report.DefaultAuthorID,
		ReportAuthorName:  report.DefaultAuthorName,
		ReportMarker:      report.DefaultMarker,
		QueueSize:         1024,
		DedupeSize:        10_000,
		WebhookRatePerSec: 1,
		NATSSubject:       "skillboard.messages",
		ServerURL:         "http://localhost:9080",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains([]string{repository.DriverSQLite, repository.DriverPostgres, repository.DriverPgx}, c.DBDriver):
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.ParseMode != string(report.ModeLine) && c.ParseMode != string(report.ModeScore):
		return fmt.Errorf("%w: unknown parse_mode %q", ErrInvalidConfig, c.ParseMode)
	case c.DecayAmount < 0:
		return fmt.Errorf("%w: decay_amount must not be negative", ErrInvalidConfig)
	case c.MinMu < 0:
		return fmt.Errorf("%w: min_mu must not be negative", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WebhookURL != "" && c.WebhookRatePerSec <= 0:
		return fmt.Errorf("%w: webhook_rate_per_sec must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.ServerURL) == "":
		return fmt.Errorf("%w: server_url must not be empty", ErrInvalidConfig)
	}
	if _, err := rating.New(c.Model); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
