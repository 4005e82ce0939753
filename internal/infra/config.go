package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment
// variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5435"`
	PGUser      string `env:"PGUSER" envDefault:"lineform"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"lineform"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"lineform"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"lineform.odds.changes"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Bookmaker connectivity
	BetpawaBaseURL  string `env:"BETPAWA_BASE_URL"`
	BetpawaAPIKey   string `env:"BETPAWA_API_KEY"`
	SportyBetBaseURL string `env:"SPORTYBET_BASE_URL"`
	SportyBetAPIKey  string `env:"SPORTYBET_API_KEY"`
	Bet9jaBaseURL   string `env:"BET9JA_BASE_URL"`
	Bet9jaAPIKey    string `env:"BET9JA_API_KEY"`

	// Per-bookmaker fetch concurrency caps (x/sync/semaphore weights)
	BetpawaConcurrency  int `env:"BETPAWA_CONCURRENCY" envDefault:"50"`
	SportyBetConcurrency int `env:"SPORTYBET_CONCURRENCY" envDefault:"50"`
	Bet9jaConcurrency   int `env:"BET9JA_CONCURRENCY" envDefault:"15"`

	// Event-level fan-out cap, independent of per-bookmaker caps
	EventParallelism int `env:"EVENT_PARALLELISM" envDefault:"10"`

	// Scheduler
	CycleInterval       time.Duration `env:"CYCLE_INTERVAL" envDefault:"2m"`
	CycleDeadline       time.Duration `env:"CYCLE_DEADLINE" envDefault:"90s"`
	WatchdogInterval    time.Duration `env:"WATCHDOG_INTERVAL" envDefault:"2m"`
	WatchdogStaleAfter  time.Duration `env:"WATCHDOG_STALE_AFTER" envDefault:"15m"`
	CleanupHourUTC      int           `env:"CLEANUP_HOUR_UTC" envDefault:"2"`
	RetentionDays       int           `env:"RETENTION_DAYS" envDefault:"14"`

	// Write pipeline
	WriteQueueDepth int `env:"WRITE_QUEUE_DEPTH" envDefault:"1000"`
	WriteWorkers    int `env:"WRITE_WORKERS" envDefault:"4"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the RETENTION_DAYS and CLEANUP_HOUR_UTC ranges and
// rejects the insecure default database password. Setting
// ALLOW_INSECURE_DEFAULTS=true (local dev only) skips the password check;
// the range checks always apply.
func (c *Config) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 90 {
		return fmt.Errorf("RETENTION_DAYS must be between 1 and 90, got %d", c.RetentionDays)
	}
	if c.CleanupHourUTC < 0 || c.CleanupHourUTC > 23 {
		return fmt.Errorf("CLEANUP_HOUR_UTC must be between 0 and 23, got %d", c.CleanupHourUTC)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.DatabaseURL == "" && c.PGPassword == "lineform" {
		return fmt.Errorf("PGPASSWORD is set to the insecure default; set a strong password or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
