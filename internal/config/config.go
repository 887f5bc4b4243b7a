// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, delivery scheduling,
// the messenger driver, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Messenger drivers.
const (
	DriverTelegram = "telegram"
	DriverKafka    = "kafka"
	DriverLog      = "log"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-leadbot-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SchedulerConfig controls the periodic delivery loop.
type SchedulerConfig struct {
	Enabled      bool          // SCHEDULER_ENABLED
	Interval     time.Duration // SCHEDULER_INTERVAL
	InitialDelay time.Duration // SCHEDULER_INITIAL_DELAY
	MailingPause time.Duration // MAILING_PAUSE, between consecutive broadcast sends
}

// FollowUpConfig controls follow-up eligibility and pacing.
type FollowUpConfig struct {
	Threshold time.Duration // FOLLOWUP_THRESHOLD
	Pause     time.Duration // FOLLOWUP_PAUSE, between consecutive sends
	ClaimTTL  time.Duration // FOLLOWUP_CLAIM_TTL
}

// MessengerConfig selects and configures the outbound messenger.
type MessengerConfig struct {
	Driver          string        // MESSENGER_DRIVER: telegram|kafka|log
	TelegramToken   string        // TELEGRAM_BOT_TOKEN
	TelegramAPI     string        // TELEGRAM_API_URL
	TelegramTimeout time.Duration // TELEGRAM_TIMEOUT
	KafkaBrokers    []string      // KAFKA_BROKERS (CSV)
	KafkaTopic      string        // KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath       string  // SQLite path
	SeedPath     string  // optional YAML catalog applied at startup
	FAQThreshold float64 // FAQ match confidence threshold [0,1]
	AdminToken   string  // required in X-Admin-Token for admin routes when set

	// Delivery
	Scheduler SchedulerConfig
	FollowUp  FollowUpConfig
	Messenger MessengerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:       getenv("DB_PATH", "leadbot.db"),
		SeedPath:     getenv("SEED_PATH", ""),
		FAQThreshold: getfloat("FAQ_THRESHOLD", 0.3),
		AdminToken:   getenv("ADMIN_TOKEN", ""),

		// Delivery
		Scheduler: SchedulerConfig{
			Enabled:      getbool("SCHEDULER_ENABLED", true),
			Interval:     getdur("SCHEDULER_INTERVAL", 60*time.Second),
			InitialDelay: getdur("SCHEDULER_INITIAL_DELAY", 5*time.Second),
			MailingPause: getdur("MAILING_PAUSE", 100*time.Millisecond),
		},
		FollowUp: FollowUpConfig{
			Threshold: getdur("FOLLOWUP_THRESHOLD", 48*time.Hour),
			Pause:     getdur("FOLLOWUP_PAUSE", time.Second),
			ClaimTTL:  getdur("FOLLOWUP_CLAIM_TTL", 15*time.Minute),
		},
		Messenger: MessengerConfig{
			Driver:          strings.ToLower(strings.TrimSpace(getenv("MESSENGER_DRIVER", DriverLog))),
			TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
			TelegramAPI:     getenv("TELEGRAM_API_URL", "https://api.telegram.org"),
			TelegramTimeout: getdur("TELEGRAM_TIMEOUT", 10*time.Second),
			KafkaBrokers:    splitCSV(getenv("KAFKA_BROKERS", "")),
			KafkaTopic:      getenv("KAFKA_TOPIC", "leadbot.outbox"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-leadbot-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
}

// Validate reports every invalid setting at once, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.FAQThreshold >= 0 && c.FAQThreshold <= 1, "FAQ_THRESHOLD must be between 0 and 1")

	check(c.Scheduler.Interval > 0, "SCHEDULER_INTERVAL must be > 0")
	check(c.Scheduler.InitialDelay >= 0, "SCHEDULER_INITIAL_DELAY must be >= 0")
	check(c.FollowUp.Threshold > 0, "FOLLOWUP_THRESHOLD must be > 0")
	check(c.FollowUp.Pause >= 0, "FOLLOWUP_PAUSE must be >= 0")
	check(c.Scheduler.MailingPause >= 0, "MAILING_PAUSE must be >= 0")
	check(c.FollowUp.ClaimTTL > 0, "FOLLOWUP_CLAIM_TTL must be > 0")

	m := c.Messenger
	switch m.Driver {
	case DriverTelegram:
		check(strings.TrimSpace(m.TelegramToken) != "", "TELEGRAM_BOT_TOKEN is required for MESSENGER_DRIVER=telegram")
		check(m.TelegramTimeout > 0, "TELEGRAM_TIMEOUT must be > 0")
	case DriverKafka:
		check(len(m.KafkaBrokers) > 0 && strings.TrimSpace(m.KafkaTopic) != "",
			"KAFKA_BROKERS and KAFKA_TOPIC are required for MESSENGER_DRIVER=kafka")
	case DriverLog:
	default:
		check(false, "MESSENGER_DRIVER must be one of: telegram, kafka, log")
	}
	// Admin routes trigger real deliveries through a live messenger.
	check(strings.TrimSpace(c.AdminToken) != "" || m.Driver == DriverLog || c.GinMode == "debug",
		"ADMIN_TOKEN is required when MESSENGER_DRIVER is not log outside GIN_MODE=debug")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env reads k and parses it; unset, empty or unparsable values yield def.
func env[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return env(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return env(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return env(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return env(k, def, time.ParseDuration) }

var errNotBool = errors.New("not a boolean")

// getbool also accepts yes/no, y/n and on/off.
func getbool(k string, def bool) bool {
	return env(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errNotBool
	})
}

// splitCSV splits a comma list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank means "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
