package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	AMQPURL     string

	// Delivery channel selection and tuning.
	DeliveryMode      string // "http" or "telegram"
	DeliveryURL       string
	TelegramToken     string
	DeliveryTimeout   time.Duration
	DeliveryRateLimit float64 // sends per second against the remote API

	// Trigger computation.
	TargetLocalHour int           // local wall-clock hour to deliver at
	GraceWindow     time.Duration // how stale a target may be and still resolve
	EnqueueHorizon  time.Duration // publish occurrences due within this window
	LeapDayPolicy   string        // "feb28" or "mar01"

	// Cron specs for the periodic cycles.
	CronSpecScan   string
	CronSpecSweep  string
	CronSpecStatus string

	// Worker pool and retry budget.
	WorkerCount    int
	RetryMax       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Recovery sweeper.
	QueuedStaleAfter time.Duration

	// Circuit breaker.
	BreakerWindow         time.Duration
	BreakerMinSamples     int
	BreakerFailureRatio   float64
	BreakerCooldown       time.Duration
	BreakerHalfOpenProbes int

	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL is not set")
	}

	cfg.DeliveryMode = strings.ToLower(os.Getenv("DELIVERY_MODE"))
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = "http"
	}
	switch cfg.DeliveryMode {
	case "http":
		cfg.DeliveryURL = os.Getenv("DELIVERY_URL")
		if cfg.DeliveryURL == "" {
			return nil, fmt.Errorf("DELIVERY_URL is not set (required for DELIVERY_MODE=http)")
		}
	case "telegram":
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is not set (required for DELIVERY_MODE=telegram)")
		}
	default:
		return nil, fmt.Errorf("invalid DELIVERY_MODE: %s (expected http or telegram)", cfg.DeliveryMode)
	}

	if cfg.DeliveryTimeout, err = durationEnv("DELIVERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DeliveryRateLimit, err = floatEnv("DELIVERY_RATE_LIMIT", 50); err != nil {
		return nil, err
	}

	if cfg.TargetLocalHour, err = intEnv("TARGET_LOCAL_HOUR", 9); err != nil {
		return nil, err
	}
	if cfg.TargetLocalHour < 0 || cfg.TargetLocalHour > 23 {
		return nil, fmt.Errorf("TARGET_LOCAL_HOUR out of range: %d", cfg.TargetLocalHour)
	}
	// Defaults to same-local-day catch-up: an occurrence missed while the
	// process was down is still created and delivered late rather than
	// dropped, as long as it is still the event's local date.
	if cfg.GraceWindow, err = durationEnv("GRACE_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EnqueueHorizon, err = durationEnv("ENQUEUE_HORIZON", time.Minute); err != nil {
		return nil, err
	}

	cfg.LeapDayPolicy = strings.ToLower(os.Getenv("LEAP_DAY_POLICY"))
	if cfg.LeapDayPolicy == "" {
		cfg.LeapDayPolicy = "feb28"
	}
	if cfg.LeapDayPolicy != "feb28" && cfg.LeapDayPolicy != "mar01" {
		return nil, fmt.Errorf("invalid LEAP_DAY_POLICY: %s (expected feb28 or mar01)", cfg.LeapDayPolicy)
	}

	cfg.CronSpecScan = os.Getenv("CRON_SPEC_SCAN")
	if cfg.CronSpecScan == "" {
		cfg.CronSpecScan = "* * * * *" // Default: every minute
	}
	cfg.CronSpecSweep = os.Getenv("CRON_SPEC_SWEEP")
	if cfg.CronSpecSweep == "" {
		cfg.CronSpecSweep = "*/10 * * * *" // Default: every 10 minutes
	}
	cfg.CronSpecStatus = os.Getenv("CRON_SPEC_STATUS")
	if cfg.CronSpecStatus == "" {
		cfg.CronSpecStatus = "*/5 * * * *" // Default: every 5 minutes
	}

	if cfg.WorkerCount, err = intEnv("WORKER_COUNT", 8); err != nil {
		return nil, err
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.RetryMax, err = intEnv("RETRY_MAX", 5); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = durationEnv("RETRY_BASE_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = durationEnv("RETRY_MAX_DELAY", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.QueuedStaleAfter, err = durationEnv("QUEUED_STALE_AFTER", 15*time.Minute); err != nil {
		return nil, err
	}

	if cfg.BreakerWindow, err = durationEnv("BREAKER_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.BreakerMinSamples, err = intEnv("BREAKER_MIN_SAMPLES", 10); err != nil {
		return nil, err
	}
	if cfg.BreakerFailureRatio, err = floatEnv("BREAKER_FAILURE_RATIO", 0.5); err != nil {
		return nil, err
	}
	if cfg.BreakerCooldown, err = durationEnv("BREAKER_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerHalfOpenProbes, err = intEnv("BREAKER_HALF_OPEN_PROBES", 3); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
