package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress        string
	Storage           string
	DatabaseURI       string
	DirectorySeedFile string
	JWTSecret         string
	CORSOrigins       []string
	LogLevel          string

	CommissionRate          float64
	CommissionExemptCallout bool
	DefaultMaxActiveJobs    int
	DefaultBalanceThreshold float64

	OrderExpiry    time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	SweepWorkers   int

	StalePlacedAfter         time.Duration
	StaleClaimedAfter        time.Duration
	PendingConfirmationLimit int
	PlannedSoonWindow        time.Duration
	PriceDeviationThreshold  float64

	RequestTimeout    time.Duration
	ReadRetries       int
	RetryBackoff      time.Duration
	ReferenceCacheTTL time.Duration
	RosterCacheTTL    time.Duration
	ShutdownTimeout   time.Duration
}

const (
	defaultRunAddress               = ":8080"
	defaultJWTSecret                = "change-me-in-production"
	defaultCORSOrigins              = "*"
	defaultLogLevel                 = "info"
	defaultCommissionRate           = 0.15
	defaultMaxActiveJobs            = 3
	defaultOrderExpiry              = 24 * time.Hour
	defaultSweepInterval            = time.Minute
	defaultSweepBatchSize           = 100
	defaultSweepWorkers             = 2
	defaultStalePlacedAfter         = 15 * time.Minute
	defaultStaleClaimedAfter        = 30 * time.Minute
	defaultPendingConfirmationLimit = 3
	defaultPlannedSoonWindow        = 2 * time.Hour
	defaultPriceDeviationThreshold  = 0.5
	defaultRequestTimeout           = 5 * time.Second
	defaultReadRetries              = 3
	defaultRetryBackoff             = 100 * time.Millisecond
	defaultReferenceCacheTTL        = 30 * time.Minute
	defaultRosterCacheTTL           = 5 * time.Minute
	defaultShutdownTimeout          = 10 * time.Second
)

// Load parses configuration from an optional .env file, environment variables and flags.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return load(os.Args[1:], os.LookupEnv)
}

// loadDotEnv exports variables from path without overriding the real environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:               getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		Storage:                  getString(lookup, "STORAGE", StoragePostgres),
		DatabaseURI:              getString(lookup, "DATABASE_URI", ""),
		DirectorySeedFile:        getString(lookup, "DIRECTORY_SEED_FILE", ""),
		JWTSecret:                getString(lookup, "JWT_SECRET", defaultJWTSecret),
		LogLevel:                 getString(lookup, "LOG_LEVEL", defaultLogLevel),
		CommissionRate:           getFloat(lookup, "COMMISSION_RATE", defaultCommissionRate),
		CommissionExemptCallout:  getBool(lookup, "COMMISSION_EXEMPT_CALLOUT", false),
		DefaultMaxActiveJobs:     getInt(lookup, "DEFAULT_MAX_ACTIVE_JOBS", defaultMaxActiveJobs),
		DefaultBalanceThreshold:  getFloat(lookup, "BALANCE_THRESHOLD", 0),
		OrderExpiry:              getDuration(lookup, "ORDER_EXPIRY", defaultOrderExpiry),
		SweepInterval:            getDuration(lookup, "SWEEP_INTERVAL", defaultSweepInterval),
		SweepBatchSize:           getInt(lookup, "SWEEP_BATCH_SIZE", defaultSweepBatchSize),
		SweepWorkers:             getInt(lookup, "SWEEP_WORKERS", defaultSweepWorkers),
		StalePlacedAfter:         getDuration(lookup, "STALE_PLACED_AFTER", defaultStalePlacedAfter),
		StaleClaimedAfter:        getDuration(lookup, "STALE_CLAIMED_AFTER", defaultStaleClaimedAfter),
		PendingConfirmationLimit: getInt(lookup, "PENDING_CONFIRMATION_LIMIT", defaultPendingConfirmationLimit),
		PlannedSoonWindow:        getDuration(lookup, "PLANNED_SOON_WINDOW", defaultPlannedSoonWindow),
		PriceDeviationThreshold:  getFloat(lookup, "PRICE_DEVIATION_THRESHOLD", defaultPriceDeviationThreshold),
		RequestTimeout:           getDuration(lookup, "REQUEST_TIMEOUT", defaultRequestTimeout),
		ReadRetries:              getInt(lookup, "READ_RETRIES", defaultReadRetries),
		RetryBackoff:             getDuration(lookup, "RETRY_BACKOFF", defaultRetryBackoff),
		ReferenceCacheTTL:        getDuration(lookup, "REFERENCE_CACHE_TTL", defaultReferenceCacheTTL),
		RosterCacheTTL:           getDuration(lookup, "ROSTER_CACHE_TTL", defaultRosterCacheTTL),
		ShutdownTimeout:          getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
	corsOrigins := getString(lookup, "CORS_ORIGINS", defaultCORSOrigins)

	flags := flag.NewFlagSet("dispatchdesk", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	flags.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend: postgres or memory")
	flags.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	flags.StringVar(&cfg.DirectorySeedFile, "seed", cfg.DirectorySeedFile, "JSON directory seed for the memory backend")
	flags.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for signing actor tokens")
	flags.StringVar(&corsOrigins, "cors-origins", corsOrigins, "Comma separated allowed CORS origins")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	flags.Float64Var(&cfg.CommissionRate, "commission-rate", cfg.CommissionRate, "Platform commission rate")
	flags.BoolVar(&cfg.CommissionExemptCallout, "commission-exempt-callout", cfg.CommissionExemptCallout, "Exclude the callout fee from the commission base")
	flags.IntVar(&cfg.DefaultMaxActiveJobs, "max-active-jobs", cfg.DefaultMaxActiveJobs, "Active job limit for new ledgers")
	flags.Float64Var(&cfg.DefaultBalanceThreshold, "balance-threshold", cfg.DefaultBalanceThreshold, "Balance block threshold for new ledgers")
	flags.DurationVar(&cfg.OrderExpiry, "order-expiry", cfg.OrderExpiry, "Age after which unclaimed orders expire")
	flags.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Interval between expiry sweeps")
	flags.IntVar(&cfg.SweepBatchSize, "sweep-batch", cfg.SweepBatchSize, "Maximum orders expired per sweep")
	flags.IntVar(&cfg.SweepWorkers, "sweep-workers", cfg.SweepWorkers, "Concurrent expiry workers")
	flags.DurationVar(&cfg.StalePlacedAfter, "stale-placed", cfg.StalePlacedAfter, "Attention window for unclaimed orders")
	flags.DurationVar(&cfg.StaleClaimedAfter, "stale-claimed", cfg.StaleClaimedAfter, "Attention window for claimed orders without progress")
	flags.IntVar(&cfg.PendingConfirmationLimit, "pending-limit", cfg.PendingConfirmationLimit, "Completed jobs awaiting confirmation per worker")
	flags.DurationVar(&cfg.PlannedSoonWindow, "planned-soon", cfg.PlannedSoonWindow, "Warning window before a held planned job")
	flags.Float64Var(&cfg.PriceDeviationThreshold, "price-deviation", cfg.PriceDeviationThreshold, "Relative price change that requires review")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per operation store timeout")
	flags.IntVar(&cfg.ReadRetries, "read-retries", cfg.ReadRetries, "Retries for transient read failures")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base backoff between read retries")
	flags.DurationVar(&cfg.ReferenceCacheTTL, "reference-ttl", cfg.ReferenceCacheTTL, "Service type and district cache TTL")
	flags.DurationVar(&cfg.RosterCacheTTL, "roster-ttl", cfg.RosterCacheTTL, "Dispatcher roster cache TTL")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if secretFile, ok := lookup("JWT_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt secret file: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(content))
	}

	cfg.CORSOrigins = splitList(corsOrigins)
	normalize(cfg)

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURI == "" {
			return nil, fmt.Errorf("database URI must be provided")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	if cfg.CommissionRate < 0 || cfg.CommissionRate > 1 {
		return nil, fmt.Errorf("commission rate must be within [0,1], got %v", cfg.CommissionRate)
	}

	return cfg, nil
}

func normalize(cfg *Config) {
	positiveDuration(&cfg.OrderExpiry, defaultOrderExpiry)
	positiveDuration(&cfg.SweepInterval, defaultSweepInterval)
	positiveDuration(&cfg.StalePlacedAfter, defaultStalePlacedAfter)
	positiveDuration(&cfg.StaleClaimedAfter, defaultStaleClaimedAfter)
	positiveDuration(&cfg.PlannedSoonWindow, defaultPlannedSoonWindow)
	positiveDuration(&cfg.RequestTimeout, defaultRequestTimeout)
	positiveDuration(&cfg.RetryBackoff, defaultRetryBackoff)
	positiveDuration(&cfg.ReferenceCacheTTL, defaultReferenceCacheTTL)
	positiveDuration(&cfg.RosterCacheTTL, defaultRosterCacheTTL)
	positiveDuration(&cfg.ShutdownTimeout, defaultShutdownTimeout)

	positiveInt(&cfg.SweepBatchSize, defaultSweepBatchSize)
	positiveInt(&cfg.SweepWorkers, defaultSweepWorkers)
	positiveInt(&cfg.DefaultMaxActiveJobs, defaultMaxActiveJobs)
	positiveInt(&cfg.PendingConfirmationLimit, defaultPendingConfirmationLimit)

	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = defaultReadRetries
	}
	if cfg.PriceDeviationThreshold < 0 {
		cfg.PriceDeviationThreshold = defaultPriceDeviationThreshold
	}
}

func positiveDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

func positiveInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(lookup envLookup, key string, def float64) float64 {
	if v, ok := lookup(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(lookup envLookup, key string, def bool) bool {
	if v, ok := lookup(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
