package config

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Bounds on the self-healing signal insert loop.
const (
	SignalAttemptsMin = 8
	SignalAttemptsMax = 10
)

// ErrInvalid marks configuration problems detected before a run starts.
var ErrInvalid = errors.New("invalid configuration")

const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendPostgREST = "postgrest"

	SourceApify      = "apify"
	SourceCareerSite = "careersite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StorageBackend string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	Migrate          bool

	SQLitePath string

	SupabaseURL        string
	SupabaseServiceKey string

	FetchSource     string
	ApifyToken      string
	ApifyBaseURL    string
	TimeRange       string
	MaxJobs         int
	IncludeAI       bool
	IncludeLinkedIn bool
	FetchExpired    bool
	ChromeBin       string

	CompaniesFile     string
	EntityPause       time.Duration
	InactiveBatchSize int
	MaxSignalAttempts int
	ActiveReadLimit   int
	RemoveOnTruncated bool
	MaxRetries        int

	SignalsCSVPath string
	DataDir        string
	LogLevel       string
	DryRun         bool
}

// SetDefaults registers every key with its default and turns on env lookup.
// Keys are the lower-cased env var names.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage_backend", BackendPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "signals")
	v.SetDefault("postgres_db", "job_signals")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("migrate", true)

	v.SetDefault("sqlite_path", "job_signals.db")

	v.SetDefault("fetch_source", SourceApify)
	v.SetDefault("apify_base_url", "https://api.apify.com")
	v.SetDefault("time_range", "24h")
	v.SetDefault("max_jobs", 500)
	v.SetDefault("include_ai", false)
	v.SetDefault("include_linkedin", false)
	v.SetDefault("fetch_expired", true)

	v.SetDefault("companies_file", "companies.txt")
	v.SetDefault("entity_pause_ms", 1200) // polite pause between companies
	v.SetDefault("inactive_batch_size", 200)
	v.SetDefault("max_signal_attempts", 8)
	v.SetDefault("active_read_limit", 10000)
	v.SetDefault("remove_on_truncated", false)
	v.SetDefault("max_retries", 3)

	v.SetDefault("data_dir", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("dry_run", false)

	v.AutomaticEnv()
}

// Load reads the .env file and returns a populated Config struct. Flags bound
// to v take precedence over the environment.
func Load(v *viper.Viper) *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	SetDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	pgPassword := lookupSecret(v, "postgres_password")

	return &Config{
		StorageBackend: strings.ToLower(env(v, "storage_backend")),

		PostgresHost:     env(v, "postgres_host"),
		PostgresPort:     env(v, "postgres_port"),
		PostgresUser:     env(v, "postgres_user"),
		PostgresPassword: pgPassword,
		PostgresDB:       env(v, "postgres_db"),
		PostgresSSLMode:  env(v, "postgres_sslmode"),
		Migrate:          v.GetBool("migrate"),

		SQLitePath: env(v, "sqlite_path"),

		SupabaseURL:        env(v, "supabase_url"),
		SupabaseServiceKey: lookupSecret(v, "supabase_service_key"),

		FetchSource:     strings.ToLower(env(v, "fetch_source")),
		ApifyToken:      lookupSecret(v, "apify_token"),
		ApifyBaseURL:    env(v, "apify_base_url"),
		TimeRange:       env(v, "time_range"),
		MaxJobs:         v.GetInt("max_jobs"),
		IncludeAI:       v.GetBool("include_ai"),
		IncludeLinkedIn: v.GetBool("include_linkedin"),
		FetchExpired:    v.GetBool("fetch_expired"),
		ChromeBin:       env(v, "chrome_bin"),

		CompaniesFile:     env(v, "companies_file"),
		EntityPause:       time.Duration(v.GetInt("entity_pause_ms")) * time.Millisecond,
		InactiveBatchSize: v.GetInt("inactive_batch_size"),
		MaxSignalAttempts: v.GetInt("max_signal_attempts"),
		ActiveReadLimit:   v.GetInt("active_read_limit"),
		RemoveOnTruncated: v.GetBool("remove_on_truncated"),
		MaxRetries:        v.GetInt("max_retries"),

		SignalsCSVPath: env(v, "signals_csv_path"),
		DataDir:        env(v, "data_dir"),
		LogLevel:       env(v, "log_level"),
		DryRun:         v.GetBool("dry_run"),
	}
}

// Validate checks that the selected backend and fetch source have what they
// need. Every error it returns matches ErrInvalid.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return invalid("postgres backend needs POSTGRES_HOST and POSTGRES_DB",
				"set them in .env or switch STORAGE_BACKEND to sqlite for a local run")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite backend needs SQLITE_PATH", "")
		}
	case BackendPostgREST:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return invalid("postgrest backend needs SUPABASE_URL and SUPABASE_SERVICE_KEY",
				"the service key may also live in the OS keyring under service "+keyringService)
		}
		if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Sprintf("SUPABASE_URL %q is not an absolute URL", c.SupabaseURL), "")
		}
	default:
		return invalid(fmt.Sprintf("unknown STORAGE_BACKEND %q", c.StorageBackend),
			"use one of: postgres, sqlite, postgrest")
	}

	switch c.FetchSource {
	case SourceApify:
		if c.ApifyToken == "" {
			return invalid("apify source needs APIFY_TOKEN",
				"export APIFY_TOKEN or store it in the OS keyring under service "+keyringService)
		}
	case SourceCareerSite:
	default:
		return invalid(fmt.Sprintf("unknown FETCH_SOURCE %q", c.FetchSource), "use one of: apify, careersite")
	}

	if c.MaxJobs <= 0 {
		return invalid(fmt.Sprintf("MAX_JOBS must be positive, got %d", c.MaxJobs), "")
	}
	if c.MaxSignalAttempts < SignalAttemptsMin || c.MaxSignalAttempts > SignalAttemptsMax {
		return invalid(fmt.Sprintf("MAX_SIGNAL_ATTEMPTS must be between %d and %d, got %d",
			SignalAttemptsMin, SignalAttemptsMax, c.MaxSignalAttempts), "")
	}
	if c.CompaniesFile == "" {
		return invalid("COMPANIES_FILE is empty", "")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// LockPath is the run lock file inside DataDir.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "job-signals.lock")
}

func invalid(msg, hint string) error {
	err := errors.Mark(errors.New(msg), ErrInvalid)
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}

// env reads a string key with surrounding whitespace removed; copied secrets
// often carry a trailing newline.
func env(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
