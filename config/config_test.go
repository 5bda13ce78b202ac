package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"job-signals/models"
)

func newTestViper(t *testing.T, kv map[string]string) *viper.Viper {
	t.Helper()
	for k, val := range kv {
		t.Setenv(k, val)
	}
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	keyring.MockInit()
	cfg := fromViper(newTestViper(t, nil))

	if cfg.StorageBackend != BackendPostgres || cfg.FetchSource != SourceApify {
		t.Errorf("backend/source = %q/%q", cfg.StorageBackend, cfg.FetchSource)
	}
	if cfg.MaxJobs != 500 || cfg.TimeRange != "24h" {
		t.Errorf("MaxJobs/TimeRange = %d/%q", cfg.MaxJobs, cfg.TimeRange)
	}
	if cfg.EntityPause != 1200*time.Millisecond {
		t.Errorf("EntityPause = %v", cfg.EntityPause)
	}
	if cfg.InactiveBatchSize != 200 || cfg.MaxSignalAttempts != 8 || cfg.ActiveReadLimit != 10000 {
		t.Errorf("writer defaults = %d/%d/%d", cfg.InactiveBatchSize, cfg.MaxSignalAttempts, cfg.ActiveReadLimit)
	}
	if cfg.RemoveOnTruncated {
		t.Error("RemoveOnTruncated should default to false")
	}
	if !cfg.FetchExpired {
		t.Error("FetchExpired should default to true")
	}
}

func TestEnvOverridesAndTrimming(t *testing.T) {
	keyring.MockInit()
	cfg := fromViper(newTestViper(t, map[string]string{
		"STORAGE_BACKEND":  "SQLite",
		"APIFY_TOKEN":      "  tok-123\n",
		"MAX_JOBS":         "50",
		"INCLUDE_AI":       "true",
		"ENTITY_PAUSE_MS":  "0",
		"SIGNALS_CSV_PATH": "out/signals.csv",
	}))

	if cfg.StorageBackend != BackendSQLite {
		t.Errorf("StorageBackend = %q", cfg.StorageBackend)
	}
	if cfg.ApifyToken != "tok-123" {
		t.Errorf("ApifyToken = %q; want trimmed", cfg.ApifyToken)
	}
	if cfg.MaxJobs != 50 || !cfg.IncludeAI || cfg.EntityPause != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SignalsCSVPath != "out/signals.csv" {
		t.Errorf("SignalsCSVPath = %q", cfg.SignalsCSVPath)
	}
}

func TestSecretsFallBackToKeyring(t *testing.T) {
	keyring.MockInit()
	if err := StoreSecret("APIFY_TOKEN", "from-keyring"); err != nil {
		t.Fatal(err)
	}
	cfg := fromViper(newTestViper(t, nil))
	if cfg.ApifyToken != "from-keyring" {
		t.Errorf("ApifyToken = %q; want keyring value", cfg.ApifyToken)
	}

	cfg = fromViper(newTestViper(t, map[string]string{"APIFY_TOKEN": "from-env"}))
	if cfg.ApifyToken != "from-env" {
		t.Errorf("env should win over keyring, got %q", cfg.ApifyToken)
	}

	if err := StoreSecret("", "x"); err == nil {
		t.Error("empty secret name should be rejected")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StorageBackend:    BackendPostgres,
			PostgresHost:      "localhost",
			PostgresDB:        "job_signals",
			FetchSource:       SourceApify,
			ApifyToken:        "tok",
			MaxJobs:           500,
			MaxSignalAttempts: 8,
			CompaniesFile:     "companies.txt",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid postgres", func(*Config) {}, false},
		{"missing apify token", func(c *Config) { c.ApifyToken = "" }, true},
		{"careersite needs no token", func(c *Config) { c.FetchSource = SourceCareerSite; c.ApifyToken = "" }, false},
		{"unknown backend", func(c *Config) { c.StorageBackend = "mongo" }, true},
		{"unknown source", func(c *Config) { c.FetchSource = "rss" }, true},
		{"postgrest without key", func(c *Config) {
			c.StorageBackend = BackendPostgREST
			c.SupabaseURL = "https://xyz.supabase.co"
		}, true},
		{"postgrest relative url", func(c *Config) {
			c.StorageBackend = BackendPostgREST
			c.SupabaseURL = "xyz.supabase.co"
			c.SupabaseServiceKey = "svc"
		}, true},
		{"postgrest ok", func(c *Config) {
			c.StorageBackend = BackendPostgREST
			c.SupabaseURL = "https://xyz.supabase.co"
			c.SupabaseServiceKey = "svc"
		}, false},
		{"sqlite without path", func(c *Config) { c.StorageBackend = BackendSQLite }, true},
		{"zero max jobs", func(c *Config) { c.MaxJobs = 0 }, true},
		{"one signal attempt", func(c *Config) { c.MaxSignalAttempts = 1 }, true},
		{"too many signal attempts", func(c *Config) { c.MaxSignalAttempts = 11 }, true},
		{"ten signal attempts", func(c *Config) { c.MaxSignalAttempts = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error %v should match ErrInvalid", err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	c := &Config{PostgresHost: "db", PostgresPort: "5432", PostgresUser: "u", PostgresPassword: "p", PostgresDB: "d", PostgresSSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=d sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEntitiesText(t *testing.T) {
	path := writeFile(t, "companies.txt", "# tracked\nAcme\n\n  Globex  \nAcme\n")

	got, err := LoadEntities(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Entity{{Name: "Acme"}, {Name: "Globex"}, {Name: "Acme"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadEntities() = %v; want %v", got, want)
	}
}

func TestLoadEntitiesYAML(t *testing.T) {
	path := writeFile(t, "companies.yaml", `
- Acme
- name: Globex
  careers_url: https://globex.example/careers
- name: "  "
`)

	got, err := LoadEntities(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Entity{
		{Name: "Acme"},
		{Name: "Globex", CareersURL: "https://globex.example/careers"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadEntities() = %v; want %v", got, want)
	}
}

func TestLoadEntitiesErrors(t *testing.T) {
	if _, err := LoadEntities(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("missing file should fail")
	}
	bad := writeFile(t, "bad.yml", "name: [unclosed")
	if _, err := LoadEntities(bad); err == nil {
		t.Error("malformed yaml should fail")
	}
}
