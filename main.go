package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"job-signals/config"
	"job-signals/scraper"
	"job-signals/scraper/apify"
	"job-signals/scraper/careersite"
	"job-signals/services"
	"job-signals/storage"
	"job-signals/utils"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "job-signals",
		Short: "Reconcile tracked companies' job postings and emit NEW_JOB / JOB_REMOVED signals",
		Long: `job-signals fetches the current postings of every tracked company, upserts
them into job_posts, and appends a signal for every posting that appeared or
disappeared since the previous run.

Configuration comes from the environment (.env is loaded when present);
flags override it.

Examples:
  job-signals                          # run against companies.txt
  job-signals --companies tracked.yml  # YAML entity list
  job-signals --dry-run -v             # fetch and diff only, no writes
  job-signals secret set APIFY_TOKEN   # store a token in the OS keyring`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			verbose, _ := cmd.Flags().GetBool("verbose")
			return run(ctx, config.Load(v), verbose)
		},
	}

	f := root.Flags()
	f.String("companies", "companies.txt", "entity list (.txt one name per line, or .yml)")
	f.Bool("dry-run", false, "fetch, normalize and diff without writing anything")
	f.String("backend", config.BackendPostgres, "storage backend: postgres, sqlite or postgrest")
	f.String("source", config.SourceApify, "fetch source: apify or careersite")
	f.BoolP("verbose", "v", false, "debug logging")

	_ = v.BindPFlag("companies_file", f.Lookup("companies"))
	_ = v.BindPFlag("dry_run", f.Lookup("dry-run"))
	_ = v.BindPFlag("storage_backend", f.Lookup("backend"))
	_ = v.BindPFlag("fetch_source", f.Lookup("source"))

	root.AddCommand(newSecretCmd())
	return root
}

func newSecretCmd() *cobra.Command {
	secret := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets kept in the OS keyring",
	}
	secret.AddCommand(&cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store NAME (e.g. APIFY_TOKEN) in the keyring; VALUE is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			} else if _, err := fmt.Fscanln(cmd.InOrStdin(), &value); err != nil {
				return errors.Wrap(err, "read secret from stdin")
			}
			if err := config.StoreSecret(args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	})
	return secret
}

func run(ctx context.Context, cfg *config.Config, verbose bool) error {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := utils.NewLoggerWithLevel(level)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logError(logger, err)
		return err
	}

	logger.Info("=== Job Signals run starting ===")
	logger.Info("Config: backend: %s | source: %s | timeRange: %s | maxJobs: %d | pause: %v",
		cfg.StorageBackend, cfg.FetchSource, cfg.TimeRange, cfg.MaxJobs, cfg.EntityPause)

	entities, err := config.LoadEntities(cfg.CompaniesFile)
	if err != nil {
		err = errors.Mark(err, config.ErrInvalid)
		logError(logger, err)
		return err
	}
	if len(entities) == 0 {
		logger.Warn("No entities in %s, nothing to do", cfg.CompaniesFile)
		return nil
	}

	lock, err := utils.AcquireRunLock(cfg.LockPath())
	if err != nil {
		logError(logger, err)
		return err
	}
	defer lock.Release()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logError(logger, err)
		return err
	}

	writer := storage.NewResilientWriter(backend, logger, storage.WriterOptions{
		MaxSignalAttempts: cfg.MaxSignalAttempts,
		InactiveBatchSize: cfg.InactiveBatchSize,
		ActiveReadLimit:   cfg.ActiveReadLimit,
	})
	if cfg.SignalsCSVPath != "" && !cfg.DryRun {
		csvWriter, err := storage.NewCSVWriter(cfg.SignalsCSVPath)
		if err != nil {
			_ = writer.Close()
			logError(logger, err)
			return err
		}
		writer.WithAuditSink(csvWriter)
		logger.Info("Signals mirrored to %s", cfg.SignalsCSVPath)
	}
	defer writer.Close()

	source := newSource(cfg, logger)
	orch := services.NewOrchestrator(source, writer, utils.NewThrottle(cfg.EntityPause), logger, services.RunOptions{
		Fetch: scraper.FetchParams{
			TimeRange:       cfg.TimeRange,
			MaxJobs:         cfg.MaxJobs,
			IncludeAI:       cfg.IncludeAI,
			IncludeLinkedIn: cfg.IncludeLinkedIn,
		},
		InactiveBatchSize: writer.Options().InactiveBatchSize,
		RemoveOnTruncated: cfg.RemoveOnTruncated,
		ExpiredFeed:       cfg.FetchExpired,
		DryRun:            cfg.DryRun,
	})

	started := time.Now()
	_, runErr := orch.Run(ctx, entities)

	summary := services.NewSummaryService(logger)
	report := summary.Generate(orch.Results(), started, time.Now())
	report.Source = source.Name()
	report.Backend = cfg.StorageBackend
	report.DryRun = cfg.DryRun
	report.DroppedColumns = writer.DroppedColumns()
	if runErr != nil {
		report.Failure = runErr.Error()
	}
	summary.Print(os.Stdout, report)

	if runErr != nil {
		logError(logger, runErr)
		return runErr
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		sw, err := storage.NewSQLiteWriter(ctx, cfg.SQLitePath, cfg.Migrate)
		if err != nil {
			return nil, err
		}
		return sw, nil
	case config.BackendPostgREST:
		return storage.NewPostgRESTWriter(cfg.SupabaseURL, cfg.SupabaseServiceKey), nil
	default:
		pw, err := storage.NewPostgresWriter(ctx, cfg.DSN(), cfg.Migrate)
		if err != nil {
			return nil, err
		}
		return pw, nil
	}
}

func newSource(cfg *config.Config, logger *utils.Logger) scraper.Source {
	if cfg.FetchSource == config.SourceCareerSite {
		return careersite.New(cfg.ChromeBin, cfg.MaxRetries, logger)
	}
	return apify.New(apify.Options{
		BaseURL:    cfg.ApifyBaseURL,
		Token:      cfg.ApifyToken,
		MaxRetries: cfg.MaxRetries,
	}, logger)
}

func logError(logger *utils.Logger, err error) {
	logger.Error("%v", err)
	if hint := errors.FlattenHints(err); hint != "" {
		logger.Error("hint: %s", hint)
	}
}

// exitCode maps configuration problems to 2 and everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalid) {
		return exitConfig
	}
	return exitFailure
}
