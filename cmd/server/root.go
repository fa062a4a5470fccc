package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hrdash/internal/app/server"
	"hrdash/internal/domain/employee"
	"hrdash/internal/domain/importer"
	"hrdash/internal/platform/config"
	"hrdash/internal/platform/db"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/platform/logging"
	"hrdash/internal/platform/metrics"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hrdash",
		Short:        "Contract lifecycle and document service",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd(), newImportCmd())
	return cmd
}

// bootstrap loads and validates the configuration and builds the logger.
func bootstrap() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(employee.KnownProjects()); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := server.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Start(ctx)
			return app.Serve(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply migrations and sync every enabled project table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			pool, err := db.Connect(cmd.Context(), cfg)
			if err != nil {
				return errors.Wrap(err, "db connect")
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool, log); err != nil {
				return err
			}
			projects, err := server.BuildProjects(cmd.Context(), pool, cfg, log)
			if err != nil {
				return err
			}
			log.WithField("projects", projects.Slugs()).Info("project tables synced")
			return nil
		},
	}
}

// connectProjects opens the pool and resolves the enabled projects without
// running migrations.
func connectProjects(ctx context.Context, cfg config.Config, log *logrus.Logger) (*pgxpool.Pool, server.Projects, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "db connect")
	}
	projects, err := server.BuildProjects(ctx, pool, cfg, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, projects, nil
}

func newSweepCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark lapsed contracts EOC for one project, or all with --project=all",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			pool, projects, err := connectProjects(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			slugs := projects.Slugs()
			if project = strings.ToLower(strings.TrimSpace(project)); project != "all" {
				if _, err := projects.Lookup(project); err != nil {
					return err
				}
				slugs = []string{project}
			}

			collector := metrics.New()
			jobSvc := jobs.New(pool, 0, log.WithField("app", "hrdash"), collector)
			results := make([]any, 0, len(slugs))
			for _, slug := range slugs {
				res, err := jobSvc.RunNow(cmd.Context(), jobs.JobExpirySweep, slug, projects.SweepJob(slug, collector))
				if err != nil {
					return errors.Wrapf(err, "sweep %s", slug)
				}
				results = append(results, res)
			}
			return writeJSON(cmd, results)
		},
	}
	cmd.Flags().StringVar(&project, "project", "all", "project slug or all")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		project string
		file    string
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import a CSV or XLSX file into one project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			pool, projects, err := connectProjects(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			p, err := projects.Lookup(strings.ToLower(strings.TrimSpace(project)))
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return errors.Wrap(err, "open import file")
			}
			defer f.Close()

			jobSvc := jobs.New(pool, 0, log.WithField("app", "hrdash"), metrics.New())
			var result importer.Result
			_, err = jobSvc.RunNow(cmd.Context(), jobs.JobBulkImport, p.Schema.Project, func(ctx context.Context) (any, error) {
				var err error
				result, err = p.Importer.Import(ctx, file, f, importer.Options{Strict: strict})
				return result, err
			})
			var rejected *importer.RejectedError
			if errors.As(err, &rejected) {
				_ = writeJSON(cmd, rejected.Report)
				return rejected
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug")
	cmd.Flags().StringVar(&file, "file", "", "path to a .csv or .xlsx file")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject the whole file when any row is invalid")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
