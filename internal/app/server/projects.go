package server

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/certificate"
	"hrdash/internal/domain/employee"
	"hrdash/internal/domain/history"
	"hrdash/internal/domain/importer"
	"hrdash/internal/domain/reports"
	"hrdash/internal/platform/config"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/platform/metrics"
	"hrdash/internal/platform/querier"
	"hrdash/internal/platform/storage"
)

// Project bundles the services of one enabled project.
type Project struct {
	Schema       employee.Schema
	Contracts    *employee.Service
	Documents    *employee.Attachments
	Importer     *importer.Importer
	Certificates *certificate.Service
	Reports      *reports.Service
}

// Projects maps lowercase slugs to their services.
type Projects map[string]*Project

// BuildProjects resolves every enabled project and syncs its tables.
func BuildProjects(ctx context.Context, db querier.Querier, cfg config.Config, log *logrus.Logger) (Projects, error) {
	files := storage.NewLocal(cfg.UploadRoot)
	historyStore := history.NewStore(db)
	recorder := history.NewRecorder(historyStore, log.WithField("component", "history"))
	loc := cfg.Location()

	out := make(Projects, len(cfg.Projects))
	for _, slug := range cfg.Projects {
		schema, ok := employee.LookupProject(slug)
		if !ok {
			return nil, errors.Errorf("unknown project %q", slug)
		}
		store := employee.NewStore(db, schema)
		certStore := certificate.NewStore(db, schema)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if err := historyStore.EnsureTable(ctx, schema.HistoryTable(), schema.Table); err != nil {
			return nil, errors.Wrapf(err, "sync history for %s", slug)
		}
		if err := certStore.EnsureTable(ctx); err != nil {
			return nil, errors.Wrapf(err, "sync certificates for %s", slug)
		}

		entry := log.WithField("component", "contracts")
		contracts := employee.NewService(schema, store, recorder, files, loc, entry)
		out[slug] = &Project{
			Schema:       schema,
			Contracts:    contracts,
			Documents:    employee.NewAttachments(schema, store, files, log.WithField("component", "documents")),
			Importer:     importer.New(schema, store, loc, cfg.ImportTimeout, log.WithField("component", "importer")),
			Certificates: certificate.NewService(certStore),
			Reports:      reports.NewService(schema, reports.NewStore(db, schema), contracts),
		}
	}
	return out, nil
}

// Lookup returns the project for slug.
func (p Projects) Lookup(slug string) (*Project, error) {
	project, ok := p[slug]
	if !ok {
		return nil, errors.Errorf("project %q is not enabled", slug)
	}
	return project, nil
}

func (p Projects) Slugs() []string {
	out := make([]string, 0, len(p))
	for slug := range p {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// ScheduleSweeps registers the periodic expiry sweep of every project.
func (p Projects) ScheduleSweeps(svc *jobs.Service, collector *metrics.Collector) {
	for _, slug := range p.Slugs() {
		svc.Schedule(jobs.JobExpirySweep, slug, p.SweepJob(slug, collector))
	}
}

// SweepJob is the expiry sweep of one project as a job.
func (p Projects) SweepJob(slug string, collector *metrics.Collector) jobs.RunFunc {
	project := p[slug]
	return func(ctx context.Context) (any, error) {
		res, err := project.Contracts.SweepExpired(ctx)
		collector.SweepDeactivated(slug, res.Deactivated)
		return res, err
	}
}
