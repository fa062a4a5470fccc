package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/platform/metrics"
	"hrdash/internal/platform/querier"
)

const (
	JobExpirySweep = "expiry_sweep"
	JobBulkImport  = "bulk_import"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

// Run is one row of job_runs.
type Run struct {
	ID          int64           `json:"id"`
	Project     string          `json:"project"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Service runs jobs on a single worker goroutine and records each run in
// job_runs. A nil DB disables recording.
type Service struct {
	DB       querier.Querier
	Interval time.Duration
	Log      *logrus.Entry
	Metrics  *metrics.Collector

	queue chan job

	mu        sync.Mutex
	scheduled map[string]job
}

type job struct {
	Type    string
	Project string
	Run     RunFunc
}

func New(db querier.Querier, interval time.Duration, log *logrus.Entry, m *metrics.Collector) *Service {
	return &Service{
		DB:        db,
		Interval:  interval,
		Log:       log.WithField("component", "jobs"),
		Metrics:   m,
		queue:     make(chan job, 128),
		scheduled: make(map[string]job),
	}
}

// Schedule registers run to be enqueued on every tick of Interval.
func (s *Service) Schedule(jobType, project string, run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[jobType+"/"+project] = job{Type: jobType, Project: project, Run: run}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Interval > 0 {
		go s.schedule(ctx, s.Interval)
	}
}

func (s *Service) Enqueue(jobType, project string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Project: project, Run: run}:
		return true
	default:
		s.Log.WithFields(logrus.Fields{"jobType": jobType, "project": project}).Warn("job queue full")
		return false
	}
}

// RunNow executes run on the caller's goroutine and records it like a
// scheduled run.
func (s *Service) RunNow(ctx context.Context, jobType, project string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Project: project, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.Log.WithError(err).WithFields(logrus.Fields{"jobType": j.Type, "project": j.Project}).Warn("job run failed")
			}
		}
	}
}

func (s *Service) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, j := range s.scheduledJobs() {
				s.Enqueue(j.Type, j.Project, j.Run)
			}
		}
	}
}

func (s *Service) scheduledJobs() []job {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.scheduled))
	for key := range s.scheduled {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]job, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.scheduled[key])
	}
	return out
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	log := s.Log.WithFields(logrus.Fields{"jobType": j.Type, "project": j.Project})
	var runID int64
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (project, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, j.Project, j.Type, StatusRunning).Scan(&runID); err != nil {
			log.WithError(err).Warn("job run insert failed")
		}
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "result": details}
	}
	s.Metrics.JobRun(j.Project, j.Type, status)
	log.WithFields(logrus.Fields{"status": status, "elapsed": time.Since(started).String()}).Info("job run finished")

	if runID != 0 {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			log.WithError(marshalErr).Warn("job details marshal failed")
			detailsJSON = []byte("{}")
		}
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			log.WithError(updErr).Warn("job run update failed")
		}
	}
	return details, err
}

// List returns the latest runs for project, newest first. An empty jobType
// matches every type.
func (s *Service) List(ctx context.Context, project, jobType string, limit, offset int) ([]Run, error) {
	if s.DB == nil {
		return []Run{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id, project, job_type, status, details_json, started_at, completed_at
    FROM job_runs
    WHERE project = $1 AND ($2 = '' OR job_type = $2)
    ORDER BY started_at DESC, id DESC
    LIMIT $3 OFFSET $4
  `, project, jobType, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list job runs")
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		var details []byte
		if err := row.Scan(&r.ID, &r.Project, &r.JobType, &r.Status, &details, &r.StartedAt, &r.CompletedAt); err != nil {
			return Run{}, err
		}
		if len(details) > 0 {
			r.Details = json.RawMessage(details)
		}
		return r, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan job runs")
	}
	return runs, nil
}
