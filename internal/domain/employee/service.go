package employee

import (
	"context"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/domain/contract"
	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/history"
	"hrdash/internal/platform/storage"
)

type HistoryRecorder interface {
	RecordIfChanged(ctx context.Context, table string, employeeID int64, before, after history.Snapshot, modifiedBy string) bool
	List(ctx context.Context, table string, employeeID int64) ([]history.Entry, error)
}

// Files is the physical document storage.
type Files interface {
	Save(project, docType string, ownerID int64, originalName string, src io.Reader) (storage.Object, error)
	Open(path string) (storage.File, error)
	Stat(path string) (fs.FileInfo, error)
	Remove(path string) error
}

type Service struct {
	Schema  Schema
	Store   Repository
	History HistoryRecorder
	Files   Files
	Now     func() time.Time
	Loc     *time.Location
	Log     *logrus.Entry
}

func NewService(schema Schema, store Repository, recorder HistoryRecorder, files Files, loc *time.Location, log *logrus.Entry) *Service {
	return &Service{
		Schema:  schema,
		Store:   store,
		History: recorder,
		Files:   files,
		Now:     time.Now,
		Loc:     loc,
		Log:     log.WithField("project", schema.Project),
	}
}

// Today is the current calendar date in the configured zone.
func (s *Service) Today() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return dates.Today(now(), s.Loc)
}

func (s *Service) ListActive(ctx context.Context) ([]Record, error) {
	today := s.Today()
	records, err := s.Store.ListActive(ctx, today)
	if err != nil {
		return nil, err
	}
	return evaluateAll(records, today), nil
}

func (s *Service) ListInactive(ctx context.Context) ([]Record, error) {
	today := s.Today()
	records, err := s.Store.ListInactive(ctx, today)
	if err != nil {
		return nil, err
	}
	return evaluateAll(records, today), nil
}

// ListExpiring returns active records whose contract ends within days.
func (s *Service) ListExpiring(ctx context.Context, days int) ([]Record, error) {
	if days < 0 {
		return nil, invalid("days", "must not be negative")
	}
	today := s.Today()
	records, err := s.Store.ListExpiring(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return evaluateAll(records, today), nil
}

func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	rec.Evaluate(s.Today())
	return rec, nil
}

// Create inserts a record and reports the payload keys that were dropped.
func (s *Service) Create(ctx context.Context, data map[string]any) (Record, []string, error) {
	today := s.Today()
	changes, err := s.Schema.PrepareCreate(data, today)
	if err != nil {
		return Record{}, nil, err
	}
	rec, err := s.Store.Insert(ctx, changes.Values)
	if err != nil {
		return Record{}, nil, err
	}
	rec.Evaluate(today)
	return rec, changes.Dropped, nil
}

func (s *Service) Update(ctx context.Context, id int64, data map[string]any, actor string) (Record, error) {
	today := s.Today()
	var changes Changes
	before, after, err := s.Store.Update(ctx, id, func(current Record) (map[string]any, error) {
		prepared, err := s.Schema.PrepareUpdate(current, data, today)
		if err != nil {
			return nil, err
		}
		if clearsReason(current, prepared.Values) {
			if err := s.checkReactivation(current, prepared.Values, today); err != nil {
				return nil, err
			}
		}
		changes = prepared
		return prepared.Values, nil
	})
	if err != nil {
		return Record{}, err
	}
	s.afterWrite(ctx, before, after, changes.Cleared, actor)
	after.Evaluate(today)
	return after, nil
}

// SetInactive records a manual deactivation reason. Contract dates are left
// untouched.
func (s *Service) SetInactive(ctx context.Context, id int64, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, invalid("reason", "is required")
	}
	_, after, err := s.Store.Update(ctx, id, func(Record) (map[string]any, error) {
		return map[string]any{ColDeactivationReason: reason}, nil
	})
	if err != nil {
		return Record{}, err
	}
	after.Evaluate(s.Today())
	return after, nil
}

// Restore reactivates an inactive record. The same call must change the
// contract number or dates, and the resulting contract must not have lapsed.
func (s *Service) Restore(ctx context.Context, id int64, data map[string]any, actor string) (Record, error) {
	today := s.Today()
	payload := make(map[string]any, len(data))
	for key, value := range data {
		if key != ColDeactivationReason {
			payload[key] = value
		}
	}

	var changes Changes
	before, after, err := s.Store.Update(ctx, id, func(current Record) (map[string]any, error) {
		current.Evaluate(today)
		if current.Status != contract.StatusInactive {
			return nil, ErrNotInactive
		}
		prepared, err := s.Schema.PrepareUpdate(current, payload, today)
		if err != nil {
			return nil, err
		}
		if err := s.checkReactivation(current, prepared.Values, today); err != nil {
			return nil, err
		}
		prepared.Values[ColDeactivationReason] = nil
		changes = prepared
		return prepared.Values, nil
	})
	if err != nil {
		return Record{}, err
	}
	s.afterWrite(ctx, before, after, changes.Cleared, actor)
	after.Evaluate(today)
	return after, nil
}

// Delete removes the record with its history and certificates, then its
// stored documents on a best-effort basis.
func (s *Service) Delete(ctx context.Context, id int64) (Record, error) {
	removed, err := s.Store.Delete(ctx, id)
	if err != nil {
		return Record{}, err
	}
	for _, kind := range s.Schema.DocumentKinds {
		if slot, ok := removed.Document(kind); ok {
			s.removeFile(slot.Filepath, removed.ID, kind)
		}
	}
	removed.Evaluate(s.Today())
	return removed, nil
}

func (s *Service) ContractHistory(ctx context.Context, id int64) ([]history.Entry, error) {
	if _, err := s.Store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.History.List(ctx, s.Schema.HistoryTable(), id)
}

// CheckExpired lists records that have no reason but whose contract ended
// before today.
func (s *Service) CheckExpired(ctx context.Context) ([]Record, error) {
	today := s.Today()
	records, err := s.Store.ListLapsed(ctx, today)
	if err != nil {
		return nil, err
	}
	return evaluateAll(records, today), nil
}

type SweepOutcome struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ContractEndDate string `json:"contract_end_date"`
	Outcome         string `json:"outcome"`
	Error           string `json:"error,omitempty"`
}

type SweepResult struct {
	Project     string         `json:"project"`
	Checked     int            `json:"checked"`
	Deactivated int            `json:"deactivated"`
	Failed      int            `json:"failed"`
	Records     []SweepOutcome `json:"records"`
}

const (
	OutcomeDeactivated = "deactivated"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
)

// SweepExpired sets EOC on every lapsed record. Each row is re-checked under
// its lock; a failure on one row does not stop the sweep.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	today := s.Today()
	lapsed, err := s.Store.ListLapsed(ctx, today)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Project: s.Schema.Project, Checked: len(lapsed), Records: make([]SweepOutcome, 0, len(lapsed))}
	for _, rec := range lapsed {
		outcome := SweepOutcome{ID: rec.ID, Name: rec.Name, ContractEndDate: rec.ContractEndDate, Outcome: OutcomeDeactivated}
		applied := false
		_, _, err := s.Store.Update(ctx, rec.ID, func(current Record) (map[string]any, error) {
			if contract.HasReason(current.DeactivationReason) || !contract.Lapsed(current.EndDate(), today) {
				return nil, nil
			}
			applied = true
			return map[string]any{ColDeactivationReason: contract.ReasonEndOfContract}, nil
		})
		switch {
		case err != nil:
			outcome.Outcome = OutcomeFailed
			outcome.Error = err.Error()
			result.Failed++
			s.Log.WithError(err).WithField("employeeId", rec.ID).Warn("expiry sweep update failed")
		case !applied:
			outcome.Outcome = OutcomeSkipped
		default:
			result.Deactivated++
		}
		result.Records = append(result.Records, outcome)
	}
	return result, nil
}

// checkReactivation enforces the restore rule: the contract number or dates
// must change and the resulting contract must not have lapsed.
func (s *Service) checkReactivation(current Record, values map[string]any, today time.Time) error {
	next := current.apply(s.Schema, values)
	if next.Contract().Equal(current.Contract()) {
		return ErrRestoreRequiresContractChange
	}
	if contract.Lapsed(next.EndDate(), today) {
		return invalid(ColContractEndDate, "must not be in the past to restore")
	}
	return nil
}

// clearsReason reports whether values remove the deactivation reason of a
// record that currently has one.
func clearsReason(current Record, values map[string]any) bool {
	if !contract.HasReason(current.DeactivationReason) {
		return false
	}
	v, ok := values[ColDeactivationReason]
	if !ok {
		return false
	}
	return strings.TrimSpace(asString(v)) == ""
}

// afterWrite runs the best-effort side effects of a committed update.
func (s *Service) afterWrite(ctx context.Context, before, after Record, cleared []DocumentKind, actor string) {
	if s.History != nil {
		s.History.RecordIfChanged(ctx, s.Schema.HistoryTable(), after.ID, before.Contract(), after.Contract(), actor)
	}
	for _, kind := range cleared {
		if slot, ok := before.Document(kind); ok {
			s.removeFile(slot.Filepath, before.ID, kind)
		}
	}
}

func (s *Service) removeFile(path string, id int64, kind DocumentKind) {
	if s.Files == nil || path == "" {
		return
	}
	if err := s.Files.Remove(path); err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{
			"employeeId": id,
			"docType":    kind,
			"path":       path,
		}).Warn("stored document cleanup failed")
	}
}

func evaluateAll(records []Record, today time.Time) []Record {
	for i := range records {
		records[i].Evaluate(today)
	}
	return records
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
