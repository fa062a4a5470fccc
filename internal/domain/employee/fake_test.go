package employee

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"hrdash/internal/domain/contract"
	"hrdash/internal/domain/history"
	"hrdash/internal/platform/storage"
)

// memoryRepo is an in-memory Repository that also stands in for the history
// and certificate tables so cascades can be observed.
type memoryRepo struct {
	mu           sync.Mutex
	schema       Schema
	nextID       int64
	rows         map[int64]Record
	history      map[int64][]history.Entry
	certificates map[int64]int
	failUpdate   error
	failInsertAt map[string]bool
}

func newMemoryRepo(schema Schema) *memoryRepo {
	return &memoryRepo{
		schema:       schema,
		rows:         make(map[int64]Record),
		history:      make(map[int64][]history.Entry),
		certificates: make(map[int64]int),
		failInsertAt: make(map[string]bool),
	}
}

func (m *memoryRepo) filter(keep func(Record) bool, desc bool) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.rows {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContractEndDate == out[j].ContractEndDate {
			return out[i].ID < out[j].ID
		}
		if desc {
			return out[i].ContractEndDate > out[j].ContractEndDate
		}
		return out[i].ContractEndDate < out[j].ContractEndDate
	})
	return out
}

func (m *memoryRepo) ListActive(_ context.Context, today time.Time) ([]Record, error) {
	return m.filter(func(r Record) bool {
		return contract.Classify(r.DeactivationReason, r.EndDate(), today) == contract.StatusActive
	}, false), nil
}

func (m *memoryRepo) ListInactive(_ context.Context, today time.Time) ([]Record, error) {
	return m.filter(func(r Record) bool {
		return contract.Classify(r.DeactivationReason, r.EndDate(), today) == contract.StatusInactive
	}, true), nil
}

func (m *memoryRepo) ListLapsed(_ context.Context, today time.Time) ([]Record, error) {
	return m.filter(func(r Record) bool {
		return !contract.HasReason(r.DeactivationReason) && contract.Lapsed(r.EndDate(), today)
	}, false), nil
}

func (m *memoryRepo) ListExpiring(_ context.Context, today, until time.Time) ([]Record, error) {
	return m.filter(func(r Record) bool {
		end := r.EndDate()
		return !contract.HasReason(r.DeactivationReason) && !end.Before(today) && !end.After(until)
	}, false), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.apply(m.schema, nil), nil
}

func (m *memoryRepo) Insert(_ context.Context, values map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, _ := values[ColName].(string); m.failInsertAt[name] {
		return Record{}, errors.Wrap(ErrRowRejected, "duplicate key value")
	}
	m.nextID++
	rec := newRecord(m.schema).apply(m.schema, values)
	rec.ID = m.nextID
	rec.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rec.UpdatedAt = rec.CreatedAt
	m.rows[rec.ID] = rec
	return rec.apply(m.schema, nil), nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, fn func(Record) (map[string]any, error)) (Record, Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[id]
	if !ok {
		return Record{}, Record{}, ErrNotFound
	}
	before := current.apply(m.schema, nil)
	values, err := fn(current.apply(m.schema, nil))
	if err != nil {
		return before, Record{}, err
	}
	if len(values) == 0 {
		return before, before, nil
	}
	if m.failUpdate != nil {
		return before, Record{}, m.failUpdate
	}
	after := current.apply(m.schema, values)
	m.rows[id] = after
	return before, after.apply(m.schema, nil), nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	delete(m.history, id)
	delete(m.certificates, id)
	delete(m.rows, id)
	return rec, nil
}

func (m *memoryRepo) ImportBatch(ctx context.Context, fn func(context.Context, BatchInserter) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]Record, len(m.rows))
	for id, rec := range m.rows {
		snapshot[id] = rec
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.rows, m.nextID = snapshot, nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryRepo) appendHistory(entry history.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.history[entry.EmployeeID]) + 1)
	m.history[entry.EmployeeID] = append(m.history[entry.EmployeeID], entry)
}

// memoryHistory adapts memoryRepo to history.StoreAPI.
type memoryHistory struct{ repo *memoryRepo }

func (h memoryHistory) Insert(_ context.Context, _ string, entry history.Entry) error {
	h.repo.appendHistory(entry)
	return nil
}

func (h memoryHistory) List(_ context.Context, _ string, employeeID int64) ([]history.Entry, error) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	return append([]history.Entry(nil), h.repo.history[employeeID]...), nil
}

func (m *memoryRepo) historyCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history[id])
}

var testToday = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func quietLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type fixture struct {
	schema      Schema
	repo        *memoryRepo
	files       *storage.Local
	service     *Service
	attachments *Attachments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	schema, ok := LookupProject("regional2")
	require.True(t, ok)

	repo := newMemoryRepo(schema)
	files := storage.NewLocal(t.TempDir())
	recorder := history.NewRecorder(memoryHistory{repo: repo}, quietLog())

	svc := NewService(schema, repo, recorder, files, time.UTC, quietLog())
	svc.Now = func() time.Time { return testToday.Add(10 * time.Hour) }

	return &fixture{
		schema:      schema,
		repo:        repo,
		files:       files,
		service:     svc,
		attachments: NewAttachments(schema, repo, files, quietLog()),
	}
}

func (f *fixture) create(t *testing.T, data map[string]any) Record {
	t.Helper()
	rec, _, err := f.service.Create(context.Background(), data)
	require.NoError(t, err)
	return rec
}
