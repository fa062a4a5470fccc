// Package history keeps the append-only contract history of employee records.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"hrdash/internal/platform/querier"
)

const DefaultActor = "system"

// Snapshot holds the three contract-identifying fields of a record.
type Snapshot struct {
	ContractNumber string
	StartDate      string
	EndDate        string
}

func (s Snapshot) Equal(other Snapshot) bool {
	return s.ContractNumber == other.ContractNumber &&
		s.StartDate == other.StartDate &&
		s.EndDate == other.EndDate
}

type Entry struct {
	ID                int64     `json:"id"`
	EmployeeID        int64     `json:"employee_id"`
	OldContractNumber *string   `json:"old_contract_number"`
	OldStartDate      *string   `json:"old_contract_start_date"`
	OldEndDate        *string   `json:"old_contract_end_date"`
	NewContractNumber *string   `json:"new_contract_number"`
	NewStartDate      *string   `json:"new_contract_start_date"`
	NewEndDate        *string   `json:"new_contract_end_date"`
	ModifiedBy        string    `json:"modified_by"`
	ChangedAt         time.Time `json:"changed_at"`
}

func NewEntry(employeeID int64, before, after Snapshot, modifiedBy string) Entry {
	if modifiedBy == "" {
		modifiedBy = DefaultActor
	}
	return Entry{
		EmployeeID:        employeeID,
		OldContractNumber: nullable(before.ContractNumber),
		OldStartDate:      nullable(before.StartDate),
		OldEndDate:        nullable(before.EndDate),
		NewContractNumber: nullable(after.ContractNumber),
		NewStartDate:      nullable(after.StartDate),
		NewEndDate:        nullable(after.EndDate),
		ModifiedBy:        modifiedBy,
	}
}

type StoreAPI interface {
	Insert(ctx context.Context, table string, entry Entry) error
	List(ctx context.Context, table string, employeeID int64) ([]Entry, error)
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

// EnsureTable creates the history table for one project. Rows cascade with
// their employee.
func (s *Store) EnsureTable(ctx context.Context, table, employeeTable string) error {
	t := pgx.Identifier{table}.Sanitize()
	_, err := s.DB.Exec(ctx, fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
      id BIGSERIAL PRIMARY KEY,
      employee_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
      old_contract_number TEXT,
      old_contract_start_date DATE,
      old_contract_end_date DATE,
      new_contract_number TEXT,
      new_contract_start_date DATE,
      new_contract_end_date DATE,
      modified_by TEXT NOT NULL DEFAULT 'system',
      changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )
  `, t, pgx.Identifier{employeeTable}.Sanitize()))
	if err != nil {
		return errors.Wrapf(err, "create %s", table)
	}
	_, err = s.DB.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (employee_id, changed_at DESC)`,
		pgx.Identifier{table + "_employee_idx"}.Sanitize(), t,
	))
	return err
}

func (s *Store) Insert(ctx context.Context, table string, entry Entry) error {
	_, err := s.DB.Exec(ctx, fmt.Sprintf(`
    INSERT INTO %s (employee_id, old_contract_number, old_contract_start_date, old_contract_end_date,
      new_contract_number, new_contract_start_date, new_contract_end_date, modified_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, pgx.Identifier{table}.Sanitize()),
		entry.EmployeeID, entry.OldContractNumber, entry.OldStartDate, entry.OldEndDate,
		entry.NewContractNumber, entry.NewStartDate, entry.NewEndDate, entry.ModifiedBy)
	return err
}

func (s *Store) List(ctx context.Context, table string, employeeID int64) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
    SELECT id, employee_id, old_contract_number,
      to_char(old_contract_start_date, 'YYYY-MM-DD'), to_char(old_contract_end_date, 'YYYY-MM-DD'),
      new_contract_number,
      to_char(new_contract_start_date, 'YYYY-MM-DD'), to_char(new_contract_end_date, 'YYYY-MM-DD'),
      modified_by, changed_at
    FROM %s
    WHERE employee_id = $1
    ORDER BY changed_at DESC, id DESC
  `, pgx.Identifier{table}.Sanitize()), employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.OldContractNumber, &e.OldStartDate, &e.OldEndDate,
			&e.NewContractNumber, &e.NewStartDate, &e.NewEndDate, &e.ModifiedBy, &e.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Recorder appends history rows on a best-effort basis.
type Recorder struct {
	Store StoreAPI
	Log   *logrus.Entry
}

func NewRecorder(store StoreAPI, log *logrus.Entry) *Recorder {
	return &Recorder{Store: store, Log: log}
}

// RecordIfChanged inserts one entry when any contract field differs. Insert
// failures are logged and reported as false; they never reach the caller as
// an error.
func (r *Recorder) RecordIfChanged(ctx context.Context, table string, employeeID int64, before, after Snapshot, modifiedBy string) bool {
	if before.Equal(after) {
		return false
	}
	if err := r.Store.Insert(ctx, table, NewEntry(employeeID, before, after, modifiedBy)); err != nil {
		if r.Log != nil {
			r.Log.WithError(err).WithFields(logrus.Fields{
				"table":      table,
				"employeeId": employeeID,
			}).Warn("contract history insert failed")
		}
		return false
	}
	return true
}

func (r *Recorder) List(ctx context.Context, table string, employeeID int64) ([]Entry, error) {
	return r.Store.List(ctx, table, employeeID)
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
