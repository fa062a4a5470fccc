// Package certificate manages the certificates attached to employee records.
package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hrdash/internal/domain/dates"
	"hrdash/internal/domain/employee"
	"hrdash/internal/platform/querier"
	"hrdash/internal/platform/validation"
)

var (
	ErrNotFound         = errors.New("certificate not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)

type Certificate struct {
	ID         int64     `json:"id"`
	EmployeeID int64     `json:"employee_id"`
	Title      string    `json:"title"`
	ValidFrom  *string   `json:"valid_from"`
	ValidTo    *string   `json:"valid_to"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Input struct {
	EmployeeID int64  `json:"employee_id" validate:"gt=0"`
	Title      string `json:"title" validate:"required,max=255"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to"`
}

type StoreAPI interface {
	List(ctx context.Context, employeeID int64) ([]Certificate, error)
	Get(ctx context.Context, id int64) (Certificate, error)
	Insert(ctx context.Context, in Input) (Certificate, error)
	Update(ctx context.Context, id int64, in Input) (Certificate, error)
	Delete(ctx context.Context, id int64) error
}

type Store struct {
	DB            querier.Querier
	Table         string
	EmployeeTable string
}

func NewStore(db querier.Querier, schema employee.Schema) *Store {
	return &Store{DB: db, Table: schema.CertificateTable(), EmployeeTable: schema.Table}
}

func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
      id BIGSERIAL PRIMARY KEY,
      employee_id BIGINT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
      title TEXT NOT NULL,
      valid_from DATE,
      valid_to DATE,
      created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
      updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )
  `, s.table(), pgx.Identifier{s.EmployeeTable}.Sanitize()))
	if err != nil {
		return errors.Wrapf(err, "create %s", s.Table)
	}
	return nil
}

const columns = `id, employee_id, title, to_char(valid_from, 'YYYY-MM-DD'), to_char(valid_to, 'YYYY-MM-DD'), created_at, updated_at`

func (s *Store) List(ctx context.Context, employeeID int64) ([]Certificate, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", columns, s.table())
	var args []any
	if employeeID > 0 {
		query += " WHERE employee_id = $1"
		args = append(args, employeeID)
	}
	query += " ORDER BY valid_to DESC NULLS LAST, id DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Certificate{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (Certificate, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columns, s.table()), id)
	return notFound(scan(row))
}

func (s *Store) Insert(ctx context.Context, in Input) (Certificate, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    INSERT INTO %s (employee_id, title, valid_from, valid_to)
    VALUES ($1,$2,$3,$4)
    RETURNING %s
  `, s.table(), columns), in.EmployeeID, in.Title, nullable(in.ValidFrom), nullable(in.ValidTo))
	return foreignKey(scan(row))
}

func (s *Store) Update(ctx context.Context, id int64, in Input) (Certificate, error) {
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
    UPDATE %s
    SET employee_id = $1, title = $2, valid_from = $3, valid_to = $4, updated_at = now()
    WHERE id = $5
    RETURNING %s
  `, s.table(), columns), in.EmployeeID, in.Title, nullable(in.ValidFrom), nullable(in.ValidTo), id)
	return foreignKey(notFound(scan(row)))
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.DB.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table()), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) table() string {
	return pgx.Identifier{s.Table}.Sanitize()
}

func scan(row pgx.Row) (Certificate, error) {
	var c Certificate
	err := row.Scan(&c.ID, &c.EmployeeID, &c.Title, &c.ValidFrom, &c.ValidTo, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func notFound(c Certificate, err error) (Certificate, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Certificate{}, ErrNotFound
	}
	return c, err
}

func foreignKey(c Certificate, err error) (Certificate, error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Certificate{}, ErrEmployeeNotFound
	}
	return c, err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

type Service struct {
	Store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{Store: store}
}

func (s *Service) List(ctx context.Context, employeeID int64) ([]Certificate, error) {
	return s.Store.List(ctx, employeeID)
}

func (s *Service) Get(ctx context.Context, id int64) (Certificate, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Certificate, error) {
	normalized, err := normalize(in)
	if err != nil {
		return Certificate{}, err
	}
	return s.Store.Insert(ctx, normalized)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) (Certificate, error) {
	normalized, err := normalize(in)
	if err != nil {
		return Certificate{}, err
	}
	return s.Store.Update(ctx, id, normalized)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.Store.Delete(ctx, id)
}

// normalize trims the input, validates it and canonicalizes both dates.
func normalize(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	if issues := validation.Struct(in); len(issues) > 0 {
		return Input{}, &employee.ValidationError{Field: issues[0].Field, Message: issues[0].Reason}
	}

	var err error
	if in.ValidFrom, err = optionalDate("valid_from", in.ValidFrom); err != nil {
		return Input{}, err
	}
	if in.ValidTo, err = optionalDate("valid_to", in.ValidTo); err != nil {
		return Input{}, err
	}
	if in.ValidFrom != "" && in.ValidTo != "" && in.ValidTo < in.ValidFrom {
		return Input{}, &employee.ValidationError{Field: "valid_to", Message: "must be on or after valid_from"}
	}
	return in, nil
}

func optionalDate(field, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	normalized, ok := dates.NormalizeString(raw)
	if !ok {
		return "", &employee.ValidationError{Field: field, Message: "must be a valid date (DD/MM/YYYY or YYYY-MM-DD)"}
	}
	return normalized, nil
}
