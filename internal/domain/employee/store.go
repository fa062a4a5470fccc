package employee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hrdash/internal/platform/querier"
)

type Store struct {
	DB     querier.Querier
	Schema Schema
}

func NewStore(db querier.Querier, schema Schema) *Store {
	return &Store{DB: db, Schema: schema}
}

const hasReasonSQL = "NULLIF(btrim(deactivation_reason), '') IS NOT NULL"

func (s *Store) ListActive(ctx context.Context, today time.Time) ([]Record, error) {
	return s.list(ctx, "NOT ("+hasReasonSQL+") AND contract_end_date >= $1", "contract_end_date ASC, id ASC", today)
}

func (s *Store) ListInactive(ctx context.Context, today time.Time) ([]Record, error) {
	return s.list(ctx, hasReasonSQL+" OR contract_end_date < $1", "contract_end_date DESC, id DESC", today)
}

func (s *Store) ListLapsed(ctx context.Context, today time.Time) ([]Record, error) {
	return s.list(ctx, "NOT ("+hasReasonSQL+") AND contract_end_date < $1", "contract_end_date ASC, id ASC", today)
}

func (s *Store) ListExpiring(ctx context.Context, today, until time.Time) ([]Record, error) {
	return s.list(ctx, "NOT ("+hasReasonSQL+") AND contract_end_date >= $1 AND contract_end_date <= $2", "contract_end_date ASC, id ASC", today, until)
}

func (s *Store) list(ctx context.Context, where, order string, args ...any) ([]Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s", s.Schema.selectList(), ident(s.Schema.Table), where, order)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(maps))
	for _, m := range maps {
		out = append(out, recordFromMap(s.Schema, m))
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	return s.getOne(ctx, s.DB, id, false)
}

func (s *Store) getOne(ctx context.Context, q querier.Querier, id int64, lock bool) (Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", s.Schema.selectList(), ident(s.Schema.Table))
	if lock {
		query += " FOR UPDATE"
	}
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return Record{}, err
	}
	return s.collectOne(rows)
}

func (s *Store) collectOne(rows pgx.Rows) (Record, error) {
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return recordFromMap(s.Schema, m), nil
}

func (s *Store) Insert(ctx context.Context, values map[string]any) (Record, error) {
	rec, err := s.insert(ctx, s.DB, values)
	if err != nil {
		return Record{}, dataRejection(err)
	}
	return rec, nil
}

func (s *Store) insert(ctx context.Context, q querier.Querier, values map[string]any) (Record, error) {
	columns := sortedKeys(values)
	if len(columns) == 0 {
		return Record{}, errors.New("insert without columns")
	}
	names := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		names[i] = ident(column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[column]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		ident(s.Schema.Table), strings.Join(names, ", "), strings.Join(placeholders, ", "), s.Schema.selectList())
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return Record{}, err
	}
	return s.collectOne(rows)
}

func (s *Store) Update(ctx context.Context, id int64, fn func(current Record) (map[string]any, error)) (Record, Record, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Record{}, Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := s.getOne(ctx, tx, id, true)
	if err != nil {
		return Record{}, Record{}, err
	}
	values, err := fn(before)
	if err != nil {
		return before, Record{}, err
	}
	if len(values) == 0 {
		return before, before, tx.Commit(ctx)
	}

	columns := sortedKeys(values)
	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	for _, column := range columns {
		args = append(args, values[column])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(column), len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		ident(s.Schema.Table), strings.Join(sets, ", "), len(args), s.Schema.selectList())

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return before, Record{}, dataRejection(err)
	}
	after, err := s.collectOne(rows)
	if err != nil {
		return before, Record{}, dataRejection(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return before, Record{}, err
	}
	return before, after, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (Record, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, child := range []string{s.Schema.HistoryTable(), s.Schema.CertificateTable()} {
		var present bool
		if err := tx.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", child).Scan(&present); err != nil {
			return Record{}, err
		}
		if !present {
			continue
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE employee_id = $1", ident(child)), id); err != nil {
			return Record{}, errors.Wrapf(err, "delete from %s", child)
		}
	}

	rows, err := tx.Query(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING %s", ident(s.Schema.Table), s.Schema.selectList()), id)
	if err != nil {
		return Record{}, err
	}
	removed, err := s.collectOne(rows)
	if err != nil {
		return Record{}, err
	}
	return removed, tx.Commit(ctx)
}

func (s *Store) ImportBatch(ctx context.Context, fn func(ctx context.Context, ins BatchInserter) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &batchInserter{store: s, tx: tx}); err != nil {
		return err
	}
	if err := s.resyncSequence(ctx, tx); err != nil {
		return errors.Wrap(err, "resync id sequence")
	}
	return tx.Commit(ctx)
}

// resyncSequence moves the id sequence past the highest stored id. It never
// moves the sequence backwards.
func (s *Store) resyncSequence(ctx context.Context, q querier.Querier) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
    WITH seq AS (SELECT pg_get_serial_sequence($1, 'id') AS name)
    SELECT setval(seq.name, GREATEST(
      COALESCE((SELECT MAX(id) FROM %s), 0),
      COALESCE(pg_sequence_last_value(seq.name::regclass), 0)
    ) + 1, false)
    FROM seq
  `, ident(s.Schema.Table)), s.Schema.Table)
	return err
}

// dataRejection turns a Postgres data exception (SQLSTATE class 22, such as a
// numeric overflow) into a ValidationError on the offending column.
func dataRejection(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || !strings.HasPrefix(pgErr.Code, "22") {
		return err
	}
	return &ValidationError{Field: pgErr.ColumnName, Message: pgErr.Message}
}

type batchInserter struct {
	store *Store
	tx    pgx.Tx
}

// Insert isolates each row in a savepoint so a rejected row does not abort
// the surrounding transaction.
func (b *batchInserter) Insert(ctx context.Context, values map[string]any) (Record, error) {
	sp, err := b.tx.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	rec, err := b.store.insert(ctx, sp, values)
	if err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return Record{}, errors.Wrap(ErrRowRejected, pgErr.Message)
		}
		return Record{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// EnsureSchema creates or extends the project table from its descriptor and
// registers the project. Existing columns are never altered or dropped.
func (s *Store) EnsureSchema(ctx context.Context) error {
	table := ident(s.Schema.Table)
	statements := []string{fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
      id BIGSERIAL PRIMARY KEY,
      name TEXT NOT NULL,
      contract_number TEXT,
      contract_start_date DATE NOT NULL,
      contract_end_date DATE NOT NULL,
      deactivation_reason TEXT,
      created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
      updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`, table)}

	for _, col := range s.Schema.Columns {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, ident(col.Name), sqlType(col.Kind)))
	}
	for _, kind := range s.Schema.DocumentKinds {
		fn, fp, mt, fs := SlotColumns(kind)
		for _, name := range []string{fn, fp, mt} {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", table, ident(name)))
		}
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s BIGINT", table, ident(fs)))
	}
	statements = append(statements, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (contract_end_date)",
		ident(s.Schema.Table+"_contract_end_idx"), table,
	))

	for _, stmt := range statements {
		if _, err := s.DB.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "sync %s", s.Schema.Table)
		}
	}

	_, err := s.DB.Exec(ctx, `
    INSERT INTO projects (slug, table_name, display_name, synced_at)
    VALUES ($1,$2,$3,now())
    ON CONFLICT (slug) DO UPDATE
    SET table_name = EXCLUDED.table_name, display_name = EXCLUDED.display_name, synced_at = now()
  `, s.Schema.Project, s.Schema.Table, s.Schema.DisplayName)
	return err
}
