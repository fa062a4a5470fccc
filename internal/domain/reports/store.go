package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"hrdash/internal/domain/employee"
	"hrdash/internal/platform/querier"
)

const hasReason = "NULLIF(btrim(deactivation_reason), '') IS NOT NULL"

// Summary is the per-project headcount shown on the dashboard cards.
type Summary struct {
	Project  string `json:"project"`
	Total    int64  `json:"total"`
	Active   int64  `json:"active"`
	Inactive int64  `json:"inactive"`
	Expiring int64  `json:"expiring"`
	Lapsed   int64  `json:"lapsed"`
	Days     int    `json:"days"`
}

type Store struct {
	DB    querier.Querier
	Table string
}

func NewStore(db querier.Querier, schema employee.Schema) *Store {
	return &Store{DB: db, Table: schema.Table}
}

// Summary counts records by derived status. Lapsed rows still lack a reason
// and are waiting for the expiry sweep.
func (s *Store) Summary(ctx context.Context, today, until time.Time) (Summary, error) {
	query := fmt.Sprintf(`
    SELECT
      COUNT(*),
      COUNT(*) FILTER (WHERE NOT (%[2]s) AND contract_end_date >= $1),
      COUNT(*) FILTER (WHERE %[2]s OR contract_end_date < $1 OR contract_end_date IS NULL),
      COUNT(*) FILTER (WHERE NOT (%[2]s) AND contract_end_date >= $1 AND contract_end_date <= $2),
      COUNT(*) FILTER (WHERE NOT (%[2]s) AND contract_end_date < $1)
    FROM %[1]s
  `, pgx.Identifier{s.Table}.Sanitize(), hasReason)

	var out Summary
	if err := s.DB.QueryRow(ctx, query, today, until).Scan(&out.Total, &out.Active, &out.Inactive, &out.Expiring, &out.Lapsed); err != nil {
		return Summary{}, errors.Wrap(err, "count contracts")
	}
	return out, nil
}
