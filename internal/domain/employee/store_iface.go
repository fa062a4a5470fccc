package employee

import (
	"context"
	"time"
)

// Repository is the persistence boundary of one project's employee table.
type Repository interface {
	ListActive(ctx context.Context, today time.Time) ([]Record, error)
	ListInactive(ctx context.Context, today time.Time) ([]Record, error)
	// ListLapsed returns records without a reason whose contract ended before today.
	ListLapsed(ctx context.Context, today time.Time) ([]Record, error)
	ListExpiring(ctx context.Context, today, until time.Time) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Insert(ctx context.Context, values map[string]any) (Record, error)
	// Update locks the row, passes it to fn and writes the values fn returns.
	// An empty result leaves the row untouched.
	Update(ctx context.Context, id int64, fn func(current Record) (map[string]any, error)) (before, after Record, err error)
	// Delete removes the row together with its history and certificates.
	Delete(ctx context.Context, id int64) (Record, error)
	// ImportBatch runs fn in one transaction and commits unless fn fails.
	ImportBatch(ctx context.Context, fn func(ctx context.Context, ins BatchInserter) error) error
}

// BatchInserter inserts rows inside an ImportBatch transaction. A row that
// the database refuses is reported as ErrRowRejected and leaves the batch
// usable; any other error is fatal to the batch.
type BatchInserter interface {
	Insert(ctx context.Context, values map[string]any) (Record, error)
}
