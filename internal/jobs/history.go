package jobs

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Phonograph/internal/database"
	"github.com/jmoiron/sqlx"
)

// HistoryStore appends finished jobs to the job_history table.
type HistoryStore struct {
	db database.Manager
}

func NewHistoryStore(db database.Manager) *HistoryStore {
	return &HistoryStore{db: db}
}

func (store *HistoryStore) Record(ctx context.Context, job Job) error {
	query, args, err := squirrel.
		Insert("job_history").
		Columns("id", "url", "title", "filename", "state", "error", "size_bytes", "created_at", "finished_at").
		Values(job.ID, job.URL, job.Title, job.Filename, string(job.State), job.Error, job.SizeBytes, job.CreatedAt, job.FinishedAt).
		Suffix("ON CONFLICT(id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct insert history query: %w", err)
	}

	return store.db.WrapTx(func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

// Recent returns up to 'limit' of the most recently finished jobs.
func (store *HistoryStore) Recent(ctx context.Context, limit uint64) ([]Job, error) {
	query, args, err := squirrel.
		Select("id", "url", "COALESCE(title, '') AS title", "COALESCE(filename, '') AS filename", "state", "COALESCE(error, '') AS error", "size_bytes", "created_at", "finished_at").
		From("job_history").
		OrderBy("finished_at DESC").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select history query: %w", err)
	}

	db := store.db.GetSqlxDb()
	if db == nil {
		return nil, database.ErrNotConnected
	}

	var results []Job
	if err := db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, err
	}

	return results, nil
}
