package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository bumps the aggregate counters on links. Each increment is a
// single UPDATE, so any number of concurrent visits can share a row.
type CounterRepository interface {
	IncrementClicks(ctx context.Context, linkID string) error
	IncrementViews(ctx context.Context, linkID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type counterRepository struct {
	db execer
}

// NewCounterRepository returns a pgx-backed CounterRepository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{db: pool}
}

const (
	incrementClicksSQL = `UPDATE links SET clicks = clicks + 1 WHERE id = $1`
	incrementViewsSQL  = `UPDATE links SET views = views + 1 WHERE id = $1`
)

func (r *counterRepository) IncrementClicks(ctx context.Context, linkID string) error {
	return r.increment(ctx, incrementClicksSQL, linkID)
}

func (r *counterRepository) IncrementViews(ctx context.Context, linkID string) error {
	return r.increment(ctx, incrementViewsSQL, linkID)
}

func (r *counterRepository) increment(ctx context.Context, sql, linkID string) error {
	tag, err := r.db.Exec(ctx, sql, linkID)
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}
