package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	sql  []string
	args []any
	tag  string
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, arguments...)
	return pgconn.NewCommandTag(f.tag), f.err
}

func TestCounterRepository_Increment(t *testing.T) {
	db := &fakeExecer{tag: "UPDATE 1"}
	repo := &counterRepository{db: db}

	require.NoError(t, repo.IncrementClicks(context.Background(), "l-1"))
	require.NoError(t, repo.IncrementViews(context.Background(), "l-1"))

	assert.Equal(t, []string{incrementClicksSQL, incrementViewsSQL}, db.sql)
	assert.Equal(t, []any{"l-1", "l-1"}, db.args)
}

func TestCounterRepository_Errors(t *testing.T) {
	repo := &counterRepository{db: &fakeExecer{tag: "UPDATE 0"}}
	assert.ErrorIs(t, repo.IncrementClicks(context.Background(), "gone"), ErrLinkNotFound)

	boom := errors.New("conn reset")
	repo = &counterRepository{db: &fakeExecer{err: boom}}
	assert.ErrorIs(t, repo.IncrementViews(context.Background(), "l-1"), boom)
}
