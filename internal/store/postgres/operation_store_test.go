package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/ingest/internal/store"
	"github.com/kbforge/ingest/internal/tracker"
)

func sampleOperation(now time.Time) tracker.Operation {
	return tracker.Operation{
		ProgressID: "pid-1",
		SourceKey:  "https://example.com",
		Kind:       tracker.KindCrawl,
		Status:     tracker.StatusRunning,
		Percent:    40,
		Message:    "crawling",
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func TestUpsertExecutesInsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOperationStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	op := sampleOperation(now)

	mock.ExpectExec("INSERT INTO operations").
		WithArgs(
			op.ProgressID,
			op.SourceKey,
			"crawl",
			"running",
			op.Percent,
			op.Message,
			op.StartedAt,
			op.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Upsert(context.Background(), op))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOperationStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"progress_id", "source_key", "kind", "status",
		"progress_percent", "message", "started_at", "updated_at",
	}).AddRow("pid-1", "https://example.com", "crawl", "completed", 100, "done", now, now)

	mock.ExpectQuery("SELECT (.+) FROM operations").
		WithArgs("pid-1").
		WillReturnRows(rows)

	op, err := s.Get(context.Background(), "pid-1")
	require.NoError(t, err)
	require.Equal(t, tracker.StatusCompleted, op.Status)
	require.Equal(t, tracker.KindCrawl, op.Kind)
	require.Equal(t, 100, op.Percent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOperationStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM operations").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{
			"progress_id", "source_key", "kind", "status",
			"progress_percent", "message", "started_at", "updated_at",
		}))

	_, err = s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOperationStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"progress_id", "source_key", "kind", "status",
		"progress_percent", "message", "started_at", "updated_at",
	}).
		AddRow("pid-2", "b", "upload", "running", 10, "", now.Add(time.Minute), now.Add(time.Minute)).
		AddRow("pid-1", "a", "crawl", "completed", 100, "done", now, now)

	mock.ExpectQuery("SELECT (.+) FROM operations").
		WithArgs(50, 0).
		WillReturnRows(rows)

	ops, err := s.List(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, "pid-2", ops[0].ProgressID)
	require.Equal(t, tracker.KindUpload, ops[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}
