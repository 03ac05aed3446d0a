package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/shutdown"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(sl.Discard(), filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, shutdown.Request{Source: shutdown.SourceLocal, RequestedAt: base, Executed: true}))
	require.NoError(t, j.Record(ctx, shutdown.Request{
		Source:      shutdown.SourceRemote,
		RequestedAt: base.Add(500 * time.Millisecond),
		Err:         errors.New("sudo: not allowed"),
	}))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, shutdown.SourceRemote, records[0].Source)
	assert.False(t, records[0].Executed)
	assert.Equal(t, "sudo: not allowed", records[0].Error)
	assert.True(t, records[0].RequestedAt.Equal(base.Add(500*time.Millisecond)))

	assert.Equal(t, shutdown.SourceLocal, records[1].Source)
	assert.True(t, records[1].Executed)
	assert.NotEqual(t, records[0].ID, records[1].ID)

	records, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCleanup(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, shutdown.Request{Source: shutdown.SourceLocal, RequestedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, j.Record(ctx, shutdown.Request{Source: shutdown.SourceLocal, RequestedAt: time.Now()}))

	require.NoError(t, j.Cleanup(ctx, 24*time.Hour))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.NoError(t, j.Health(ctx))
}

func TestRecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO shutdown_requests").
		WithArgs(sqlmock.AnyArg(), shutdown.SourceRemote, sqlmock.AnyArg(), true, "").
		WillReturnError(errors.New("database is locked"))

	j := New(sl.Discard(), db)
	err = j.Record(context.Background(), shutdown.Request{Source: shutdown.SourceRemote, RequestedAt: time.Now(), Executed: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record shutdown request")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("no such table"))

	j := New(sl.Discard(), db)
	_, err = j.Count(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinatorWritesJournal(t *testing.T) {
	j := openTestJournal(t)
	c := shutdown.NewCoordinator(sl.Discard(), shutdown.NewDryRunExecutor(sl.Discard()), j, nil)

	c.InitiateShutdown(context.Background(), shutdown.SourceLocal)
	c.InitiateShutdown(context.Background(), shutdown.SourceRemote)

	records, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	executed := 0
	for _, r := range records {
		if r.Executed {
			executed++
		}
	}
	assert.Equal(t, 1, executed)
}
