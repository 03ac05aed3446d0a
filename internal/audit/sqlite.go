package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/shutdown"
)

// fixed width so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored shutdown request.
type Record struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
	Executed    bool      `json:"executed"`
	Error       string    `json:"error,omitempty"`
}

// Journal keeps every shutdown request in SQLite.
type Journal struct {
	log *slog.Logger
	db  *sql.DB
}

func Open(log *slog.Logger, dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := New(log, db)
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return j, nil
}

// New wraps an already opened database. The schema is not created.
func New(log *slog.Logger, db *sql.DB) *Journal {
	return &Journal{
		log: log.With(slog.String("component", "audit")),
		db:  db,
	}
}

func (j *Journal) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS shutdown_requests (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			requested_at TEXT NOT NULL,
			executed INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_shutdown_requests_requested_at ON shutdown_requests(requested_at);
	`
	_, err := j.db.Exec(query)
	return err
}

// Record satisfies shutdown.Recorder.
func (j *Journal) Record(ctx context.Context, req shutdown.Request) error {
	var errText string
	if req.Err != nil {
		errText = req.Err.Error()
	}

	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO shutdown_requests (id, source, requested_at, executed, error) VALUES (?, ?, ?, ?, ?)`,
		id,
		req.Source,
		req.RequestedAt.UTC().Format(timeLayout),
		req.Executed,
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record shutdown request: %w", err)
	}

	j.log.Debug("shutdown request recorded", slog.String("id", id), slog.String("source", req.Source))
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, source, requested_at, executed, error
		FROM shutdown_requests
		ORDER BY requested_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shutdown requests: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r           Record
			requestedAt string
		)
		if err := rows.Scan(&r.ID, &r.Source, &requestedAt, &r.Executed, &r.Error); err != nil {
			j.log.Error("failed to scan row", sl.Err(err))
			continue
		}

		r.RequestedAt, err = time.Parse(timeLayout, requestedAt)
		if err != nil {
			j.log.Error("failed to parse timestamp", sl.Err(err))
			continue
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (j *Journal) Count(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shutdown_requests").Scan(&count)
	return count, err
}

func (j *Journal) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := j.db.ExecContext(ctx, "DELETE FROM shutdown_requests WHERE requested_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old shutdown requests: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		j.log.Info("cleaned up old audit entries", slog.Int64("deleted", deleted))
	}

	return nil
}

// Health satisfies the control server's health check.
func (j *Journal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	return j.db.Close()
}
