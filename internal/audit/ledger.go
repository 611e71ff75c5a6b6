// Package audit persists the attempt ledger in SQLite. It uses
// modernc.org/sqlite for pure-Go, CGO-free database access.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/normanking/kubegate/internal/gateway"
)

//go:embed migrations/001_attempts.sql
var attemptsSchema string

// Ledger is an append-mostly record of every attempt the gateway made,
// allowed or not. It implements gateway.Recorder.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (or creates) the audit database under dataDir.
func NewLedger(dataDir string) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &Ledger{db: db}
	if err := l.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Debug().Str("path", dbPath).Msg("audit ledger opened")
	return l, nil
}

func (l *Ledger) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA busy_timeout = 5000",  // Wait 5 seconds if locked
		"PRAGMA temp_store = MEMORY",  // Keep temp tables in memory
	}
	for _, pragma := range pragmas {
		if _, err := l.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (l *Ledger) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := l.db.ExecContext(ctx, attemptsSchema); err != nil {
		return fmt.Errorf("attempts schema: %w", err)
	}
	return nil
}

// RecordAttempt appends one attempt row.
func (l *Ledger) RecordAttempt(ctx context.Context, taskID string, attempt gateway.Attempt, status gateway.Status) error {
	returnCode := sql.NullInt64{}
	errText := sql.NullString{}
	durationMS := sql.NullInt64{}
	if attempt.Result != nil {
		returnCode = sql.NullInt64{Int64: int64(attempt.Result.ReturnCode), Valid: true}
		durationMS = sql.NullInt64{Int64: attempt.Result.Duration.Milliseconds(), Valid: true}
		if attempt.Result.Error != "" {
			errText = sql.NullString{String: attempt.Result.Error, Valid: true}
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO attempts (id, task_id, attempt, command, kind, allowed, decision_reason, status, return_code, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), taskID, attempt.Number, attempt.Command, string(attempt.Kind),
		boolToInt(attempt.Decision.Allowed), attempt.Decision.Reason, string(status),
		returnCode, errText, durationMS,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Record is one ledger row as read back for display.
type Record struct {
	ID         string
	TaskID     string
	Attempt    int
	Command    string
	Kind       string
	Allowed    bool
	Reason     string
	Status     string
	ReturnCode int
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}

// RecentAttempts returns up to limit rows, newest first.
func (l *Ledger) RecentAttempts(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, task_id, attempt, command, kind, allowed, COALESCE(decision_reason, ''),
		       status, COALESCE(return_code, 0), COALESCE(error, ''), COALESCE(duration_ms, 0), created_at
		FROM attempts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var allowed int
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Attempt, &rec.Command, &rec.Kind,
			&allowed, &rec.Reason, &rec.Status, &rec.ReturnCode, &rec.Error, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.Allowed = allowed != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
