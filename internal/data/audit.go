package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// AuditRepo is the sqlite-backed audit sink
type AuditRepo struct {
	db *sql.DB
}

var _ repo.AuditRepo = (*AuditRepo)(nil)

// NewAuditRepo opens (or creates) the audit database
func NewAuditRepo(dbPath string) (*AuditRepo, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; serialize through a single connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL,
			stream TEXT NOT NULL,
			direction TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			sender_id TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_stream ON audit_log(stream, created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	// Add decision column (if not exists) - for database migration
	_, _ = db.Exec(`ALTER TABLE audit_log ADD COLUMN decision TEXT NOT NULL DEFAULT ''`)

	return &AuditRepo{db: db}, nil
}

// Append writes one record
func (r *AuditRepo) Append(ctx context.Context, rec repo.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (record_id, stream, direction, message_id, sender_id, sender_name, text, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), rec.Stream, rec.Direction, rec.MessageID, rec.SenderID, rec.SenderName, rec.Text, rec.Decision, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Stream returns the most recent records of one stream in chronological order
func (r *AuditRepo) Stream(ctx context.Context, stream string, limit int) ([]repo.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT stream, direction, message_id, sender_id, sender_name, text, decision, created_at
		FROM audit_log
		WHERE stream = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []repo.AuditRecord
	for rows.Next() {
		var rec repo.AuditRecord
		var createdAt int64
		if err := rows.Scan(&rec.Stream, &rec.Direction, &rec.MessageID, &rec.SenderID, &rec.SenderName, &rec.Text, &rec.Decision, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database
func (r *AuditRepo) Close() error {
	return r.db.Close()
}
