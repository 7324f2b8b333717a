package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RequestLog is one audited patron request.
type RequestLog struct {
	ID uuid.UUID

	// Set is the service label the request ran under.
	Set string

	// Outcome is form, bounce, or confirm.
	Outcome string

	BibID  string
	Title  string
	Author string

	// User is the patron login, empty for unauthenticated bounces.
	User string

	ClientIP  string
	UserAgent string

	// Logdata is the service-specific JSON payload.
	Logdata []byte

	CreatedAt time.Time
}

// RequestLogRepository records and reads the request audit log.
type RequestLogRepository interface {
	// Create writes one log row. The caller treats failures as
	// non-fatal: a lost audit row never blocks a patron request.
	Create(ctx context.Context, log *RequestLog) error

	// GetByID retrieves one log row.
	GetByID(ctx context.Context, id uuid.UUID) (*RequestLog, error)

	// ListBySet returns recent rows for one service label, newest first.
	ListBySet(ctx context.Context, set string, limit, offset int) ([]*RequestLog, error)

	// CountBySet counts rows per service label since a cutoff.
	CountBySet(ctx context.Context, since time.Time) (map[string]int64, error)
}

// Compile-time interface verification.
var _ RequestLogRepository = (*PgRequestLogRepository)(nil)

// PgRequestLogRepository is a PostgreSQL implementation of
// RequestLogRepository.
type PgRequestLogRepository struct {
	db DBTX
}

// NewPgRequestLogRepository creates a new PostgreSQL request log
// repository.
func NewPgRequestLogRepository(db DBTX) *PgRequestLogRepository {
	return &PgRequestLogRepository{db: db}
}

const requestLogColumns = `id, set_name, outcome, bib_id, title, author, user_login, client_ip, user_agent, logdata, created_at`

// Create writes one log row, assigning the id and timestamp when unset.
func (r *PgRequestLogRepository) Create(ctx context.Context, log *RequestLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Logdata == nil {
		log.Logdata = []byte("{}")
	}

	query := `
		INSERT INTO request_logs (` + requestLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		log.ID, log.Set, log.Outcome, log.BibID, log.Title, log.Author,
		log.User, log.ClientIP, log.UserAgent, log.Logdata, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create request log: %w", err)
	}
	return nil
}

// GetByID retrieves one log row.
func (r *PgRequestLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*RequestLog, error) {
	query := `
		SELECT ` + requestLogColumns + `
		FROM request_logs
		WHERE id = $1`

	log, err := scanRequestLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request log %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get request log: %w", err)
	}
	return log, nil
}

// ListBySet returns recent rows for one service label, newest first.
func (r *PgRequestLogRepository) ListBySet(ctx context.Context, set string, limit, offset int) ([]*RequestLog, error) {
	applyPaginationDefaults(&limit, &offset)

	query := `
		SELECT ` + requestLogColumns + `
		FROM request_logs
		WHERE set_name = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, set, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	defer rows.Close()

	var logs []*RequestLog
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request logs: %w", err)
	}
	return logs, nil
}

// CountBySet counts rows per service label since a cutoff.
func (r *PgRequestLogRepository) CountBySet(ctx context.Context, since time.Time) (map[string]int64, error) {
	query := `
		SELECT set_name, COUNT(*)
		FROM request_logs
		WHERE created_at >= $1
		GROUP BY set_name`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count request logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var set string
		var count int64
		if err := rows.Scan(&set, &count); err != nil {
			return nil, fmt.Errorf("failed to scan request log count: %w", err)
		}
		counts[set] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request log counts: %w", err)
	}
	return counts, nil
}

// scanRequestLog scans a row in requestLogColumns order.
func scanRequestLog(row pgx.Row) (*RequestLog, error) {
	var log RequestLog
	err := row.Scan(
		&log.ID, &log.Set, &log.Outcome, &log.BibID, &log.Title, &log.Author,
		&log.User, &log.ClientIP, &log.UserAgent, &log.Logdata, &log.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
