package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AttemptRepository handles database operations for authentication attempts.
// The table is append-only: rows are inserted or deleted, never updated.
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Insert appends one attempt row. Each call is a single-row insert so
// concurrent attempts for the same identifier never lose increments.
func (r *AttemptRepository) Insert(ctx context.Context, attempt *models.AttemptRecord) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	query := `
		INSERT INTO auth_attempts (id, identifier, action_type, success, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING occurred_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.ID,
		attempt.Identifier,
		string(attempt.ActionType),
		attempt.Success,
		attempt.IPAddress,
		attempt.UserAgent,
	).Scan(&attempt.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", database.MapPostgresError(err))
	}

	return nil
}

// FailureWindow counts failed attempts for an identifier and action within the
// trailing window and returns the oldest of them. The window start is taken
// from the database clock, the same clock that stamps occurred_at.
func (r *AttemptRepository) FailureWindow(ctx context.Context, identifier string, action models.ActionType, window time.Duration) (models.FailureWindow, error) {
	query := `
		SELECT COUNT(*), MIN(occurred_at) FROM auth_attempts
		WHERE identifier = $1 AND action_type = $2 AND success = false
			AND occurred_at >= now() - make_interval(secs => $3)
	`

	var fw models.FailureWindow
	err := r.db.Pool.QueryRow(ctx, query, identifier, string(action), window.Seconds()).Scan(&fw.Count, &fw.Oldest)
	if err != nil {
		return models.FailureWindow{}, fmt.Errorf("failed to count attempts: %w", err)
	}
	return fw, nil
}

// IPFailureWindow is FailureWindow keyed by source IP address
func (r *AttemptRepository) IPFailureWindow(ctx context.Context, ipAddress string, action models.ActionType, window time.Duration) (models.FailureWindow, error) {
	query := `
		SELECT COUNT(*), MIN(occurred_at) FROM auth_attempts
		WHERE ip_address = $1 AND action_type = $2 AND success = false
			AND occurred_at >= now() - make_interval(secs => $3)
	`

	var fw models.FailureWindow
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, string(action), window.Seconds()).Scan(&fw.Count, &fw.Oldest)
	if err != nil {
		return models.FailureWindow{}, fmt.Errorf("failed to count attempts by IP: %w", err)
	}
	return fw, nil
}

// FailureSummary counts failed attempts per action type for one identifier
// within the trailing window
func (r *AttemptRepository) FailureSummary(ctx context.Context, identifier string, actions []models.ActionType, window time.Duration) (map[models.ActionType]int, error) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	query := `
		SELECT action_type, COUNT(*) FROM auth_attempts
		WHERE identifier = $1 AND action_type = ANY($2) AND success = false
			AND occurred_at >= now() - make_interval(secs => $3)
		GROUP BY action_type
	`

	rows, err := r.db.Pool.Query(ctx, query, identifier, pq.Array(names), window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", err)
	}
	defer rows.Close()

	summary := make(map[models.ActionType]int, len(actions))
	for _, a := range actions {
		summary[a] = 0
	}
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan attempt summary: %w", err)
		}
		summary[models.ActionType(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempt summary: %w", err)
	}

	return summary, nil
}

// DeleteFor removes every attempt for an identifier and action. Deleting
// nothing is not an error.
func (r *AttemptRepository) DeleteFor(ctx context.Context, identifier string, action models.ActionType) (int64, error) {
	query := `DELETE FROM auth_attempts WHERE identifier = $1 AND action_type = $2`

	tag, err := r.db.Pool.Exec(ctx, query, identifier, string(action))
	if err != nil {
		return 0, fmt.Errorf("failed to clear attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan prunes attempts that occurred before cutoff
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM auth_attempts WHERE occurred_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
