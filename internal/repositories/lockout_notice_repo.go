package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/models"
)

// LockoutNoticeRepository persists sent lockout notifications
type LockoutNoticeRepository struct {
	db *database.DB
}

// NewLockoutNoticeRepository creates a new LockoutNoticeRepository
func NewLockoutNoticeRepository(db *database.DB) *LockoutNoticeRepository {
	return &LockoutNoticeRepository{db: db}
}

// Insert claims the notice for one lock period. A second claim for the same
// identifier, action and window start returns models.ErrConflict.
func (r *LockoutNoticeRepository) Insert(ctx context.Context, notice *models.LockoutNotice) error {
	query := `
		INSERT INTO lockout_notices (identifier, action_type, window_start)
		VALUES ($1, $2, $3)
		RETURNING notified_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		notice.Identifier,
		string(notice.ActionType),
		notice.WindowStart,
	).Scan(&notice.NotifiedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to record lockout notice: %w", err)
	}
	return nil
}

// DeleteOlderThan prunes notices sent before cutoff
func (r *LockoutNoticeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM lockout_notices WHERE notified_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune lockout notices: %w", err)
	}
	return tag.RowsAffected(), nil
}
