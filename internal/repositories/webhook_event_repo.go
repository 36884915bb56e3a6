package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/database"
	"github.com/BradenHooton/turnstile/internal/models"
)

// WebhookEventRepository persists processed webhook event IDs
type WebhookEventRepository struct {
	db *database.DB
}

// NewWebhookEventRepository creates a new WebhookEventRepository
func NewWebhookEventRepository(db *database.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Insert claims an event ID. A second insert for the same ID fails on the
// primary key and is returned as models.ErrConflict.
func (r *WebhookEventRepository) Insert(ctx context.Context, event *models.WebhookEventRecord) error {
	query := `
		INSERT INTO webhook_events (id, provider, event_type)
		VALUES ($1, $2, $3)
		RETURNING processed_at
	`

	err := r.db.Pool.QueryRow(ctx, query, event.ID, event.Provider, event.EventType).Scan(&event.ProcessedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// Delete removes a claim so the event can be processed again
func (r *WebhookEventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhook_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan prunes processed events recorded before cutoff
func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhook_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
