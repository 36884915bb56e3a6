package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/turnstile/internal/models"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
)

// WebhookGuard claims provider event IDs so each event is processed once
type WebhookGuard interface {
	TryBeginProcessing(ctx context.Context, eventID, provider, eventType string) (*models.BeginResult, error)
	ReleaseProcessing(ctx context.Context, eventID, provider string) error
}

// WebhookEventRepository defines the persistence the guard relies on. Insert
// must return models.ErrConflict when the ID already exists.
type WebhookEventRepository interface {
	Insert(ctx context.Context, event *models.WebhookEventRecord) error
	Delete(ctx context.Context, id string) error
}

// WebhookOutcomeRecorder receives guard outcomes for metrics
type WebhookOutcomeRecorder interface {
	RecordWebhookEvent(provider, outcome string)
}

// Webhook outcomes reported to metrics
const (
	WebhookOutcomeNew       = "new"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeError     = "error"
	WebhookOutcomeReleased  = "released"
)

// WebhookGuardService ensures each provider event is acted on at most once.
// The claim is the insert itself: the table's primary key on the event ID
// picks exactly one winner among concurrent deliveries.
type WebhookGuardService struct {
	repo    WebhookEventRepository
	metrics WebhookOutcomeRecorder
	audit   *pkglogger.AuditLogger
	logger  *slog.Logger
}

// NewWebhookGuardService creates a new WebhookGuardService
func NewWebhookGuardService(repo WebhookEventRepository, logger *slog.Logger) *WebhookGuardService {
	return &WebhookGuardService{
		repo:   repo,
		audit:  pkglogger.NewAuditLogger(logger),
		logger: logger,
	}
}

// SetMetrics enables outcome metrics
func (s *WebhookGuardService) SetMetrics(m WebhookOutcomeRecorder) {
	s.metrics = m
}

// TryBeginProcessing claims eventID. IsNew is true only for the first claim;
// repeats report IsNew false regardless of provider or eventType. Any store
// failure other than the duplicate is returned so the caller can fail the
// delivery and let the provider retry.
func (s *WebhookGuardService) TryBeginProcessing(ctx context.Context, eventID, provider, eventType string) (*models.BeginResult, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", models.ErrBadRequest)
	}

	err := s.repo.Insert(ctx, &models.WebhookEventRecord{
		ID:        eventID,
		Provider:  provider,
		EventType: eventType,
	})
	switch {
	case err == nil:
		s.record(provider, WebhookOutcomeNew)
		return &models.BeginResult{IsNew: true}, nil
	case errors.Is(err, models.ErrConflict):
		s.record(provider, WebhookOutcomeDuplicate)
		s.audit.LogWebhookDuplicate(provider, eventID, eventType)
		return &models.BeginResult{IsNew: false}, nil
	default:
		s.record(provider, WebhookOutcomeError)
		s.logger.Error("failed to claim webhook event",
			slog.String("provider", provider),
			slog.String("event_id", eventID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
}

// ReleaseProcessing drops a claim whose side effects failed, so the
// provider's next delivery of the event is processed again. Releasing an
// unknown event is not an error and records nothing.
func (s *WebhookGuardService) ReleaseProcessing(ctx context.Context, eventID, provider string) error {
	err := s.repo.Delete(ctx, eventID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil
	case err != nil:
		s.logger.Error("failed to release webhook event",
			slog.String("provider", provider),
			slog.String("event_id", eventID),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	s.logger.Warn("webhook event released for reprocessing",
		slog.String("provider", provider),
		slog.String("event_id", eventID))
	s.record(provider, WebhookOutcomeReleased)
	return nil
}

var _ WebhookGuard = (*WebhookGuardService)(nil)

func (s *WebhookGuardService) record(provider, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(provider, outcome)
	}
}
