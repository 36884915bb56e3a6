package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/turnstile/internal/models"
)

// EventProcessor performs the side effects of a webhook event. It runs only
// for the delivery that won the claim; a returned error releases the claim so
// the provider's retry is processed again.
type EventProcessor interface {
	Process(ctx context.Context, event *models.WebhookEvent) error
}

// LoggingEventProcessor acknowledges events by logging them. It is the
// default until a provider integration registers its own processor.
type LoggingEventProcessor struct {
	logger *slog.Logger
}

func NewLoggingEventProcessor(logger *slog.Logger) *LoggingEventProcessor {
	return &LoggingEventProcessor{logger: logger}
}

func (p *LoggingEventProcessor) Process(ctx context.Context, event *models.WebhookEvent) error {
	p.logger.Info("webhook event processed",
		slog.String("provider", event.Provider),
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
		slog.Int("payload_bytes", len(event.Payload)))
	return nil
}

// ProcessorRegistry routes events to a processor by provider, falling back
// to a default
type ProcessorRegistry struct {
	byProvider map[string]EventProcessor
	fallback   EventProcessor
}

func NewProcessorRegistry(fallback EventProcessor) *ProcessorRegistry {
	return &ProcessorRegistry{
		byProvider: make(map[string]EventProcessor),
		fallback:   fallback,
	}
}

// Register sets the processor for provider. Not safe to call once serving.
func (r *ProcessorRegistry) Register(provider string, p EventProcessor) {
	r.byProvider[provider] = p
}

func (r *ProcessorRegistry) Process(ctx context.Context, event *models.WebhookEvent) error {
	if p, ok := r.byProvider[event.Provider]; ok {
		return p.Process(ctx, event)
	}
	return r.fallback.Process(ctx, event)
}
