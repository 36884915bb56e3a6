package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/go-chi/chi/v5"
)

// WebhookConfig configures signature checks and body limits
type WebhookConfig struct {
	// Secrets maps lowercase provider name to signing secret
	Secrets            map[string]string
	SignatureTolerance time.Duration
	MaxBodyBytes       int64
}

// WebhookHandler receives provider webhooks and processes each event once
type WebhookHandler struct {
	guard     services.WebhookGuard
	processor services.EventProcessor
	config    WebhookConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(guard services.WebhookGuard, processor services.EventProcessor, config WebhookConfig, logger *slog.Logger) *WebhookHandler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	return &WebhookHandler{
		guard:     guard,
		processor: processor,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// WebhookResponse acknowledges a delivery
type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate"`
}

// Receive handles POST /webhooks/{provider}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	secret, ok := h.config.Secrets[provider]
	if !ok {
		pkghttp.WriteNotFound(w, models.ErrUnknownProvider.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WritePayloadTooLarge(w, "request body too large")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := VerifySignature(r.Header.Get(SignatureHeader), body, secret, h.config.SignatureTolerance, h.now()); err != nil {
		h.logger.Warn("webhook signature rejected",
			slog.String("provider", provider),
			slog.Any("error", err))
		pkghttp.WriteBadRequest(w, models.ErrInvalidSignature.Error())
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" {
		pkghttp.WriteBadRequest(w, "event id is required")
		return
	}
	event.Provider = provider
	event.Payload = body

	result, err := h.guard.TryBeginProcessing(r.Context(), event.ID, provider, event.Type)
	if err != nil {
		h.logger.Error("webhook guard failed",
			slog.String("provider", provider),
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		pkghttp.WriteStoreUnavailable(w)
		return
	}

	if !result.IsNew {
		pkghttp.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true, Duplicate: true})
		return
	}

	if err := h.processor.Process(r.Context(), &event); err != nil {
		h.logger.Error("webhook processing failed, releasing claim",
			slog.String("provider", provider),
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err))

		if relErr := h.guard.ReleaseProcessing(r.Context(), event.ID, provider); relErr != nil {
			// The event stays claimed and later deliveries will be acknowledged as duplicates
			h.logger.Error("failed to release webhook claim",
				slog.String("event_id", event.ID),
				slog.Any("error", relErr))
		}
		pkghttp.WriteInternalError(w, "event processing failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true, Duplicate: false})
}
