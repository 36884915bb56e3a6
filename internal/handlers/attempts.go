package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
)

// AttemptServiceInterface is the tracker surface exposed over HTTP
type AttemptServiceInterface interface {
	services.AttemptTracker
	FailureSummary(ctx context.Context, identifier string) (map[models.ActionType]int, error)
}

// AttemptHandler serves the attempt API used by internal auth services
type AttemptHandler struct {
	service AttemptServiceInterface
	logger  *slog.Logger
}

// NewAttemptHandler creates a new AttemptHandler
func NewAttemptHandler(service AttemptServiceInterface, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{service: service, logger: logger}
}

// Request DTOs

// CheckAttemptRequest asks whether an attempt may proceed
type CheckAttemptRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	ActionType string `json:"action_type" validate:"required,max=64,action_type"`
	IPAddress  string `json:"ip_address" validate:"omitempty,ip"`
}

// RecordAttemptRequest reports the outcome of an attempt
type RecordAttemptRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	ActionType string `json:"action_type" validate:"required,max=64,action_type"`
	Success    *bool  `json:"success" validate:"required"`
	IPAddress  string `json:"ip_address" validate:"omitempty,ip"`
	UserAgent  string `json:"user_agent" validate:"max=512"`
}

// ClearAttemptsRequest deletes the attempt history for an identifier and action
type ClearAttemptsRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	ActionType string `json:"action_type" validate:"required,max=64,action_type"`
}

// CheckAttemptResponse combines the identifier and IP decisions. Allowed is
// true only when both allow the attempt.
type CheckAttemptResponse struct {
	Identifier *models.RateLimitDecision `json:"identifier"`
	IP         *models.RateLimitDecision `json:"ip"`
	Allowed    bool                      `json:"allowed"`
}

// FailureSummaryResponse lists failures in the current window per action type
type FailureSummaryResponse struct {
	Failures map[models.ActionType]int `json:"failures"`
}

// Check handles POST /v1/attempts/check
func (h *AttemptHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckAttemptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	action := models.ActionType(req.ActionType)
	identifier := normalizeIdentifier(req.Identifier)

	idDecision, err := h.service.CheckRateLimit(r.Context(), identifier, action)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	ipDecision, err := h.service.CheckIPRateLimit(r.Context(), req.IPAddress, action)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CheckAttemptResponse{
		Identifier: idDecision,
		IP:         ipDecision,
		Allowed:    idDecision.Allowed && ipDecision.Allowed,
	})
}

// Record handles POST /v1/attempts
func (h *AttemptHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.RecordAttempt(r.Context(),
		normalizeIdentifier(req.Identifier),
		models.ActionType(req.ActionType),
		*req.Success,
		services.WithIPAddress(req.IPAddress),
		services.WithUserAgent(req.UserAgent),
	)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /v1/attempts
func (h *AttemptHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ClearAttemptsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.ClearAttempts(r.Context(), normalizeIdentifier(req.Identifier), models.ActionType(req.ActionType))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /v1/attempts/summary?identifier=
func (h *AttemptHandler) Summary(w http.ResponseWriter, r *http.Request) {
	identifier := normalizeIdentifier(r.URL.Query().Get("identifier"))
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "identifier query parameter is required")
		return
	}

	failures, err := h.service.FailureSummary(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, FailureSummaryResponse{Failures: failures})
}

func (h *AttemptHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteStoreUnavailable(w)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		h.logger.Error("attempt API request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// normalizeIdentifier lowercases email-style identifiers so that case
// variants share one counter
func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}
