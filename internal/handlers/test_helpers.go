package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// RecordedAttempt captures a RecordAttempt call
type RecordedAttempt struct {
	Identifier string
	Action     models.ActionType
	Success    bool
	Record     models.AttemptRecord
}

// MockAttemptService implements AttemptServiceInterface for testing
type MockAttemptService struct {
	CheckRateLimitFunc   func(ctx context.Context, identifier string, action models.ActionType) (*models.RateLimitDecision, error)
	CheckIPRateLimitFunc func(ctx context.Context, ipAddress string, action models.ActionType) (*models.RateLimitDecision, error)
	RecordAttemptErr     error
	ClearAttemptsFunc    func(ctx context.Context, identifier string, action models.ActionType) error
	FailureSummaryFunc   func(ctx context.Context, identifier string) (map[models.ActionType]int, error)

	Recorded []RecordedAttempt
}

func allowAll() *models.RateLimitDecision {
	return &models.RateLimitDecision{Allowed: true, Remaining: models.UnlimitedRemaining, ResetTime: time.Now()}
}

func (m *MockAttemptService) CheckRateLimit(ctx context.Context, identifier string, action models.ActionType) (*models.RateLimitDecision, error) {
	if m.CheckRateLimitFunc == nil {
		return allowAll(), nil
	}
	return m.CheckRateLimitFunc(ctx, identifier, action)
}

func (m *MockAttemptService) CheckIPRateLimit(ctx context.Context, ipAddress string, action models.ActionType) (*models.RateLimitDecision, error) {
	if m.CheckIPRateLimitFunc == nil {
		return allowAll(), nil
	}
	return m.CheckIPRateLimitFunc(ctx, ipAddress, action)
}

func (m *MockAttemptService) RecordAttempt(ctx context.Context, identifier string, action models.ActionType, success bool, opts ...services.AttemptOption) error {
	if m.RecordAttemptErr != nil {
		return m.RecordAttemptErr
	}
	var rec models.AttemptRecord
	for _, opt := range opts {
		opt(&rec)
	}
	m.Recorded = append(m.Recorded, RecordedAttempt{Identifier: identifier, Action: action, Success: success, Record: rec})
	return nil
}

func (m *MockAttemptService) ClearAttempts(ctx context.Context, identifier string, action models.ActionType) error {
	if m.ClearAttemptsFunc == nil {
		return nil
	}
	return m.ClearAttemptsFunc(ctx, identifier, action)
}

func (m *MockAttemptService) FailureSummary(ctx context.Context, identifier string) (map[models.ActionType]int, error) {
	if m.FailureSummaryFunc == nil {
		return map[models.ActionType]int{}, nil
	}
	return m.FailureSummaryFunc(ctx, identifier)
}

// MockWebhookGuard implements services.WebhookGuard with an in-memory claim set
type MockWebhookGuard struct {
	mu         sync.Mutex
	claimed    map[string]bool
	BeginErr   error
	ReleaseErr error
	Released   []string
}

func NewMockWebhookGuard() *MockWebhookGuard {
	return &MockWebhookGuard{claimed: make(map[string]bool)}
}

func (m *MockWebhookGuard) TryBeginProcessing(ctx context.Context, eventID, provider, eventType string) (*models.BeginResult, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[eventID] {
		return &models.BeginResult{IsNew: false}, nil
	}
	m.claimed[eventID] = true
	return &models.BeginResult{IsNew: true}, nil
}

func (m *MockWebhookGuard) ReleaseProcessing(ctx context.Context, eventID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = append(m.Released, eventID)
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	delete(m.claimed, eventID)
	return nil
}

// MockEventProcessor counts processed events
type MockEventProcessor struct {
	mu          sync.Mutex
	Processed   []string
	ProcessFunc func(ctx context.Context, event *models.WebhookEvent) error
}

func (m *MockEventProcessor) Process(ctx context.Context, event *models.WebhookEvent) error {
	m.mu.Lock()
	m.Processed = append(m.Processed, event.ID)
	m.mu.Unlock()
	if m.ProcessFunc == nil {
		return nil
	}
	return m.ProcessFunc(ctx, event)
}
