package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
)

// MockAttemptRepository is an in-memory AttemptRepository honoring the same
// window semantics as the SQL queries
type MockAttemptRepository struct {
	mu      sync.Mutex
	rows    []models.AttemptRecord
	now     func() time.Time
	FailErr error
	// LastWindow is the window passed to the most recent FailureWindow call
	LastWindow time.Duration
}

func NewMockAttemptRepository(now func() time.Time) *MockAttemptRepository {
	return &MockAttemptRepository{now: now}
}

func (m *MockAttemptRepository) Insert(ctx context.Context, attempt *models.AttemptRecord) error {
	if m.FailErr != nil {
		return m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.OccurredAt = m.now()
	m.rows = append(m.rows, *attempt)
	return nil
}

func (m *MockAttemptRepository) window(match func(models.AttemptRecord) bool, since time.Time) models.FailureWindow {
	var w models.FailureWindow
	for _, r := range m.rows {
		if r.Success || r.OccurredAt.Before(since) || !match(r) {
			continue
		}
		w.Count++
		if w.Oldest == nil || r.OccurredAt.Before(*w.Oldest) {
			t := r.OccurredAt
			w.Oldest = &t
		}
	}
	return w
}

func (m *MockAttemptRepository) FailureWindow(ctx context.Context, identifier string, action models.ActionType, window time.Duration) (models.FailureWindow, error) {
	if m.FailErr != nil {
		return models.FailureWindow{}, m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastWindow = window
	return m.window(func(r models.AttemptRecord) bool {
		return r.Identifier == identifier && r.ActionType == action
	}, m.now().Add(-window)), nil
}

func (m *MockAttemptRepository) IPFailureWindow(ctx context.Context, ipAddress string, action models.ActionType, window time.Duration) (models.FailureWindow, error) {
	if m.FailErr != nil {
		return models.FailureWindow{}, m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window(func(r models.AttemptRecord) bool {
		return r.IPAddress != nil && *r.IPAddress == ipAddress && r.ActionType == action
	}, m.now().Add(-window)), nil
}

func (m *MockAttemptRepository) FailureSummary(ctx context.Context, identifier string, actions []models.ActionType, window time.Duration) (map[models.ActionType]int, error) {
	if m.FailErr != nil {
		return nil, m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.ActionType]int)
	for _, a := range actions {
		action := a
		out[a] = m.window(func(r models.AttemptRecord) bool {
			return r.Identifier == identifier && r.ActionType == action
		}, m.now().Add(-window)).Count
	}
	return out, nil
}

func (m *MockAttemptRepository) DeleteFor(ctx context.Context, identifier string, action models.ActionType) (int64, error) {
	if m.FailErr != nil {
		return 0, m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var deleted int64
	for _, r := range m.rows {
		if r.Identifier == identifier && r.ActionType == action {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *MockAttemptRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MockLockoutNotifier records lockout notifications
type MockLockoutNotifier struct {
	mu    sync.Mutex
	Calls []string
	Err   error
}

func (m *MockLockoutNotifier) NotifyLockout(ctx context.Context, identifier string, action models.ActionType, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, identifier+"|"+string(action))
	return m.Err
}

// MockLockoutNoticeRepository enforces one notice per lock period like the
// table's primary key does
type MockLockoutNoticeRepository struct {
	mu        sync.Mutex
	notices   map[string]models.LockoutNotice
	InsertErr error
}

func NewMockLockoutNoticeRepository() *MockLockoutNoticeRepository {
	return &MockLockoutNoticeRepository{notices: make(map[string]models.LockoutNotice)}
}

func (m *MockLockoutNoticeRepository) Insert(ctx context.Context, notice *models.LockoutNotice) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := notice.Identifier + "|" + string(notice.ActionType) + "|" + notice.WindowStart.String()
	if _, exists := m.notices[key]; exists {
		return models.ErrConflict
	}
	notice.NotifiedAt = time.Now()
	m.notices[key] = *notice
	return nil
}

// MockWebhookEventRepository enforces ID uniqueness like the primary key does
type MockWebhookEventRepository struct {
	mu        sync.Mutex
	events    map[string]models.WebhookEventRecord
	InsertErr error
	DeleteErr error
}

func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{events: make(map[string]models.WebhookEventRecord)}
}

func (m *MockWebhookEventRepository) Insert(ctx context.Context, event *models.WebhookEventRecord) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[event.ID]; exists {
		return models.ErrConflict
	}
	event.ProcessedAt = time.Now()
	m.events[event.ID] = *event
	return nil
}

func (m *MockWebhookEventRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[id]; !exists {
		return models.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
