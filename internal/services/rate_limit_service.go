package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
)

// AttemptTracker decides whether authentication attempts are allowed and
// records their outcomes
type AttemptTracker interface {
	CheckRateLimit(ctx context.Context, identifier string, action models.ActionType) (*models.RateLimitDecision, error)
	CheckIPRateLimit(ctx context.Context, ipAddress string, action models.ActionType) (*models.RateLimitDecision, error)
	RecordAttempt(ctx context.Context, identifier string, action models.ActionType, success bool, opts ...AttemptOption) error
	ClearAttempts(ctx context.Context, identifier string, action models.ActionType) error
}

// AttemptRepository defines the database operations the tracker needs
type AttemptRepository interface {
	Insert(ctx context.Context, attempt *models.AttemptRecord) error
	FailureWindow(ctx context.Context, identifier string, action models.ActionType, window time.Duration) (models.FailureWindow, error)
	IPFailureWindow(ctx context.Context, ipAddress string, action models.ActionType, window time.Duration) (models.FailureWindow, error)
	FailureSummary(ctx context.Context, identifier string, actions []models.ActionType, window time.Duration) (map[models.ActionType]int, error)
	DeleteFor(ctx context.Context, identifier string, action models.ActionType) (int64, error)
}

// LockoutNoticeRepository claims the single notification for a lock period.
// Insert must return models.ErrConflict when the notice already exists.
type LockoutNoticeRepository interface {
	Insert(ctx context.Context, notice *models.LockoutNotice) error
}

// DecisionRecorder receives limiter outcomes for metrics
type DecisionRecorder interface {
	RecordDecision(action models.ActionType, scope string, decision *models.RateLimitDecision)
	RecordAttempt(action models.ActionType, success bool)
}

// RateLimitConfig holds per-action policies for identifiers and source IPs
type RateLimitConfig struct {
	Identifier models.PolicySet
	IP         models.PolicySet
}

// AttemptOption sets optional attempt fields
type AttemptOption func(*models.AttemptRecord)

// WithIPAddress attaches the source IP. Empty values are ignored.
func WithIPAddress(ip string) AttemptOption {
	return func(a *models.AttemptRecord) {
		if ip = strings.TrimSpace(ip); ip != "" {
			a.IPAddress = &ip
		}
	}
}

// WithUserAgent attaches the client user agent. Empty values are ignored.
func WithUserAgent(ua string) AttemptOption {
	return func(a *models.AttemptRecord) {
		if ua != "" {
			a.UserAgent = &ua
		}
	}
}

const (
	scopeIdentifier = "identifier"
	scopeIP         = "ip"
)

// RateLimitService tracks authentication attempts and decides whether new
// ones are allowed. It keeps no counters in memory: every decision is a fresh
// aggregate over the attempt table, so any number of instances can share it.
type RateLimitService struct {
	repo     AttemptRepository
	config   RateLimitConfig
	notifier LockoutNotifier
	notices  LockoutNoticeRepository
	metrics  DecisionRecorder
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo AttemptRepository, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		config: config,
		audit:  pkglogger.NewAuditLogger(logger),
		logger: logger,
		now:    time.Now,
	}
}

// SetNotifier enables lockout notifications. notices deduplicates them
// across concurrent failures and service instances.
func (s *RateLimitService) SetNotifier(n LockoutNotifier, notices LockoutNoticeRepository) {
	s.notifier = n
	s.notices = notices
}

// SetMetrics enables decision metrics
func (s *RateLimitService) SetMetrics(m DecisionRecorder) {
	s.metrics = m
}

// CheckRateLimit decides whether another attempt for identifier is allowed.
// Action types with no policy are always allowed. Only store failures are
// returned as errors.
func (s *RateLimitService) CheckRateLimit(ctx context.Context, identifier string, action models.ActionType) (*models.RateLimitDecision, error) {
	policy := s.config.Identifier.For(action)
	now := s.now()

	if policy.Unlimited {
		return s.observe(action, scopeIdentifier, unlimitedDecision(now)), nil
	}

	window, err := s.repo.FailureWindow(ctx, identifier, action, policy.Window)
	if err != nil {
		s.logger.Error("failed to check identifier rate limit",
			slog.String("action_type", string(action)),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	decision := decide(policy, window, now)
	if decision.Locked {
		s.logger.Warn("identifier rate limited",
			slog.String("identifier", maskIdentifier(identifier)),
			slog.String("action_type", string(action)),
			slog.Int("failed_attempts", window.Count),
			slog.Time("reset_time", decision.ResetTime))
	}
	return s.observe(action, scopeIdentifier, decision), nil
}

// CheckIPRateLimit applies the IP policy for action to failures from ipAddress.
// An empty address cannot be attributed and is never throttled.
func (s *RateLimitService) CheckIPRateLimit(ctx context.Context, ipAddress string, action models.ActionType) (*models.RateLimitDecision, error) {
	policy := s.config.IP.For(action)
	now := s.now()
	ipAddress = strings.TrimSpace(ipAddress)

	if policy.Unlimited {
		return s.observe(action, scopeIP, unlimitedDecision(now)), nil
	}

	if ipAddress == "" {
		return s.observe(action, scopeIP, decide(policy, models.FailureWindow{}, now)), nil
	}

	window, err := s.repo.IPFailureWindow(ctx, ipAddress, action, policy.Window)
	if err != nil {
		s.logger.Error("failed to check IP rate limit",
			slog.String("action_type", string(action)),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	decision := decide(policy, window, now)
	if decision.Locked {
		s.logger.Warn("IP rate limited",
			slog.String("ip_address", ipAddress),
			slog.String("action_type", string(action)),
			slog.Int("failed_attempts", window.Count))
	}
	return s.observe(action, scopeIP, decision), nil
}

// RecordAttempt appends the outcome of an attempt. Callers record successes
// too; only failures count toward the limit and a success does not reset it.
func (s *RateLimitService) RecordAttempt(ctx context.Context, identifier string, action models.ActionType, success bool, opts ...AttemptOption) error {
	attempt := &models.AttemptRecord{
		Identifier: identifier,
		ActionType: action,
		Success:    success,
	}
	for _, opt := range opts {
		opt(attempt)
	}

	if err := s.repo.Insert(ctx, attempt); err != nil {
		s.logger.Error("failed to record attempt",
			slog.String("action_type", string(action)),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	if s.metrics != nil {
		s.metrics.RecordAttempt(action, success)
	}

	auditEvent := pkglogger.AuditEvent{
		EventType:  string(action),
		Identifier: maskIdentifier(identifier),
		Success:    success,
	}
	if attempt.IPAddress != nil {
		auditEvent.IPAddress = *attempt.IPAddress
	}
	if attempt.UserAgent != nil {
		auditEvent.UserAgent = *attempt.UserAgent
	}
	s.audit.LogAuthAttempt(auditEvent)

	if !success {
		s.notifyIfJustLocked(ctx, identifier, action)
	}
	return nil
}

// ClearAttempts deletes all attempts for identifier and action. Clearing an
// identifier with no attempts succeeds.
func (s *RateLimitService) ClearAttempts(ctx context.Context, identifier string, action models.ActionType) error {
	deleted, err := s.repo.DeleteFor(ctx, identifier, action)
	if err != nil {
		s.logger.Error("failed to clear attempts",
			slog.String("action_type", string(action)),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	if deleted > 0 {
		s.logger.Info("attempts cleared",
			slog.String("identifier", maskIdentifier(identifier)),
			slog.String("action_type", string(action)),
			slog.Int64("rows_deleted", deleted))
	}
	return nil
}

// FailureSummary reports failed attempts per limited action type, each
// counted over that action's own window
func (s *RateLimitService) FailureSummary(ctx context.Context, identifier string) (map[models.ActionType]int, error) {
	summary := make(map[models.ActionType]int)

	// Group actions by window so each window is one query
	byWindow := make(map[time.Duration][]models.ActionType)
	for _, action := range s.config.Identifier.Actions() {
		w := s.config.Identifier.For(action).Window
		byWindow[w] = append(byWindow[w], action)
	}

	for window, actions := range byWindow {
		counts, err := s.repo.FailureSummary(ctx, identifier, actions, window)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
		for a, c := range counts {
			summary[a] = c
		}
	}
	return summary, nil
}

// notifyIfJustLocked sends one lockout notification per lock period. A lock
// period is identified by the oldest failure in the window, so concurrent
// failures that all observe the lock race for the same notice row and only
// the winner notifies.
func (s *RateLimitService) notifyIfJustLocked(ctx context.Context, identifier string, action models.ActionType) {
	if s.notifier == nil || s.notices == nil {
		return
	}
	policy := s.config.Identifier.For(action)
	if policy.Unlimited {
		return
	}

	window, err := s.repo.FailureWindow(ctx, identifier, action, policy.Window)
	if err != nil {
		s.logger.Warn("failed to evaluate lockout after attempt", slog.Any("error", err))
		return
	}
	if window.Count < policy.MaxAttempts || window.Oldest == nil {
		return
	}

	err = s.notices.Insert(ctx, &models.LockoutNotice{
		Identifier:  identifier,
		ActionType:  action,
		WindowStart: *window.Oldest,
	})
	if errors.Is(err, models.ErrConflict) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to record lockout notice", slog.Any("error", err))
		return
	}

	decision := decide(policy, window, s.now())
	s.audit.LogLockout(maskIdentifier(identifier), string(action), window.Count, decision.ResetTime)

	if err := s.notifier.NotifyLockout(ctx, identifier, action, decision.ResetTime); err != nil {
		s.logger.Warn("failed to send lockout notification",
			slog.String("identifier", maskIdentifier(identifier)),
			slog.Any("error", err))
	}
}

var _ AttemptTracker = (*RateLimitService)(nil)

func (s *RateLimitService) observe(action models.ActionType, scope string, d *models.RateLimitDecision) *models.RateLimitDecision {
	if s.metrics != nil {
		s.metrics.RecordDecision(action, scope, d)
	}
	return d
}

// decide applies a limited policy to an aggregated failure window
func decide(policy models.AttemptPolicy, window models.FailureWindow, now time.Time) *models.RateLimitDecision {
	start := now
	if window.Oldest != nil && window.Count > 0 {
		start = *window.Oldest
	}
	resetTime := start.Add(policy.Window)

	if window.Count >= policy.MaxAttempts {
		return &models.RateLimitDecision{
			Allowed:   false,
			Remaining: 0,
			Locked:    true,
			ResetTime: resetTime,
		}
	}

	return &models.RateLimitDecision{
		Allowed:   true,
		Remaining: policy.MaxAttempts - window.Count,
		Locked:    false,
		ResetTime: resetTime,
	}
}

func unlimitedDecision(now time.Time) *models.RateLimitDecision {
	return &models.RateLimitDecision{
		Allowed:   true,
		Remaining: models.UnlimitedRemaining,
		Locked:    false,
		ResetTime: now,
	}
}

// maskIdentifier keeps email addresses out of logs; other identifiers pass through
func maskIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		return pkglogger.SanitizedEmail(identifier)
	}
	return identifier
}
