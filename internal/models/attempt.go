package models

import "time"

// ActionType scopes attempt limits. Each action type is limited independently.
type ActionType string

const (
	ActionLogin         ActionType = "login"
	ActionSignup        ActionType = "signup"
	ActionPasswordReset ActionType = "password_reset"
)

// UnlimitedRemaining is reported as Remaining for action types without a policy
const UnlimitedRemaining = 999

// AttemptRecord represents one authentication-related attempt. Rows are append-only.
type AttemptRecord struct {
	ID         string     `db:"id"`
	Identifier string     `db:"identifier"`
	ActionType ActionType `db:"action_type"`
	Success    bool       `db:"success"`
	IPAddress  *string    `db:"ip_address"`
	UserAgent  *string    `db:"user_agent"`
	OccurredAt time.Time  `db:"occurred_at"`
}

// FailureWindow is the aggregate the limiter decides on: failed attempts
// counted since the window start, and the oldest of them.
type FailureWindow struct {
	Count  int
	Oldest *time.Time
}

// RateLimitDecision is computed per check and never persisted
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Locked    bool      `json:"locked"`
	ResetTime time.Time `json:"reset_time"`
}

// LockoutNotice records that a lockout was announced. WindowStart is the
// oldest failure counted when the lock was reached, so one lock period maps
// to one notice.
type LockoutNotice struct {
	Identifier  string     `db:"identifier"`
	ActionType  ActionType `db:"action_type"`
	WindowStart time.Time  `db:"window_start"`
	NotifiedAt  time.Time  `db:"notified_at"`
}
