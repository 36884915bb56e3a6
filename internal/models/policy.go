package models

import (
	"sort"
	"time"
)

// AttemptPolicy describes how failed attempts for one action type are limited.
// The zero value is not a valid limited policy; use UnlimitedPolicy for the
// fail-open variant.
type AttemptPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Unlimited   bool
}

// UnlimitedPolicy applies to every action type with no configured policy.
// Checks under it are always allowed and report UnlimitedRemaining.
var UnlimitedPolicy = AttemptPolicy{Unlimited: true}

// PolicySet maps action types to their policies
type PolicySet map[ActionType]AttemptPolicy

// For returns the policy for action, or UnlimitedPolicy when none is configured
func (ps PolicySet) For(action ActionType) AttemptPolicy {
	if p, ok := ps[action]; ok && !p.Unlimited && p.MaxAttempts > 0 && p.Window > 0 {
		return p
	}
	return UnlimitedPolicy
}

// Actions returns the action types that carry a limited policy, sorted
func (ps PolicySet) Actions() []ActionType {
	actions := make([]ActionType, 0, len(ps))
	for a := range ps {
		if !ps.For(a).Unlimited {
			actions = append(actions, a)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// LongestWindow returns the widest window across limited policies
func (ps PolicySet) LongestWindow() time.Duration {
	var longest time.Duration
	for a := range ps {
		if p := ps.For(a); !p.Unlimited && p.Window > longest {
			longest = p.Window
		}
	}
	return longest
}
