package services

import "time"

// SetClock overrides the time source used for window calculations
func (s *RateLimitService) SetClock(now func() time.Time) {
	s.now = now
}
