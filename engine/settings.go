package engine

import "time"

// Settings tunes the dispatcher. Zero values are replaced by defaults so a
// partially filled struct from config is always usable.
type Settings struct {
	MaxLeverage         int
	MaxAttempts         int
	LaneConcurrency     int
	LaneBuffer          int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	DedupWindow         int
	MaxNotionalFraction float64
	CallTimeout         time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPoll         time.Duration
	DrainTimeout        time.Duration
	Symbols             []string
}

func (s *Settings) ensureDefaults() {
	if s.MaxLeverage <= 0 {
		s.MaxLeverage = 20
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.LaneConcurrency <= 0 {
		s.LaneConcurrency = 2
	}
	if s.LaneBuffer <= 0 {
		s.LaneBuffer = 16
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 500 * time.Millisecond
	}
	if s.BackoffCap <= 0 {
		s.BackoffCap = 10 * time.Second
	}
	if s.BreakerThreshold <= 0 {
		s.BreakerThreshold = 5
	}
	if s.BreakerCooldown <= 0 {
		s.BreakerCooldown = time.Minute
	}
	if s.DedupWindow <= 0 {
		s.DedupWindow = 2048
	}
	if s.MaxNotionalFraction <= 0 {
		s.MaxNotionalFraction = 0.5
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 10 * time.Second
	}
	if s.ConfirmTimeout <= 0 {
		s.ConfirmTimeout = 15 * time.Second
	}
	if s.ConfirmPoll <= 0 {
		s.ConfirmPoll = 500 * time.Millisecond
	}
	if s.DrainTimeout <= 0 {
		s.DrainTimeout = 30 * time.Second
	}
}
