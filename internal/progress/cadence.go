// Package progress tracks a research job from the client side: adaptive polling,
// push hints and stall detection. It only ever reads job state.
package progress

import (
	"time"

	"github.com/jonathan/interview-prep/internal/types"
)

// Tier applies Interval while elapsed is below Until, or at Until when Inclusive.
type Tier struct {
	Until     time.Duration
	Inclusive bool
	Interval  time.Duration
}

// Cadence maps time since a run started to a poll interval.
type Cadence struct {
	Tiers []Tier
	// Default applies once elapsed is past every tier.
	Default time.Duration
	// Pending applies before the run has started.
	Pending time.Duration
}

// DefaultCadence polls every 2s for the first 30s, every 5s up to a minute, then every 10s.
func DefaultCadence() Cadence {
	return Cadence{
		Tiers: []Tier{
			{Until: 30 * time.Second, Interval: 2 * time.Second},
			{Until: 60 * time.Second, Inclusive: true, Interval: 5 * time.Second},
		},
		Default: 10 * time.Second,
		Pending: 2 * time.Second,
	}
}

// Interval returns the poll interval for elapsed time since the run started.
func (c Cadence) Interval(elapsed time.Duration) time.Duration {
	for _, t := range c.Tiers {
		if elapsed < t.Until || (t.Inclusive && elapsed == t.Until) {
			return t.Interval
		}
	}
	return c.Default
}

// For returns the poll interval for job at now.
func (c Cadence) For(job *types.Job, now time.Time) time.Duration {
	if job == nil || job.StartedAt == nil {
		if c.Pending > 0 {
			return c.Pending
		}
		return c.Interval(0)
	}
	elapsed := now.Sub(*job.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.Interval(elapsed)
}

// StallPolicy decides when a processing job looks stuck.
type StallPolicy struct {
	// Threshold is the silence after which a job counts as stalled.
	Threshold time.Duration
	// RetryAfter is the silence after which a retry is offered.
	RetryAfter time.Duration
}

// DefaultStallPolicy flags a job after 30s without updates and offers retry at 45s.
func DefaultStallPolicy() StallPolicy {
	return StallPolicy{Threshold: 30 * time.Second, RetryAfter: 45 * time.Second}
}

// StallInfo describes how long a processing job has been silent.
type StallInfo struct {
	IsStalled      bool          `json:"is_stalled"`
	StalledSeconds int           `json:"stalled_seconds"`
	CanRetry       bool          `json:"can_retry"`
	SinceUpdate    time.Duration `json:"since_update"`
}

// Evaluate computes stall information for job at now. Only processing jobs stall.
func (p StallPolicy) Evaluate(job *types.Job, now time.Time) StallInfo {
	if job == nil || job.Status != types.JobStatusProcessing {
		return StallInfo{}
	}
	since := now.Sub(job.UpdatedAt)
	if since < 0 {
		since = 0
	}
	info := StallInfo{SinceUpdate: since}
	if since > p.Threshold {
		info.IsStalled = true
		info.StalledSeconds = int((since - p.Threshold) / time.Second)
	}
	if since >= p.RetryAfter {
		info.CanRetry = true
	}
	return info
}
