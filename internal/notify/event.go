// Package notify fans out job progress events to subscribers.
//
// Events are hints: a subscriber that misses one still converges by reading the
// job record. Publishers never block on slow subscribers.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/types"
)

// Event announces that a job record changed
type Event struct {
	JobID      uuid.UUID       `json:"job_id"`
	Status     types.JobStatus `json:"status"`
	Step       string          `json:"step"`
	Percentage int             `json:"percentage"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EventFromJob builds the event for the job's current state
func EventFromJob(job *types.Job) Event {
	return Event{
		JobID:      job.ID,
		Status:     job.Status,
		Step:       job.ProgressStep,
		Percentage: job.ProgressPercentage,
		UpdatedAt:  job.UpdatedAt,
	}
}

// Publisher sends job events
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber delivers events for one job until ctx is cancelled.
// The returned channel is closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan Event, error)
}

// Bus is a Publisher and Subscriber sharing one transport
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// subscriberBuffer bounds per-subscriber backlog; older events are dropped first.
const subscriberBuffer = 16

// offer delivers ev without blocking, evicting the oldest queued event if the buffer is full.
func offer(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
