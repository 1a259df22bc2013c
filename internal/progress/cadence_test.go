package progress

import (
	"testing"
	"time"

	"github.com/jonathan/interview-prep/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCadence_Interval(t *testing.T) {
	c := DefaultCadence()
	tests := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{29 * time.Second, 2 * time.Second},
		{30 * time.Second, 5 * time.Second},
		{45 * time.Second, 5 * time.Second},
		{60 * time.Second, 5 * time.Second},
		{61 * time.Second, 10 * time.Second},
		{10 * time.Minute, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, c.Interval(tt.elapsed))
		})
	}
}

func TestCadence_For(t *testing.T) {
	c := DefaultCadence()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 2*time.Second, c.For(&types.Job{Status: types.JobStatusPending}, now))

	started := now.Add(-40 * time.Second)
	assert.Equal(t, 5*time.Second, c.For(&types.Job{Status: types.JobStatusProcessing, StartedAt: &started}, now))

	future := now.Add(time.Minute)
	assert.Equal(t, 2*time.Second, c.For(&types.Job{Status: types.JobStatusProcessing, StartedAt: &future}, now))
}

func TestStallPolicy_Evaluate(t *testing.T) {
	p := DefaultStallPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		status      types.JobStatus
		silence     time.Duration
		wantStalled bool
		wantSeconds int
		wantRetry   bool
	}{
		{"fresh", types.JobStatusProcessing, 5 * time.Second, false, 0, false},
		{"at threshold", types.JobStatusProcessing, 30 * time.Second, false, 0, false},
		{"stalled", types.JobStatusProcessing, 40 * time.Second, true, 10, false},
		{"retry offered", types.JobStatusProcessing, 45 * time.Second, true, 15, true},
		{"long stall", types.JobStatusProcessing, 5 * time.Minute, true, 270, true},
		{"pending never stalls", types.JobStatusPending, 5 * time.Minute, false, 0, false},
		{"completed never stalls", types.JobStatusCompleted, 5 * time.Minute, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &types.Job{Status: tt.status, UpdatedAt: now.Add(-tt.silence)}
			info := p.Evaluate(job, now)
			assert.Equal(t, tt.wantStalled, info.IsStalled)
			assert.Equal(t, tt.wantSeconds, info.StalledSeconds)
			assert.Equal(t, tt.wantRetry, info.CanRetry)
		})
	}
}
