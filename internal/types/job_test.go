package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestAllowedFrom(t *testing.T) {
	assert.ElementsMatch(t, []JobStatus{JobStatusProcessing}, AllowedFrom(JobStatusCompleted))
	assert.ElementsMatch(t, []JobStatus{JobStatusProcessing}, AllowedFrom(JobStatusFailed))
	assert.Empty(t, AllowedFrom(JobStatusPending))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestJobInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   JobInput
		wantErr bool
	}{
		{
			name:  "valid",
			input: JobInput{Company: "Acme", Role: "Backend Engineer", JobLinks: []string{"https://acme.example/jobs/1"}},
		},
		{
			name:    "missing company",
			input:   JobInput{Role: "Backend Engineer"},
			wantErr: true,
		},
		{
			name:    "missing role",
			input:   JobInput{Company: "Acme"},
			wantErr: true,
		},
		{
			name:    "bad link",
			input:   JobInput{Company: "Acme", Role: "SRE", JobLinks: []string{"not a url"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGatheredIsEmpty(t *testing.T) {
	var nilCompany *CompanyResearch
	assert.True(t, nilCompany.IsEmpty())
	assert.True(t, (&CompanyResearch{Company: "Acme", Summary: "   "}).IsEmpty())
	assert.False(t, (&CompanyResearch{Summary: "Builds rockets"}).IsEmpty())

	assert.True(t, (&JobAnalysis{Title: "SRE"}).IsEmpty())
	assert.False(t, (&JobAnalysis{Requirements: []string{"Go"}}).IsEmpty())

	assert.True(t, (&CVAnalysis{}).IsEmpty())
	assert.False(t, (&CVAnalysis{Skills: []string{"Go"}}).IsEmpty())
}
