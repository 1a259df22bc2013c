package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompanyResearch is the structured output of the company research gatherer
type CompanyResearch struct {
	Company          string   `json:"company"`
	Industry         string   `json:"industry,omitempty"`
	Summary          string   `json:"summary"`
	Values           []string `json:"values"`
	Culture          string   `json:"culture,omitempty"`
	InterviewProcess []string `json:"interview_process"` // Reported stages, in order
	RecentNews       []string `json:"recent_news,omitempty"`
	TechStack        []string `json:"tech_stack,omitempty"`
	Sources          []string `json:"sources,omitempty"`
}

// IsEmpty reports whether the research carries nothing usable for synthesis.
func (c *CompanyResearch) IsEmpty() bool {
	if c == nil {
		return true
	}
	return blank(c.Summary) && blank(c.Culture) && len(c.Values) == 0 && len(c.InterviewProcess) == 0
}

// JobAnalysis is the structured output of the job analysis gatherer
type JobAnalysis struct {
	Title            string   `json:"title"`
	Seniority        string   `json:"seniority,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Responsibilities []string `json:"responsibilities"`
	Requirements     []string `json:"requirements"`
	NiceToHaves      []string `json:"nice_to_haves,omitempty"`
	Skills           []string `json:"skills,omitempty"`
	InterviewSignals []string `json:"interview_signals,omitempty"` // Hints about how candidates are assessed
	SourceURLs       []string `json:"source_urls,omitempty"`
}

// IsEmpty reports whether the analysis carries nothing usable for synthesis.
func (j *JobAnalysis) IsEmpty() bool {
	if j == nil {
		return true
	}
	return len(j.Responsibilities) == 0 && len(j.Requirements) == 0 && len(j.Skills) == 0
}

// CVExperience is one role from the candidate's CV
type CVExperience struct {
	Title      string   `json:"title"`
	Company    string   `json:"company,omitempty"`
	Duration   string   `json:"duration,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

// CVAnalysis is the structured output of the CV analysis gatherer
type CVAnalysis struct {
	Summary         string         `json:"summary"`
	YearsExperience float64        `json:"years_experience,omitempty"`
	Skills          []string       `json:"skills"`
	Experience      []CVExperience `json:"experience"`
	Education       []string       `json:"education,omitempty"`
	Achievements    []string       `json:"achievements,omitempty"`
}

// IsEmpty reports whether the analysis carries nothing usable for synthesis.
func (c *CVAnalysis) IsEmpty() bool {
	if c == nil {
		return true
	}
	return blank(c.Summary) && len(c.Skills) == 0 && len(c.Experience) == 0
}

// Gatherer names
const (
	GathererCompany = "company"
	GathererJob     = "job"
	GathererCV      = "cv"
)

// RawArtifact is the persisted, unsynthesized output of the gather phase
type RawArtifact struct {
	JobID     uuid.UUID         `json:"job_id"`
	Company   *CompanyResearch  `json:"company,omitempty"`
	Job       *JobAnalysis      `json:"job,omitempty"`
	CV        *CVAnalysis       `json:"cv,omitempty"`
	Outcomes  map[string]string `json:"outcomes"` // gatherer name -> ok|timeout|error|empty (+ detail)
	CreatedAt time.Time         `json:"created_at"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
