package types

import "github.com/google/uuid"

// InterviewStage is one stage of the predicted interview loop
type InterviewStage struct {
	ID          uuid.UUID `json:"id,omitempty"`
	Position    int       `json:"position"`
	Name        string    `json:"name"`
	Duration    string    `json:"duration"`
	Interviewer string    `json:"interviewer"`
	Content     string    `json:"content"`
	Guidance    string    `json:"guidance"`
}

// Question categories
const (
	QuestionBehavioral   = "behavioral"
	QuestionTechnical    = "technical"
	QuestionSystemDesign = "system_design"
	QuestionCompany      = "company"
	QuestionRole         = "role"
)

// Question is one entry in the question bank
type Question struct {
	ID          uuid.UUID `json:"id,omitempty"`
	StageName   string    `json:"stage_name,omitempty"`
	Category    string    `json:"category"`
	Difficulty  string    `json:"difficulty,omitempty"` // easy, medium, hard
	Question    string    `json:"question"`
	WhyAsked    string    `json:"why_asked,omitempty"`
	ModelAnswer string    `json:"model_answer,omitempty"`
	Tips        string    `json:"tips,omitempty"`
}

// Comparison is the CV-versus-role gap analysis
type Comparison struct {
	MatchScore      int      `json:"match_score"` // 0-100
	Strengths       []string `json:"strengths"`
	Gaps            []string `json:"gaps"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
	MissingInputs   []string `json:"missing_inputs,omitempty"` // Gatherers whose data was unavailable
}

// SynthesisOutput is the structured document produced by the synthesis call
type SynthesisOutput struct {
	Stages     []InterviewStage `json:"stages"`
	Questions  []Question       `json:"questions"`
	Comparison *Comparison      `json:"comparison"`
}

// ValidQuestionCategory reports whether c is a known question category.
func ValidQuestionCategory(c string) bool {
	switch c {
	case QuestionBehavioral, QuestionTechnical, QuestionSystemDesign, QuestionCompany, QuestionRole:
		return true
	}
	return false
}
