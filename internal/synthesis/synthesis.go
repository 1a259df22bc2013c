// Package synthesis turns gathered research into interview stages, a question bank
// and a CV comparison with a single model call.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/interview-prep/internal/llm"
	"github.com/jonathan/interview-prep/internal/prompts"
	"github.com/jonathan/interview-prep/internal/schemas"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// ErrMalformed is returned when the model output cannot be used.
var ErrMalformed = errors.New("malformed synthesis output")

// MalformedError describes why the model output was rejected.
type MalformedError struct {
	Reason string
	Cause  error
}

func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformed, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrMalformed, e.Reason)
}

func (e *MalformedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrMalformed, e.Cause}
	}
	return []error{ErrMalformed}
}

// Input is everything synthesis sees. Nil sections were unavailable.
type Input struct {
	Job     types.JobInput
	Company *types.CompanyResearch
	Posting *types.JobAnalysis
	CV      *types.CVAnalysis
	Missing []string
}

// Synthesizer produces the synthesis output.
type Synthesizer struct {
	client llm.Client
	log    *zap.Logger
}

// New creates a Synthesizer.
func New(client llm.Client, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{client: client, log: logger}
}

// Synthesize makes one model call and returns the validated output. Errors from
// the model call are returned as is; unusable output wraps ErrMalformed.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*types.SynthesisOutput, error) {
	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return nil, &MalformedError{Reason: "empty response", Cause: err}
		}
		return nil, fmt.Errorf("synthesis generation failed: %w", err)
	}

	out, err := Parse(raw)
	if err != nil {
		s.log.Warn("synthesis output rejected", zap.Error(err), zap.Int("bytes", len(raw)))
		return nil, err
	}

	// Gather outcomes decide what was missing; the model's own list is discarded.
	out.Comparison.MissingInputs = append([]string{}, in.Missing...)
	return out, nil
}

// Parse validates raw model output against the synthesis schema, decodes it and
// applies the checks the schema cannot express.
func Parse(raw string) (*types.SynthesisOutput, error) {
	if !json.Valid([]byte(raw)) {
		return nil, &MalformedError{Reason: "not valid JSON"}
	}
	if err := schemas.Validate(schemas.Synthesis, []byte(raw)); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, &MalformedError{Reason: ve.Summary()}
		}
		return nil, &MalformedError{Reason: "schema check failed", Cause: err}
	}

	var out types.SynthesisOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &MalformedError{Reason: "decode failed", Cause: err}
	}
	if err := check(&out); err != nil {
		return nil, err
	}
	normalize(&out)
	return &out, nil
}

func check(out *types.SynthesisOutput) error {
	if len(out.Stages) == 0 {
		return &MalformedError{Reason: "no interview stages"}
	}
	if len(out.Questions) == 0 {
		return &MalformedError{Reason: "no questions"}
	}
	if out.Comparison == nil {
		return &MalformedError{Reason: "no comparison"}
	}
	for i, st := range out.Stages {
		if strings.TrimSpace(st.Name) == "" {
			return &MalformedError{Reason: fmt.Sprintf("stage %d has no name", i)}
		}
	}
	for i, q := range out.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return &MalformedError{Reason: fmt.Sprintf("question %d is blank", i)}
		}
		if !types.ValidQuestionCategory(q.Category) {
			return &MalformedError{Reason: fmt.Sprintf("question %d has unknown category %q", i, q.Category)}
		}
	}
	return nil
}

// normalize fills positions and drops stage references that do not match a stage.
func normalize(out *types.SynthesisOutput) {
	names := make(map[string]bool, len(out.Stages))
	for i := range out.Stages {
		out.Stages[i].Position = i + 1
		names[out.Stages[i].Name] = true
	}
	for i := range out.Questions {
		if out.Questions[i].StageName != "" && !names[out.Questions[i].StageName] {
			out.Questions[i].StageName = ""
		}
	}
	c := out.Comparison
	if c.Strengths == nil {
		c.Strengths = []string{}
	}
	if c.Gaps == nil {
		c.Gaps = []string{}
	}
	if c.Recommendations == nil {
		c.Recommendations = []string{}
	}
}

// BuildPrompt renders the synthesis prompt. Missing sections are rendered as null.
func BuildPrompt(in Input) (string, error) {
	locale := in.Job.Locale
	if locale == "" {
		locale = "en-US"
	}
	missing := "none"
	if len(in.Missing) > 0 {
		missing = strings.Join(in.Missing, ", ")
	}

	return prompts.Render("synthesis.json", "interview-synthesis", map[string]string{
		"Company":         in.Job.Company,
		"Role":            in.Job.Role,
		"Locale":          locale,
		"CompanyResearch": section(in.Company, in.Company.IsEmpty()),
		"JobAnalysis":     section(in.Posting, in.Posting.IsEmpty()),
		"CVAnalysis":      section(in.CV, in.CV.IsEmpty()),
		"MissingInputs":   missing,
	})
}

func section(v any, empty bool) string {
	if empty {
		return "null"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}
