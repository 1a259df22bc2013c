package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSynthesis = `{
  "stages": [{"name": "Recruiter screen", "duration": "30m", "content": "Background and motivation"}],
  "questions": [{"category": "behavioral", "difficulty": "easy", "question": "Tell me about a failure."}],
  "comparison": {"match_score": 72, "strengths": ["Go"], "gaps": ["Kubernetes"], "recommendations": ["Study k8s"], "summary": "Good fit"}
}`

func TestEmbeddedSchemasAreValidJSON(t *testing.T) {
	for _, name := range []string{Synthesis, JobInput} {
		t.Run(name, func(t *testing.T) {
			content, err := Get(name)
			require.NoError(t, err)
			assert.True(t, json.Valid([]byte(content)))
		})
	}
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("missing.schema.json")
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidate_Synthesis(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		field   string
	}{
		{name: "valid", doc: validSynthesis},
		{
			name:    "no stages",
			doc:     `{"stages": [], "questions": [{"category": "technical", "question": "q"}], "comparison": {"match_score": 1, "strengths": [], "gaps": [], "recommendations": [], "summary": ""}}`,
			wantErr: true,
			field:   "stages",
		},
		{
			name:    "unknown category",
			doc:     `{"stages": [{"name": "n", "content": "c"}], "questions": [{"category": "trivia", "question": "q"}], "comparison": {"match_score": 1, "strengths": [], "gaps": [], "recommendations": [], "summary": ""}}`,
			wantErr: true,
			field:   "questions.0.category",
		},
		{
			name:    "score out of range",
			doc:     `{"stages": [{"name": "n", "content": "c"}], "questions": [{"category": "role", "question": "q"}], "comparison": {"match_score": 140, "strengths": [], "gaps": [], "recommendations": [], "summary": ""}}`,
			wantErr: true,
			field:   "comparison.match_score",
		},
		{
			name:    "missing comparison",
			doc:     `{"stages": [{"name": "n", "content": "c"}], "questions": [{"category": "role", "question": "q"}]}`,
			wantErr: true,
			field:   "(root)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Synthesis, []byte(tt.doc))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.NotEmpty(t, ve.Errors)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
			assert.Contains(t, ve.Summary(), tt.field)
		})
	}
}

func TestValidate_JobInput(t *testing.T) {
	assert.NoError(t, Validate(JobInput, []byte(`{"company": "Acme", "role": "SRE", "job_links": ["https://acme.example/jobs/1"]}`)))
	assert.Error(t, Validate(JobInput, []byte(`{"company": "Acme"}`)))
	assert.Error(t, Validate(JobInput, []byte(`{"company": "Acme", "role": "SRE", "salary": 1}`)))
}

func TestValidate_NotJSON(t *testing.T) {
	assert.Error(t, Validate(Synthesis, []byte(`{"stages": [`)))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`
	assert.NoError(t, ValidateJSONString(schema, `{"name": "x"}`))

	err := ValidateJSONString(schema, `{"name": 1}`)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Errors[0].Field)

	err = ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}
