package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes a structured extraction: an instruction preamble and the fields to return.
type ExtractionSchema struct {
	Name        string
	Description string
	Fields      []SchemaField
}

// SchemaField is a single output field of an extraction.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // type hint shown to the model, e.g. "string", ["string"]
	Description string
	Required    bool
}

// BuildExtractionPrompt constructs the prompt for schema over inputText.
// Extra context lines, if any, are placed before the input.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string, context ...string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		sb.WriteString(fmt.Sprintf("  %q: %s", field.Name, typeHint))
		if field.Required {
			sb.WriteString(" (required)")
		}
		if field.Description != "" {
			sb.WriteString(" // " + field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Base every field on the input; use an empty string or empty list when the input says nothing.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	for _, line := range context {
		if strings.TrimSpace(line) != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	if len(context) > 0 {
		sb.WriteString("\n")
	}

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// JobAnalysisSchema extracts what a posting asks for and what it hints about the interview.
func JobAnalysisSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "JobAnalysis",
		Description: `You are an expert technical recruiter. Analyze the job posting below for a candidate preparing for interviews.
Keep requirements close to the original wording. EXCLUDE application form fields, EEO statements and legal boilerplate.`,
		Fields: []SchemaField{
			{Name: "title", Type: `"string"`, Description: "Role title as posted", Required: true},
			{Name: "seniority", Type: `"string"`, Description: "junior, mid, senior, staff, principal or unknown"},
			{Name: "summary", Type: `"string"`, Description: "Two sentences on what the role owns"},
			{Name: "responsibilities", Type: `["string"]`, Description: "Day-to-day duties", Required: true},
			{Name: "requirements", Type: `["string"]`, Description: "Must-have qualifications", Required: true},
			{Name: "nice_to_haves", Type: `["string"]`, Description: "Preferred qualifications"},
			{Name: "skills", Type: `["string"]`, Description: "Concrete technologies and skills, deduplicated", Required: true},
			{Name: "interview_signals", Type: `["string"]`, Description: "Anything the posting says about the hiring process or what will be assessed"},
		},
	}
}

// CVAnalysisSchema extracts a candidate profile from CV text.
func CVAnalysisSchema() ExtractionSchema {
	return ExtractionSchema{
		Name:        "CVAnalysis",
		Description: `You are an experienced hiring manager reading a candidate's CV. Extract a faithful profile; do not invent experience.`,
		Fields: []SchemaField{
			{Name: "summary", Type: `"string"`, Description: "Three sentence professional summary", Required: true},
			{Name: "years_experience", Type: `number`, Description: "Total years of professional experience"},
			{Name: "skills", Type: `["string"]`, Description: "Technologies and skills", Required: true},
			{Name: "experience", Type: `[{"title": "string", "company": "string", "duration": "string", "highlights": ["string"]}]`, Description: "Roles, most recent first", Required: true},
			{Name: "education", Type: `["string"]`},
			{Name: "achievements", Type: `["string"]`, Description: "Quantified accomplishments"},
		},
	}
}

// CompanyResearchSchema summarizes research pages about an employer.
func CompanyResearchSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "CompanyResearch",
		Description: `You are a career coach researching an employer for a candidate's interview preparation.
Summarize what matters for interviewing there. Prefer facts from the sources; say so when relying on general knowledge.`,
		Fields: []SchemaField{
			{Name: "company", Type: `"string"`, Required: true},
			{Name: "industry", Type: `"string"`},
			{Name: "summary", Type: `"string"`, Description: "What the company does, in three sentences", Required: true},
			{Name: "values", Type: `["string"]`, Description: "Stated values or principles"},
			{Name: "culture", Type: `"string"`, Description: "Working culture and engineering practices"},
			{Name: "interview_process", Type: `["string"]`, Description: "Known interview stages, in order"},
			{Name: "recent_news", Type: `["string"]`},
			{Name: "tech_stack", Type: `["string"]`},
		},
	}
}
