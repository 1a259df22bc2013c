package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/interview-prep/internal/fetch"
	"github.com/jonathan/interview-prep/internal/llm"
	"github.com/jonathan/interview-prep/internal/prompts"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// CompanySource produces company research.
type CompanySource interface {
	Gather(ctx context.Context, in types.JobInput) (*types.CompanyResearch, error)
}

// JobSource produces a job analysis.
type JobSource interface {
	Gather(ctx context.Context, in types.JobInput) (*types.JobAnalysis, error)
}

// CVSource produces a CV analysis.
type CVSource interface {
	Gather(ctx context.Context, in types.JobInput) (*types.CVAnalysis, error)
}

// PageFetcher fetches pages concurrently. *fetch.Fetcher implements it.
type PageFetcher interface {
	Pages(ctx context.Context, urls []string, limit int) []*fetch.Page
}

// postingLimit caps the characters taken from each job posting.
const postingLimit = 12000

func promptData(in types.JobInput) map[string]string {
	locale := in.Locale
	if locale == "" {
		locale = "en-US"
	}
	return map[string]string{"Company": in.Company, "Role": in.Role, "Locale": locale}
}

// JobGatherer analyzes the job postings linked in the input. Without links, or
// when none can be fetched, it describes the role from its title.
type JobGatherer struct {
	client  llm.Client
	fetcher PageFetcher
	log     *zap.Logger
}

// NewJobGatherer creates a JobGatherer. fetcher may be nil.
func NewJobGatherer(client llm.Client, fetcher PageFetcher, logger *zap.Logger) *JobGatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobGatherer{client: client, fetcher: fetcher, log: logger}
}

// Gather implements JobSource.
func (g *JobGatherer) Gather(ctx context.Context, in types.JobInput) (*types.JobAnalysis, error) {
	data := promptData(in)

	var pages []*fetch.Page
	if len(in.JobLinks) > 0 && g.fetcher != nil {
		pages = g.fetcher.Pages(ctx, in.JobLinks, len(in.JobLinks))
		if len(pages) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g.log.Warn("no job posting could be fetched, describing role from title",
				zap.Strings("links", in.JobLinks))
		}
	}

	var prompt string
	if len(pages) > 0 {
		header, err := prompts.Render("gather.json", "job-posting-context", data)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for i, p := range pages {
			if i > 0 {
				sb.WriteString("\n---\n")
			}
			body := p.Markdown
			if strings.TrimSpace(body) == "" {
				body = p.Text
			}
			sb.WriteString("URL: " + p.URL + "\n\n" + fetch.Truncate(body, postingLimit) + "\n")
		}
		prompt = llm.BuildExtractionPrompt(llm.JobAnalysisSchema(), sb.String(), header)
	} else {
		header, err := prompts.Render("gather.json", "job-from-title", data)
		if err != nil {
			return nil, err
		}
		prompt = llm.BuildExtractionPrompt(llm.JobAnalysisSchema(), in.Role, header)
	}

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("job analysis generation failed: %w", err)
	}

	var out types.JobAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse job analysis: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" {
		out.Title = in.Role
	}
	for _, p := range pages {
		out.SourceURLs = append(out.SourceURLs, p.URL)
	}
	return &out, nil
}

// CVGatherer extracts a candidate profile from the CV text in the input.
type CVGatherer struct {
	client llm.Client
}

// NewCVGatherer creates a CVGatherer.
func NewCVGatherer(client llm.Client) *CVGatherer {
	return &CVGatherer{client: client}
}

// Gather implements CVSource.
func (g *CVGatherer) Gather(ctx context.Context, in types.JobInput) (*types.CVAnalysis, error) {
	if strings.TrimSpace(in.CVText) == "" {
		return nil, fmt.Errorf("cv: %w", ErrNoInput)
	}

	header, err := prompts.Render("gather.json", "cv-context", promptData(in))
	if err != nil {
		return nil, err
	}
	prompt := llm.BuildExtractionPrompt(llm.CVAnalysisSchema(), in.CVText, header)

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("cv analysis generation failed: %w", err)
	}

	var out types.CVAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse cv analysis: %w", err)
	}
	return &out, nil
}
