package research

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

// PageFetcher fetches pages concurrently. *fetch.Fetcher implements it.
type PageFetcher interface {
	Pages(ctx context.Context, urls []string, limit int) []*fetch.Page
}

// CompanyOptions bounds how much is fetched for one company.
type CompanyOptions struct {
	ResultsPerQuery int
	MaxPages        int
	FetchParallel   int
	// CorpusLimit caps the characters of page content sent to the model.
	CorpusLimit int
	// PageLimit caps the characters taken from any single page.
	PageLimit int
}

// DefaultCompanyOptions returns sensible defaults.
func DefaultCompanyOptions() CompanyOptions {
	return CompanyOptions{
		ResultsPerQuery: 4,
		MaxPages:        6,
		FetchParallel:   3,
		CorpusLimit:     40000,
		PageLimit:       8000,
	}
}

// CompanyGatherer researches an employer. Without a Searcher it asks the model
// for what it already knows about the company.
type CompanyGatherer struct {
	search  Searcher
	fetcher PageFetcher
	client  llm.Client
	opts    CompanyOptions
	log     *zap.Logger
}

// NewCompanyGatherer creates a CompanyGatherer. search and fetcher may be nil.
func NewCompanyGatherer(client llm.Client, search Searcher, fetcher PageFetcher, opts CompanyOptions, logger *zap.Logger) *CompanyGatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyGatherer{search: search, fetcher: fetcher, client: client, opts: opts, log: logger}
}

// Gather returns structured research for the company named in in.
func (g *CompanyGatherer) Gather(ctx context.Context, in types.JobInput) (*types.CompanyResearch, error) {
	var pages []*fetch.Page
	if g.search != nil && g.fetcher != nil {
		urls, err := g.discover(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Warn("company search failed, using model knowledge", zap.String("company", in.Company), zap.Error(err))
		}
		if len(urls) > 0 {
			pages = g.fetcher.Pages(ctx, urls, g.opts.FetchParallel)
		}
	}

	var prompt string
	if len(pages) == 0 {
		p, err := knowledgePrompt(in)
		if err != nil {
			return nil, err
		}
		prompt = p
	} else {
		g.log.Debug("company corpus built", zap.String("company", in.Company), zap.Int("pages", len(pages)))
		p, err := sourcesPrompt(in, BuildCorpus(pages, g.opts.PageLimit, g.opts.CorpusLimit))
		if err != nil {
			return nil, err
		}
		prompt = p
	}

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("company research generation failed: %w", err)
	}

	var out types.CompanyResearch
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse company research: %w", err)
	}
	if strings.TrimSpace(out.Company) == "" {
		out.Company = in.Company
	}
	for _, p := range pages {
		out.Sources = append(out.Sources, p.URL)
	}
	return &out, nil
}

// discover runs the company searches and returns the URLs worth fetching.
// Individual search failures are tolerated while at least one succeeds.
func (g *CompanyGatherer) discover(ctx context.Context, in types.JobInput) ([]string, error) {
	queries := Queries(in.Company, in.Role)
	found := make(map[string][]SearchResult)
	var lastErr error
	for _, kind := range queryOrder {
		res, err := g.search.Search(ctx, queries[kind], g.opts.ResultsPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Debug("search query failed", zap.String("kind", kind), zap.Error(err))
			lastErr = err
			continue
		}
		found[kind] = res
	}
	if len(found) == 0 && lastErr != nil {
		return nil, lastErr
	}

	ranked := Rank(found)
	if g.opts.MaxPages > 0 && len(ranked) > g.opts.MaxPages {
		ranked = ranked[:g.opts.MaxPages]
	}
	urls := make([]string, len(ranked))
	for i, r := range ranked {
		urls[i] = r.URL
	}
	return urls, nil
}

func promptData(in types.JobInput) map[string]string {
	locale := in.Locale
	if locale == "" {
		locale = "en-US"
	}
	return map[string]string{"Company": in.Company, "Role": in.Role, "Locale": locale}
}

func sourcesPrompt(in types.JobInput, corpus string) (string, error) {
	header, err := prompts.Render("gather.json", "company-sources-context", promptData(in))
	if err != nil {
		return "", err
	}
	return llm.BuildExtractionPrompt(llm.CompanyResearchSchema(), corpus, header), nil
}

func knowledgePrompt(in types.JobInput) (string, error) {
	header, err := prompts.Render("gather.json", "company-knowledge", promptData(in))
	if err != nil {
		return "", err
	}
	return llm.BuildExtractionPrompt(llm.CompanyResearchSchema(), in.Company, header), nil
}
