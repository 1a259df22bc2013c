// Package research discovers and summarizes public information about an employer.
package research

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]SearchResult, error)
}

// Researcher handles web search through the Google Custom Search API.
type Researcher struct {
	svc *customsearch.Service
	cx  string
}

// NewResearcher creates a new Researcher instance.
func NewResearcher(ctx context.Context, apiKey string, cx string) (*Researcher, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine ID are required")
	}
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &Researcher{svc: svc, cx: cx}, nil
}

// Search returns up to n results for query. The API caps n at 10.
func (r *Researcher) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if n <= 0 || n > 10 {
		n = 10
	}
	resp, err := r.svc.Cse.List().Cx(r.cx).Q(query).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}

// Query kinds used when researching a company.
const (
	QueryOverview  = "overview"
	QueryInterview = "interview"
	QueryCulture   = "culture"
	QueryNews      = "news"
)

// Queries returns the searches run for a company and role, keyed by kind.
func Queries(company, role string) map[string]string {
	company = strings.TrimSpace(company)
	role = strings.TrimSpace(role)
	return map[string]string{
		QueryOverview:  company + " company about",
		QueryInterview: company + " " + role + " interview process",
		QueryCulture:   company + " values engineering culture",
		QueryNews:      company + " news",
	}
}

// queryOrder fixes the order searches run in so results are reproducible.
var queryOrder = []string{QueryOverview, QueryInterview, QueryCulture, QueryNews}
