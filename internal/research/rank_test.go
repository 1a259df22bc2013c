package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLowValue(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/company/acme", true},
		{"https://uk.indeed.com/cmp/Acme", true},
		{"https://acme.example/about", false},
		{"https://www.glassdoor.com/Interview/Acme-Interview-Questions", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLowValue(tt.url))
		})
	}
}

func TestPathPriority(t *testing.T) {
	tests := []struct {
		url  string
		want float64
	}{
		{"https://acme.example/how-we-hire", 0.95},
		{"https://acme.example/company/values", 0.95},
		{"https://acme.example/about-us", 0.85},
		{"https://acme.example/blog/launch", 0.7},
		{"https://acme.example/pricing", 0.1},
		{"https://acme.example/", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, PathPriority(tt.url))
		})
	}
}

func TestRank(t *testing.T) {
	found := map[string][]SearchResult{
		QueryOverview: {
			{Link: "https://www.acme.example/"},
			{Link: "https://acme.example/about"},
			{Link: "https://www.linkedin.com/company/acme"},
		},
		QueryInterview: {
			{Link: "https://www.glassdoor.com/Interview/Acme-SRE"},
			{Link: "https://acme.example/about#team"},
		},
		QueryNews: {
			{Link: "https://news.example/acme-raises"},
		},
	}

	ranked := Rank(found)
	require.Len(t, ranked, 4)

	urls := make([]string, len(ranked))
	for i, r := range ranked {
		urls[i] = r.URL
	}
	assert.Equal(t, []string{
		"https://www.glassdoor.com/Interview/Acme-SRE",
		"https://acme.example/about",
		"https://news.example/acme-raises",
		"https://www.acme.example/",
	}, urls)
	assert.Equal(t, QueryInterview, ranked[0].Kind)
}

func TestQueries(t *testing.T) {
	q := Queries(" Acme ", "SRE")
	assert.Equal(t, "Acme SRE interview process", q[QueryInterview])
	assert.Len(t, q, len(queryOrder))
}
