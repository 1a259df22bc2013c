package research

import (
	"net/url"
	"sort"
	"strings"
)

// RankedURL is a URL with priority for fetch ordering.
type RankedURL struct {
	URL      string  `json:"url"`
	Priority float64 `json:"priority"` // 0.0-1.0, higher = more relevant
	Kind     string  `json:"kind"`     // query kind that found it
}

// lowValueHosts rarely carry readable content for an anonymous fetch.
var lowValueHosts = []string{
	"linkedin.com",
	"indeed.com",
	"ziprecruiter.com",
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"youtube.com",
	"tiktok.com",
}

// IsLowValue reports whether a URL is on a host that is not worth fetching.
func IsLowValue(urlStr string) bool {
	host := hostOf(urlStr)
	if host == "" {
		return true
	}
	for _, h := range lowValueHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// PathPriority scores a URL by how likely it is to describe values, culture or interviews.
func PathPriority(urlStr string) float64 {
	lower := strings.ToLower(urlStr)

	tiers := []struct {
		score    float64
		patterns []string
	}{
		{0.95, []string{"interview", "hiring-process", "how-we-hire", "leadership-principles", "our-values", "values"}},
		{0.85, []string{"culture", "about", "careers", "engineering", "mission", "principles", "who-we-are", "team"}},
		{0.7, []string{"press", "news", "blog", "announcements"}},
		{0.1, []string{"/product/", "/pricing", "/login", "/signup", "/store", "/order"}},
	}
	for _, tier := range tiers {
		for _, p := range tier.patterns {
			if strings.Contains(lower, p) {
				return tier.score
			}
		}
	}
	return 0.5
}

// Rank deduplicates results, drops low value hosts, and orders what remains by priority.
// Ties keep discovery order.
func Rank(found map[string][]SearchResult) []RankedURL {
	seen := make(map[string]bool)
	var out []RankedURL
	for _, kind := range queryOrder {
		for _, r := range found[kind] {
			key := normalize(r.Link)
			if key == "" || seen[key] || IsLowValue(r.Link) {
				continue
			}
			seen[key] = true
			p := PathPriority(r.Link)
			// Interview search hits are on topic even when the path says nothing.
			if kind == QueryInterview && p < 0.9 {
				p = 0.9
			}
			out = append(out, RankedURL{URL: r.Link, Priority: p, Kind: kind})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func hostOf(urlStr string) string {
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func normalize(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil || parsed.Host == "" {
		return ""
	}
	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	return strings.TrimSuffix(parsed.String(), "/")
}
