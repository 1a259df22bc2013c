package research

import (
	"strings"

	"github.com/jonathan/interview-prep/internal/fetch"
)

// BuildCorpus joins page content into one document separated by '---' lines.
// Each page is introduced by its URL and title and cut to pageLimit characters;
// pages that would push the corpus past totalLimit are dropped.
func BuildCorpus(pages []*fetch.Page, pageLimit, totalLimit int) string {
	var sb strings.Builder
	for _, p := range pages {
		if p == nil {
			continue
		}
		body := p.Markdown
		if strings.TrimSpace(body) == "" {
			body = p.Text
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		if pageLimit > 0 {
			body = fetch.Truncate(body, pageLimit)
		}

		var section strings.Builder
		if sb.Len() > 0 {
			section.WriteString("\n---\n")
		}
		section.WriteString("URL: " + p.URL + "\n")
		if p.Title != "" {
			section.WriteString("Title: " + p.Title + "\n")
		}
		section.WriteString("\n" + body + "\n")

		if totalLimit > 0 && sb.Len()+section.Len() > totalLimit {
			break
		}
		sb.WriteString(section.String())
	}
	return sb.String()
}
