package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/interview-prep/internal/types"
)

const (
	boxWidth       = 60
	maxItemsToShow = 5
	barWidth       = 30
)

// Printer renders job progress and prep material for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// ProgressBar renders pct as a fixed-width bar, e.g. [#####.....]  50%
func ProgressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * barWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), pct)
}

// PrintProgress writes a one-line progress report for a job.
// stalledSeconds > 0 appends a stall warning; canRetry adds the retry hint.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(job *types.Job, stalledSeconds int, canRetry bool) {
	if job == nil {
		return
	}
	line := fmt.Sprintf("%-10s %-16s %s", job.Status, job.ProgressStep, ProgressBar(job.ProgressPercentage))
	if stalledSeconds > 0 {
		line += fmt.Sprintf("  (no progress for %ds)", stalledSeconds)
	}
	if canRetry {
		line += "  retry available"
	}
	fmt.Fprintln(p.out, line)
	if job.Status == types.JobStatusFailed && job.ErrorMessage != nil {
		fmt.Fprintf(p.out, "error: %s\n", *job.ErrorMessage)
	}
}

// PrintSynthesis outputs a summary of the interview stages, questions and gap analysis.
func (p *Printer) PrintSynthesis(out *types.SynthesisOutput) {
	if out == nil {
		return
	}

	if len(out.Stages) > 0 {
		var sb strings.Builder
		for i, st := range out.Stages {
			sb.WriteString(fmt.Sprintf("%d. %s", i+1, st.Name))
			if st.Duration != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", st.Duration))
			}
			sb.WriteString("\n")
			if st.Interviewer != "" {
				sb.WriteString(fmt.Sprintf("   with %s\n", st.Interviewer))
			}
		}
		p.printBox("INTERVIEW STAGES", strings.TrimSuffix(sb.String(), "\n"))
	}

	if len(out.Questions) > 0 {
		var sb strings.Builder
		byCategory := map[string]int{}
		for _, q := range out.Questions {
			byCategory[q.Category]++
		}
		sb.WriteString(fmt.Sprintf("Total questions: %d\n", len(out.Questions)))
		for _, c := range []string{types.QuestionBehavioral, types.QuestionTechnical, types.QuestionSystemDesign, types.QuestionCompany, types.QuestionRole} {
			if n := byCategory[c]; n > 0 {
				sb.WriteString(fmt.Sprintf("  %-14s %d\n", c, n))
			}
		}
		sb.WriteString("\n")
		count := min(len(out.Questions), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("• %s\n", out.Questions[i].Question))
		}
		if len(out.Questions) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more", len(out.Questions)-maxItemsToShow))
		}
		p.printBox("QUESTION BANK", strings.TrimSuffix(sb.String(), "\n"))
	}

	if c := out.Comparison; c != nil {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Match score: %d/100\n", c.MatchScore))
		writeList := func(title string, items []string) {
			if len(items) == 0 {
				return
			}
			sb.WriteString("\n" + title + ":\n")
			n := min(len(items), 3)
			for i := 0; i < n; i++ {
				sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
			}
			if len(items) > 3 {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-3))
			}
		}
		writeList("Strengths", c.Strengths)
		writeList("Gaps", c.Gaps)
		if len(c.MissingInputs) > 0 {
			sb.WriteString(fmt.Sprintf("\nUnavailable inputs: %s\n", strings.Join(c.MissingInputs, ", ")))
		}
		p.printBox("CV COMPARISON", strings.TrimSuffix(sb.String(), "\n"))
	}
}
