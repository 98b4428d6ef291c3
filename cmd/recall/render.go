package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/recallgraph/recall/internal/recall"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})

// renderMarkdown turns a Markdown report into terminal output via glamour,
// falling back to the raw text if the renderer cannot be constructed (e.g.
// a dumb terminal).
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printMarkdown(md string) {
	fmt.Fprint(os.Stdout, renderMarkdown(md))
}

func indexHitsMarkdown(hits []recall.IndexHit) string {
	if len(hits) == 0 {
		return headingStyle.Render("# Query index") + "\n\nNo matches.\n"
	}
	var b strings.Builder
	b.WriteString("# Query index\n\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- **%s** %s *%s* (%s, %s, confidence %.2f, ~%d tok, via %s)\n",
			h.Subject, h.Predicate, h.ObjectPreview, h.Status, h.Scope, h.Confidence, h.TokenEstimate, h.Source)
	}
	return b.String()
}

func fullHitsMarkdown(hits []recall.FullHit) string {
	if len(hits) == 0 {
		return "# Query\n\nNo matches.\n"
	}
	var b strings.Builder
	b.WriteString("# Query\n\n")
	for _, h := range hits {
		objText := ""
		if h.Fact.Object.IsEntity() {
			objText = "entity:" + *h.Fact.Object.EntityID
		} else if h.Fact.Object.Literal != nil {
			objText = *h.Fact.Object.Literal
		}
		fmt.Fprintf(&b, "## %s %s\n\n", h.Fact.Predicate, objText)
		fmt.Fprintf(&b, "- status: %s, scope: %s, confidence: %.2f\n", h.Fact.Status, h.Fact.Scope, h.Fact.Confidence)
		if h.Similarity != nil {
			fmt.Fprintf(&b, "- similarity: %.3f\n", *h.Similarity)
		}
		for _, r := range h.Receipts {
			fmt.Fprintf(&b, "- receipt (%s): %q\n", r.Strength, r.Quote)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func explainMarkdown(res recall.ExplainResult) string {
	if res.Status == "not_found" {
		return "# Explain\n\nnot_found\n"
	}
	var b strings.Builder
	b.WriteString("# Explain\n\n")
	fmt.Fprintf(&b, "- predicate: %s\n", res.Fact.Predicate)
	fmt.Fprintf(&b, "- status: %s, scope: %s, confidence: %.2f\n", res.Fact.Status, res.Fact.Scope, res.Fact.Confidence)
	b.WriteString("\n## Receipts\n\n")
	for _, r := range res.Receipts {
		fmt.Fprintf(&b, "- (%s) %q\n", r.Strength, r.Quote)
	}
	b.WriteString("\n## Supersedes\n\n")
	for _, l := range res.Supersedes {
		fmt.Fprintf(&b, "- -> %s\n", l.ToID)
	}
	b.WriteString("\n## Superseded by\n\n")
	for _, l := range res.SupersededBy {
		fmt.Fprintf(&b, "- <- %s\n", l.FromID)
	}
	b.WriteString("\n## Conflicts\n\n")
	for _, c := range res.Conflicts {
		fmt.Fprintf(&b, "- %s vs %s (%s)\n", c.FactAID, c.FactBID, c.Status)
	}
	return b.String()
}
