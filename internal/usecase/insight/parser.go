package insight

import (
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
)

const maxRawSummary = 500

// parseResponse extracts structured sections from free-form reviewer
// output. The format is not guaranteed, so matching is keyword based
// and every section has a fallback.
func parseResponse(text string) domain.Insight {
	var (
		summary      []string
		strengths    []string
		weaknesses   []string
		architecture []string
		practices    []domain.Recommendation
	)

	section := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case isBullet(line):
			// bullet content never switches sections
		case containsAny(lower, "summary", "overview", "changes"):
			section = "summary"
			continue
		case containsAny(lower, "strength", "positive", "good"):
			section = "strengths"
			continue
		case containsAny(lower, "weakness", "issue", "concern", "improvement"):
			section = "weaknesses"
			continue
		case containsAny(lower, "architecture", "design", "structure"):
			section = "architecture"
			continue
		case containsAny(lower, "best practice", "recommendation", "suggestion"):
			section = "practices"
			continue
		}

		item := stripBullet(line)
		if item == "" {
			continue
		}
		switch section {
		case "summary":
			summary = append(summary, item)
		case "strengths":
			strengths = append(strengths, item)
		case "weaknesses":
			weaknesses = append(weaknesses, item)
		case "architecture":
			architecture = append(architecture, item)
		case "practices":
			practices = append(practices, splitRecommendation(item))
		}
	}

	insight := domain.Insight{
		Summary:              strings.Join(summary, " "),
		Strengths:            strengths,
		Weaknesses:           weaknesses,
		ArchitectureFeedback: strings.Join(architecture, " "),
		BestPractices:        practices,
	}

	if insight.Summary == "" {
		insight.Summary = truncate(strings.TrimSpace(text), maxRawSummary)
	}
	if len(insight.Strengths) == 0 {
		insight.Strengths = []string{"Code changes implemented as requested"}
	}
	if len(insight.Weaknesses) == 0 {
		insight.Weaknesses = []string{"See detailed security findings for specific issues"}
	}
	if insight.ArchitectureFeedback == "" {
		insight.ArchitectureFeedback = "Architecture review completed. See specific recommendations below."
	}
	return insight
}

// splitRecommendation separates "issue: suggestion" pairs. Lines with
// no separator become both sides.
func splitRecommendation(item string) domain.Recommendation {
	if issue, suggestion, ok := strings.Cut(item, ":"); ok {
		issue = strings.TrimSpace(issue)
		suggestion = strings.TrimSpace(suggestion)
		if issue != "" && suggestion != "" {
			return domain.Recommendation{Issue: issue, Suggestion: suggestion}
		}
	}
	return domain.Recommendation{Issue: item, Suggestion: item}
}

// isBullet matches list markers only. Numbered lines are not treated
// as bullets here: the model emits its section headings in numbered
// form ("1. Summary"), and those must still switch sections.
func isBullet(line string) bool {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func stripBullet(line string) string {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	trimmed := strings.TrimLeft(line, "0123456789")
	if trimmed != line && strings.HasPrefix(trimmed, ". ") {
		return strings.TrimSpace(trimmed[2:])
	}
	return line
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
