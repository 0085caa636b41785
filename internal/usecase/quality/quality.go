// Package quality computes heuristic per-change quality metrics. The
// analysis is a pure function over the changed-file list: no external
// calls, no failure modes.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
)

// Per-file diffs above this many added lines are treated as a complexity issue.
const largeChangeThreshold = 500

var docPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\+\s*//`),      // line comments on added lines
	regexp.MustCompile(`/\*\*?`),            // block or JSDoc comments
	regexp.MustCompile(`"""`),               // docstrings
	regexp.MustCompile(`@param|@returns?`),  // tagged documentation
	regexp.MustCompile(`(?m)^\+\s*#[^!]`),   // shell/python comments
}

// Analyze computes quality metrics for a changed-file list. An empty
// list yields neutral mid-scale scores.
func Analyze(files []domain.ChangedFile) domain.QualityMetrics {
	if len(files) == 0 {
		return domain.QualityMetrics{
			Computed:        true,
			Complexity:      5.0,
			Documentation:   5.0,
			TestCoverage:    5.0,
			Maintainability: 5.0,
		}
	}

	var complexityIssues, docIssues []string
	testFiles := 0

	for _, f := range files {
		if f.Additions > largeChangeThreshold {
			complexityIssues = append(complexityIssues,
				fmt.Sprintf("%s: large file changes (%d added lines)", f.Path, f.Additions))
		}
		if !hasDocumentation(f.Patch) {
			docIssues = append(docIssues, fmt.Sprintf("%s: missing documentation", f.Path))
		}
		if isTestFile(f.Path) {
			testFiles++
		}
	}

	m := domain.QualityMetrics{
		Computed:      true,
		Complexity:    clampScore(10 - 2*float64(len(complexityIssues))),
		Documentation: clampScore(10 - 1.5*float64(len(docIssues))),
		TestCoverage:  math.Min(10, 2*float64(testFiles)),
	}
	m.Maintainability = round1((m.Complexity + m.Documentation + m.TestCoverage) / 3)
	m.Issues = append(complexityIssues, docIssues...)

	if m.Maintainability < 7 {
		m.Recommendations = append(m.Recommendations, "Consider breaking down complex changes")
	}
	if m.Documentation < 5 {
		m.Recommendations = append(m.Recommendations, "Add comprehensive documentation")
	}
	if m.TestCoverage < 5 {
		m.Recommendations = append(m.Recommendations, "Include unit tests for new functionality")
	}

	return m
}

func hasDocumentation(patch string) bool {
	for _, p := range docPatterns {
		if p.MatchString(patch) {
			return true
		}
	}
	return false
}

func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, "_test.") ||
		strings.Contains(lower, "test_") ||
		strings.Contains(lower, "/test")
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(10, s))
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
