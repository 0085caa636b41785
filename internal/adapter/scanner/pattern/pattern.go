// Package pattern is the always-available scanning backend: a fixed set
// of regex rules for secrets, injection-prone calls, and debt markers.
package pattern

import (
	"context"
	"regexp"
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
)

const scannerName = "pattern-match"

type rule struct {
	re             *regexp.Regexp
	severity       domain.Severity
	findingType    string
	message        string
	recommendation string
}

var rules = []rule{
	{
		re:             regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token)\s*[:=]\s*["'][^"']+["']`),
		severity:       domain.SeverityCritical,
		findingType:    "Hardcoded Secret",
		message:        "Potential hardcoded secret or credential detected",
		recommendation: "Use environment variables or a secure vault for secrets",
	},
	{
		re:             regexp.MustCompile(`(?i)(execute|query|executemany)\s*\(\s*["'].*(%s|\+)`),
		severity:       domain.SeverityHigh,
		findingType:    "SQL Injection Risk",
		message:        "Potential SQL injection vulnerability",
		recommendation: "Use parameterized queries or an ORM",
	},
	{
		re:             regexp.MustCompile(`(?i)(os\.system|subprocess\.call|exec\.Command|eval)\s*\(`),
		severity:       domain.SeverityHigh,
		findingType:    "Command Injection Risk",
		message:        "Potential command injection vulnerability",
		recommendation: "Validate and sanitize all inputs, use safe alternatives",
	},
	{
		re:             regexp.MustCompile(`(TODO|FIXME|HACK|XXX)[\s:]`),
		severity:       domain.SeverityInfo,
		findingType:    "TODO/FIXME Comment",
		message:        "Code contains TODO or FIXME comment",
		recommendation: "Address technical debt before merging",
	},
}

// Scanner implements scan.Backend with the built-in rule set.
type Scanner struct{}

// New constructs the pattern backend.
func New() *Scanner { return &Scanner{} }

// Name returns the backend name recorded on each finding.
func (s *Scanner) Name() string { return scannerName }

// Scan matches every rule against every line of every file. The backend
// has no external dependencies and cannot fail.
func (s *Scanner) Scan(ctx context.Context, files []scan.SourceFile) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		for lineIdx, line := range strings.Split(file.Content, "\n") {
			for _, r := range rules {
				if !r.re.MatchString(line) {
					continue
				}
				findings = append(findings, domain.Finding{
					Severity:       r.severity,
					Type:           r.findingType,
					Message:        r.message,
					FilePath:       file.Path,
					LineNumber:     lineIdx + 1,
					CodeSnippet:    strings.TrimSpace(line),
					Recommendation: r.recommendation,
					Scanner:        scannerName,
				})
			}
		}
	}
	return findings, nil
}
