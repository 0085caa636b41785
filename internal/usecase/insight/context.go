package insight

import (
	"fmt"
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
)

// Context size bounds. Files beyond maxDetailedFiles are summarized by
// count only; patches are truncated to maxPatchLines; only the first
// maxListedFindings critical/high findings are listed individually.
const (
	maxDetailedFiles  = 10
	maxPatchLines     = 50
	maxListedFindings = 3
)

// buildContext renders the bounded natural-language context sent to the
// generation capability.
func buildContext(req Request) string {
	var b strings.Builder

	b.WriteString("## Pull Request Overview\n")
	fmt.Fprintf(&b, "**Title:** %s\n", orNA(req.Meta.Title))
	fmt.Fprintf(&b, "**Author:** %s\n", orNA(req.Meta.Author))
	description := req.Meta.Description
	if description == "" {
		description = "No description provided"
	}
	fmt.Fprintf(&b, "**Description:** %s\n\n", description)

	totalAdd, totalDel := 0, 0
	for _, f := range req.Files {
		totalAdd += f.Additions
		totalDel += f.Deletions
	}
	fmt.Fprintf(&b, "## Changed Files (%d files)\n", len(req.Files))
	fmt.Fprintf(&b, "**Total Changes:** +%d -%d\n\n", totalAdd, totalDel)

	for i, file := range req.Files {
		if i >= maxDetailedFiles {
			fmt.Fprintf(&b, "... and %d more files\n\n", len(req.Files)-maxDetailedFiles)
			break
		}
		fmt.Fprintf(&b, "### File %d: %s\n", i+1, file.Path)
		fmt.Fprintf(&b, "Changes: +%d -%d\n", file.Additions, file.Deletions)
		if file.Patch != "" {
			lines := strings.Split(file.Patch, "\n")
			b.WriteString("```diff\n")
			for j, line := range lines {
				if j >= maxPatchLines {
					b.WriteString("... (truncated)\n")
					break
				}
				b.WriteString(line)
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
		b.WriteString("\n")
	}

	writeFindingsSection(&b, req.Findings)

	b.WriteString("## Code Quality Metrics\n")
	fmt.Fprintf(&b, "**Complexity Score:** %.1f/10\n", req.Metrics.Complexity)
	fmt.Fprintf(&b, "**Documentation Score:** %.1f/10\n", req.Metrics.Documentation)
	fmt.Fprintf(&b, "**Test Coverage Indicator:** %.1f/10\n", req.Metrics.TestCoverage)
	fmt.Fprintf(&b, "**Maintainability Score:** %.1f/10\n", req.Metrics.Maintainability)
	if len(req.Metrics.Issues) > 0 {
		b.WriteString("**Issues:**\n")
		for i, issue := range req.Metrics.Issues {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	b.WriteString("\n## Review Request\n")
	b.WriteString("Please provide a comprehensive code review covering:\n")
	b.WriteString("1. Summary of changes and their purpose\n")
	b.WriteString("2. Strengths in the implementation\n")
	b.WriteString("3. Weaknesses or areas for improvement\n")
	b.WriteString("4. Architecture and design feedback\n")
	b.WriteString("5. Best practice recommendations with specific suggestions\n")

	return b.String()
}

// writeFindingsSection groups findings by severity: critical and high
// are listed individually up to a small cap, the rest as counts only.
func writeFindingsSection(b *strings.Builder, findings []domain.Finding) {
	if len(findings) == 0 {
		return
	}

	counts := domain.CountBySeverity(findings)
	fmt.Fprintf(b, "## Security Findings (%d issues)\n", len(findings))

	for _, severity := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh} {
		if counts[severity] == 0 {
			continue
		}
		fmt.Fprintf(b, "**%s Severity:** %d\n", titleCase(string(severity)), counts[severity])
		listed := 0
		for _, f := range findings {
			if f.Severity != severity || listed >= maxListedFindings {
				continue
			}
			fmt.Fprintf(b, "- %s: %s (%s:%d)\n", f.Type, f.Message, f.FilePath, f.LineNumber)
			listed++
		}
	}
	if counts[domain.SeverityMedium] > 0 {
		fmt.Fprintf(b, "**Medium Severity:** %d\n", counts[domain.SeverityMedium])
	}
	if counts[domain.SeverityLow] > 0 {
		fmt.Fprintf(b, "**Low Severity:** %d\n", counts[domain.SeverityLow])
	}
	b.WriteString("\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
