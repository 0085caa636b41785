package exectool

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
)

// gosec emits line numbers as strings in its JSON report.
type gosecReport struct {
	Issues []struct {
		Severity string `json:"severity"`
		RuleID   string `json:"rule_id"`
		Details  string `json:"details"`
		File     string `json:"file"`
		Code     string `json:"code"`
		Line     string `json:"line"`
	} `json:"Issues"`
}

func parseGosec(output []byte, mapPath func(string) string) ([]domain.Finding, error) {
	var report gosecReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, err
	}

	findings := make([]domain.Finding, 0, len(report.Issues))
	for _, issue := range report.Issues {
		line, _ := strconv.Atoi(firstField(issue.Line))
		findings = append(findings, domain.Finding{
			Severity:       domain.ParseSeverity(issue.Severity),
			Type:           issue.RuleID,
			Message:        issue.Details,
			FilePath:       mapPath(issue.File),
			LineNumber:     line,
			CodeSnippet:    strings.TrimSpace(issue.Code),
			Recommendation: "Review and remediate",
			Scanner:        "gosec",
		})
	}
	return findings, nil
}

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Lines    string `json:"lines"`
			Fix      string `json:"fix"`
		} `json:"extra"`
	} `json:"results"`
}

func parseSemgrep(output []byte, mapPath func(string) string) ([]domain.Finding, error) {
	var report semgrepReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, err
	}

	findings := make([]domain.Finding, 0, len(report.Results))
	for _, result := range report.Results {
		recommendation := result.Extra.Fix
		if recommendation == "" {
			recommendation = "Review and remediate"
		}
		findings = append(findings, domain.Finding{
			Severity:       semgrepSeverity(result.Extra.Severity),
			Type:           result.CheckID,
			Message:        result.Extra.Message,
			FilePath:       mapPath(result.Path),
			LineNumber:     result.Start.Line,
			CodeSnippet:    strings.TrimSpace(result.Extra.Lines),
			Recommendation: recommendation,
			Scanner:        "semgrep",
		})
	}
	return findings, nil
}

func semgrepSeverity(s string) domain.Severity {
	switch strings.ToUpper(s) {
	case "ERROR":
		return domain.SeverityHigh
	case "WARNING":
		return domain.SeverityMedium
	default:
		return domain.SeverityInfo
	}
}

// firstField handles gosec line values like "12" and ranges like "12-14".
func firstField(s string) string {
	if idx := strings.IndexAny(s, "-,"); idx > 0 {
		return s[:idx]
	}
	return s
}
