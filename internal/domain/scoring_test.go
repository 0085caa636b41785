package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func findingsWith(severities ...Severity) []Finding {
	findings := make([]Finding, 0, len(severities))
	for _, s := range severities {
		findings = append(findings, Finding{Severity: s, Scanner: "pattern-match"})
	}
	return findings
}

func TestSecurityScoreDeductions(t *testing.T) {
	tests := []struct {
		name       string
		severities []Severity
		want       float64
	}{
		{name: "no findings is a perfect score", severities: nil, want: 10.0},
		{name: "one critical and two high", severities: []Severity{SeverityCritical, SeverityHigh, SeverityHigh}, want: 6.0},
		{name: "single medium", severities: []Severity{SeverityMedium}, want: 9.5},
		{name: "single low", severities: []Severity{SeverityLow}, want: 9.8},
		{name: "info findings cost nothing", severities: []Severity{SeverityInfo, SeverityInfo}, want: 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SecurityScore(findingsWith(tt.severities...)))
		})
	}
}

func TestSecurityScoreFloorsAtZero(t *testing.T) {
	severities := make([]Severity, 20)
	for i := range severities {
		severities[i] = SeverityCritical
	}
	assert.Equal(t, 0.0, SecurityScore(findingsWith(severities...)))
}

func TestSecurityScoreMonotonicallyNonIncreasing(t *testing.T) {
	var findings []Finding
	prev := SecurityScore(findings)
	for _, s := range []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		findings = append(findings, Finding{Severity: s})
		score := SecurityScore(findings)
		assert.LessOrEqual(t, score, prev)
		prev = score
	}
}

func TestQualityScoreWeights(t *testing.T) {
	m := QualityMetrics{
		Computed:        true,
		Complexity:      8,
		Documentation:   6,
		Maintainability: 7,
	}
	// 8*0.3 + 6*0.3 + 7*0.4 = 7.0
	assert.Equal(t, 7.0, QualityScore(m))
}

func TestQualityScoreNeutralWhenNotComputed(t *testing.T) {
	assert.Equal(t, 5.0, QualityScore(QualityMetrics{}))
}

func TestQualityScoreAllZeroMetrics(t *testing.T) {
	// A computed metric set of all zeros scores 0.0, not the neutral
	// default reserved for runs where no analysis happened.
	assert.Equal(t, 0.0, QualityScore(QualityMetrics{Computed: true}))
}

func TestEstimateRiskLevel(t *testing.T) {
	tests := []struct {
		name       string
		severities []Severity
		want       RiskLevel
	}{
		{name: "empty is low", severities: nil, want: RiskLow},
		{name: "any critical dominates", severities: []Severity{SeverityLow, SeverityCritical}, want: RiskCritical},
		{name: "three high is high", severities: []Severity{SeverityHigh, SeverityHigh, SeverityHigh}, want: RiskHigh},
		{name: "one high is medium", severities: []Severity{SeverityHigh}, want: RiskMedium},
		{name: "medium and below is low", severities: []Severity{SeverityMedium, SeverityLow, SeverityInfo}, want: RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateRiskLevel(findingsWith(tt.severities...)))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityHigh, ParseSeverity("error"))
	assert.Equal(t, SeverityMedium, ParseSeverity("Warning"))
	assert.Equal(t, SeverityInfo, ParseSeverity("bogus"))
	assert.Equal(t, SeverityInfo, ParseSeverity(""))
}

func TestReviewDigest(t *testing.T) {
	r := &Review{CriticalCount: 2}
	assert.Contains(t, r.Digest(), "2 critical issues")

	r = &Review{HighCount: 1, QualityScore: 9, SecurityScore: 9}
	assert.Contains(t, r.Digest(), "high-severity")

	r = &Review{QualityScore: 8.2, SecurityScore: 9.1}
	assert.Contains(t, r.Digest(), "Review completed")
}
