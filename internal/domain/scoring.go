package domain

import "math"

// Per-finding deductions applied to the security score. Deductions are
// additive with no cap beyond the floor at zero, matching the product's
// established scoring policy.
var severityDeduction = map[Severity]float64{
	SeverityCritical: 2.0,
	SeverityHigh:     1.0,
	SeverityMedium:   0.5,
	SeverityLow:      0.2,
	SeverityInfo:     0.0,
}

// Quality score weights: complexity 30%, documentation 30%, maintainability 40%.
const (
	complexityWeight      = 0.3
	documentationWeight   = 0.3
	maintainabilityWeight = 0.4
)

// neutralScore is returned when no metrics were computed.
const neutralScore = 5.0

// SecurityScore starts at 10.0 and deducts per finding by severity,
// floored at 0.0 and rounded to one decimal.
func SecurityScore(findings []Finding) float64 {
	score := 10.0
	for _, f := range findings {
		score -= severityDeduction[f.Severity]
	}
	return round1(math.Max(0.0, score))
}

// QualityScore computes the weighted overall quality score from metrics,
// rounded to one decimal. Metrics that were never computed yield the
// neutral mid-scale score.
func QualityScore(m QualityMetrics) float64 {
	if !m.Computed {
		return neutralScore
	}
	score := m.Complexity*complexityWeight +
		m.Documentation*documentationWeight +
		m.Maintainability*maintainabilityWeight
	return round1(score)
}

// EstimateRiskLevel derives the aggregate risk level from finding
// severities alone: critical if any critical finding exists, high at three
// or more high-severity findings, medium at any high-severity finding,
// low otherwise.
func EstimateRiskLevel(findings []Finding) RiskLevel {
	counts := CountBySeverity(findings)
	switch {
	case counts[SeverityCritical] > 0:
		return RiskCritical
	case counts[SeverityHigh] >= 3:
		return RiskHigh
	case counts[SeverityHigh] > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 5)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
