package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies a finding on the five-level scale used for scoring.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity normalizes a scanner-supplied severity label.
// Unknown labels map to info so a misbehaving backend can never
// inflate a score.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "warning":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Rank orders severities for comparison; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RiskLevel is the aggregate risk estimate attached to an Insight.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Status is the lifecycle state of a Review.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ChangeRef identifies a pull request on the hosting side.
type ChangeRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// HostProject returns the owner/repo slug.
func (r ChangeRef) HostProject() string {
	return r.Owner + "/" + r.Repo
}

func (r ChangeRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ChangedFile is one file entry of a pull request, as returned by the
// hosting capability.
type ChangedFile struct {
	Path      string `json:"path"`
	Status    string `json:"status"` // added, modified, removed, renamed
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch"`
}

// Finding is a single normalized static-analysis result. Immutable once
// created; many findings may reference the same file path.
type Finding struct {
	Severity       Severity `json:"severity"`
	Type           string   `json:"type"`
	Message        string   `json:"message"`
	FilePath       string   `json:"filePath"`
	LineNumber     int      `json:"lineNumber"`
	CodeSnippet    string   `json:"codeSnippet"`
	Recommendation string   `json:"recommendation"`
	Scanner        string   `json:"scanner"`
}

// QualityMetrics holds the heuristic per-change quality scores, each in
// [0,10]. Computed distinguishes real values from the zero value: an
// all-zero metric set is a legitimate result for a sufficiently bad
// change, not a marker for "no analysis ran".
type QualityMetrics struct {
	Computed        bool     `json:"computed"`
	Complexity      float64  `json:"complexity"`
	Documentation   float64  `json:"documentation"`
	TestCoverage    float64  `json:"testCoverage"`
	Maintainability float64  `json:"maintainability"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Recommendation is one (issue, suggestion) pair from the AI reviewer.
type Recommendation struct {
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Insight is the structured output of the AI review stage.
// EstimatedRiskLevel is always derived from finding severities, never
// from model output.
type Insight struct {
	Summary              string           `json:"summary"`
	Strengths            []string         `json:"strengths"`
	Weaknesses           []string         `json:"weaknesses"`
	ArchitectureFeedback string           `json:"architectureFeedback"`
	BestPractices        []Recommendation `json:"bestPractices"`
	EstimatedRiskLevel   RiskLevel        `json:"estimatedRiskLevel"`
}

// FileReview is the per-file slice of a completed review. It has no
// lifecycle of its own; it lives embedded in its Review.
type FileReview struct {
	FilePath   string    `json:"filePath"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
	Changes    int       `json:"changes"`
	Findings   []Finding `json:"findings,omitempty"`
	AIComments []string  `json:"aiComments,omitempty"`
}

// Review is the root aggregate for one pipeline run. Result fields are
// all-or-nothing: they are populated only when Status is completed.
type Review struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	TicketID  string `json:"ticketId"`

	Ref         ChangeRef  `json:"ref"`
	Title       string     `json:"title"`
	Branch      string     `json:"branch"`
	Author      string     `json:"author"`
	PRCreatedAt time.Time  `json:"prCreatedAt"`
	Merged      bool       `json:"merged"`
	MergedAt    *time.Time `json:"mergedAt,omitempty"`

	Status       Status     `json:"status"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	JobID        string     `json:"jobId,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	FileReviews   []FileReview `json:"fileReviews,omitempty"`
	Findings      []Finding    `json:"findings,omitempty"`
	QualityScore  float64      `json:"qualityScore"`
	SecurityScore float64      `json:"securityScore"`
	Insight       *Insight     `json:"insight,omitempty"`

	TotalFilesChanged int `json:"totalFilesChanged"`
	TotalAdditions    int `json:"totalAdditions"`
	TotalDeletions    int `json:"totalDeletions"`
	CriticalCount     int `json:"criticalCount"`
	HighCount         int `json:"highCount"`
	MediumCount       int `json:"mediumCount"`
	LowCount          int `json:"lowCount"`

	ScanDuration time.Duration `json:"scanDuration"`
	AIDuration   time.Duration `json:"aiDuration"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReviewSummary is the lightweight projection served in list responses.
type ReviewSummary struct {
	ID            string    `json:"id"`
	TicketID      string    `json:"ticketId"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	Status        Status    `json:"status"`
	QualityScore  float64   `json:"qualityScore"`
	SecurityScore float64   `json:"securityScore"`
	CriticalCount int       `json:"criticalCount"`
	Digest        string    `json:"digest"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summarize projects the review into its list form.
func (r *Review) Summarize() ReviewSummary {
	return ReviewSummary{
		ID:            r.ID,
		TicketID:      r.TicketID,
		Number:        r.Ref.Number,
		Title:         r.Title,
		Status:        r.Status,
		QualityScore:  r.QualityScore,
		SecurityScore: r.SecurityScore,
		CriticalCount: r.CriticalCount,
		Digest:        r.Digest(),
		CreatedAt:     r.CreatedAt,
	}
}

// Digest returns a one-line status summary for dashboards and notifications.
func (r *Review) Digest() string {
	switch {
	case r.CriticalCount > 0:
		return fmt.Sprintf("%d critical issues found. Immediate attention required.", r.CriticalCount)
	case r.HighCount > 0:
		return fmt.Sprintf("%d high-severity issues detected. Review recommended.", r.HighCount)
	case r.QualityScore < 7:
		return fmt.Sprintf("Code quality score: %.1f/10. Consider improvements.", r.QualityScore)
	case r.SecurityScore < 7:
		return fmt.Sprintf("Security score: %.1f/10. Review security findings.", r.SecurityScore)
	default:
		return fmt.Sprintf("Review completed. Quality: %.1f/10, Security: %.1f/10", r.QualityScore, r.SecurityScore)
	}
}
