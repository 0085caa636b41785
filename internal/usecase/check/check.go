// Package check runs the review pipeline against a local repository
// without persisting anything. It backs the CLI check command: diff two
// refs, scan the changed files, score them, and optionally ask the AI
// reviewer for an insight.
package check

import (
	"context"
	"fmt"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/insight"
)

// DiffEngine produces changed files from a local repository.
type DiffEngine interface {
	ChangedFiles(ctx context.Context, baseRef, targetRef string, includeUncommitted bool) ([]domain.ChangedFile, error)
	CurrentBranch(ctx context.Context) (string, error)
}

// Scanner is the static-analysis port.
type Scanner interface {
	Scan(ctx context.Context, files []domain.ChangedFile) []domain.Finding
}

// Reviewer is the optional AI synthesis port.
type Reviewer interface {
	Review(ctx context.Context, req insight.Request) domain.Insight
}

// QualityFunc computes quality metrics for a set of changed files.
type QualityFunc func(files []domain.ChangedFile) domain.QualityMetrics

// Request identifies the refs to review.
type Request struct {
	BaseRef            string
	TargetRef          string
	IncludeUncommitted bool
}

// Result is the outcome of a local check.
type Result struct {
	BaseRef   string
	TargetRef string

	Files    []domain.ChangedFile
	Findings []domain.Finding
	Metrics  domain.QualityMetrics

	QualityScore  float64
	SecurityScore float64
	Risk          domain.RiskLevel

	Insight *domain.Insight
}

// Deps captures the collaborators for a local check run.
type Deps struct {
	Engine   DiffEngine
	Scanner  Scanner
	Quality  QualityFunc
	Reviewer Reviewer
}

// Runner executes local check runs.
type Runner struct {
	deps Deps
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// CurrentBranch returns the branch checked out in the local repository.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	return r.deps.Engine.CurrentBranch(ctx)
}

// Run diffs the refs and produces findings, metrics, and scores. An
// empty diff is an error so callers can report it instead of printing
// a perfect score for nothing.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	base := req.BaseRef
	if base == "" {
		base = "main"
	}

	files, err := r.deps.Engine.ChangedFiles(ctx, base, req.TargetRef, req.IncludeUncommitted)
	if err != nil {
		return Result{}, fmt.Errorf("diff %s..%s: %w", base, req.TargetRef, err)
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no changes between %s and %s", base, req.TargetRef)
	}

	findings := r.deps.Scanner.Scan(ctx, files)
	metrics := r.deps.Quality(files)

	result := Result{
		BaseRef:       base,
		TargetRef:     req.TargetRef,
		Files:         files,
		Findings:      findings,
		Metrics:       metrics,
		QualityScore:  domain.QualityScore(metrics),
		SecurityScore: domain.SecurityScore(findings),
		Risk:          domain.EstimateRiskLevel(findings),
	}

	if r.deps.Reviewer != nil {
		ins := r.deps.Reviewer.Review(ctx, insight.Request{
			Meta: insight.ChangeMeta{
				Title:  fmt.Sprintf("Local review of %s against %s", req.TargetRef, base),
				Author: "local",
			},
			Files:    files,
			Findings: findings,
			Metrics:  metrics,
		})
		result.Insight = &ins
	}

	return result, nil
}
