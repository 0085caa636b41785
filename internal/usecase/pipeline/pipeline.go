// Package pipeline orchestrates a full review run: fetch the change,
// scan it, measure quality, generate the AI insight, score, and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
	"github.com/cfernhout/reviewd/internal/store"
	"github.com/cfernhout/reviewd/internal/usecase/insight"
)

// Scanner runs the static-analysis backends over a change set.
type Scanner interface {
	Scan(ctx context.Context, files []domain.ChangedFile) []domain.Finding
}

// Reviewer produces the AI insight for a change set.
type Reviewer interface {
	Review(ctx context.Context, req insight.Request) domain.Insight
}

// QualityFunc computes heuristic quality metrics for a change set.
type QualityFunc func(files []domain.ChangedFile) domain.QualityMetrics

// Logger is the minimal logging port the orchestrator needs.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, fields map[string]any)
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Host     hosting.Host
	Scanner  Scanner
	Quality  QualityFunc
	Reviewer Reviewer
	Store    store.Store
	Logger   Logger
}

// Orchestrator executes review pipeline runs.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator creates an orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Run processes the review with the given id end to end. A review that
// is no longer pending is skipped without error; any stage failure
// marks the review failed and returns the cause.
func (o *Orchestrator) Run(ctx context.Context, reviewID string) error {
	review, err := o.deps.Store.GetReview(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("load review %s: %w", reviewID, err)
	}

	if err := o.deps.Store.ClaimReview(ctx, reviewID); err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			o.info(ctx, "review already claimed, skipping", map[string]any{
				"review_id": reviewID,
			})
			return nil
		}
		return fmt.Errorf("claim review %s: %w", reviewID, err)
	}

	o.info(ctx, "review started", map[string]any{
		"review_id": reviewID,
		"change":    review.Ref.String(),
	})

	meta, err := o.deps.Host.ChangeMetadata(ctx, review.Ref)
	if err != nil {
		return o.fail(ctx, reviewID, fmt.Errorf("fetch change metadata: %w", err))
	}

	files, err := o.deps.Host.ChangedFiles(ctx, review.Ref)
	if err != nil {
		return o.fail(ctx, reviewID, fmt.Errorf("fetch changed files: %w", err))
	}
	if len(files) == 0 {
		return o.fail(ctx, reviewID, errors.New("no files found in change"))
	}

	review.Title = meta.Title
	review.Branch = meta.Branch
	review.Author = meta.Author
	review.PRCreatedAt = meta.CreatedAt
	review.Merged = meta.Merged
	review.MergedAt = meta.MergedAt

	// Scanning and quality analysis are independent; run them together.
	var (
		wg       sync.WaitGroup
		findings []domain.Finding
		metrics  domain.QualityMetrics
		scanTime time.Duration
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		findings = o.deps.Scanner.Scan(ctx, files)
		scanTime = time.Since(start)
	}()
	go func() {
		defer wg.Done()
		metrics = o.deps.Quality(files)
	}()
	wg.Wait()

	aiStart := time.Now()
	reviewInsight := o.deps.Reviewer.Review(ctx, insight.Request{
		Meta: insight.ChangeMeta{
			Title:       meta.Title,
			Author:      meta.Author,
			Description: meta.Description,
		},
		Files:    files,
		Findings: findings,
		Metrics:  metrics,
	})
	aiTime := time.Since(aiStart)

	counts := domain.CountBySeverity(findings)

	review.FileReviews = buildFileReviews(files, findings)
	review.Findings = findings
	review.QualityScore = domain.QualityScore(metrics)
	review.SecurityScore = domain.SecurityScore(findings)
	review.Insight = &reviewInsight
	review.TotalFilesChanged = len(files)
	review.TotalAdditions, review.TotalDeletions = sumChanges(files)
	review.CriticalCount = counts[domain.SeverityCritical]
	review.HighCount = counts[domain.SeverityHigh]
	review.MediumCount = counts[domain.SeverityMedium]
	review.LowCount = counts[domain.SeverityLow]
	review.ScanDuration = scanTime
	review.AIDuration = aiTime

	if err := o.deps.Store.CompleteReview(ctx, review); err != nil {
		return o.fail(ctx, reviewID, fmt.Errorf("persist results: %w", err))
	}

	o.info(ctx, "review completed", map[string]any{
		"review_id":      reviewID,
		"change":         review.Ref.String(),
		"findings":       len(findings),
		"quality_score":  review.QualityScore,
		"security_score": review.SecurityScore,
		"scan_duration":  scanTime.String(),
		"ai_duration":    aiTime.String(),
	})

	return nil
}

// buildFileReviews partitions findings by file path, preserving the
// per-file change counters from the host.
func buildFileReviews(files []domain.ChangedFile, findings []domain.Finding) []domain.FileReview {
	byPath := make(map[string][]domain.Finding)
	for _, f := range findings {
		byPath[f.FilePath] = append(byPath[f.FilePath], f)
	}

	reviews := make([]domain.FileReview, 0, len(files))
	for _, file := range files {
		reviews = append(reviews, domain.FileReview{
			FilePath:  file.Path,
			Additions: file.Additions,
			Deletions: file.Deletions,
			Changes:   file.Changes,
			Findings:  byPath[file.Path],
		})
	}
	return reviews
}

func sumChanges(files []domain.ChangedFile) (additions, deletions int) {
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	return additions, deletions
}

// fail marks the review failed and returns the original cause. A store
// failure on top of a pipeline failure is logged, not returned.
func (o *Orchestrator) fail(ctx context.Context, reviewID string, cause error) error {
	if err := o.deps.Store.FailReview(ctx, reviewID, cause.Error()); err != nil {
		o.errorLog(ctx, "failed to record review failure", map[string]any{
			"review_id": reviewID,
			"cause":     cause.Error(),
			"error":     err.Error(),
		})
	}
	return cause
}

func (o *Orchestrator) info(ctx context.Context, msg string, fields map[string]any) {
	if o.deps.Logger != nil {
		o.deps.Logger.Info(ctx, msg, fields)
	}
}

func (o *Orchestrator) errorLog(ctx context.Context, msg string, fields map[string]any) {
	if o.deps.Logger != nil {
		o.deps.Logger.Error(ctx, msg, fields)
	}
}
