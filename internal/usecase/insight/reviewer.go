// Package insight runs the AI synthesis stage: it builds a bounded
// review context, invokes the generation capability, and parses the
// free-form response into a structured Insight. The stage never fails
// the pipeline; any generation problem yields the fixed fallback
// Insight instead.
package insight

import (
	"context"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/redaction"
)

// Generator is the text-generation capability consumed by the reviewer.
type Generator interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Logger is the optional structured-logging port.
type Logger interface {
	Warn(ctx context.Context, msg string, fields map[string]any)
	Info(ctx context.Context, msg string, fields map[string]any)
}

// ChangeMeta is the pull-request metadata included in the review context.
type ChangeMeta struct {
	Title       string
	Author      string
	Description string
}

// Request carries everything the reviewer consumes.
type Request struct {
	Meta     ChangeMeta
	Files    []domain.ChangedFile
	Findings []domain.Finding
	Metrics  domain.QualityMetrics
}

const (
	defaultMaxTokens = 2000
	defaultTimeout   = 90 * time.Second

	systemPrompt = `You are an expert code reviewer with deep knowledge of software architecture,
security best practices, and clean code principles. Your role is to provide constructive, actionable
feedback on pull requests.

Analyze the code changes and provide:
1. A concise summary of the changes
2. Key strengths in the implementation
3. Areas for improvement or potential issues
4. Architecture and design feedback
5. Specific best practice recommendations

Be thorough but concise. Focus on meaningful insights that will help improve code quality.`
)

// Reviewer invokes the generation capability and shapes its output.
// The review context is redacted before it leaves the process.
type Reviewer struct {
	generator Generator
	logger    Logger
	redactor  *redaction.Engine
	maxTokens int
	timeout   time.Duration
}

// NewReviewer constructs a Reviewer. A nil logger is tolerated.
func NewReviewer(generator Generator, logger Logger) *Reviewer {
	return &Reviewer{
		generator: generator,
		logger:    logger,
		redactor:  redaction.NewEngine(),
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
	}
}

// SetTimeout overrides the per-invocation timeout.
func (r *Reviewer) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// SetMaxTokens overrides the generation token budget.
func (r *Reviewer) SetMaxTokens(n int) {
	if n > 0 {
		r.maxTokens = n
	}
}

// Review produces an Insight for the change. The estimated risk level is
// always derived from finding severities, independent of model output.
func (r *Reviewer) Review(ctx context.Context, req Request) domain.Insight {
	risk := domain.EstimateRiskLevel(req.Findings)

	if r.generator == nil {
		return fallbackInsight(risk)
	}

	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.generator.Complete(genCtx, systemPrompt, r.redactor.Redact(buildContext(req)), r.maxTokens)
	if err != nil {
		r.warn(ctx, "generation capability unavailable, using fallback insight", map[string]any{
			"error": err.Error(),
		})
		return fallbackInsight(risk)
	}

	parsed := parseResponse(response)
	parsed.EstimatedRiskLevel = risk
	return parsed
}

// fallbackInsight is returned whenever the generation capability cannot
// be reached or produced nothing usable.
func fallbackInsight(risk domain.RiskLevel) domain.Insight {
	return domain.Insight{
		Summary:              "AI analysis unavailable. Manual review recommended.",
		Strengths:            []string{"Code changes submitted for review"},
		Weaknesses:           []string{"AI analysis could not be completed"},
		ArchitectureFeedback: "Please perform manual code review.",
		BestPractices:        []domain.Recommendation{},
		EstimatedRiskLevel:   risk,
	}
}

func (r *Reviewer) warn(ctx context.Context, msg string, fields map[string]any) {
	if r.logger != nil {
		r.logger.Warn(ctx, msg, fields)
	}
}
