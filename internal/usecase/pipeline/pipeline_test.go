package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfernhout/reviewd/internal/adapter/scanner/pattern"
	"github.com/cfernhout/reviewd/internal/adapter/store/sqlite"
	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
	"github.com/cfernhout/reviewd/internal/store"
	"github.com/cfernhout/reviewd/internal/usecase/insight"
	"github.com/cfernhout/reviewd/internal/usecase/quality"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
)

type stubHost struct {
	meta     hosting.Metadata
	files    []domain.ChangedFile
	metaErr  error
	filesErr error
}

func (h *stubHost) ChangeMetadata(context.Context, domain.ChangeRef) (hosting.Metadata, error) {
	return h.meta, h.metaErr
}

func (h *stubHost) ChangedFiles(context.Context, domain.ChangeRef) ([]domain.ChangedFile, error) {
	return h.files, h.filesErr
}

type downGenerator struct{}

func (downGenerator) Complete(context.Context, string, string, int) (string, error) {
	return "", errors.New("connection refused")
}

func newPipelineStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedReview(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateReview(context.Background(), &domain.Review{
		ID:        id,
		ProjectID: "acme/widgets",
		TicketID:  "ACME-42",
		Ref:       domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
	}))
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newPipelineStore(t)
	seedReview(t, s, "rev-1")

	host := &stubHost{
		meta: hosting.Metadata{
			Title:     "Add config loader",
			Author:    "dev",
			Branch:    "feature/ACME-42-config",
			CreatedAt: time.Now(),
		},
		files: []domain.ChangedFile{
			{
				Path:      "config.go",
				Status:    "added",
				Additions: 3,
				Changes:   3,
				Patch:     "@@ -0,0 +1,3 @@\n+package config\n+\n+var apiKey = \"sk-test-1234\"\n",
			},
			{
				Path:      "config_test.go",
				Status:    "added",
				Additions: 2,
				Changes:   2,
				Patch:     "@@ -0,0 +1,2 @@\n+package config\n+\n",
			},
		},
	}

	aggregator := scan.NewAggregator([]scan.Backend{pattern.New()}, 0, nil)
	// The generation side is unreachable; the pipeline must still
	// complete with fallback insight text.
	reviewer := insight.NewReviewer(downGenerator{}, nil)

	orch := NewOrchestrator(Deps{
		Host:     host,
		Scanner:  aggregator,
		Quality:  quality.Analyze,
		Reviewer: reviewer,
		Store:    s,
	})

	require.NoError(t, orch.Run(ctx, "rev-1"))

	got, err := s.GetReview(ctx, "rev-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "Add config loader", got.Title)
	assert.Equal(t, 2, got.TotalFilesChanged)
	assert.Equal(t, 5, got.TotalAdditions)

	// The hardcoded key is one critical finding: 10.0 - 2.0.
	require.Equal(t, 1, got.CriticalCount)
	assert.Equal(t, 8.0, got.SecurityScore)

	require.NotNil(t, got.Insight)
	assert.Equal(t, "AI analysis unavailable. Manual review recommended.", got.Insight.Summary)
	assert.Equal(t, domain.RiskCritical, got.Insight.EstimatedRiskLevel)

	require.Len(t, got.FileReviews, 2)
	assert.Len(t, got.FileReviews[0].Findings, 1)
	assert.Empty(t, got.FileReviews[1].Findings)

	assert.Greater(t, got.QualityScore, 0.0)
}

func TestRunSkipsAlreadyClaimedReview(t *testing.T) {
	ctx := context.Background()
	s := newPipelineStore(t)
	seedReview(t, s, "rev-1")
	require.NoError(t, s.ClaimReview(ctx, "rev-1"))

	orch := NewOrchestrator(Deps{
		Host:     &stubHost{},
		Scanner:  scan.NewAggregator(nil, 0, nil),
		Quality:  quality.Analyze,
		Reviewer: insight.NewReviewer(nil, nil),
		Store:    s,
	})

	require.NoError(t, orch.Run(ctx, "rev-1"))

	got, err := s.GetReview(ctx, "rev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestRunFailsOnEmptyChangeSet(t *testing.T) {
	ctx := context.Background()
	s := newPipelineStore(t)
	seedReview(t, s, "rev-1")

	orch := NewOrchestrator(Deps{
		Host:     &stubHost{meta: hosting.Metadata{Title: "empty"}},
		Scanner:  scan.NewAggregator(nil, 0, nil),
		Quality:  quality.Analyze,
		Reviewer: insight.NewReviewer(nil, nil),
		Store:    s,
	})

	err := orch.Run(ctx, "rev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files found in change")

	got, getErr := s.GetReview(ctx, "rev-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "no files found in change", got.ErrorMessage)
}

func TestRunFailsOnHostError(t *testing.T) {
	ctx := context.Background()
	s := newPipelineStore(t)
	seedReview(t, s, "rev-1")

	orch := NewOrchestrator(Deps{
		Host:     &stubHost{metaErr: errors.New("upstream timeout")},
		Scanner:  scan.NewAggregator(nil, 0, nil),
		Quality:  quality.Analyze,
		Reviewer: insight.NewReviewer(nil, nil),
		Store:    s,
	})

	err := orch.Run(ctx, "rev-1")
	require.Error(t, err)

	got, getErr := s.GetReview(ctx, "rev-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "upstream timeout")
}

func TestRunUnknownReview(t *testing.T) {
	s := newPipelineStore(t)

	orch := NewOrchestrator(Deps{Store: s})

	err := orch.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
