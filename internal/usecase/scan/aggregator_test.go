package scan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
)

type stubBackend struct {
	name     string
	findings []domain.Finding
	err      error
	delay    time.Duration
	got      []scan.SourceFile
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Scan(ctx context.Context, files []scan.SourceFile) ([]domain.Finding, error) {
	s.got = files
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.findings, s.err
}

type panicBackend struct{}

func (panicBackend) Name() string { return "panicky" }
func (panicBackend) Scan(context.Context, []scan.SourceFile) ([]domain.Finding, error) {
	panic("boom")
}

var changedFiles = []domain.ChangedFile{
	{Path: "auth.go", Status: "modified", Patch: "@@ -0,0 +1,1 @@\n+token := fetch()"},
	{Path: "gone.go", Status: "removed", Patch: "@@ -1,1 +0,0 @@\n-old"},
	{Path: "empty.go", Status: "modified", Patch: ""},
}

func TestScanMergesBackendsInRegistryOrder(t *testing.T) {
	first := &stubBackend{name: "one", findings: []domain.Finding{{Scanner: "one", Severity: domain.SeverityHigh}}}
	second := &stubBackend{name: "two", findings: []domain.Finding{{Scanner: "two", Severity: domain.SeverityLow}}}

	agg := scan.NewAggregator([]scan.Backend{first, second}, time.Second, nil)
	findings := agg.Scan(context.Background(), changedFiles)

	require.Len(t, findings, 2)
	assert.Equal(t, "one", findings[0].Scanner)
	assert.Equal(t, "two", findings[1].Scanner)
}

func TestScanSkipsRemovedAndEmptyFiles(t *testing.T) {
	backend := &stubBackend{name: "probe"}
	agg := scan.NewAggregator([]scan.Backend{backend}, time.Second, nil)
	agg.Scan(context.Background(), changedFiles)

	require.Len(t, backend.got, 1)
	assert.Equal(t, "auth.go", backend.got[0].Path)
	assert.Equal(t, "token := fetch()", backend.got[0].Content)
}

func TestScanDegradesOnBackendError(t *testing.T) {
	failing := &stubBackend{name: "broken", err: errors.New("tool not found")}
	agg := scan.NewAggregator([]scan.Backend{failing}, time.Second, nil)

	findings := agg.Scan(context.Background(), changedFiles)

	assert.Empty(t, findings)
}

func TestScanAllBackendsFailingYieldsEmptyNotError(t *testing.T) {
	agg := scan.NewAggregator([]scan.Backend{
		&stubBackend{name: "a", err: errors.New("a failed")},
		&stubBackend{name: "b", err: errors.New("b failed")},
		panicBackend{},
	}, time.Second, nil)

	findings := agg.Scan(context.Background(), changedFiles)

	assert.Empty(t, findings)
}

func TestScanTimesOutSlowBackend(t *testing.T) {
	slow := &stubBackend{
		name:     "slow",
		delay:    500 * time.Millisecond,
		findings: []domain.Finding{{Scanner: "slow"}},
	}
	fast := &stubBackend{name: "fast", findings: []domain.Finding{{Scanner: "fast"}}}

	agg := scan.NewAggregator([]scan.Backend{slow, fast}, 20*time.Millisecond, nil)
	findings := agg.Scan(context.Background(), changedFiles)

	require.Len(t, findings, 1)
	assert.Equal(t, "fast", findings[0].Scanner)
}

func TestScanNoBackends(t *testing.T) {
	agg := scan.NewAggregator(nil, time.Second, nil)
	assert.Empty(t, agg.Scan(context.Background(), changedFiles))
}
