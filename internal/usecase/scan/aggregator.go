// Package scan fans a pull request's reconstructed files out to the
// configured scanning backends and merges their normalized findings.
// A backend failing, timing out, or panicking contributes nothing; it
// never fails the aggregation.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cfernhout/reviewd/internal/diff"
	"github.com/cfernhout/reviewd/internal/domain"
)

// SourceFile is a reconstructed post-change file handed to backends.
type SourceFile struct {
	Path    string // original change path
	Content string
}

// Backend is a single scanning capability. Implementations return
// findings already normalized to the five-level severity scale, with
// FilePath set to the original change path.
type Backend interface {
	Name() string
	Scan(ctx context.Context, files []SourceFile) ([]domain.Finding, error)
}

// Logger is the optional structured-logging port for the aggregator.
type Logger interface {
	Warn(ctx context.Context, msg string, fields map[string]any)
	Info(ctx context.Context, msg string, fields map[string]any)
}

// Aggregator runs every registered backend concurrently with a
// per-backend wall-clock timeout.
type Aggregator struct {
	backends []Backend
	timeout  time.Duration
	logger   Logger
}

// DefaultBackendTimeout bounds a single backend invocation.
const DefaultBackendTimeout = 2 * time.Minute

// NewAggregator builds an aggregator over a backend registry assembled
// at startup. A zero timeout falls back to DefaultBackendTimeout; a nil
// logger is tolerated.
func NewAggregator(backends []Backend, timeout time.Duration, logger Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	return &Aggregator{backends: backends, timeout: timeout, logger: logger}
}

// Scan reconstructs source text for each changed file and runs all
// backends against it. The result is the concatenation of every
// backend's findings in registry order; duplicates across backends are
// kept because each is independently actionable.
func (a *Aggregator) Scan(ctx context.Context, files []domain.ChangedFile) []domain.Finding {
	sources := reconstructSources(files)
	if len(sources) == 0 || len(a.backends) == 0 {
		return nil
	}

	results := make([][]domain.Finding, len(a.backends))
	var wg sync.WaitGroup

	for i, backend := range a.backends {
		wg.Add(1)
		go func(slot int, b Backend) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.warn(ctx, "scanner backend panicked", map[string]any{
						"backend": b.Name(),
						"panic":   fmt.Sprint(r),
					})
				}
			}()

			scanCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			findings, err := b.Scan(scanCtx, sources)
			if err != nil {
				a.warn(ctx, "scanner backend failed", map[string]any{
					"backend": b.Name(),
					"error":   err.Error(),
				})
				return
			}
			results[slot] = findings
		}(i, backend)
	}
	wg.Wait()

	var merged []domain.Finding
	for i, findings := range results {
		if len(findings) > 0 {
			a.info(ctx, "scanner backend completed", map[string]any{
				"backend":  a.backends[i].Name(),
				"findings": len(findings),
			})
		}
		merged = append(merged, findings...)
	}
	return merged
}

func reconstructSources(files []domain.ChangedFile) []SourceFile {
	sources := make([]SourceFile, 0, len(files))
	for _, f := range files {
		if f.Status == "removed" || f.Patch == "" {
			continue
		}
		content := diff.Reconstruct(f.Patch)
		if content == "" {
			continue
		}
		sources = append(sources, SourceFile{Path: f.Path, Content: content})
	}
	return sources
}

func (a *Aggregator) warn(ctx context.Context, msg string, fields map[string]any) {
	if a.logger != nil {
		a.logger.Warn(ctx, msg, fields)
	}
}

func (a *Aggregator) info(ctx context.Context, msg string, fields map[string]any) {
	if a.logger != nil {
		a.logger.Info(ctx, msg, fields)
	}
}
