// Package hosting defines the port to the code hosting side: pull
// request metadata and changed-file retrieval.
package hosting

import (
	"context"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
)

// Metadata describes a pull request as reported by the host.
type Metadata struct {
	Title       string
	Description string
	Author      string
	Branch      string
	State       string
	Merged      bool
	MergedAt    *time.Time
	CreatedAt   time.Time
}

// Host retrieves pull request data from a hosting provider.
type Host interface {
	// ChangeMetadata returns the pull request's descriptive fields.
	ChangeMetadata(ctx context.Context, ref domain.ChangeRef) (Metadata, error)

	// ChangedFiles returns every file touched by the pull request,
	// including unified diff patches where the host provides them.
	ChangedFiles(ctx context.Context, ref domain.ChangeRef) ([]domain.ChangedFile, error)
}
