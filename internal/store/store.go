// Package store defines the persistence port for review records and
// ticket mappings.
package store

import (
	"context"
	"errors"

	"github.com/cfernhout/reviewd/internal/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState indicates a lifecycle transition was attempted
	// from a status that does not permit it.
	ErrInvalidState = errors.New("invalid review state for transition")
)

// ListFilter narrows project review listings.
type ListFilter struct {
	Status domain.Status // zero value means all statuses
	Limit  int           // zero means the implementation default
}

// Stats aggregates review outcomes for one project.
type Stats struct {
	ProjectID        string  `json:"project_id"`
	TotalReviews     int     `json:"total_reviews"`
	Completed        int     `json:"completed"`
	Failed           int     `json:"failed"`
	Pending          int     `json:"pending"`
	InProgress       int     `json:"in_progress"`
	AvgQualityScore  float64 `json:"avg_quality_score"`
	AvgSecurityScore float64 `json:"avg_security_score"`
	TotalCritical    int     `json:"total_critical"`
	TotalHigh        int     `json:"total_high"`
}

// Store is the persistence interface for the review lifecycle.
type Store interface {
	// CreateReview inserts a new pending review record.
	CreateReview(ctx context.Context, review *domain.Review) error

	// GetReview returns the review with the given id, or ErrNotFound.
	GetReview(ctx context.Context, id string) (*domain.Review, error)

	// FindByTicketAndNumber returns the most recent review for a
	// ticket and change number pair, or ErrNotFound.
	FindByTicketAndNumber(ctx context.Context, ticketID string, number int) (*domain.Review, error)

	// ClaimReview transitions a pending review to in_progress and
	// stamps its start time. Returns ErrInvalidState when the review
	// is not pending, so concurrent workers cannot double-process.
	ClaimReview(ctx context.Context, id string) error

	// CompleteReview persists the full results and marks the review
	// completed.
	CompleteReview(ctx context.Context, review *domain.Review) error

	// FailReview marks the review failed with the given message.
	FailReview(ctx context.Context, id, message string) error

	// ResetForRetry transitions a failed review back to pending under
	// a new job id, clearing the prior error and results.
	ResetForRetry(ctx context.Context, id, jobID string) error

	// ListByTicket returns all reviews for a ticket, newest first.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Review, error)

	// ListByProject returns reviews for a project, newest first.
	ListByProject(ctx context.Context, projectID string, filter ListFilter) ([]domain.Review, error)

	// ProjectStats aggregates outcomes across a project's reviews.
	ProjectStats(ctx context.Context, projectID string) (Stats, error)

	TicketResolver

	Close() error
}

// TicketResolver maps ticket identifiers to project identifiers.
type TicketResolver interface {
	// ResolveTicket returns the project a ticket belongs to, or
	// ErrNotFound when the ticket is unknown.
	ResolveTicket(ctx context.Context, ticketID string) (string, error)

	// RegisterTicket records a ticket to project mapping, replacing
	// any previous one.
	RegisterTicket(ctx context.Context, ticketID, projectID string) error
}
