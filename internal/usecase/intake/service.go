// Package intake accepts review requests from the API and from hosting
// webhooks, records them, and submits pipeline jobs.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
	"github.com/cfernhout/reviewd/internal/queue"
	"github.com/cfernhout/reviewd/internal/store"
)

// JobKindReview is the queue job kind for pipeline runs. The payload is
// the review id.
const JobKindReview = "review.run"

// Enqueuer is the job submission port.
type Enqueuer interface {
	EnqueueJob(job queue.Job) error
}

// Logger is the minimal logging port for intake decisions.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
}

// EventResult says what intake did with a webhook event.
type EventResult string

const (
	ResultQueued          EventResult = "queued"
	ResultIgnoredAction   EventResult = "ignored_action"
	ResultIgnoredNoTicket EventResult = "ignored_no_ticket"
	ResultSkipped         EventResult = "skipped"
	ResultDuplicate       EventResult = "duplicate"
	ResultUnknownTicket   EventResult = "unknown_ticket"
)

// Outcome reports what intake did with a webhook event. Reason is set
// for results that need explaining to the sender; Review is set when a
// record was created or an existing one matched.
type Outcome struct {
	Result EventResult    `json:"result"`
	Reason string         `json:"reason,omitempty"`
	Review *domain.Review `json:"review,omitempty"`
}

// ChangeEvent is a normalized pull request webhook event.
type ChangeEvent struct {
	Action      string
	Ref         domain.ChangeRef
	Title       string
	Description string
	Branch      string
	Author      string
}

// reviewedActions are the webhook actions that trigger a review.
var reviewedActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"updated":     true,
	"reopened":    true,
}

// Service implements review intake.
type Service struct {
	store  store.Store
	host   hosting.Host
	jobs   Enqueuer
	logger Logger
}

// NewService creates the intake service.
func NewService(st store.Store, host hosting.Host, jobs Enqueuer, logger Logger) *Service {
	return &Service{store: st, host: host, jobs: jobs, logger: logger}
}

// Create registers a review for the referenced pull request and submits
// a pipeline job. The reference is either "owner/repo#123" or a pull
// request URL. A ticket extracted from the pull request is recorded in
// the ticket registry, so later webhook events for it resolve.
func (s *Service) Create(ctx context.Context, reference string) (*domain.Review, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}

	meta, err := s.host.ChangeMetadata(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch change metadata: %w", err)
	}

	review := &domain.Review{
		ID:          ulid.Make().String(),
		ProjectID:   ref.HostProject(),
		TicketID:    ExtractTicket(meta.Title, meta.Branch),
		Ref:         ref,
		Title:       meta.Title,
		Branch:      meta.Branch,
		Author:      meta.Author,
		PRCreatedAt: meta.CreatedAt,
		Merged:      meta.Merged,
		MergedAt:    meta.MergedAt,
		Status:      domain.StatusPending,
	}

	if review.TicketID != "" {
		if err := s.store.RegisterTicket(ctx, review.TicketID, review.ProjectID); err != nil {
			return nil, fmt.Errorf("register ticket: %w", err)
		}
	}

	if err := s.submit(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// HandleEvent processes a pull request webhook event. Events without a
// reviewed action or a ticket reference are ignored; an event whose
// ticket is not registered is an error outcome, not an exception; a
// live review for the same ticket and change number short-circuits as
// a duplicate.
func (s *Service) HandleEvent(ctx context.Context, event ChangeEvent) (Outcome, error) {
	if !reviewedActions[event.Action] {
		s.info(ctx, "ignoring webhook action", map[string]any{
			"action": event.Action,
			"change": event.Ref.String(),
		})
		return Outcome{
			Result: ResultIgnoredAction,
			Reason: fmt.Sprintf("action %q does not trigger a review", event.Action),
		}, nil
	}

	if HasSkipTrigger(event.Title, event.Description) {
		s.info(ctx, "skip trigger found in change", map[string]any{
			"change": event.Ref.String(),
			"title":  event.Title,
		})
		return Outcome{Result: ResultSkipped, Reason: "skip trigger present"}, nil
	}

	ticket := ExtractTicket(event.Title, event.Branch)
	if ticket == "" {
		s.info(ctx, "no ticket reference in change", map[string]any{
			"change": event.Ref.String(),
			"title":  event.Title,
		})
		return Outcome{Result: ResultIgnoredNoTicket, Reason: "no ticket reference found"}, nil
	}

	projectID, err := s.store.ResolveTicket(ctx, ticket)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("resolve ticket: %w", err)
		}
		s.info(ctx, "ticket not registered", map[string]any{
			"ticket": ticket,
			"change": event.Ref.String(),
		})
		return Outcome{
			Result: ResultUnknownTicket,
			Reason: fmt.Sprintf("ticket %s not found", ticket),
		}, nil
	}

	existing, err := s.store.FindByTicketAndNumber(ctx, ticket, event.Ref.Number)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, fmt.Errorf("check for existing review: %w", err)
	}
	if existing != nil && existing.Status != domain.StatusFailed {
		s.info(ctx, "review already exists for change", map[string]any{
			"review_id": existing.ID,
			"ticket":    ticket,
			"change":    event.Ref.String(),
			"status":    string(existing.Status),
		})
		return Outcome{Result: ResultDuplicate, Review: existing}, nil
	}

	review := &domain.Review{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		TicketID:  ticket,
		Ref:       event.Ref,
		Title:     event.Title,
		Branch:    event.Branch,
		Author:    event.Author,
		Status:    domain.StatusPending,
	}

	if err := s.submit(ctx, review); err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: ResultQueued, Review: review}, nil
}

// Retry re-queues a failed review under a new job id.
func (s *Service) Retry(ctx context.Context, reviewID string) (*domain.Review, error) {
	job := queue.NewJob(JobKindReview, reviewID)

	if err := s.store.ResetForRetry(ctx, reviewID, job.ID); err != nil {
		return nil, err
	}
	if err := s.jobs.EnqueueJob(job); err != nil {
		return nil, fmt.Errorf("enqueue retry job: %w", err)
	}

	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	s.info(ctx, "review retry queued", map[string]any{
		"review_id": reviewID,
		"job_id":    job.ID,
	})
	return review, nil
}

// submit persists the review record and hands the job to the queue. The
// job id is written to the record before submission so a worker can
// never observe a review without one.
func (s *Service) submit(ctx context.Context, review *domain.Review) error {
	job := queue.NewJob(JobKindReview, review.ID)
	review.JobID = job.ID
	review.CreatedAt = time.Now()
	review.UpdatedAt = review.CreatedAt

	if err := s.store.CreateReview(ctx, review); err != nil {
		return fmt.Errorf("create review record: %w", err)
	}
	if err := s.jobs.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueue review job: %w", err)
	}

	s.info(ctx, "review queued", map[string]any{
		"review_id": review.ID,
		"job_id":    job.ID,
		"change":    review.Ref.String(),
	})
	return nil
}

func (s *Service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Info(ctx, msg, fields)
	}
}
