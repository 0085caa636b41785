package intake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfernhout/reviewd/internal/adapter/store/sqlite"
	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
	"github.com/cfernhout/reviewd/internal/queue"
	"github.com/cfernhout/reviewd/internal/store"
)

type stubHost struct {
	meta hosting.Metadata
	err  error
}

func (h *stubHost) ChangeMetadata(context.Context, domain.ChangeRef) (hosting.Metadata, error) {
	return h.meta, h.err
}

func (h *stubHost) ChangedFiles(context.Context, domain.ChangeRef) ([]domain.ChangedFile, error) {
	return nil, nil
}

type captureQueue struct {
	jobs []queue.Job
}

func (q *captureQueue) EnqueueJob(job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func newIntakeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		want      domain.ChangeRef
		wantErr   bool
	}{
		{
			name:      "slug form",
			reference: "acme/widgets#7",
			want:      domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		},
		{
			name:      "pull request URL",
			reference: "https://github.com/acme/widgets/pull/42",
			want:      domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 42},
		},
		{
			name:      "missing number",
			reference: "acme/widgets",
			wantErr:   true,
		},
		{
			name:      "not a reference",
			reference: "hello world",
			wantErr:   true,
		},
		{
			name:      "zero number",
			reference: "acme/widgets#0",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReference(tt.reference)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTicket(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		branch string
		want   string
	}{
		{name: "from title", title: "ACME-42: add cache", branch: "feature/other", want: "ACME-42"},
		{name: "from branch", title: "add cache", branch: "feature/ACME-7-cache", want: "ACME-7"},
		{name: "title wins", title: "ACME-1 fix", branch: "feature/ACME-2", want: "ACME-1"},
		{name: "none", title: "add cache", branch: "feature/cache", want: ""},
		{name: "lowercase ignored", title: "acme-42 fix", branch: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTicket(tt.title, tt.branch))
		})
	}
}

func TestCreateQueuesReview(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	q := &captureQueue{}
	host := &stubHost{meta: hosting.Metadata{
		Title:     "ACME-42: add cache",
		Branch:    "feature/ACME-42-cache",
		Author:    "dev",
		CreatedAt: time.Now(),
	}}

	svc := NewService(st, host, q, nil)

	review, err := svc.Create(ctx, "acme/widgets#7")
	require.NoError(t, err)

	assert.Equal(t, "acme/widgets", review.ProjectID)
	assert.Equal(t, "ACME-42", review.TicketID)
	assert.Equal(t, domain.StatusPending, review.Status)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, JobKindReview, q.jobs[0].Kind)
	assert.Equal(t, review.ID, q.jobs[0].Payload)
	assert.Equal(t, q.jobs[0].ID, review.JobID)

	stored, err := st.GetReview(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, review.JobID, stored.JobID)

	// Direct creation seeds the ticket registry for webhook events.
	projectID, err := st.ResolveTicket(ctx, "ACME-42")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", projectID)
}

func TestCreateRejectsBadReference(t *testing.T) {
	svc := NewService(newIntakeStore(t), &stubHost{}, &captureQueue{}, nil)

	_, err := svc.Create(context.Background(), "not-a-reference")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestHandleEventFiltersActions(t *testing.T) {
	svc := NewService(newIntakeStore(t), &stubHost{}, &captureQueue{}, nil)

	outcome, err := svc.HandleEvent(context.Background(), ChangeEvent{
		Action: "closed",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnoredAction, outcome.Result)
	assert.Nil(t, outcome.Review)
}

func TestHandleEventRequiresTicket(t *testing.T) {
	svc := NewService(newIntakeStore(t), &stubHost{}, &captureQueue{}, nil)

	outcome, err := svc.HandleEvent(context.Background(), ChangeEvent{
		Action: "opened",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "add cache",
		Branch: "feature/cache",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnoredNoTicket, outcome.Result)
	assert.Nil(t, outcome.Review)
}

func TestHasSkipTrigger(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        bool
	}{
		{name: "bracketed trigger in title", title: "ACME-1: hotfix [skip review]", want: true},
		{name: "hyphenated trigger", title: "ACME-1: hotfix [skip-review]", want: true},
		{name: "case-insensitive", title: "ACME-1: hotfix [Skip Review]", want: true},
		{name: "trigger in description", title: "ACME-1: hotfix", description: "trivial rename\n[skip review]", want: true},
		{name: "no trigger", title: "ACME-1: skip the cache on review pages", want: false},
		{name: "unbracketed text ignored", title: "skip review", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSkipTrigger(tt.title, tt.description))
		})
	}
}

func TestHandleEventHonorsSkipTrigger(t *testing.T) {
	q := &captureQueue{}
	svc := NewService(newIntakeStore(t), &stubHost{}, q, nil)

	outcome, err := svc.HandleEvent(context.Background(), ChangeEvent{
		Action: "opened",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache [skip review]",
		Branch: "feature/ACME-42-cache",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, outcome.Result)
	assert.Nil(t, outcome.Review)
	assert.Empty(t, q.jobs)
}

func TestHandleEventRejectsUnknownTicket(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	q := &captureQueue{}
	svc := NewService(st, &stubHost{}, q, nil)

	outcome, err := svc.HandleEvent(ctx, ChangeEvent{
		Action: "opened",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache",
		Branch: "feature/ACME-42-cache",
		Author: "dev",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultUnknownTicket, outcome.Result)
	assert.Equal(t, "ticket ACME-42 not found", outcome.Reason)
	assert.Nil(t, outcome.Review)
	assert.Empty(t, q.jobs)

	// Nothing was registered or recorded on the error path.
	_, err = st.ResolveTicket(ctx, "ACME-42")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.FindByTicketAndNumber(ctx, "ACME-42", 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleEventUsesRegisteredProject(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	require.NoError(t, st.RegisterTicket(ctx, "ACME-42", "internal/platform"))

	svc := NewService(st, &stubHost{}, &captureQueue{}, nil)

	outcome, err := svc.HandleEvent(ctx, ChangeEvent{
		Action: "synchronize",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultQueued, outcome.Result)
	assert.Equal(t, "internal/platform", outcome.Review.ProjectID)
}

func TestHandleEventDeduplicatesLiveReviews(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	require.NoError(t, st.RegisterTicket(ctx, "ACME-42", "acme/widgets"))
	q := &captureQueue{}
	svc := NewService(st, &stubHost{}, q, nil)

	event := ChangeEvent{
		Action: "opened",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache",
	}

	first, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, ResultQueued, first.Result)

	// Same change again while the first review is still pending.
	second, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, second.Result)
	assert.Equal(t, first.Review.ID, second.Review.ID)
	assert.Len(t, q.jobs, 1)
}

func TestHandleEventRequeuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	require.NoError(t, st.RegisterTicket(ctx, "ACME-42", "acme/widgets"))
	q := &captureQueue{}
	svc := NewService(st, &stubHost{}, q, nil)

	event := ChangeEvent{
		Action: "opened",
		Ref:    domain.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7},
		Title:  "ACME-42: add cache",
	}

	first, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.NoError(t, st.ClaimReview(ctx, first.Review.ID))
	require.NoError(t, st.FailReview(ctx, first.Review.ID, "boom"))

	second, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultQueued, second.Result)
	assert.NotEqual(t, first.Review.ID, second.Review.ID)
	assert.Len(t, q.jobs, 2)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	st := newIntakeStore(t)
	q := &captureQueue{}
	host := &stubHost{meta: hosting.Metadata{Title: "ACME-42: add cache"}}
	svc := NewService(st, host, q, nil)

	review, err := svc.Create(ctx, "acme/widgets#7")
	require.NoError(t, err)

	// Retrying a pending review is rejected.
	_, err = svc.Retry(ctx, review.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	require.NoError(t, st.ClaimReview(ctx, review.ID))
	require.NoError(t, st.FailReview(ctx, review.ID, "scanner crashed"))

	retried, err := svc.Retry(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, retried.Status)
	assert.NotEqual(t, review.JobID, retried.JobID)
	require.Len(t, q.jobs, 2)
	assert.Equal(t, retried.JobID, q.jobs[1].ID)

	_, err = svc.Retry(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
