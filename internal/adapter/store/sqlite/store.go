package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

const defaultListLimit = 50

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- One row per review pipeline run
	CREATE TABLE IF NOT EXISTS reviews (
		review_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		ticket_id TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL,
		repo TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		pr_created_at INTEGER NOT NULL DEFAULT 0,
		merged INTEGER NOT NULL DEFAULT 0,
		merged_at INTEGER,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK(status IN ('pending', 'in_progress', 'completed', 'failed')),
		started_at INTEGER,
		completed_at INTEGER,
		job_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		file_reviews TEXT NOT NULL DEFAULT '[]',
		findings TEXT NOT NULL DEFAULT '[]',
		insight TEXT,
		quality_score REAL NOT NULL DEFAULT 0,
		security_score REAL NOT NULL DEFAULT 0,
		total_files INTEGER NOT NULL DEFAULT 0,
		total_additions INTEGER NOT NULL DEFAULT 0,
		total_deletions INTEGER NOT NULL DEFAULT 0,
		critical_count INTEGER NOT NULL DEFAULT 0,
		high_count INTEGER NOT NULL DEFAULT 0,
		medium_count INTEGER NOT NULL DEFAULT 0,
		low_count INTEGER NOT NULL DEFAULT 0,
		scan_duration_ns INTEGER NOT NULL DEFAULT 0,
		ai_duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Ticket to project mapping used by webhook intake
	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_reviews_ticket ON reviews(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_project ON reviews(project_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_reviews_ticket_number ON reviews(ticket_id, pr_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

const reviewColumns = `review_id, project_id, ticket_id, owner, repo, pr_number,
	title, branch, author, pr_created_at, merged, merged_at,
	status, started_at, completed_at, job_id, error_message,
	file_reviews, findings, insight, quality_score, security_score,
	total_files, total_additions, total_deletions,
	critical_count, high_count, medium_count, low_count,
	scan_duration_ns, ai_duration_ns, created_at, updated_at`

// CreateReview inserts a new review record. Missing timestamps and
// status are filled in with defaults.
func (s *Store) CreateReview(ctx context.Context, review *domain.Review) error {
	now := time.Now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = now
	}
	if review.Status == "" {
		review.Status = domain.StatusPending
	}

	fileReviews, findings, insight, err := encodeResults(review)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		review.ID,
		review.ProjectID,
		review.TicketID,
		review.Ref.Owner,
		review.Ref.Repo,
		review.Ref.Number,
		review.Title,
		review.Branch,
		review.Author,
		review.PRCreatedAt.Unix(),
		boolToInt(review.Merged),
		nullableTime(review.MergedAt),
		string(review.Status),
		nullableTime(review.StartedAt),
		nullableTime(review.CompletedAt),
		review.JobID,
		review.ErrorMessage,
		fileReviews,
		findings,
		insight,
		review.QualityScore,
		review.SecurityScore,
		review.TotalFilesChanged,
		review.TotalAdditions,
		review.TotalDeletions,
		review.CriticalCount,
		review.HighCount,
		review.MediumCount,
		review.LowCount,
		int64(review.ScanDuration),
		int64(review.AIDuration),
		review.CreatedAt.Unix(),
		review.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}

	return nil
}

// GetReview retrieves a review by ID.
func (s *Store) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE review_id = ?`

	review, err := scanReview(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return review, nil
}

// FindByTicketAndNumber returns the most recent review for a ticket and
// change number pair.
func (s *Store) FindByTicketAndNumber(ctx context.Context, ticketID string, number int) (*domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE ticket_id = ? AND pr_number = ?
		ORDER BY created_at DESC, review_id DESC
		LIMIT 1
	`

	review, err := scanReview(s.db.QueryRowContext(ctx, query, ticketID, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find review: %w", err)
	}

	return review, nil
}

// ClaimReview transitions a pending review to in_progress. The status
// guard in the WHERE clause makes the claim atomic under concurrent
// workers.
func (s *Store) ClaimReview(ctx context.Context, id string) error {
	now := time.Now().Unix()
	query := `
		UPDATE reviews
		SET status = 'in_progress', started_at = ?, updated_at = ?
		WHERE review_id = ? AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to claim review: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return s.transitionError(ctx, id)
	}

	return nil
}

// CompleteReview persists the full results and marks the review completed.
func (s *Store) CompleteReview(ctx context.Context, review *domain.Review) error {
	now := time.Now()
	review.Status = domain.StatusCompleted
	if review.CompletedAt == nil {
		review.CompletedAt = &now
	}
	review.UpdatedAt = now

	fileReviews, findings, insight, err := encodeResults(review)
	if err != nil {
		return err
	}

	query := `
		UPDATE reviews
		SET status = 'completed',
			title = ?, branch = ?, author = ?, pr_created_at = ?,
			merged = ?, merged_at = ?,
			completed_at = ?, error_message = '',
			file_reviews = ?, findings = ?, insight = ?,
			quality_score = ?, security_score = ?,
			total_files = ?, total_additions = ?, total_deletions = ?,
			critical_count = ?, high_count = ?, medium_count = ?, low_count = ?,
			scan_duration_ns = ?, ai_duration_ns = ?,
			updated_at = ?
		WHERE review_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		review.Title,
		review.Branch,
		review.Author,
		review.PRCreatedAt.Unix(),
		boolToInt(review.Merged),
		nullableTime(review.MergedAt),
		nullableTime(review.CompletedAt),
		fileReviews,
		findings,
		insight,
		review.QualityScore,
		review.SecurityScore,
		review.TotalFilesChanged,
		review.TotalAdditions,
		review.TotalDeletions,
		review.CriticalCount,
		review.HighCount,
		review.MediumCount,
		review.LowCount,
		int64(review.ScanDuration),
		int64(review.AIDuration),
		review.UpdatedAt.Unix(),
		review.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to complete review: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// FailReview marks the review failed with the given message.
func (s *Store) FailReview(ctx context.Context, id, message string) error {
	now := time.Now().Unix()
	query := `
		UPDATE reviews
		SET status = 'failed', error_message = ?, completed_at = ?, updated_at = ?
		WHERE review_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, message, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark review failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// ResetForRetry transitions a failed review back to pending under a new
// job id, clearing the prior error and results.
func (s *Store) ResetForRetry(ctx context.Context, id, jobID string) error {
	now := time.Now().Unix()
	query := `
		UPDATE reviews
		SET status = 'pending', job_id = ?, error_message = '',
			file_reviews = '[]', findings = '[]', insight = NULL,
			quality_score = 0, security_score = 0,
			critical_count = 0, high_count = 0, medium_count = 0, low_count = 0,
			scan_duration_ns = 0, ai_duration_ns = 0,
			started_at = NULL, completed_at = NULL,
			updated_at = ?
		WHERE review_id = ? AND status = 'failed'
	`

	result, err := s.db.ExecContext(ctx, query, jobID, now, id)
	if err != nil {
		return fmt.Errorf("failed to reset review: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return s.transitionError(ctx, id)
	}

	return nil
}

// ListByTicket returns all reviews for a ticket, newest first.
func (s *Store) ListByTicket(ctx context.Context, ticketID string) ([]domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE ticket_id = ?
		ORDER BY created_at DESC, review_id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews by ticket: %w", err)
	}
	defer rows.Close()

	return collectReviews(rows)
}

// ListByProject returns reviews for a project, newest first, optionally
// filtered by status.
func (s *Store) ListByProject(ctx context.Context, projectID string, filter store.ListFilter) ([]domain.Review, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE project_id = ?
	`
	args := []any{projectID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, review_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews by project: %w", err)
	}
	defer rows.Close()

	return collectReviews(rows)
}

// ProjectStats aggregates outcomes across a project's reviews.
func (s *Store) ProjectStats(ctx context.Context, projectID string) (store.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' THEN quality_score END), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' THEN security_score END), 0),
			COALESCE(SUM(critical_count), 0),
			COALESCE(SUM(high_count), 0)
		FROM reviews
		WHERE project_id = ?
	`

	stats := store.Stats{ProjectID: projectID}
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&stats.TotalReviews,
		&stats.Completed,
		&stats.Failed,
		&stats.Pending,
		&stats.InProgress,
		&stats.AvgQualityScore,
		&stats.AvgSecurityScore,
		&stats.TotalCritical,
		&stats.TotalHigh,
	)
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to get project stats: %w", err)
	}

	return stats, nil
}

// ResolveTicket returns the project a ticket belongs to.
func (s *Store) ResolveTicket(ctx context.Context, ticketID string) (string, error) {
	query := `SELECT project_id FROM tickets WHERE ticket_id = ?`

	var projectID string
	err := s.db.QueryRowContext(ctx, query, ticketID).Scan(&projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve ticket: %w", err)
	}

	return projectID, nil
}

// RegisterTicket records a ticket to project mapping.
func (s *Store) RegisterTicket(ctx context.Context, ticketID, projectID string) error {
	query := `
		INSERT INTO tickets (ticket_id, project_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ticket_id) DO UPDATE SET project_id = excluded.project_id
	`

	_, err := s.db.ExecContext(ctx, query, ticketID, projectID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register ticket: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// transitionError distinguishes a missing review from a guarded update
// that matched no rows because of the review's current status.
func (s *Store) transitionError(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM reviews WHERE review_id = ?`, id).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to check review status: %w", err)
	}
	return fmt.Errorf("%w: review is %s", store.ErrInvalidState, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*domain.Review, error) {
	var (
		review      domain.Review
		prCreatedAt int64
		merged      int
		mergedAt    sql.NullInt64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		fileReviews string
		findings    string
		insight     sql.NullString
		scanNS      int64
		aiNS        int64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&review.ID,
		&review.ProjectID,
		&review.TicketID,
		&review.Ref.Owner,
		&review.Ref.Repo,
		&review.Ref.Number,
		&review.Title,
		&review.Branch,
		&review.Author,
		&prCreatedAt,
		&merged,
		&mergedAt,
		&review.Status,
		&startedAt,
		&completedAt,
		&review.JobID,
		&review.ErrorMessage,
		&fileReviews,
		&findings,
		&insight,
		&review.QualityScore,
		&review.SecurityScore,
		&review.TotalFilesChanged,
		&review.TotalAdditions,
		&review.TotalDeletions,
		&review.CriticalCount,
		&review.HighCount,
		&review.MediumCount,
		&review.LowCount,
		&scanNS,
		&aiNS,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	review.PRCreatedAt = time.Unix(prCreatedAt, 0)
	review.Merged = merged == 1
	review.MergedAt = timeFromNull(mergedAt)
	review.StartedAt = timeFromNull(startedAt)
	review.CompletedAt = timeFromNull(completedAt)
	review.ScanDuration = time.Duration(scanNS)
	review.AIDuration = time.Duration(aiNS)
	review.CreatedAt = time.Unix(createdAt, 0)
	review.UpdatedAt = time.Unix(updatedAt, 0)

	if err := json.Unmarshal([]byte(fileReviews), &review.FileReviews); err != nil {
		return nil, fmt.Errorf("failed to decode file reviews: %w", err)
	}
	if err := json.Unmarshal([]byte(findings), &review.Findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	if insight.Valid && insight.String != "" {
		var parsed domain.Insight
		if err := json.Unmarshal([]byte(insight.String), &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode insight: %w", err)
		}
		review.Insight = &parsed
	}

	return &review, nil
}

func collectReviews(rows *sql.Rows) ([]domain.Review, error) {
	var reviews []domain.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

func encodeResults(review *domain.Review) (fileReviews, findings string, insight any, err error) {
	fr, err := json.Marshal(emptySliceIfNil(review.FileReviews))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode file reviews: %w", err)
	}
	fd, err := json.Marshal(emptySliceIfNil(review.Findings))
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode findings: %w", err)
	}

	var ins any
	if review.Insight != nil {
		raw, err := json.Marshal(review.Insight)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to encode insight: %w", err)
		}
		ins = string(raw)
	}

	return string(fr), string(fd), ins, nil
}

func emptySliceIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
