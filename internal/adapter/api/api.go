// Package api exposes the review service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
	"github.com/cfernhout/reviewd/internal/store"
	"github.com/cfernhout/reviewd/internal/usecase/intake"
)

// Logger is the request logging port.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
}

// Server provides the REST API handlers.
type Server struct {
	intake *intake.Service
	store  store.Store
	logger Logger
}

// NewServer creates a new API server.
func NewServer(in *intake.Service, st store.Store, logger Logger) *Server {
	return &Server{intake: in, store: st, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/reviews", s.createReview)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)
	mux.HandleFunc("POST /api/v1/reviews/{id}/retry", s.retryReview)

	mux.HandleFunc("GET /api/v1/tickets/{id}/reviews", s.listTicketReviews)

	mux.HandleFunc("GET /api/v1/projects/{owner}/{repo}/reviews", s.listProjectReviews)
	mux.HandleFunc("GET /api/v1/projects/{owner}/{repo}/reviews/stats", s.projectStats)

	mux.HandleFunc("POST /api/v1/events/change", s.handleChangeEvent)

	mux.HandleFunc("GET /api/v1/healthz", s.healthz)

	return s.loggingMiddleware(mux)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if s.logger != nil {
			s.logger.Info(r.Context(), "http request", map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			})
		}
	})
}

type createReviewRequest struct {
	Reference string `json:"reference"`
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	review, err := s.intake.Create(r.Context(), req.Reference)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, review)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.store.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) retryReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.intake.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, review)
}

func (s *Server) listTicketReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.store.ListByTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(reviews))
}

func (s *Server) listProjectReviews(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("owner") + "/" + r.PathValue("repo")

	var filter store.ListFilter
	if status := r.URL.Query().Get("status"); status != "" {
		parsed, ok := parseStatus(status)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status: "+status)
			return
		}
		filter.Status = parsed
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	reviews, err := s.store.ListByProject(r.Context(), projectID, filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(reviews))
}

func (s *Server) projectStats(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("owner") + "/" + r.PathValue("repo")

	stats, err := s.store.ProjectStats(r.Context(), projectID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// changeEventPayload mirrors the relevant slice of a pull request
// webhook body.
type changeEventPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

func (s *Server) handleChangeEvent(w http.ResponseWriter, r *http.Request) {
	var payload changeEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Repository.Owner.Login == "" || payload.Repository.Name == "" || payload.Number < 1 {
		writeError(w, http.StatusBadRequest, "missing repository or pull request number")
		return
	}

	outcome, err := s.intake.HandleEvent(r.Context(), intake.ChangeEvent{
		Action: payload.Action,
		Ref: domain.ChangeRef{
			Owner:  payload.Repository.Owner.Login,
			Repo:   payload.Repository.Name,
			Number: payload.Number,
		},
		Title:       payload.PullRequest.Title,
		Description: payload.PullRequest.Body,
		Branch:      payload.PullRequest.Head.Ref,
		Author:      payload.PullRequest.User.Login,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	switch outcome.Result {
	case intake.ResultQueued:
		status = http.StatusAccepted
	case intake.ResultUnknownTicket:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcome)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps service errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var hostErr *hosting.Error

	switch {
	case errors.Is(err, intake.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &hostErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseStatus(s string) (domain.Status, bool) {
	switch domain.Status(s) {
	case domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted, domain.StatusFailed:
		return domain.Status(s), true
	default:
		return "", false
	}
}

// summarize projects reviews into their list form; never nil so list
// responses encode as [] rather than null.
func summarize(reviews []domain.Review) []domain.ReviewSummary {
	summaries := make([]domain.ReviewSummary, 0, len(reviews))
	for i := range reviews {
		summaries = append(summaries, reviews[i].Summarize())
	}
	return summaries
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
