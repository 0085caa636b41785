// Package github implements the hosting port against the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/hosting"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	providerName   = "github"

	filesPerPage = 100
)

// Client is an HTTP client for the GitHub Pull Requests API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  hosting.RetryConfig
}

// NewClient creates a new GitHub API client with the given token.
// The token should be a GitHub personal access token or GITHUB_TOKEN from Actions.
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf:  hosting.DefaultRetryConfig(),
	}
}

// SetBaseURL sets a custom base URL (for testing).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// SetTimeout sets the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetMaxRetries sets the maximum number of retry attempts.
func (c *Client) SetMaxRetries(maxRetries int) {
	c.retryConf.MaxRetries = maxRetries
}

// SetInitialBackoff sets the initial backoff duration for retries.
func (c *Client) SetInitialBackoff(backoff time.Duration) {
	c.retryConf.InitialBackoff = backoff
}

type pullResponse struct {
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	MergedAt  *time.Time `json:"merged_at"`
	CreatedAt time.Time  `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

type fileResponse struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch"`
}

// ChangeMetadata returns the pull request's descriptive fields.
func (c *Client) ChangeMetadata(ctx context.Context, ref domain.ChangeRef) (hosting.Metadata, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, ref.Owner, ref.Repo, ref.Number)

	var pull pullResponse
	if err := c.getJSON(ctx, url, &pull); err != nil {
		return hosting.Metadata{}, err
	}

	return hosting.Metadata{
		Title:       pull.Title,
		Description: pull.Body,
		Author:      pull.User.Login,
		Branch:      pull.Head.Ref,
		State:       pull.State,
		Merged:      pull.Merged,
		MergedAt:    pull.MergedAt,
		CreatedAt:   pull.CreatedAt,
	}, nil
}

// ChangedFiles returns every file touched by the pull request, paging
// through the files endpoint until a short page is returned.
func (c *Client) ChangedFiles(ctx context.Context, ref domain.ChangeRef) ([]domain.ChangedFile, error) {
	var files []domain.ChangedFile

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, ref.Owner, ref.Repo, ref.Number, filesPerPage, page)

		var batch []fileResponse
		if err := c.getJSON(ctx, url, &batch); err != nil {
			return nil, err
		}

		for _, f := range batch {
			files = append(files, domain.ChangedFile{
				Path:      f.Filename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
				Changes:   f.Changes,
				Patch:     f.Patch,
			})
		}

		if len(batch) < filesPerPage {
			break
		}
	}

	return files, nil
}

// getJSON performs a GET with retry and decodes the response body.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var resp *http.Response
	err := hosting.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, "GET", url, nil)
		if reqErr != nil {
			return &hosting.Error{
				Type:      hosting.ErrTypeUnknown,
				Message:   reqErr.Error(),
				Retryable: false,
				Provider:  providerName,
			}
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		var callErr error
		resp, callErr = c.httpClient.Do(req)
		if callErr != nil {
			return &hosting.Error{
				Type:      hosting.ErrTypeTimeout,
				Message:   callErr.Error(),
				Retryable: true,
				Provider:  providerName,
			}
		}

		if resp.StatusCode >= 400 {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return mapHTTPError(resp.StatusCode, bodyBytes)
		}

		return nil
	}, c.retryConf)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// mapHTTPError maps GitHub error responses to typed hosting errors.
func mapHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
	}
	message := fmt.Sprintf("HTTP %d", statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		message = errResp.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return &hosting.Error{
			Type:       hosting.ErrTypeAuthentication,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	case statusCode == http.StatusForbidden:
		// Secondary rate limits surface as 403 with a telltale message.
		if strings.Contains(strings.ToLower(message), "rate limit") {
			return &hosting.Error{
				Type:       hosting.ErrTypeRateLimit,
				Message:    message,
				StatusCode: statusCode,
				Retryable:  true,
				Provider:   providerName,
			}
		}
		return &hosting.Error{
			Type:       hosting.ErrTypeAuthentication,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	case statusCode == http.StatusNotFound:
		return &hosting.Error{
			Type:       hosting.ErrTypeNotFound,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	case statusCode == http.StatusTooManyRequests:
		return &hosting.Error{
			Type:       hosting.ErrTypeRateLimit,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  true,
			Provider:   providerName,
		}
	case statusCode >= 500:
		return &hosting.Error{
			Type:       hosting.ErrTypeServiceUnavailable,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  true,
			Provider:   providerName,
		}
	default:
		return &hosting.Error{
			Type:       hosting.ErrTypeUnknown,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   providerName,
		}
	}
}
