package intake

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/cfernhout/reviewd/internal/domain"
)

var (
	// ErrInvalidReference indicates a change reference that matches
	// neither the slug nor the URL form.
	ErrInvalidReference = fmt.Errorf("invalid change reference")

	slugPattern   = regexp.MustCompile(`^([^/\s#]+)/([^/\s#]+)#(\d+)$`)
	urlPattern    = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)
	ticketPattern = regexp.MustCompile(`[A-Z]+-\d+`)

	// skipPattern matches [skip review] or [skip-review] (case-insensitive).
	skipPattern = regexp.MustCompile(`(?i)\[skip[ -]review\]`)
)

// ParseReference accepts "owner/repo#123" or a GitHub pull request URL
// and returns the change it names.
func ParseReference(reference string) (domain.ChangeRef, error) {
	m := slugPattern.FindStringSubmatch(reference)
	if m == nil {
		m = urlPattern.FindStringSubmatch(reference)
	}
	if m == nil {
		return domain.ChangeRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}

	number, err := strconv.Atoi(m[3])
	if err != nil || number <= 0 {
		return domain.ChangeRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}

	return domain.ChangeRef{Owner: m[1], Repo: m[2], Number: number}, nil
}

// ExtractTicket finds the ticket identifier in the pull request title,
// falling back to the branch name.
func ExtractTicket(title, branch string) string {
	if ticket := ticketPattern.FindString(title); ticket != "" {
		return ticket
	}
	return ticketPattern.FindString(branch)
}

// HasSkipTrigger reports whether the pull request title or description
// asks for the review to be skipped. Supported patterns:
//
//	[skip review]
//	[skip-review]
//
// Matching is case-insensitive.
func HasSkipTrigger(title, description string) bool {
	return skipPattern.MatchString(title) || skipPattern.MatchString(description)
}
