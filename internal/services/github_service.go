package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alimgiray/champions/internal/models"
	"github.com/alimgiray/champions/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const pushEventType = "PushEvent"

var (
	// ErrProfileNotFound is returned when a profile lookup does not succeed
	ErrProfileNotFound = errors.New("profile not found")
	// ErrSearchForbidden is returned when the search endpoint answers 403
	ErrSearchForbidden = errors.New("search forbidden")
)

// SearchError carries the status of a failed, non-403 search request
type SearchError struct {
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("search request failed: %v", e.Err)
	}
	return fmt.Sprintf("search request failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// GitHubService talks to the GitHub REST API
type GitHubService struct {
	client         *github.Client
	eventsPageSize int
	activityWindow time.Duration
	now            func() time.Time
}

// NewGitHubService creates a client for apiURL. An empty token makes
// unauthenticated requests.
func NewGitHubService(apiURL, token string, eventsPageSize, activityWindowDays int) (*GitHubService, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		baseURL, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
		client.BaseURL = baseURL
	}

	if eventsPageSize <= 0 {
		eventsPageSize = 100
	}
	if activityWindowDays <= 0 {
		activityWindowDays = 30
	}

	return &GitHubService{
		client:         client,
		eventsPageSize: eventsPageSize,
		activityWindow: time.Duration(activityWindowDays) * 24 * time.Hour,
		now:            time.Now,
	}, nil
}

// BuildSearchQuery restricts terms to user accounts with more than
// minRepos public repositories
func BuildSearchQuery(terms string, minRepos int) string {
	return fmt.Sprintf("%s repos:>%d type:user", strings.TrimSpace(terms), minRepos)
}

// CheckQuota returns the remaining search quota and when it resets
func (s *GitHubService) CheckQuota(ctx context.Context) (int, time.Time, error) {
	limits, _, err := s.client.RateLimits(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if limits.Search == nil {
		return 0, time.Time{}, fmt.Errorf("rate limit response has no search resource")
	}
	return limits.Search.Remaining, limits.Search.Reset.Time, nil
}

// SearchPage is one page of user search results. Items counts every
// result the API returned, including ones without a usable login, so an
// empty Logins slice alone does not mean the results ran out.
type SearchPage struct {
	Logins []string
	Items  int
}

// SearchUsers returns one page of user search results
func (s *GitHubService) SearchUsers(ctx context.Context, query string, page, perPage int) (*SearchPage, error) {
	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}

	result, resp, err := s.client.Search.Users(ctx, query, opts)
	if err != nil {
		status := statusCode(resp)
		if status == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %v", ErrSearchForbidden, err)
		}
		return nil, &SearchError{StatusCode: status, Err: err}
	}

	searchPage := &SearchPage{
		Logins: make([]string, 0, len(result.Users)),
		Items:  len(result.Users),
	}
	for _, user := range result.Users {
		if login := user.GetLogin(); login != "" {
			searchPage.Logins = append(searchPage.Logins, login)
		}
	}

	if dropped := searchPage.Items - len(searchPage.Logins); dropped > 0 {
		logger.WithFields(logrus.Fields{
			"page":    page,
			"dropped": dropped,
		}).Warn("Search results without a login were skipped")
	}
	return searchPage, nil
}

// GetProfile fetches a user's full profile
func (s *GitHubService) GetProfile(ctx context.Context, login string) (*models.Profile, error) {
	user, resp, err := s.client.Users.Get(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (status %d): %v", ErrProfileNotFound, login, statusCode(resp), err)
	}

	return &models.Profile{
		Login:       user.GetLogin(),
		Company:     user.GetCompany(),
		Bio:         user.GetBio(),
		Location:    user.GetLocation(),
		Followers:   user.GetFollowers(),
		PublicRepos: user.GetPublicRepos(),
		HTMLURL:     user.GetHTMLURL(),
	}, nil
}

// GetRecentCommitCount counts push events inside the activity window on
// the first page of the user's event feed. Failures count as no activity.
func (s *GitHubService) GetRecentCommitCount(ctx context.Context, login string) int {
	events, resp, err := s.client.Activity.ListEventsPerformedByUser(ctx, login, false, &github.ListOptions{
		PerPage: s.eventsPageSize,
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"login":  login,
			"status": statusCode(resp),
		}).WithError(err).Warn("Failed to fetch events, counting no recent activity")
		return 0
	}

	return countRecentPushes(events, s.now().UTC().Add(-s.activityWindow))
}

// countRecentPushes counts push events created at or after cutoff
func countRecentPushes(events []*github.Event, cutoff time.Time) int {
	count := 0
	for _, event := range events {
		if event.GetType() != pushEventType || event.CreatedAt == nil {
			continue
		}
		if !event.CreatedAt.Time.Before(cutoff) {
			count++
		}
	}
	return count
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
