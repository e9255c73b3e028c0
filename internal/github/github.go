// Package github fetches pull request diffs and metadata for review.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// ErrSourceFetch wraps any failure talking to the hosting provider. A fetch
// failure is always surfaced; it is never treated as an empty diff.
var ErrSourceFetch = errors.New("fetching PR")

// PRRef identifies one pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

func (r PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

var prURLPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// ParsePRURL parses a GitHub PR URL like
// https://github.com/owner/repo/pull/123.
func ParsePRURL(prURL string) (PRRef, error) {
	m := prURLPattern.FindStringSubmatch(prURL)
	if m == nil {
		return PRRef{}, fmt.Errorf("invalid GitHub PR URL: %s", prURL)
	}
	number, err := strconv.Atoi(m[3])
	if err != nil {
		return PRRef{}, fmt.Errorf("invalid PR number in URL: %s", prURL)
	}
	return PRRef{Owner: m[1], Repo: m[2], Number: number}, nil
}

// Metadata is the PR context attached to a review.
type Metadata struct {
	Title      string
	Body       string
	Author     string
	BaseBranch string
	HeadBranch string
}

// Context renders the metadata as free-text review context.
func (m Metadata) Context() string {
	return fmt.Sprintf("PR: %s\nDescription: %s", m.Title, m.Body)
}

// Client fetches PR data from the GitHub API.
type Client struct {
	gh *gh.Client
}

// NewClient creates a Client. An empty token gives an unauthenticated client
// with the lower rate limits.
func NewClient(token string) *Client {
	if token == "" {
		return &Client{gh: gh.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: gh.NewClient(oauth2.NewClient(context.Background(), ts))}
}

// WithBaseURL points the client at a different API endpoint. Used by tests
// and GitHub Enterprise deployments.
func (c *Client) WithBaseURL(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

// FetchDiff returns the PR's raw unified diff.
func (c *Client) FetchDiff(ctx context.Context, ref PRRef) (string, error) {
	raw, _, err := c.gh.PullRequests.GetRaw(ctx, ref.Owner, ref.Repo, ref.Number, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrSourceFetch, ref, err)
	}
	return raw, nil
}

// FetchMetadata returns the PR's title, description, and branch info.
func (c *Client) FetchMetadata(ctx context.Context, ref PRRef) (Metadata, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w %s: %v", ErrSourceFetch, ref, err)
	}
	return Metadata{
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		Author:     pr.GetUser().GetLogin(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
	}, nil
}
