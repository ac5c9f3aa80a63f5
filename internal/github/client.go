// Package github provides GitHub API integration for build handoff: a
// blueprint that is ready to build becomes an issue in the delivery repo, and
// comments on that issue flow back into the automation's conversation.
package github

import (
	"context"
	"fmt"
	"strings"

	gogh "github.com/google/go-github/v68/github"
)

// Client wraps the GitHub API for FlowStudio operations.
type Client struct {
	gh *gogh.Client
}

// NewClient creates a GitHub client authenticated with the given token.
func NewClient(token string) *Client {
	return &Client{
		gh: gogh.NewClient(nil).WithAuthToken(token),
	}
}

// IssueOptions configures a new issue.
type IssueOptions struct {
	Repo   string // "owner/repo"
	Title  string
	Body   string
	Labels []string
}

// CreateIssue opens an issue and returns its URL and number.
func (c *Client) CreateIssue(ctx context.Context, opts IssueOptions) (string, int, error) {
	owner, repo, err := splitRepo(opts.Repo)
	if err != nil {
		return "", 0, err
	}

	req := &gogh.IssueRequest{
		Title: gogh.Ptr(opts.Title),
		Body:  gogh.Ptr(opts.Body),
	}
	if len(opts.Labels) > 0 {
		req.Labels = &opts.Labels
	}

	issue, _, err := c.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return "", 0, fmt.Errorf("creating issue: %w", err)
	}

	return issue.GetHTMLURL(), issue.GetNumber(), nil
}

// CreateComment posts a comment on an issue and returns its URL.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, name, number, &gogh.IssueComment{
		Body: gogh.Ptr(body),
	})
	if err != nil {
		return "", fmt.Errorf("creating comment: %w", err)
	}
	return comment.GetHTMLURL(), nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\"", fullName)
	}
	return parts[0], parts[1], nil
}
