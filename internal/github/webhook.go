package github

import (
	"fmt"
	"net/http"
	"strings"

	gogh "github.com/google/go-github/v68/github"
)

// ReplyMarker tags comments FlowStudio posts so their webhooks are ignored.
const ReplyMarker = "<!-- flowstudio -->"

// CommentEvent is a new comment on a handoff issue.
type CommentEvent struct {
	// Repo is the full repository name ("owner/repo").
	Repo string

	// IssueNumber is the number of the commented issue.
	IssueNumber int

	// Body is the text of the comment.
	Body string

	// User is the GitHub login of the commenter.
	User string

	// CommentID is the GitHub ID of the comment.
	CommentID int64
}

// ParseWebhook validates and parses a GitHub webhook request. If secret is
// non-empty the X-Hub-Signature-256 header must match the body.
//
// Only newly created issue_comment events on plain issues are returned; pull
// request comments, bot comments and FlowStudio's own replies yield nil.
func ParseWebhook(r *http.Request, secret string) (*CommentEvent, error) {
	payload, err := gogh.ValidatePayload(r, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("validating webhook: %w", err)
	}

	if gogh.WebHookType(r) != "issue_comment" {
		return nil, nil
	}
	raw, err := gogh.ParseWebHook("issue_comment", payload)
	if err != nil {
		return nil, fmt.Errorf("parsing issue_comment payload: %w", err)
	}
	ev, ok := raw.(*gogh.IssueCommentEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", raw)
	}

	if ev.GetAction() != "created" || ev.GetIssue().IsPullRequest() {
		return nil, nil
	}
	comment := ev.GetComment()
	if comment.GetUser().GetType() == "Bot" || strings.Contains(comment.GetBody(), ReplyMarker) {
		return nil, nil
	}
	if strings.TrimSpace(comment.GetBody()) == "" {
		return nil, nil
	}

	return &CommentEvent{
		Repo:        ev.GetRepo().GetFullName(),
		IssueNumber: ev.GetIssue().GetNumber(),
		Body:        comment.GetBody(),
		User:        comment.GetUser().GetLogin(),
		CommentID:   comment.GetID(),
	}, nil
}
