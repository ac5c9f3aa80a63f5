package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

func signedRequest(t *testing.T, event, body, secret string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-GitHub-Event", event)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	r.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return r
}

func commentPayload(action, body, userType string, pullRequest bool) string {
	pr := ""
	if pullRequest {
		pr = `,"pull_request":{"url":"https://api.github.com/repos/acme/builds/pulls/7"}`
	}
	return `{"action":"` + action + `",` +
		`"issue":{"number":7` + pr + `},` +
		`"comment":{"id":99,"body":"` + body + `","user":{"login":"dana","type":"` + userType + `"}},` +
		`"repository":{"full_name":"acme/builds"}}`
}

func TestParseWebhookIssueComment(t *testing.T) {
	r := signedRequest(t, "issue_comment", commentPayload("created", "Approvals over 10k go to the CFO.", "User", false), testSecret)

	ev, err := ParseWebhook(r, testSecret)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, &CommentEvent{
		Repo:        "acme/builds",
		IssueNumber: 7,
		Body:        "Approvals over 10k go to the CFO.",
		User:        "dana",
		CommentID:   99,
	}, ev)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	r := signedRequest(t, "issue_comment", commentPayload("created", "hi", "User", false), "wrong")

	ev, err := ParseWebhook(r, testSecret)
	assert.Error(t, err)
	assert.Nil(t, ev)
}

func TestParseWebhookIgnoredEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
		body  string
	}{
		{"other event type", "push", `{"ref":"refs/heads/main"}`},
		{"edited comment", "issue_comment", commentPayload("edited", "hi", "User", false)},
		{"pull request comment", "issue_comment", commentPayload("created", "hi", "User", true)},
		{"bot comment", "issue_comment", commentPayload("created", "hi", "Bot", false)},
		{"own reply", "issue_comment", commentPayload("created", "Noted. "+ReplyMarker, "User", false)},
		{"blank comment", "issue_comment", commentPayload("created", "  ", "User", false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhook(signedRequest(t, tt.event, tt.body, testSecret), testSecret)
			require.NoError(t, err)
			assert.Nil(t, ev)
		})
	}
}
