package copilot

import (
	"regexp"
	"strings"
)

// DefaultAck is shown when a reply carried nothing but structured data.
const DefaultAck = "I've updated the blueprint based on what you shared. Take a look at the canvas and let me know what to refine."

// DefaultContextWindow is how many of the most recent messages are sent to
// the model. Older history is dropped, not summarized.
const DefaultContextWindow = 8

// Settings holds every tunable of the copilot. It is built once (usually from
// config.Config) and passed into New.
type Settings struct {
	ContextWindow int
	DefaultAck    string

	Model       string
	Temperature float64
	MaxTokens   int

	// Systems is the ordered keyword table the narrator matches against the
	// latest user message.
	Systems []SystemKeyword
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		ContextWindow: DefaultContextWindow,
		DefaultAck:    DefaultAck,
		Model:         "claude-sonnet-4-20250514",
		Temperature:   0.3,
		MaxTokens:     1500,
		Systems:       DefaultSystemKeywords(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ContextWindow <= 0 {
		s.ContextWindow = d.ContextWindow
	}
	if strings.TrimSpace(s.DefaultAck) == "" {
		s.DefaultAck = d.DefaultAck
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.Systems == nil {
		s.Systems = d.Systems
	}
	return s
}

// SystemKeyword maps one or more literal terms to a canonical system name.
type SystemKeyword struct {
	Name    string
	pattern *regexp.Regexp
}

// Keyword builds a SystemKeyword matching any of terms as whole words,
// case-insensitively.
func Keyword(name string, terms ...string) SystemKeyword {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return SystemKeyword{
		Name:    name,
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Matches reports whether text mentions the keyword.
func (k SystemKeyword) Matches(text string) bool {
	return k.pattern != nil && k.pattern.MatchString(text)
}

// DefaultSystemKeywords covers the CRM, accounting, communication and
// productivity tools customers mention most, plus a generic email match.
func DefaultSystemKeywords() []SystemKeyword {
	return []SystemKeyword{
		Keyword("Salesforce", "salesforce", "sfdc"),
		Keyword("HubSpot", "hubspot"),
		Keyword("Pipedrive", "pipedrive"),
		Keyword("Zoho CRM", "zoho"),
		Keyword("QuickBooks", "quickbooks", "qbo"),
		Keyword("Xero", "xero"),
		Keyword("NetSuite", "netsuite"),
		Keyword("Stripe", "stripe"),
		Keyword("Slack", "slack"),
		Keyword("Microsoft Teams", "teams", "ms teams"),
		Keyword("Zendesk", "zendesk"),
		Keyword("Google Sheets", "google sheets", "gsheets", "spreadsheet"),
		Keyword("Excel", "excel"),
		Keyword("Airtable", "airtable"),
		Keyword("Notion", "notion"),
		Keyword("Jira", "jira"),
		Keyword("Asana", "asana"),
		Keyword("DocuSign", "docusign"),
		Keyword("Shopify", "shopify"),
		Keyword("Gmail", "gmail"),
		Keyword("Outlook", "outlook"),
		Keyword("Email", "email", "e-mail", "inbox"),
	}
}
