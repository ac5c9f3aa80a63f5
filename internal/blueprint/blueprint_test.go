package blueprint

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewHasAllSections(t *testing.T) {
	bp := New(time.Now())
	assert.Equal(t, StatusDraft, bp.Status)
	assert.Len(t, bp.Sections, len(SectionKeys))
	for _, k := range SectionKeys {
		_, ok := bp.Sections[k]
		assert.True(t, ok, "missing section %s", k)
	}
	assert.NotNil(t, bp.Steps)
}

func TestUnmarshalRestoresSectionKeys(t *testing.T) {
	raw := `{"status":"ReadyForQuote","summary":"s","sections":{"systems":"Xero","bogus":"x"}}`
	var bp Blueprint
	require.NoError(t, json.Unmarshal([]byte(raw), &bp))

	assert.Equal(t, StatusReadyForQuote, bp.Status)
	assert.Len(t, bp.Sections, 8)
	assert.Equal(t, "Xero", bp.Sections[SectionSystems])
	_, ok := bp.Sections["bogus"]
	assert.False(t, ok)
	assert.NotNil(t, bp.Steps)
}

func TestSectionsBlank(t *testing.T) {
	s := Sections{SectionExceptions: "  \n\t", SectionSystems: "Slack"}
	assert.True(t, s.Blank(SectionExceptions))
	assert.True(t, s.Blank(SectionHumanTouchpoints))
	assert.False(t, s.Blank(SectionSystems))
}

func TestSystemsDedupFirstSeen(t *testing.T) {
	bp := &Blueprint{Steps: []Step{
		{ID: "a", SystemsInvolved: []string{"HubSpot", "Slack"}},
		{ID: "b", SystemsInvolved: []string{"Slack", " ", "Xero"}},
	}}
	if diff := cmp.Diff([]string{"HubSpot", "Slack", "Xero"}, bp.Systems()); diff != "" {
		t.Fatalf("systems mismatch (-want +got):\n%s", diff)
	}
	var nilBP *Blueprint
	assert.Nil(t, nilBP.Systems())
}

func TestUpdatesMeaningful(t *testing.T) {
	var nilUpdates *Updates
	assert.False(t, nilUpdates.Meaningful())
	assert.False(t, (&Updates{}).Meaningful())
	assert.False(t, (&Updates{Summary: "   ", Sections: map[SectionKey]string{SectionSystems: " "}}).Meaningful())
	assert.True(t, (&Updates{Summary: "x"}).Meaningful())
	assert.True(t, (&Updates{Steps: []Step{{ID: "a"}}}).Meaningful())
	assert.True(t, (&Updates{Sections: map[SectionKey]string{SectionSystems: "Slack"}}).Meaningful())
	assert.True(t, (&Updates{Assumptions: []string{"monthly cadence"}}).Meaningful())
}

func TestNormalizeDropsSelfDependencyAndUnknownSections(t *testing.T) {
	u := &Updates{
		Steps: []Step{
			{ID: "a"},
			{ID: "b", DependsOnIDs: []string{"b", "a"}},
		},
		Sections: map[SectionKey]string{SectionSystems: "Slack", "nope": "x"},
	}
	u.Normalize()

	assert.Equal(t, []string{"a"}, u.Steps[1].DependsOnIDs)
	assert.Equal(t, map[SectionKey]string{SectionSystems: "Slack"}, u.Sections)
}

func TestApplyMergesPatch(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	bp := New(t0)
	bp.Summary = "old"
	bp.Sections[SectionSystems] = "Gmail"
	bp.Steps = []Step{{ID: "old", Title: "Old", Type: StepTrigger}}

	got := Apply(bp, &Updates{
		Steps:    []Step{{ID: "new", Title: "New", Type: StepTrigger}},
		Sections: map[SectionKey]string{SectionExceptions: "late invoices"},
	}, t1)

	assert.Equal(t, "old", got.Summary)
	assert.Equal(t, "Gmail", got.Sections[SectionSystems])
	assert.Equal(t, "late invoices", got.Sections[SectionExceptions])
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "new", got.Steps[0].ID)
	assert.Equal(t, t1, got.UpdatedAt)

	// Original is untouched.
	assert.Equal(t, "old", bp.Steps[0].ID)
	assert.Equal(t, "", bp.Sections[SectionExceptions])
}

func TestApplyNilPatchKeepsSteps(t *testing.T) {
	bp := New(time.Now())
	bp.Steps = []Step{{ID: "a"}}
	got := Apply(bp, nil, time.Now())
	assert.Len(t, got.Steps, 1)

	got = Apply(bp, &Updates{Summary: "new summary"}, time.Now())
	assert.Equal(t, "new summary", got.Summary)
	assert.Len(t, got.Steps, 1)
}

func TestMessageHelpers(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply 2"},
	}
	assert.Equal(t, 2, CountRole(msgs, RoleUser))
	assert.Equal(t, "second", LatestContent(msgs, RoleUser))
	assert.Equal(t, "", LatestContent(nil, RoleUser))
}

func TestMarshalYAML(t *testing.T) {
	bp := New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bp.Steps = []Step{{ID: "auto_1_x", Title: "X", Type: StepTrigger}}
	out, err := MarshalYAML(bp)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "auto_1_x"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "Draft", decoded["status"])

	_, err = MarshalYAML(nil)
	assert.Error(t, err)
}

func TestTruncateRuneSafe(t *testing.T) {
	assert.Equal(t, "你好世...", Truncate("你好世界hello", 6))
	assert.Equal(t, "short", Truncate("short", 60))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
