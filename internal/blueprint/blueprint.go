// Package blueprint defines the automation blueprint document and the patch
// type the copilot proposes against it. It has zero dependencies on other
// FlowStudio packages.
package blueprint

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a blueprint.
type Status string

const (
	StatusDraft         Status = "Draft"
	StatusReadyForQuote Status = "ReadyForQuote"
	StatusReadyToBuild  Status = "ReadyToBuild"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReadyForQuote, StatusReadyToBuild:
		return true
	}
	return false
}

// StepType classifies a node of the step graph.
type StepType string

const (
	StepTrigger StepType = "Trigger"
	StepAction  StepType = "Action"
	StepLogic   StepType = "Logic"
	StepHuman   StepType = "Human"
)

// SectionKey names one of the fixed narrative sections.
type SectionKey string

const (
	SectionBusinessRequirements SectionKey = "business_requirements"
	SectionBusinessObjectives   SectionKey = "business_objectives"
	SectionSuccessCriteria      SectionKey = "success_criteria"
	SectionSystems              SectionKey = "systems"
	SectionDataNeeds            SectionKey = "data_needs"
	SectionExceptions           SectionKey = "exceptions"
	SectionHumanTouchpoints     SectionKey = "human_touchpoints"
	SectionFlowComplete         SectionKey = "flow_complete"
)

// SectionKeys lists every section in display order.
var SectionKeys = []SectionKey{
	SectionBusinessRequirements,
	SectionBusinessObjectives,
	SectionSuccessCriteria,
	SectionSystems,
	SectionDataNeeds,
	SectionExceptions,
	SectionHumanTouchpoints,
	SectionFlowComplete,
}

// IsSectionKey reports whether k is one of the fixed section keys.
func IsSectionKey(k SectionKey) bool {
	for _, key := range SectionKeys {
		if key == k {
			return true
		}
	}
	return false
}

// Sections maps every fixed section key to its free text.
type Sections map[SectionKey]string

// Blank reports whether the section has no non-whitespace content.
func (s Sections) Blank(k SectionKey) bool {
	return strings.TrimSpace(s[k]) == ""
}

// Step is one node of the blueprint's workflow graph.
type Step struct {
	ID              string   `json:"id" yaml:"id"`
	Title           string   `json:"title" yaml:"title"`
	Type            StepType `json:"type" yaml:"type"`
	Summary         string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	SystemsInvolved []string `json:"systemsInvolved,omitempty" yaml:"systemsInvolved,omitempty"`
	Inputs          []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs         []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	DependsOnIDs    []string `json:"dependsOnIds,omitempty" yaml:"dependsOnIds,omitempty"`
}

// Blueprint is the structured design document for one automation version.
type Blueprint struct {
	Status    Status    `json:"status" yaml:"status"`
	Summary   string    `json:"summary" yaml:"summary"`
	Sections  Sections  `json:"sections" yaml:"sections"`
	Steps     []Step    `json:"steps" yaml:"steps"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// New returns an empty draft blueprint with all sections present.
func New(now time.Time) *Blueprint {
	return &Blueprint{
		Status:    StatusDraft,
		Sections:  normalizeSections(nil),
		Steps:     []Step{},
		UpdatedAt: now,
	}
}

// UnmarshalJSON decodes a blueprint and restores the fixed section key set.
func (b *Blueprint) UnmarshalJSON(data []byte) error {
	type plain Blueprint
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Blueprint(p)
	b.Sections = normalizeSections(b.Sections)
	if b.Status == "" {
		b.Status = StatusDraft
	}
	if b.Steps == nil {
		b.Steps = []Step{}
	}
	return nil
}

// Systems returns the systems recorded across all steps, deduplicated in
// first-seen order.
func (b *Blueprint) Systems() []string {
	if b == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, step := range b.Steps {
		for _, sys := range step.SystemsInvolved {
			sys = strings.TrimSpace(sys)
			if sys == "" || seen[sys] {
				continue
			}
			seen[sys] = true
			out = append(out, sys)
		}
	}
	return out
}

// normalizeSections returns a copy holding exactly the fixed keys.
func normalizeSections(in Sections) Sections {
	out := make(Sections, len(SectionKeys))
	for _, k := range SectionKeys {
		out[k] = in[k]
	}
	return out
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		r := []rune(s)
		if len(r) <= maxLen {
			return s
		}
		return string(r[:maxLen])
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
