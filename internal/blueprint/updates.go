package blueprint

import (
	"strings"
	"time"
)

// Updates is a patch proposed by the copilot. Nil fields are left untouched
// by Apply.
type Updates struct {
	Summary     string                `json:"summary,omitempty" yaml:"summary,omitempty"`
	Steps       []Step                `json:"steps,omitempty" yaml:"steps,omitempty"`
	Sections    map[SectionKey]string `json:"sections,omitempty" yaml:"sections,omitempty"`
	Assumptions []string              `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
}

// Meaningful reports whether the patch carries at least one non-empty field.
func (u *Updates) Meaningful() bool {
	if u == nil {
		return false
	}
	if strings.TrimSpace(u.Summary) != "" || len(u.Steps) > 0 || len(u.Assumptions) > 0 {
		return true
	}
	for _, v := range u.Sections {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Normalize drops unknown section keys and self-referencing dependencies.
func (u *Updates) Normalize() {
	if u == nil {
		return
	}
	for k := range u.Sections {
		if !IsSectionKey(k) {
			delete(u.Sections, k)
		}
	}
	for i := range u.Steps {
		step := &u.Steps[i]
		if len(step.DependsOnIDs) == 0 {
			continue
		}
		deps := step.DependsOnIDs[:0]
		for _, dep := range step.DependsOnIDs {
			if dep != step.ID {
				deps = append(deps, dep)
			}
		}
		step.DependsOnIDs = deps
	}
}

// Apply merges a patch into a copy of bp. Steps are replaced wholesale when
// present, sections merge key by key and a non-blank summary replaces the old
// one. Assumptions are not part of the document and are ignored here.
func Apply(bp *Blueprint, u *Updates, now time.Time) *Blueprint {
	out := New(now)
	if bp != nil {
		out.Status = bp.Status
		out.Summary = bp.Summary
		for k, v := range bp.Sections {
			out.Sections[k] = v
		}
		out.Steps = append([]Step{}, bp.Steps...)
	}
	if u == nil {
		return out
	}
	if strings.TrimSpace(u.Summary) != "" {
		out.Summary = u.Summary
	}
	if u.Steps != nil {
		out.Steps = append([]Step{}, u.Steps...)
	}
	for k, v := range u.Sections {
		if IsSectionKey(k) {
			out.Sections[k] = v
		}
	}
	return out
}
