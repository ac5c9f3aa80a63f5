package copilot

import "github.com/jxucoder/flowstudio/internal/blueprint"

// Phase describes how far a design conversation has progressed.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseFlow       Phase = "flow"
	PhaseDetails    Phase = "details"
	PhaseValidation Phase = "validation"
)

// Classify returns the conversation phase. The first matching rule wins.
func Classify(bp *blueprint.Blueprint, messages []blueprint.Message) Phase {
	var (
		steps    int
		sections blueprint.Sections
	)
	if bp != nil {
		steps = len(bp.Steps)
		sections = bp.Sections
	}
	userMessages := blueprint.CountRole(messages, blueprint.RoleUser)

	switch {
	case userMessages <= 2 && steps == 0:
		return PhaseDiscovery
	case steps < 3:
		return PhaseFlow
	case steps < 7 && sections.Blank(blueprint.SectionBusinessObjectives):
		return PhaseFlow
	case sections.Blank(blueprint.SectionExceptions) || sections.Blank(blueprint.SectionHumanTouchpoints):
		return PhaseDetails
	default:
		return PhaseValidation
	}
}
