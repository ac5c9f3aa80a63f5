package github

import (
	"fmt"
	"strings"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

var sectionTitles = map[blueprint.SectionKey]string{
	blueprint.SectionBusinessRequirements: "Business requirements",
	blueprint.SectionBusinessObjectives:   "Business objectives",
	blueprint.SectionSuccessCriteria:      "Success criteria",
	blueprint.SectionSystems:              "Systems",
	blueprint.SectionDataNeeds:            "Data needs",
	blueprint.SectionExceptions:           "Exceptions",
	blueprint.SectionHumanTouchpoints:     "Human touchpoints",
	blueprint.SectionFlowComplete:         "Flow complete",
}

// IssueTitle is the handoff issue title for an automation.
func IssueTitle(name string) string {
	return "Build automation: " + blueprint.Truncate(name, 72)
}

// IssueBody renders a blueprint as the markdown body of a handoff issue.
// Empty sections are skipped.
func IssueBody(automationID, name string, version int, bp *blueprint.Blueprint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", name)
	fmt.Fprintf(&sb, "Automation `%s` | blueprint v%d | status `%s`\n", automationID, version, bp.Status)
	if s := strings.TrimSpace(bp.Summary); s != "" {
		fmt.Fprintf(&sb, "\n%s\n", s)
	}

	for _, k := range blueprint.SectionKeys {
		if bp.Sections.Blank(k) {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n\n%s\n", sectionTitles[k], strings.TrimSpace(bp.Sections[k]))
	}

	if len(bp.Steps) > 0 {
		sb.WriteString("\n### Steps\n\n")
		sb.WriteString("| # | Step | Type | Systems | Depends on |\n")
		sb.WriteString("|---|------|------|---------|------------|\n")
		for i, step := range bp.Steps {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
				i+1, cell(step.Title), step.Type,
				cell(strings.Join(step.SystemsInvolved, ", ")),
				cell(strings.Join(step.DependsOnIDs, ", ")))
		}
	}

	sb.WriteString("\n---\n*Handed off from FlowStudio*\n")
	return sb.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
