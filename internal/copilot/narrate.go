package copilot

import (
	"regexp"
	"strings"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

const maxNarratedSystems = 2

var approvalCue = regexp.MustCompile(`(?i)approv|[$€£¥]`)

// Narrate returns two or three short status labels describing what the
// copilot is working on, for progressive-disclosure UI.
func Narrate(phase Phase, latestUserMessage string, bp *blueprint.Blueprint, keywords []SystemKeyword) []string {
	systems := DetectSystems(latestUserMessage, keywords)
	if len(systems) == 0 {
		systems = bp.Systems()
		if len(systems) > maxNarratedSystems {
			systems = systems[:maxNarratedSystems]
		}
	}
	target := systemsPhrase(systems)

	switch phase {
	case PhaseFlow:
		return []string{
			"Mapping the trigger and first steps",
			"Sequencing actions across " + target,
			"Checking the flow for gaps",
		}
	case PhaseDetails:
		if approvalCue.MatchString(latestUserMessage) {
			return []string{
				"Reviewing approval rules and thresholds",
				"Placing human sign-off in the flow",
				"Capturing exception paths for " + target,
			}
		}
		return []string{
			"Capturing exceptions and edge cases",
			"Detailing the data needed from " + target,
		}
	case PhaseValidation:
		return []string{
			"Validating the end-to-end flow",
			"Cross-checking success criteria against " + target,
		}
	default:
		return []string{
			"Understanding your process",
			"Noting the systems involved: " + target,
			"Preparing clarifying questions",
		}
	}
}

// DetectSystems returns up to two canonical system names mentioned in text,
// in keyword-table order.
func DetectSystems(text string, keywords []SystemKeyword) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, k := range keywords {
		if seen[k.Name] || !k.Matches(text) {
			continue
		}
		seen[k.Name] = true
		out = append(out, k.Name)
		if len(out) == maxNarratedSystems {
			break
		}
	}
	return out
}

func systemsPhrase(systems []string) string {
	switch len(systems) {
	case 0:
		return "your systems"
	case 1:
		return systems[0]
	default:
		return systems[0] + " and " + systems[1]
	}
}
