package copilot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

// PromptInput is what a PromptBuilder needs to render the system prompt.
type PromptInput struct {
	AutomationName string
	Phase          Phase
	Blueprint      *blueprint.Blueprint
}

// PromptBuilder renders the system prompt for one copilot turn.
type PromptBuilder interface {
	SystemPrompt(in PromptInput) string
}

// DefaultPrompts is the built-in PromptBuilder.
type DefaultPrompts struct{}

// SystemPrompt implements PromptBuilder.
func (DefaultPrompts) SystemPrompt(in PromptInput) string {
	name := strings.TrimSpace(in.AutomationName)
	if name == "" {
		name = "Untitled automation"
	}

	guidance, ok := phaseGuidance[in.Phase]
	if !ok {
		guidance = phaseGuidance[PhaseDiscovery]
	}

	current := "{}"
	if in.Blueprint != nil {
		if data, err := json.MarshalIndent(in.Blueprint, "", "  "); err == nil {
			current = string(data)
		}
	}

	return fmt.Sprintf(`%s

## Automation
%s

## Conversation phase: %s
%s

## Current blueprint
`+"```json"+`
%s
`+"```"+`

%s`, copilotSystemPrompt, name, in.Phase, guidance, current, updatesContract)
}

var phaseGuidance = map[Phase]string{
	PhaseDiscovery: `Learn what the process is for, who runs it today and which systems it touches.
Ask at most two focused questions. Do not propose steps until you understand the trigger.`,
	PhaseFlow: `Lay out the happy path as ordered steps: one Trigger, then Actions, Logic and
Human steps. Fill in business_objectives if the user has stated goals.`,
	PhaseDetails: `The flow exists. Dig into exceptions, approvals, data fields and hand-offs to
people. Fill in exceptions, human_touchpoints and data_needs.`,
	PhaseValidation: `The blueprint is nearly complete. Walk the user through it end to end, confirm
success_criteria, and set flow_complete once they agree.`,
}

const copilotSystemPrompt = `You are an automation design copilot. You help operations teams turn a
business process into a clear automation blueprint: a step graph plus eight
sections (business_requirements, business_objectives, success_criteria,
systems, data_needs, exceptions, human_touchpoints, flow_complete).

Be concise and concrete. Reply in plain prose first, then emit structured
changes so the canvas can update.`

const updatesContract = `## Output contract
When the blueprint should change, end your reply with one fenced block:

` + "```json" + `
blueprint_updates
{"summary": "...", "steps": [{"id": "slug", "title": "...", "type": "Trigger|Action|Logic|Human",
  "summary": "...", "systemsInvolved": [], "inputs": [], "outputs": [], "dependsOnIds": []}],
 "sections": {"business_objectives": "..."}, "assumptions": ["..."]}
` + "```" + `

Only include fields you are changing. "steps" replaces the whole list, so send
every step when you send any. Step ids must be stable slugs and a step must
never depend on itself. List anything you inferred rather than heard under
"assumptions".`
