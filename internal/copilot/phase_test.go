package copilot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

func blueprintWithSteps(n int) *blueprint.Blueprint {
	bp := blueprint.New(time.Now())
	for i := 0; i < n; i++ {
		bp.Steps = append(bp.Steps, blueprint.Step{ID: fmt.Sprintf("s%d", i), Type: blueprint.StepAction})
	}
	return bp
}

func userMessages(n int) []blueprint.Message {
	var msgs []blueprint.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			blueprint.Message{Role: blueprint.RoleUser, Content: "u"},
			blueprint.Message{Role: blueprint.RoleAssistant, Content: "a"},
		)
	}
	return msgs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		bp       *blueprint.Blueprint
		messages []blueprint.Message
		want     Phase
	}{
		{
			name:     "no steps, one user message",
			bp:       blueprintWithSteps(0),
			messages: userMessages(1),
			want:     PhaseDiscovery,
		},
		{
			name:     "no steps, second user message",
			bp:       blueprintWithSteps(0),
			messages: userMessages(2),
			want:     PhaseDiscovery,
		},
		{
			name:     "nil blueprint",
			bp:       nil,
			messages: nil,
			want:     PhaseDiscovery,
		},
		{
			name:     "no steps, third user message",
			bp:       blueprintWithSteps(0),
			messages: userMessages(3),
			want:     PhaseFlow,
		},
		{
			name:     "two steps",
			bp:       blueprintWithSteps(2),
			messages: userMessages(1),
			want:     PhaseFlow,
		},
		{
			name:     "three steps, objectives empty",
			bp:       blueprintWithSteps(3),
			messages: userMessages(4),
			want:     PhaseFlow,
		},
		{
			name: "three steps, objectives whitespace only",
			bp: func() *blueprint.Blueprint {
				bp := blueprintWithSteps(3)
				bp.Sections[blueprint.SectionBusinessObjectives] = " \n "
				return bp
			}(),
			messages: userMessages(4),
			want:     PhaseFlow,
		},
		{
			name: "five steps, objectives set, human touchpoints empty",
			bp: func() *blueprint.Blueprint {
				bp := blueprintWithSteps(5)
				bp.Sections[blueprint.SectionBusinessObjectives] = "cut close time"
				bp.Sections[blueprint.SectionExceptions] = "missing PO"
				return bp
			}(),
			messages: userMessages(4),
			want:     PhaseDetails,
		},
		{
			name: "seven steps, objectives set, exceptions empty",
			bp: func() *blueprint.Blueprint {
				bp := blueprintWithSteps(7)
				bp.Sections[blueprint.SectionBusinessObjectives] = "cut close time"
				return bp
			}(),
			messages: userMessages(6),
			want:     PhaseDetails,
		},
		{
			name: "seven steps, objectives empty still moves to details",
			bp:   blueprintWithSteps(7),
			want: PhaseDetails,
		},
		{
			name: "seven steps, everything set",
			bp: func() *blueprint.Blueprint {
				bp := blueprintWithSteps(7)
				bp.Sections[blueprint.SectionBusinessObjectives] = "cut close time"
				bp.Sections[blueprint.SectionExceptions] = "missing PO"
				bp.Sections[blueprint.SectionHumanTouchpoints] = "controller approves"
				return bp
			}(),
			messages: userMessages(6),
			want:     PhaseValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.bp, tt.messages))
		})
	}
}
