package copilot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
	got      llm.Request
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	f.got = req
	return f.response, f.err
}

type fixedPrompt string

func (p fixedPrompt) SystemPrompt(in PromptInput) string {
	return fmt.Sprintf("%s|%s|%s", string(p), in.Phase, in.AutomationName)
}

func conversation(n int) []blueprint.Message {
	var msgs []blueprint.Message
	for i := 0; i < n; i++ {
		role := blueprint.RoleUser
		if i%2 == 1 {
			role = blueprint.RoleAssistant
		}
		msgs = append(msgs, blueprint.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	return msgs
}

func TestRunTrimsHistoryAndPassesSettings(t *testing.T) {
	fake := &fakeLLM{response: "Sounds good.\n```json\nblueprint_updates\n{\"summary\":\"AP intake\"}\n```"}
	settings := DefaultSettings()
	settings.Model = "test-model"
	settings.Temperature = 0.1
	settings.MaxTokens = 321
	c := New(fake, fixedPrompt("sys"), settings, zap.NewNop())

	msgs := conversation(11)
	res, err := c.Run(context.Background(), Request{
		Blueprint:      blueprint.New(time.Now()),
		Messages:       msgs,
		AutomationName: "AP",
	})
	require.NoError(t, err)

	require.Equal(t, 1, fake.calls)
	assert.Equal(t, "test-model", fake.got.Model)
	assert.Equal(t, 0.1, fake.got.Temperature)
	assert.Equal(t, 321, fake.got.MaxTokens)
	require.Len(t, fake.got.Messages, 9)
	assert.Equal(t, llm.Message{Role: "system", Content: "sys|flow|AP"}, fake.got.Messages[0])
	assert.Equal(t, "m3", fake.got.Messages[1].Content)
	assert.Equal(t, "m10", fake.got.Messages[8].Content)

	assert.Equal(t, PhaseFlow, res.ConversationPhase)
	assert.Equal(t, "Sounds good.", res.AssistantDisplayText)
	require.NotNil(t, res.BlueprintUpdates)
	assert.Equal(t, "AP intake", res.BlueprintUpdates.Summary)
	assert.False(t, res.UpdatesDerived)
	assert.Len(t, res.ThinkingSteps, 3)
}

func TestRunShortHistoryIsSentWhole(t *testing.T) {
	fake := &fakeLLM{response: "Got it."}
	c := New(fake, nil, Settings{}, nil)

	res, err := c.Run(context.Background(), Request{Messages: conversation(1)})
	require.NoError(t, err)
	assert.Len(t, fake.got.Messages, 2)
	assert.Equal(t, DefaultSettings().Model, fake.got.Model)
	assert.Equal(t, PhaseDiscovery, res.ConversationPhase)
	assert.Nil(t, res.BlueprintUpdates)
	assert.Equal(t, "Got it.", res.AssistantDisplayText)
}

func TestRunFallsBackToDerivedSteps(t *testing.T) {
	fake := &fakeLLM{response: "Here's the flow I heard:\n1. Invoice arrives in Gmail\n2. Extract the vendor\n3. Post the bill to Xero"}
	c := New(fake, nil, DefaultSettings(), zap.NewNop())

	res, err := c.Run(context.Background(), Request{
		Blueprint: blueprint.New(time.Now()),
		Messages:  []blueprint.Message{{Role: blueprint.RoleUser, Content: "We pay invoices from Gmail into Xero"}},
	})
	require.NoError(t, err)

	require.NotNil(t, res.BlueprintUpdates)
	require.Len(t, res.BlueprintUpdates.Steps, 3)
	assert.True(t, res.UpdatesDerived)
	assert.Equal(t, "auto_1_invoice-arrives-in-gmail", res.BlueprintUpdates.Steps[0].ID)
	assert.Equal(t, []string{"Understanding your process", "Noting the systems involved: Xero and Gmail", "Preparing clarifying questions"}, res.ThinkingSteps)
}

func TestRunEmptyPatchWithNothingToDerive(t *testing.T) {
	fake := &fakeLLM{response: "Sure.\n```json\nblueprint_updates {}\n```"}
	c := New(fake, nil, DefaultSettings(), zap.NewNop())

	res, err := c.Run(context.Background(), Request{Messages: conversation(1)})
	require.NoError(t, err)
	assert.Nil(t, res.BlueprintUpdates)
	assert.Equal(t, "Sure.", res.AssistantDisplayText)
}

func TestRunDefaultAckOnlyDerivesFromAck(t *testing.T) {
	fake := &fakeLLM{response: "```json\nblueprint_updates {\"sections\":{\"systems\":\"  \"}}\n```"}
	settings := DefaultSettings()
	settings.DefaultAck = "Done"
	c := New(fake, nil, settings, zap.NewNop())

	res, err := c.Run(context.Background(), Request{Messages: conversation(1)})
	require.NoError(t, err)
	assert.Equal(t, "Done", res.AssistantDisplayText)
	assert.Nil(t, res.BlueprintUpdates)
}

func TestRunTransportError(t *testing.T) {
	cause := &llm.APIError{Provider: "anthropic", StatusCode: 529, Body: "overloaded"}
	fake := &fakeLLM{err: cause}
	c := New(fake, nil, DefaultSettings(), zap.NewNop())

	res, err := c.Run(context.Background(), Request{Messages: conversation(1)})
	require.Error(t, err)
	assert.Nil(t, res)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 529, apiErr.StatusCode)
	assert.Equal(t, 1, fake.calls)
}

func TestRunDoesNotMutateRequest(t *testing.T) {
	fake := &fakeLLM{response: "1. First thing to do\n2. Second thing to do"}
	c := New(fake, nil, DefaultSettings(), zap.NewNop())

	bp := blueprint.New(time.Now())
	msgs := conversation(3)
	_, err := c.Run(context.Background(), Request{Blueprint: bp, Messages: msgs})
	require.NoError(t, err)
	assert.Empty(t, bp.Steps)
	assert.Len(t, msgs, 3)
}

func TestRunSingleSentenceStillDerivesOneStep(t *testing.T) {
	fake := &fakeLLM{response: "What triggers the process today?"}
	c := New(fake, nil, DefaultSettings(), zap.NewNop())

	res, err := c.Run(context.Background(), Request{Messages: conversation(1)})
	require.NoError(t, err)
	require.NotNil(t, res.BlueprintUpdates)
	require.Len(t, res.BlueprintUpdates.Steps, 1)
	assert.Equal(t, blueprint.StepTrigger, res.BlueprintUpdates.Steps[0].Type)
	assert.Equal(t, "auto_1_what-triggers-the-proces", res.BlueprintUpdates.Steps[0].ID)
}
