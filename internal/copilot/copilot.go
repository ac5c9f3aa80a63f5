// Package copilot turns a design conversation into blueprint patches.
//
// One Run is one copilot turn:
//  1. CLASSIFY - work out which phase the conversation is in
//  2. COMPLETE - send the phase-specific system prompt plus recent history to the model
//  3. PARSE    - split the reply into display prose and a structured patch
//  4. DERIVE   - if the patch is empty, derive steps heuristically from the prose
//  5. NARRATE  - label what the copilot is "thinking" for the UI
//
// Only step 2 does I/O. Everything else is pure, and a parse or derivation
// problem never fails the turn.
package copilot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/llm"
)

// TransportError means the completion call failed. The copilot does not retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("copilot completion failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Request is the snapshot a turn works on. It is never mutated.
type Request struct {
	Blueprint      *blueprint.Blueprint
	Messages       []blueprint.Message
	AutomationName string
}

// Result is everything the caller needs to render the turn and merge the patch.
// UpdatesDerived is set when BlueprintUpdates came from DeriveSteps rather
// than from a structured block in the reply.
type Result struct {
	AssistantDisplayText string             `json:"assistantDisplayText"`
	BlueprintUpdates     *blueprint.Updates `json:"blueprintUpdates"`
	UpdatesDerived       bool               `json:"updatesDerived"`
	ThinkingSteps        []string           `json:"thinkingSteps"`
	ConversationPhase    Phase              `json:"conversationPhase"`
}

// Copilot runs turns. It holds only immutable configuration and is safe for
// concurrent use.
type Copilot struct {
	llm      llm.Client
	prompts  PromptBuilder
	settings Settings
	log      *zap.Logger
}

// New creates a Copilot. A nil prompts uses DefaultPrompts and a nil logger
// discards output.
func New(client llm.Client, prompts PromptBuilder, settings Settings, logger *zap.Logger) *Copilot {
	if prompts == nil {
		prompts = DefaultPrompts{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Copilot{
		llm:      client,
		prompts:  prompts,
		settings: settings.withDefaults(),
		log:      logger,
	}
}

// Settings returns the effective settings.
func (c *Copilot) Settings() Settings {
	return c.settings
}

// Run executes one copilot turn. Only a completion failure is returned as an
// error, always as *TransportError.
func (c *Copilot) Run(ctx context.Context, req Request) (*Result, error) {
	phase := Classify(req.Blueprint, req.Messages)

	system := c.prompts.SystemPrompt(PromptInput{
		AutomationName: req.AutomationName,
		Phase:          phase,
		Blueprint:      req.Blueprint,
	})

	history := recentMessages(req.Messages, c.settings.ContextWindow)
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: string(blueprint.RoleSystem), Content: system})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	raw, err := c.llm.Complete(ctx, llm.Request{
		Model:       c.settings.Model,
		Messages:    messages,
		Temperature: c.settings.Temperature,
		MaxTokens:   c.settings.MaxTokens,
	})
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	parsed := ParseReply(raw, ParseOptions{DefaultAck: c.settings.DefaultAck, Logger: c.log})
	updates := parsed.Updates
	derived := false
	if !updates.Meaningful() {
		updates = nil
		if steps := DeriveSteps(parsed.DisplayText); steps != nil {
			updates = &blueprint.Updates{Steps: steps}
			derived = true
			c.log.Debug("derived fallback steps", zap.Int("steps", len(steps)))
		}
	}

	latest := blueprint.LatestContent(req.Messages, blueprint.RoleUser)

	c.log.Info("copilot turn complete",
		zap.String("phase", string(phase)),
		zap.Int("history", len(history)),
		zap.Bool("updates", updates != nil))

	return &Result{
		AssistantDisplayText: parsed.DisplayText,
		BlueprintUpdates:     updates,
		UpdatesDerived:       derived,
		ThinkingSteps:        Narrate(phase, latest, req.Blueprint, c.settings.Systems),
		ConversationPhase:    phase,
	}, nil
}

// recentMessages keeps the last n messages.
func recentMessages(messages []blueprint.Message, n int) []blueprint.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
