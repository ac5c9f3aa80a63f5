package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
)

type fakeStudio struct {
	names    []string
	turns    []string
	converse error
}

func (f *fakeStudio) CreateAutomation(_ context.Context, name string) (*store.Automation, error) {
	f.names = append(f.names, name)
	return &store.Automation{ID: "auto1234", Name: name}, nil
}

func (f *fakeStudio) Converse(_ context.Context, id, content string) (*studio.Turn, error) {
	if f.converse != nil {
		return nil, f.converse
	}
	f.turns = append(f.turns, id+":"+content)
	return &studio.Turn{
		Result: &copilot.Result{
			AssistantDisplayText: "Which system receives the invoice?",
			ThinkingSteps:        []string{"Understanding your process"},
			ConversationPhase:    copilot.PhaseDiscovery,
		},
		Blueprint: blueprint.New(time.Now()),
		Version:   1,
	}, nil
}

func newTestBot(fake *fakeStudio) *Bot {
	return &Bot{studio: fake, log: zap.NewNop(), chats: make(map[int64]string)}
}

func TestRespondRequiresAutomation(t *testing.T) {
	b := newTestBot(&fakeStudio{})
	got := b.respond(context.Background(), 1, "We pay vendors weekly")
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "/new")
}

func TestRespondNewThenConverse(t *testing.T) {
	fake := &fakeStudio{}
	b := newTestBot(fake)
	ctx := context.Background()

	got := b.respond(ctx, 1, "/new@flowstudio_bot Invoice intake")
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "auto1234")
	assert.Equal(t, []string{"Invoice intake"}, fake.names)

	got = b.respond(ctx, 1, "Invoices arrive by email.")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"auto1234:Invoices arrive by email."}, fake.turns)
	assert.Equal(t, "_Understanding your process_\n\nWhich system receives the invoice?\n\n`discovery` \\| blueprint v1", got[0])
}

func TestRespondTransportError(t *testing.T) {
	fake := &fakeStudio{converse: &copilot.TransportError{Err: errors.New("timeout")}}
	b := newTestBot(fake)
	b.chats[7] = "auto1234"

	got := b.respond(context.Background(), 7, "hello")
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "unavailable")
}

func TestRespondCommands(t *testing.T) {
	b := newTestBot(&fakeStudio{})
	assert.Equal(t, []string{helpText}, b.respond(context.Background(), 1, "/help"))
	assert.Contains(t, b.respond(context.Background(), 1, "/bogus")[0], "Unknown command")
	assert.Nil(t, b.respond(context.Background(), 1, "   "))
}

func TestSplitCommand(t *testing.T) {
	cmd, arg := splitCommand("/NEW  Payroll run ")
	assert.Equal(t, "/new", cmd)
	assert.Equal(t, "Payroll run", arg)

	cmd, arg = splitCommand("hello /new")
	assert.Empty(t, cmd)
	assert.Empty(t, arg)
}

func TestEscapeMarkdownRoundTrip(t *testing.T) {
	in := "Approve > $5,000 (finance_team)!"
	escaped := escapeMarkdown(in)
	assert.Equal(t, "Approve \\> $5,000 \\(finance\\_team\\)\\!", escaped)
	assert.Equal(t, in, stripMarkdown(escaped))
}
