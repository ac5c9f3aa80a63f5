// Package slack provides a Slack bot integration for FlowStudio using Socket
// Mode.
//
// Socket Mode connects to Slack via WebSocket -- no public URL needed.
// Each thread the bot is mentioned in is one automation: the first mention
// names it, every later mention is a turn of the design conversation.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
)

// Studio is the part of the studio service the bot needs.
type Studio interface {
	CreateAutomation(ctx context.Context, name string) (*store.Automation, error)
	Converse(ctx context.Context, automationID, content string) (*studio.Turn, error)
}

// Bot is the Slack Socket Mode bot for FlowStudio.
type Bot struct {
	api          *slack.Client
	socketClient *socketmode.Client
	studio       Studio
	log          *zap.Logger

	mu      sync.Mutex
	threads map[string]string // channel/thread_ts -> automation ID
}

// NewBot creates a new Slack Socket Mode bot.
func NewBot(botToken, appToken string, st Studio, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socketClient := socketmode.New(
		api,
		socketmode.OptionLog(zap.NewStdLog(logger.Named("slack-socketmode"))),
	)

	return &Bot{
		api:          api,
		socketClient: socketClient,
		studio:       st,
		log:          logger,
		threads:      make(map[string]string),
	}
}

// Run connects to Slack via Socket Mode and processes events.
// It blocks until the context is canceled or a fatal error occurs.
func (b *Bot) Run(ctx context.Context) error {
	go b.eventLoop(ctx)
	b.log.Info("Slack bot connecting via Socket Mode")
	return b.socketClient.RunContext(ctx)
}

func (b *Bot) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socketClient.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.log.Debug("Slack: connecting")
	case socketmode.EventTypeConnected:
		b.log.Info("Slack: connected")
	case socketmode.EventTypeConnectionError:
		b.log.Warn("Slack: connection error, will retry")
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		// Slack requires an ack within 3 seconds.
		b.socketClient.Ack(*evt.Request)

		if eventsAPIEvent.Type == slackevents.CallbackEvent {
			if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
				go b.handleMention(ctx, ev)
			}
		}
	case socketmode.EventTypeInteractive:
		b.socketClient.Ack(*evt.Request)
	}
}

func (b *Bot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	text := stripMention(ev.Text)

	threadTS := ev.TimeStamp
	if ev.ThreadTimeStamp != "" {
		threadTS = ev.ThreadTimeStamp
	}

	if text == "" {
		b.postThread(ev.Channel, threadTS,
			"Tell me about the process you want to automate. Example:\n`@flowstudio When a vendor emails an invoice, we log it in Xero and ask finance to approve it`")
		return
	}

	automationID, created, err := b.automationFor(ctx, threadKey(ev.Channel, threadTS), text)
	if err != nil {
		b.log.Error("Slack: creating automation", zap.Error(err))
		b.postThread(ev.Channel, threadTS, fmt.Sprintf(":x: Failed to start an automation: %s", err))
		return
	}
	if created {
		b.postThread(ev.Channel, threadTS,
			fmt.Sprintf("Automation `%s` created. I'll keep this thread's blueprint up to date.", automationID))
	}

	turn, err := b.studio.Converse(ctx, automationID, text)
	var transport *copilot.TransportError
	switch {
	case errors.As(err, &transport):
		b.postThread(ev.Channel, threadTS, ":warning: The copilot is unavailable right now. Please try again.")
		return
	case err != nil:
		b.log.Error("Slack: copilot turn", zap.String("automation", automationID), zap.Error(err))
		b.postThread(ev.Channel, threadTS, fmt.Sprintf(":x: %s", err))
		return
	}

	b.postTurn(ev.Channel, threadTS, turn)
}

// automationFor returns the automation bound to a thread, creating one named
// after the first message when the thread is new.
func (b *Bot) automationFor(ctx context.Context, key, firstMessage string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.threads[key]; ok {
		return id, false, nil
	}
	a, err := b.studio.CreateAutomation(ctx, blueprint.Truncate(firstMessage, 60))
	if err != nil {
		return "", false, err
	}
	b.threads[key] = a.ID
	return a.ID, true, nil
}

func (b *Bot) postTurn(channel, threadTS string, turn *studio.Turn) {
	_, _, err := b.api.PostMessage(channel,
		slack.MsgOptionBlocks(turnBlocks(turn)...),
		slack.MsgOptionText(turn.Result.AssistantDisplayText, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.log.Warn("Slack: failed to post turn", zap.Error(err))
		b.postThread(channel, threadTS, turn.Result.AssistantDisplayText)
	}
}

// turnBlocks renders a turn as Block Kit: thinking steps as context, the
// reply as a section and a footer with phase and blueprint version.
func turnBlocks(turn *studio.Turn) []slack.Block {
	var blocks []slack.Block

	if len(turn.Result.ThinkingSteps) > 0 {
		elements := make([]slack.MixedElement, 0, len(turn.Result.ThinkingSteps))
		for _, step := range turn.Result.ThinkingSteps {
			elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType, ":thought_balloon: "+step, false, false))
		}
		blocks = append(blocks, slack.NewContextBlock("", elements...))
	}

	reply := slack.NewTextBlockObject(slack.MarkdownType, turn.Result.AssistantDisplayText, false, false)
	blocks = append(blocks, slack.NewSectionBlock(reply, nil, nil))

	footer := fmt.Sprintf("Phase `%s` | Blueprint v%d | %d steps",
		turn.Result.ConversationPhase, turn.Version, len(turn.Blueprint.Steps))
	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, footer, false, false)),
	)
	return blocks
}

func (b *Bot) postThread(channel, threadTS, text string) {
	_, _, err := b.api.PostMessage(channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.log.Warn("Slack: failed to post message", zap.String("channel", channel), zap.Error(err))
	}
}

// stripMention removes the leading bot mention (<@U12345>) from text.
func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = text[idx+1:]
		}
	}
	return strings.TrimSpace(text)
}

func threadKey(channel, threadTS string) string {
	return channel + "/" + threadTS
}
