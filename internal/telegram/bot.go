// Package telegram provides a Telegram bot integration for FlowStudio.
//
// Uses long polling -- no public URL or webhook needed.
// Each chat designs one automation at a time: /new starts one, every other
// message is a turn of the conversation.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/copilot"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
)

// Studio is the part of the studio service the bot needs.
type Studio interface {
	CreateAutomation(ctx context.Context, name string) (*store.Automation, error)
	Converse(ctx context.Context, automationID, content string) (*studio.Turn, error)
}

// Bot is the Telegram bot for FlowStudio.
type Bot struct {
	api    *tgbotapi.BotAPI
	studio Studio
	log    *zap.Logger

	mu    sync.Mutex
	chats map[int64]string // chat ID -> active automation ID
}

// NewBot creates a new Telegram bot.
func NewBot(token string, st Studio, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:    api,
		studio: st,
		log:    logger,
		chats:  make(map[int64]string),
	}, nil
}

// Run starts the long-polling loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	b.log.Info("Telegram bot listening for messages")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	replyTo := msg.MessageID

	for _, reply := range b.respond(ctx, chatID, msg.Text) {
		b.sendReply(chatID, replyTo, reply)
	}
}

// respond computes the MarkdownV2 replies for one incoming message.
func (b *Bot) respond(ctx context.Context, chatID int64, text string) []string {
	text = strings.TrimSpace(text)
	command, arg := splitCommand(text)

	switch command {
	case "":
		if text == "" {
			return nil
		}
	case "/start", "/help":
		return []string{helpText}
	case "/new":
		a, err := b.studio.CreateAutomation(ctx, arg)
		if err != nil {
			b.log.Error("Telegram: creating automation", zap.Error(err))
			return []string{fmt.Sprintf("Failed to create automation: %s", escapeMarkdown(err.Error()))}
		}
		b.mu.Lock()
		b.chats[chatID] = a.ID
		b.mu.Unlock()
		return []string{fmt.Sprintf("Automation `%s` created\\. Describe the process you want to automate\\.", a.ID)}
	default:
		return []string{"Unknown command\\. Try /help\\."}
	}

	b.mu.Lock()
	automationID, ok := b.chats[chatID]
	b.mu.Unlock()
	if !ok {
		return []string{"Start an automation first with `/new <name>`\\."}
	}

	turn, err := b.studio.Converse(ctx, automationID, text)
	var transport *copilot.TransportError
	switch {
	case errors.As(err, &transport):
		return []string{"⚠ The copilot is unavailable right now\\. Please try again\\."}
	case err != nil:
		b.log.Error("Telegram: copilot turn", zap.String("automation", automationID), zap.Error(err))
		return []string{fmt.Sprintf("❌ %s", escapeMarkdown(err.Error()))}
	}
	return []string{formatTurn(turn)}
}

// formatTurn renders thinking steps in italics above the reply.
func formatTurn(turn *studio.Turn) string {
	var sb strings.Builder
	for _, step := range turn.Result.ThinkingSteps {
		fmt.Fprintf(&sb, "_%s_\n", escapeMarkdown(step))
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(escapeMarkdown(turn.Result.AssistantDisplayText))
	fmt.Fprintf(&sb, "\n\n`%s` \\| blueprint v%d", turn.Result.ConversationPhase, turn.Version)
	return sb.String()
}

// splitCommand separates a leading /command (with any @botname suffix) from
// its argument. Plain text yields an empty command.
func splitCommand(text string) (command, arg string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	command, arg, _ = strings.Cut(text, " ")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(arg)
}

const helpText = "" +
	"*FlowStudio* \\- Describe a process, get an automation blueprint\\.\n\n" +
	"*Usage:*\n" +
	"`/new Invoice intake` starts an automation\\.\n" +
	"Then just describe how the process works today\\. I'll ask questions and keep the blueprint up to date\\."

// sendReply sends a MarkdownV2 message as a reply.
func (b *Bot) sendReply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = "MarkdownV2"

	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("Telegram: failed to send message", zap.Error(err))
		// Retry without markdown in case of parse errors.
		msg.ParseMode = ""
		msg.Text = stripMarkdown(text)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("Telegram: failed to send plain message", zap.Error(err))
		}
	}
}

var markdownSpecials = []string{
	"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!",
}

var (
	markdownEscaper   = newReplacer(func(c string) (string, string) { return c, "\\" + c })
	markdownUnescaper = newReplacer(func(c string) (string, string) { return "\\" + c, c })
)

func newReplacer(pair func(string) (string, string)) *strings.Replacer {
	args := make([]string, 0, 2*len(markdownSpecials))
	for _, c := range markdownSpecials {
		from, to := pair(c)
		args = append(args, from, to)
	}
	return strings.NewReplacer(args...)
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// stripMarkdown removes MarkdownV2 escape sequences for plain text fallback.
func stripMarkdown(s string) string {
	return markdownUnescaper.Replace(s)
}
