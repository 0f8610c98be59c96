package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/pace-bot/internal/coach"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
)

const historyLimit = 5

type Bot struct {
	api    *tgbotapi.BotAPI
	coach  *coach.Coach
	logger *zap.Logger
}

func New(token string, c *coach.Coach, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return &Bot{
		api:    api,
		coach:  c,
		logger: logger,
	}, nil
}

// SessionID maps a Telegram chat to its coaching session.
func SessionID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot shutting down")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	if _, err := b.api.Request(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send typing action",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}

	resp := b.coach.HandleTurn(ctx, models.ChatRequest{
		Situation: content,
		SessionID: SessionID(message.Chat.ID),
	})

	msg := tgbotapi.NewMessage(message.Chat.ID, resp.Response)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send coaching response",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID),
			zap.Bool("refused", resp.Refused))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "context":
		b.handleContext(message)
	case "history":
		b.handleHistory(ctx, message)
	case "reset":
		b.handleReset(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to PACE! 🤝
I help parents find calmer words for hard moments with their teens.

Describe what you observed in one or two sentences, for example:
"My son slammed his door when I asked about his phone."

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/context - Show what I remember about our conversation
/history - Show how your recent messages were handled
/reset - Forget this conversation and start over

I only coach parent-teen communication. I can't help with legal, medical or technical questions, or with monitoring someone secretly.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleContext(message *tgbotapi.Message) {
	sess, ok := b.coach.Sessions().Get(SessionID(message.Chat.ID))
	if !ok || sess.Len() == 0 {
		b.sendMessage(message.Chat.ID, "We haven't talked yet.")
		return
	}

	text := fmt.Sprintf("*What I remember:*\n%s\n\n_%d messages in memory_",
		escapeMarkdown(sess.DerivedContext()), sess.Len())
	b.sendMarkdown(message.Chat.ID, text)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	journal := b.coach.Journal()
	if journal == nil {
		b.sendMessage(message.Chat.ID, "History is not available.")
		return
	}

	records, err := journal.GetSessionTurns(ctx, SessionID(message.Chat.ID), historyLimit)
	if err != nil {
		b.logger.Error("Failed to get turn history",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your history.")
		return
	}

	if len(records) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}

	b.sendMarkdown(message.Chat.ID, formatHistory(records))
}

func (b *Bot) handleReset(message *tgbotapi.Message) {
	if b.coach.Sessions().Delete(SessionID(message.Chat.ID)) {
		b.logger.Info("Session reset", zap.Int64("chat_id", message.Chat.ID))
	}
	b.sendMessage(message.Chat.ID, "Done. I've forgotten our conversation.")
}

// formatHistory renders journal records, newest first, as MarkdownV2.
func formatHistory(records []*models.TurnRecord) string {
	response := "*Your recent messages:*\n\n"
	for _, rec := range records {
		response += fmt.Sprintf("*%s* %s\n",
			escapeMarkdown(string(rec.Outcome)),
			escapeMarkdown(rec.CreatedAt.Format("2006-01-02 15:04")))
		response += fmt.Sprintf("_%s_\n\n",
			escapeMarkdown(fmt.Sprintf("%s %.2f", rec.GuardLabel, rec.GuardConfidence)))
	}
	return response
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send markdown message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
