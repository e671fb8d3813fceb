package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Relay публикует пропущенные нотификации и дайджесты в чат пользователя.
type Relay struct {
	bot    botSender
	chatID int64
}

// NewRelay создаёт релей поверх Telegram-бота.
func NewRelay(bot botSender, chatID int64) *Relay {
	return &Relay{bot: bot, chatID: chatID}
}

var _ domain.NotificationRelay = (*Relay)(nil)

// PostNotification отправляет пропущенную нотификацию: первая строка жирным,
// остальной текст как есть. ID репоста детерминирован, поэтому повторная
// доставка того же события даёт тот же заголовок.
func (r *Relay) PostNotification(ctx context.Context, repost domain.RepostedNotification) error {
	text := strings.TrimSpace(repost.Notification.ParsedText)
	if text == "" {
		return nil
	}

	first, rest, found := strings.Cut(text, "\n")
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(escapeHTML(first))
	b.WriteString("</b>")
	if found && rest != "" {
		b.WriteByte('\n')
		b.WriteString(escapeHTML(rest))
	}

	return r.send(ctx, b.String())
}

// PostSummary отправляет дайджест с заголовком окна сессии.
func (r *Relay) PostSummary(ctx context.Context, s domain.Summary) error {
	header := fmt.Sprintf(
		"<b>Дайджест за %s — %s</b>",
		formatTS(s.StartTimestamp),
		formatTS(s.EndTimestamp),
	)
	return r.send(ctx, header+"\n"+escapeHTML(s.Text))
}

func (r *Relay) send(ctx context.Context, text string) error {
	for _, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(r.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := r.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(r.chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("отправка сообщения: %w", err)
		}
	}
	return nil
}

func formatTS(ts int64) string {
	if ts <= 0 {
		return "—"
	}
	return time.UnixMilli(ts).Format("02.01 15:04")
}

func escapeHTML(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, text)
}
