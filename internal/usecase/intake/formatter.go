package intake

import (
	"strings"

	"noti-sentry/internal/domain"
)

// FlattenNotification собирает каноничное текстовое представление нотификации.
// Первая строка — `[AppName] DisplayTitle`, где DisplayTitle — заголовок
// переписки, а при его отсутствии обычный заголовок. Дальше либо по строке
// `sender: text` на каждое сообщение, либо строка с телом нотификации.
// Формат — контракт: его читают и классификатор, и суммаризатор.
func FlattenNotification(n domain.Notification) string {
	var sb strings.Builder

	displayTitle := n.ConversationTitle
	if strings.TrimSpace(displayTitle) == "" {
		displayTitle = n.Title
	}
	sb.WriteString("[" + n.AppName + "]")
	if strings.TrimSpace(displayTitle) != "" {
		sb.WriteString(" " + displayTitle)
	}
	sb.WriteString("\n")
	if len(n.Messages) > 0 {
		for _, message := range n.Messages {
			sender := message.Sender
			if sender == "" {
				sender = "Unknown"
			}
			sb.WriteString(sender + ": " + message.Text + "\n")
		}
	} else if strings.TrimSpace(n.Text) != "" {
		sb.WriteString(n.Text + "\n")
	}

	return strings.TrimSpace(sb.String())
}
