package intake

import (
	"context"
	"strings"

	"noti-sentry/internal/domain"
)

// IsLiveEvent — признак «живой» нотификации: ongoing-флаг, таймер или
// прогресс-бар. Такие события не подавляются и не классифицируются,
// иначе ломаются медиаплееры и загрузки.
func IsLiveEvent(event domain.NotificationEvent) bool {
	return event.Ongoing || event.Chronometer || event.HasProgress
}

// ExtractNotification строит кандидата записи из сырого события.
// Идентификатор не присваивается — это делает хранилище при вставке.
func ExtractNotification(event domain.NotificationEvent, appName string) domain.Notification {
	messages := make([]domain.Message, 0, len(event.Messages))
	for _, m := range event.Messages {
		messages = append(messages, domain.Message{Sender: m.Sender, Text: m.Text, Timestamp: m.Timestamp})
	}
	return domain.Notification{
		PackageName:       event.PackageName,
		AppName:           appName,
		Title:             event.Title,
		Text:              event.Text,
		ConversationTitle: event.ConversationTitle,
		Messages:          messages,
		Timestamp:         event.PostedAt,
	}
}

// resolveAppName возвращает отображаемое имя приложения. Любая ошибка
// справочника деградирует до сырого идентификатора пакета.
func resolveAppName(ctx context.Context, dir domain.AppDirectory, packageName string) string {
	if dir == nil {
		return packageName
	}
	name, err := dir.ResolveAppName(ctx, packageName)
	if err != nil || strings.TrimSpace(name) == "" {
		return packageName
	}
	return name
}
