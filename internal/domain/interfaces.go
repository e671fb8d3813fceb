package domain

import (
	"context"
	"errors"
	"time"
)

// ErrAppNotFound возвращается, если приложение отсутствует в справочнике.
var ErrAppNotFound = errors.New("приложение не найдено в справочнике")

// ErrSummaryNotFound возвращается, если дайджест с указанным ID не существует.
var ErrSummaryNotFound = errors.New("дайджест не найден")

// NotificationRepo управляет журналом заблокированных нотификаций.
type NotificationRepo interface {
	SaveNotification(n Notification) (Notification, error)
	ListNotifications() ([]Notification, error)
	// ListNotificationsBetween возвращает нотификации с Timestamp в [start, end].
	ListNotificationsBetween(start, end int64) ([]Notification, error)
	// DeleteNotificationsBefore удаляет нотификации строго старше cutoff
	// и возвращает количество удалённых записей.
	DeleteNotificationsBefore(cutoff int64) (int64, error)
}

// ListedAppRepo управляет статическим списком приложений.
type ListedAppRepo interface {
	IsListed(packageName string) (bool, error)
	AddToList(packageName string) error
	RemoveFromList(packageName string) error
	ListApps() ([]ListedApp, error)
}

// SummaryRepo управляет сохранёнными дайджестами.
type SummaryRepo interface {
	SaveSummary(s Summary) (Summary, error)
	ListSummaries() ([]Summary, error)
	// DeleteSummaryCascade атомарно удаляет дайджест и все нотификации,
	// чей Timestamp попадает в его окно [start, end].
	DeleteSummaryCascade(id int64) error
	// DeleteSummariesBefore удаляет дайджесты с EndTimestamp строго старше cutoff.
	DeleteSummariesBefore(cutoff int64) (int64, error)
}

// SettingsRepo — хранилище настроек пользователя.
type SettingsRepo interface {
	LoadSettings() (Settings, error)
	SaveSetting(key SettingKey, value string) error
	// IncrementCaptured атомарно увеличивает счётчик перехваченных нотификаций.
	IncrementCaptured() (int, error)
}

// AppDirectoryRepo хранит отображаемые имена приложений, присланные агентом.
type AppDirectoryRepo interface {
	LookupAppName(packageName string) (string, error)
	UpsertAppEntries(entries []AppEntry) error
}

// Classifier — оракул классификации текста нотификации.
type Classifier interface {
	Classify(ctx context.Context, instruction, notificationText string) (Decision, error)
}

// Summarizer — оракул генерации дайджеста по заблокированным нотификациям.
type Summarizer interface {
	Summarize(ctx context.Context, notifications []Notification) (string, error)
}

// AppDirectory возвращает отображаемое имя приложения по идентификатору пакета.
type AppDirectory interface {
	ResolveAppName(ctx context.Context, packageName string) (string, error)
}

// RepostedNotification — локальная реконструкция пропущенной нотификации.
type RepostedNotification struct {
	// ID детерминированно выводится из таймстемпа оригинала.
	ID           int32
	Notification Notification
}

// NotificationRelay — поверхность повторной публикации для пользователя.
type NotificationRelay interface {
	PostNotification(ctx context.Context, repost RepostedNotification) error
	PostSummary(ctx context.Context, s Summary) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
