package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
)

type retentionSettings interface {
	Snapshot() domain.Settings
}

// Service удаляет дайджесты и нотификации старше срока хранения.
type Service struct {
	log           zerolog.Logger
	notifications domain.NotificationRepo
	summaries     domain.SummaryRepo
	settings      retentionSettings
}

// NewService создаёт сервис ретеншена.
func NewService(log zerolog.Logger, notifications domain.NotificationRepo, summaries domain.SummaryRepo, settings retentionSettings) *Service {
	return &Service{log: log, notifications: notifications, summaries: summaries, settings: settings}
}

// Sweep удаляет записи строго старше now − retentionDays. Записи ровно на
// границе остаются. Удаления в двух хранилищах независимы, операция
// идемпотентна и безопасна при повторном запуске.
func (s *Service) Sweep(ctx context.Context, now time.Time) error {
	days := s.settings.Snapshot().RetentionDays
	if days <= 0 {
		return nil
	}
	cutoff := now.UnixMilli() - int64(days)*24*time.Hour.Milliseconds()

	removedSummaries, err := s.summaries.DeleteSummariesBefore(cutoff)
	if err != nil {
		return fmt.Errorf("удаление старых дайджестов: %w", err)
	}
	metrics.AddRetentionDeleted("summaries", removedSummaries)

	removedNotifications, err := s.notifications.DeleteNotificationsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("удаление старых нотификаций: %w", err)
	}
	metrics.AddRetentionDeleted("notifications", removedNotifications)

	if removedSummaries > 0 || removedNotifications > 0 {
		s.log.Info().
			Int64("summaries", removedSummaries).
			Int64("notifications", removedNotifications).
			Int64("cutoff", cutoff).
			Msg("retention: старые записи удалены")
	}
	return nil
}
