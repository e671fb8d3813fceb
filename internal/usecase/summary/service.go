package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
)

// Service строит дайджест заблокированных нотификаций за окно сессии.
type Service struct {
	log           zerolog.Logger
	notifications domain.NotificationRepo
	summaries     domain.SummaryRepo
	settings      sessionSettings
	oracle        domain.Summarizer
	relay         domain.NotificationRelay
}

type sessionSettings interface {
	SetSessionStart(ts int64) error
	SetSessionEnd(ts int64) error
}

// NewService создаёт движок суммаризации. relay может быть nil — тогда
// готовый дайджест не доставляется пользователю, только сохраняется.
func NewService(
	log zerolog.Logger,
	notifications domain.NotificationRepo,
	summaries domain.SummaryRepo,
	settings sessionSettings,
	oracle domain.Summarizer,
	relay domain.NotificationRelay,
) *Service {
	return &Service{
		log:           log,
		notifications: notifications,
		summaries:     summaries,
		settings:      settings,
		oracle:        oracle,
		relay:         relay,
	}
}

// Summarize выбирает заблокированные нотификации с таймстемпом в [start, end]
// и сохраняет один дайджест. Пустая выборка и сбой оракула — no-op: дайджест
// не создаётся, окно сессии не сбрасывается, чтобы повтор не потерял данные.
// Возвращает false, если дайджест не был создан.
func (s *Service) Summarize(ctx context.Context, start, end int64) (domain.Summary, bool, error) {
	selected, err := s.notifications.ListNotificationsBetween(start, end)
	if err != nil {
		return domain.Summary{}, false, fmt.Errorf("выборка нотификаций: %w", err)
	}

	joined := joinParsedTexts(selected)
	if joined == "" {
		s.log.Debug().Int64("start", start).Int64("end", end).Msg("summary: в окне нет нотификаций, дайджест не нужен")
		return domain.Summary{}, false, nil
	}

	buildStart := time.Now()
	text, err := s.oracle.Summarize(ctx, selected)
	metrics.SummaryBuildSeconds.Observe(time.Since(buildStart).Seconds())
	if err != nil {
		s.log.Error().Err(err).Msg("summary: оракул не ответил, дайджест отложен")
		return domain.Summary{}, false, nil
	}
	if strings.TrimSpace(text) == "" {
		s.log.Error().Msg("summary: оракул вернул пустой текст, дайджест отложен")
		return domain.Summary{}, false, nil
	}

	saved, err := s.summaries.SaveSummary(domain.Summary{Text: text, StartTimestamp: start, EndTimestamp: end})
	if err != nil {
		return domain.Summary{}, false, fmt.Errorf("сохранение дайджеста: %w", err)
	}

	// Окно сессии считается использованным только после успешной записи.
	if err := s.settings.SetSessionStart(0); err != nil {
		s.log.Warn().Err(err).Msg("summary: не удалось сбросить начало сессии")
	}
	if err := s.settings.SetSessionEnd(0); err != nil {
		s.log.Warn().Err(err).Msg("summary: не удалось сбросить конец сессии")
	}

	if s.relay != nil {
		if err := s.relay.PostSummary(ctx, saved); err != nil {
			s.log.Error().Err(err).Int64("summary", saved.ID).Msg("summary: дайджест сохранён, но не доставлен")
		}
	}

	s.log.Info().Int64("summary", saved.ID).Int("notifications", len(selected)).Msg("summary: дайджест построен")
	return saved, true, nil
}

func joinParsedTexts(notifications []domain.Notification) string {
	parts := make([]string, 0, len(notifications))
	for _, n := range notifications {
		text := strings.TrimSpace(n.ParsedText)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}
