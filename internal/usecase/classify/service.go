package classify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
)

const defaultTimeout = 30 * time.Second

// Service принимает решение allow/block по одной нотификации.
// Поведение fail-closed: любая ошибка оракула, пустой или неразборчивый
// ответ и таймаут разрешаются в Block, ошибка наружу не уходит.
type Service struct {
	log      zerolog.Logger
	settings settingsSource
	oracle   domain.Classifier
	timeout  time.Duration
}

type settingsSource interface {
	Snapshot() domain.Settings
}

// NewService создаёт движок классификации.
func NewService(log zerolog.Logger, settings settingsSource, oracle domain.Classifier, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{log: log, settings: settings, oracle: oracle, timeout: timeout}
}

// Decide возвращает вердикт для нотификации. Без умной категоризации
// решение по умолчанию — Block: всё, что не разрешено статическим списком,
// подавляется. Один запрос к оракулу на событие, без повторов.
func (s *Service) Decide(ctx context.Context, n domain.Notification) domain.Decision {
	snapshot := s.settings.Snapshot()
	if !snapshot.SmartFilterEnabled {
		return domain.DecisionBlock
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	decision, err := s.oracle.Classify(ctx, snapshot.FilterInstruction, n.ParsedText)
	if err != nil {
		metrics.ClassifierFailClosed.Inc()
		s.log.Warn().Err(err).Str("package", n.PackageName).Msg("classify: оракул недоступен, блокируем")
		return domain.DecisionBlock
	}
	return decision
}
