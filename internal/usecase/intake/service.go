package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/metrics"
	"noti-sentry/internal/usecase/settings"
)

const defaultWorkers = 4

// ScreenResult — решение синхронной половины конвейера.
type ScreenResult int

const (
	// ScreenPassThrough — оригинальная нотификация остаётся как есть.
	ScreenPassThrough ScreenResult = iota
	// ScreenSuppress — агент снимает оригинал, событие уходит на классификацию.
	ScreenSuppress
)

func (r ScreenResult) String() string {
	if r == ScreenSuppress {
		return "suppress"
	}
	return "pass"
}

type decider interface {
	Decide(ctx context.Context, n domain.Notification) domain.Decision
}

// Service реализует конвейер приёма нотификаций: Screen — синхронная проверка
// на шлюзе, Process — асинхронная классификация на воркере.
type Service struct {
	log           zerolog.Logger
	selfPackage   string
	notifications domain.NotificationRepo
	listed        domain.ListedAppRepo
	settings      *settings.Service
	classifier    decider
	relay         domain.NotificationRelay
	queue         domain.EventQueue
	appDir        domain.AppDirectory
	dedupe        domain.Cache
	dedupeTTL     time.Duration
}

// NewService создаёт конвейер. classifier, relay и dedupe могут быть nil
// на шлюзе, которому нужна только синхронная половина.
func NewService(
	log zerolog.Logger,
	selfPackage string,
	notifications domain.NotificationRepo,
	listed domain.ListedAppRepo,
	settingsService *settings.Service,
	classifier decider,
	relay domain.NotificationRelay,
	queue domain.EventQueue,
	appDir domain.AppDirectory,
	dedupe domain.Cache,
	dedupeTTL time.Duration,
) *Service {
	if dedupeTTL <= 0 {
		dedupeTTL = 10 * time.Minute
	}
	return &Service{
		log:           log,
		selfPackage:   selfPackage,
		notifications: notifications,
		listed:        listed,
		settings:      settingsService,
		classifier:    classifier,
		relay:         relay,
		queue:         queue,
		appDir:        appDir,
		dedupe:        dedupe,
		dedupeTTL:     dedupeTTL,
	}
}

// Screen принимает решение по событию до классификации. Подавление оригинала
// происходит строго до классификации: пользователь не должен увидеть
// нотификацию, пока оракул думает.
func (s *Service) Screen(ctx context.Context, event domain.NotificationEvent) (ScreenResult, error) {
	if event.PackageName == s.selfPackage || IsLiveEvent(event) {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomePassThrough)
		return ScreenPassThrough, nil
	}
	listed, err := s.listed.IsListed(event.PackageName)
	if err != nil {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomeError)
		return ScreenPassThrough, fmt.Errorf("проверка статического списка: %w", err)
	}
	if listed {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomePassThrough)
		return ScreenPassThrough, nil
	}
	if !s.settings.Snapshot().FilterEnabled {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomePassThrough)
		return ScreenPassThrough, nil
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := s.queue.Enqueue(ctx, event); err != nil {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomeError)
		return ScreenPassThrough, fmt.Errorf("постановка события в очередь: %w", err)
	}
	metrics.IncIntakeOutcome(metrics.IntakeOutcomeSuppressed)
	s.log.Debug().Str("event", event.ID).Str("package", event.PackageName).Msg("intake: оригинал подавлен, событие в очереди")
	return ScreenSuppress, nil
}

// Process классифицирует подавленное событие: Allow — повторная публикация,
// Block — запись в журнал и инкремент счётчика. Ошибки оракула сюда не
// доходят — классификатор разрешает их в Block.
func (s *Service) Process(ctx context.Context, event domain.NotificationEvent) error {
	if s.isDuplicate(ctx, event) {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomeDuplicate)
		s.log.Debug().Str("event", event.ID).Msg("intake: повторная доставка события, пропускаем")
		return nil
	}

	appName := resolveAppName(ctx, s.appDir, event.PackageName)
	notification := ExtractNotification(event, appName)
	notification.ParsedText = FlattenNotification(notification)

	start := time.Now()
	decision := s.classifier.Decide(ctx, notification)
	metrics.ClassifyDuration.Observe(time.Since(start).Seconds())

	if decision == domain.DecisionAllow {
		repost := domain.RepostedNotification{ID: RepostID(notification.Timestamp), Notification: notification}
		if err := s.relay.PostNotification(ctx, repost); err != nil {
			metrics.IncIntakeOutcome(metrics.IntakeOutcomeError)
			return fmt.Errorf("повторная публикация нотификации: %w", err)
		}
		metrics.IncIntakeOutcome(metrics.IntakeOutcomeAllowed)
		s.log.Info().Str("event", event.ID).Str("package", event.PackageName).Msg("intake: нотификация пропущена")
		return nil
	}

	if _, err := s.notifications.SaveNotification(notification); err != nil {
		metrics.IncIntakeOutcome(metrics.IntakeOutcomeError)
		return fmt.Errorf("сохранение нотификации: %w", err)
	}
	if _, err := s.settings.IncrementCaptured(); err != nil {
		s.log.Warn().Err(err).Msg("intake: счётчик перехваченных не обновлён")
	}
	metrics.IncIntakeOutcome(metrics.IntakeOutcomeBlocked)
	s.log.Info().Str("event", event.ID).Str("package", event.PackageName).Msg("intake: нотификация заблокирована и сохранена")
	return nil
}

// Run запускает пул воркеров над очередью событий. Завершается после отмены
// контекста; каждое событие обрабатывается изолированно от соседей.
func (s *Service) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (s *Service) runWorker(ctx context.Context) {
	for {
		event, ack, err := s.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.log.Error().Err(err).Msg("intake: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		err = s.Process(ctx, event)
		if err != nil {
			s.log.Error().Err(err).Str("event", event.ID).Msg("intake: событие не обработано")
		}
		if ack != nil {
			if ackErr := ack(err == nil); ackErr != nil {
				s.log.Error().Err(ackErr).Str("event", event.ID).Msg("intake: не удалось подтвердить событие")
			}
		}
	}
}

// RepostID детерминированно выводит идентификатор повторной публикации из
// таймстемпа оригинала. Два события с одинаковой миллисекундой коллидируют —
// приемлемо при ширине идентификатора платформы.
func RepostID(timestamp int64) int32 {
	return int32(timestamp)
}

func (s *Service) isDuplicate(ctx context.Context, event domain.NotificationEvent) bool {
	if s.dedupe == nil || event.Key == "" {
		return false
	}
	key := fmt.Sprintf("intake:event:%s:%d", event.Key, event.PostedAt)
	seen := true
	if err := s.dedupe.Once(ctx, key, s.dedupeTTL, func() error {
		seen = false
		return nil
	}); err != nil {
		s.log.Warn().Err(err).Msg("intake: дедупликация недоступна, обрабатываем событие")
		return false
	}
	return seen
}
