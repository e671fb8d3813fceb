package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/usecase/settings"
)

type stubNotificationRepo struct {
	saved []domain.Notification
	err   error
}

func (s *stubNotificationRepo) SaveNotification(n domain.Notification) (domain.Notification, error) {
	if s.err != nil {
		return domain.Notification{}, s.err
	}
	n.ID = int64(len(s.saved) + 1)
	s.saved = append(s.saved, n)
	return n, nil
}
func (s *stubNotificationRepo) ListNotifications() ([]domain.Notification, error) { return s.saved, nil }
func (s *stubNotificationRepo) ListNotificationsBetween(int64, int64) ([]domain.Notification, error) {
	return s.saved, nil
}
func (s *stubNotificationRepo) DeleteNotificationsBefore(int64) (int64, error) { return 0, nil }

type stubListedRepo struct {
	listed map[string]bool
	err    error
}

func (s *stubListedRepo) IsListed(packageName string) (bool, error) {
	return s.listed[packageName], s.err
}
func (s *stubListedRepo) AddToList(string) error               { return nil }
func (s *stubListedRepo) RemoveFromList(string) error          { return nil }
func (s *stubListedRepo) ListApps() ([]domain.ListedApp, error) { return nil, nil }

type stubSettingsRepo struct {
	settings domain.Settings
	captured int
}

func (s *stubSettingsRepo) LoadSettings() (domain.Settings, error)       { return s.settings, nil }
func (s *stubSettingsRepo) SaveSetting(domain.SettingKey, string) error { return nil }
func (s *stubSettingsRepo) IncrementCaptured() (int, error) {
	s.captured++
	return s.captured, nil
}

type stubQueue struct {
	enqueued []domain.NotificationEvent
	err      error
}

func (s *stubQueue) Enqueue(_ context.Context, event domain.NotificationEvent) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, event)
	return nil
}
func (s *stubQueue) Receive(context.Context) (domain.NotificationEvent, domain.EventAckFunc, error) {
	return domain.NotificationEvent{}, nil, context.Canceled
}

type stubRelay struct {
	notifications []domain.RepostedNotification
	summaries     []domain.Summary
	err           error
}

func (s *stubRelay) PostNotification(_ context.Context, repost domain.RepostedNotification) error {
	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, repost)
	return nil
}
func (s *stubRelay) PostSummary(_ context.Context, summary domain.Summary) error {
	s.summaries = append(s.summaries, summary)
	return nil
}

type fixedDecider struct {
	decision domain.Decision
	calls    int
}

func (f *fixedDecider) Decide(context.Context, domain.Notification) domain.Decision {
	f.calls++
	return f.decision
}

type memCache struct {
	seen map[string]bool
}

func (m *memCache) Once(_ context.Context, key string, _ time.Duration, fn func() error) error {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[key] {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	m.seen[key] = true
	return nil
}
func (m *memCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (m *memCache) Get(context.Context, string) ([]byte, error)              { return nil, nil }

type fixture struct {
	service       *Service
	notifications *stubNotificationRepo
	listed        *stubListedRepo
	settingsRepo  *stubSettingsRepo
	queue         *stubQueue
	relay         *stubRelay
	decider       *fixedDecider
}

func newFixture(t *testing.T, prefs domain.Settings, decision domain.Decision) *fixture {
	t.Helper()
	notifications := &stubNotificationRepo{}
	listed := &stubListedRepo{listed: map[string]bool{"com.allowed": true}}
	settingsRepo := &stubSettingsRepo{settings: prefs}
	settingsService, err := settings.NewService(settingsRepo)
	if err != nil {
		t.Fatalf("не ожидали ошибку настроек: %v", err)
	}
	queue := &stubQueue{}
	relay := &stubRelay{}
	decider := &fixedDecider{decision: decision}
	service := NewService(
		zerolog.Nop(), "app.self",
		notifications, listed, settingsService,
		decider, relay, queue, nil, &memCache{}, time.Minute,
	)
	return &fixture{
		service:       service,
		notifications: notifications,
		listed:        listed,
		settingsRepo:  settingsRepo,
		queue:         queue,
		relay:         relay,
		decider:       decider,
	}
}

func TestScreenPassesSelfAndLiveEvents(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)

	result, err := f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "app.self"})
	if err != nil || result != ScreenPassThrough {
		t.Fatalf("собственные нотификации должны проходить: %v %v", result, err)
	}

	result, err = f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "com.player", Ongoing: true})
	if err != nil || result != ScreenPassThrough {
		t.Fatalf("живые нотификации должны проходить: %v %v", result, err)
	}
	if len(f.queue.enqueued) != 0 {
		t.Fatalf("пропущенные события не должны попадать в очередь")
	}
}

func TestScreenPassesListedApp(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)
	result, err := f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "com.allowed"})
	if err != nil || result != ScreenPassThrough {
		t.Fatalf("приложение из списка должно проходить: %v %v", result, err)
	}
	if len(f.queue.enqueued) != 0 {
		t.Fatalf("событие из списка не должно попадать в очередь")
	}
}

func TestScreenPassesWhenFilterDisabled(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: false}, domain.DecisionBlock)
	result, err := f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "com.other"})
	if err != nil || result != ScreenPassThrough {
		t.Fatalf("при выключенном фильтре всё проходит: %v %v", result, err)
	}
}

func TestScreenSuppressesAndEnqueues(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)
	result, err := f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "com.other", Key: "k1"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result != ScreenSuppress {
		t.Fatalf("ожидали suppress, получили %v", result)
	}
	if len(f.queue.enqueued) != 1 {
		t.Fatalf("событие должно попасть в очередь")
	}
	if f.queue.enqueued[0].ID == "" {
		t.Fatalf("событию должен быть присвоен идентификатор")
	}
}

func TestScreenFailsOpenOnListError(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)
	f.listed.err = errors.New("db down")
	result, err := f.service.Screen(context.Background(), domain.NotificationEvent{PackageName: "com.other"})
	if err == nil {
		t.Fatalf("ожидали ошибку проверки списка")
	}
	if result != ScreenPassThrough {
		t.Fatalf("при сбое проверки нотификация остаётся у пользователя, получили %v", result)
	}
}

func TestProcessBlocksAndStores(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)
	event := domain.NotificationEvent{
		ID:          "e1",
		Key:         "k1",
		PackageName: "com.other",
		Title:       "Promo",
		Text:        "Sale",
		PostedAt:    1700000000000,
	}
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.notifications.saved) != 1 {
		t.Fatalf("заблокированная нотификация должна сохраняться")
	}
	saved := f.notifications.saved[0]
	if saved.ParsedText == "" {
		t.Fatalf("каноничное представление должно быть заполнено")
	}
	if f.settingsRepo.captured != 1 {
		t.Fatalf("счётчик перехваченных должен увеличиться")
	}
	if len(f.relay.notifications) != 0 {
		t.Fatalf("заблокированная нотификация не публикуется заново")
	}
}

func TestProcessRepostsAllowed(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionAllow)
	event := domain.NotificationEvent{
		ID:          "e1",
		Key:         "k1",
		PackageName: "com.other",
		Title:       "Ping",
		Text:        "hello",
		PostedAt:    1700000000123,
	}
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.relay.notifications) != 1 {
		t.Fatalf("пропущенная нотификация должна публиковаться заново")
	}
	if f.relay.notifications[0].ID != RepostID(event.PostedAt) {
		t.Fatalf("идентификатор репоста должен выводиться из таймстемпа")
	}
	if len(f.notifications.saved) != 0 {
		t.Fatalf("пропущенная нотификация не сохраняется в журнал")
	}
	if f.settingsRepo.captured != 0 {
		t.Fatalf("счётчик перехваченных не должен меняться")
	}
}

func TestProcessSkipsDuplicateDelivery(t *testing.T) {
	f := newFixture(t, domain.Settings{FilterEnabled: true}, domain.DecisionBlock)
	event := domain.NotificationEvent{ID: "e1", Key: "k1", PackageName: "com.other", Text: "x", PostedAt: 42}
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.notifications.saved) != 1 {
		t.Fatalf("повторная доставка не должна создавать вторую запись, получили %d", len(f.notifications.saved))
	}
	if f.decider.calls != 1 {
		t.Fatalf("повторная доставка не должна ходить к оракулу, вызовов %d", f.decider.calls)
	}
}

func TestRepostIDIsDeterministic(t *testing.T) {
	if RepostID(1700000000123) != RepostID(1700000000123) {
		t.Fatalf("идентификатор репоста должен быть детерминированным")
	}
	if RepostID(1) != 1 {
		t.Fatalf("малые таймстемпы должны переноситься как есть")
	}
}
