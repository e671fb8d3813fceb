package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/usecase/settings"
)

type memSettingsRepo struct {
	values   map[domain.SettingKey]string
	captured int
}

func newMemSettingsRepo(initial domain.Settings) *memSettingsRepo {
	repo := &memSettingsRepo{values: make(map[domain.SettingKey]string)}
	if initial.FilterEnabled {
		repo.values[domain.SettingFilterEnabled] = "true"
	}
	return repo
}

func (m *memSettingsRepo) LoadSettings() (domain.Settings, error) {
	var s domain.Settings
	s.FilterEnabled = m.values[domain.SettingFilterEnabled] == "true"
	return s, nil
}
func (m *memSettingsRepo) SaveSetting(key domain.SettingKey, value string) error {
	m.values[key] = value
	return nil
}
func (m *memSettingsRepo) IncrementCaptured() (int, error) {
	m.captured++
	return m.captured, nil
}

type stubDigests struct {
	start int64
	end   int64
	calls int
	err   error
}

func (s *stubDigests) Summarize(_ context.Context, start, end int64) (domain.Summary, bool, error) {
	s.calls++
	s.start, s.end = start, end
	if s.err != nil {
		return domain.Summary{}, false, s.err
	}
	return domain.Summary{ID: 1, StartTimestamp: start, EndTimestamp: end}, true, nil
}

func newService(t *testing.T, repo *memSettingsRepo, digests *stubDigests, now time.Time) (*Service, *settings.Service) {
	t.Helper()
	settingsService, err := settings.NewService(repo)
	if err != nil {
		t.Fatalf("не ожидали ошибку настроек: %v", err)
	}
	service := NewService(zerolog.Nop(), settingsService, digests)
	service.now = func() time.Time { return now }
	return service, settingsService
}

func TestStartEnablesFilterAndMarksWindow(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	repo := newMemSettingsRepo(domain.Settings{})
	service, settingsService := newService(t, repo, &stubDigests{}, now)

	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	snapshot := settingsService.Snapshot()
	if !snapshot.FilterEnabled {
		t.Fatalf("фильтрация должна включиться")
	}
	if snapshot.SessionStart != now.UnixMilli() {
		t.Fatalf("начало окна должно зафиксироваться: %d", snapshot.SessionStart)
	}
}

func TestStartTwiceFails(t *testing.T) {
	repo := newMemSettingsRepo(domain.Settings{FilterEnabled: true})
	service, _ := newService(t, repo, &stubDigests{}, time.Now())

	if err := service.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("ожидали ErrSessionActive, получили %v", err)
	}
}

func TestStopBuildsDigestOverWindow(t *testing.T) {
	startTS := int64(1700000000000)
	endTime := time.UnixMilli(1700000360000)
	repo := newMemSettingsRepo(domain.Settings{FilterEnabled: true})
	digests := &stubDigests{}
	service, settingsService := newService(t, repo, digests, endTime)
	if err := settingsService.SetSessionStart(startTS); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if err := service.Stop(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if digests.calls != 1 {
		t.Fatalf("дайджест должен строиться ровно один раз")
	}
	if digests.start != startTS || digests.end != endTime.UnixMilli() {
		t.Fatalf("окно дайджеста должно совпадать с окном сессии: [%d, %d]", digests.start, digests.end)
	}
	if settingsService.Snapshot().FilterEnabled {
		t.Fatalf("фильтрация должна выключиться")
	}
	if settingsService.Snapshot().CapturedCount != 0 {
		t.Fatalf("счётчик перехваченных должен обнулиться")
	}
}

func TestStopWithoutActiveSessionFails(t *testing.T) {
	repo := newMemSettingsRepo(domain.Settings{})
	service, _ := newService(t, repo, &stubDigests{}, time.Now())

	if err := service.Stop(context.Background()); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("ожидали ErrSessionInactive, получили %v", err)
	}
}

func TestStopReturnsSummarizeError(t *testing.T) {
	repo := newMemSettingsRepo(domain.Settings{FilterEnabled: true})
	digests := &stubDigests{err: errors.New("db down")}
	service, settingsService := newService(t, repo, digests, time.Now())

	err := service.Stop(context.Background())
	if err == nil {
		t.Fatalf("ожидали ошибку суммаризации")
	}
	// Фильтрация уже выключена, окно осталось в настройках для повтора.
	if settingsService.Snapshot().FilterEnabled {
		t.Fatalf("фильтрация должна выключиться даже при сбое дайджеста")
	}
}
