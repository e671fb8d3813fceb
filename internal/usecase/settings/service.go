package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"noti-sentry/internal/domain"
)

// Service — типизированный доступ к настройкам с pub/sub на каждую запись.
// Подписчики получают каждый апдейт минимум один раз; доставка живому
// подписчику не теряется (очередь на подписчика не ограничена).
type Service struct {
	repo domain.SettingsRepo

	mu      sync.RWMutex
	current domain.Settings
	subs    map[int]*subscriber
	nextID  int
}

// NewService загружает настройки из хранилища и создаёт сервис.
func NewService(repo domain.SettingsRepo) (*Service, error) {
	current, err := repo.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("загрузка настроек: %w", err)
	}
	return &Service{repo: repo, current: current, subs: make(map[int]*subscriber)}, nil
}

// Run периодически перечитывает настройки из хранилища, чтобы записи других
// процессов стали видимы локальным подписчикам. Блокируется до отмены контекста.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				continue
			}
		}
	}
}

// Reload перечитывает настройки из хранилища и публикует снимок подписчикам,
// если состояние изменилось.
func (s *Service) Reload() error {
	current, err := s.repo.LoadSettings()
	if err != nil {
		return fmt.Errorf("загрузка настроек: %w", err)
	}
	s.mu.Lock()
	if current == s.current {
		s.mu.Unlock()
		return nil
	}
	s.current = current
	snapshot := s.current
	subs := s.subscribers()
	s.mu.Unlock()
	publish(subs, snapshot)
	return nil
}

// Snapshot возвращает текущее состояние настроек.
func (s *Service) Snapshot() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe возвращает канал, получающий снимок настроек после каждой записи.
// Возвращённая функция снимает подписку и закрывает канал.
func (s *Service) Subscribe() (<-chan domain.Settings, func()) {
	sub := newSubscriber()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			sub.close()
		}
		s.mu.Unlock()
	}
	return sub.out, cancel
}

// SetFilterEnabled включает или выключает фильтрацию.
func (s *Service) SetFilterEnabled(enabled bool) error {
	return s.save(domain.SettingFilterEnabled, strconv.FormatBool(enabled), func(st *domain.Settings) {
		st.FilterEnabled = enabled
	})
}

// SetSmartFilterEnabled включает или выключает умную категоризацию.
func (s *Service) SetSmartFilterEnabled(enabled bool) error {
	return s.save(domain.SettingSmartFilterEnabled, strconv.FormatBool(enabled), func(st *domain.Settings) {
		st.SmartFilterEnabled = enabled
	})
}

// SetFilterInstruction сохраняет текст инструкции для классификатора.
func (s *Service) SetFilterInstruction(instruction string) error {
	return s.save(domain.SettingFilterInstruction, instruction, func(st *domain.Settings) {
		st.FilterInstruction = instruction
	})
}

// SetSessionStart сохраняет начало окна сессии (epoch millis).
func (s *Service) SetSessionStart(ts int64) error {
	return s.save(domain.SettingSessionStart, strconv.FormatInt(ts, 10), func(st *domain.Settings) {
		st.SessionStart = ts
	})
}

// SetSessionEnd сохраняет конец окна сессии (epoch millis).
func (s *Service) SetSessionEnd(ts int64) error {
	return s.save(domain.SettingSessionEnd, strconv.FormatInt(ts, 10), func(st *domain.Settings) {
		st.SessionEnd = ts
	})
}

// SetIntroDone отмечает, что вводный сценарий пройден.
func (s *Service) SetIntroDone(done bool) error {
	return s.save(domain.SettingIntroDone, strconv.FormatBool(done), func(st *domain.Settings) {
		st.IntroDone = done
	})
}

// SetRetentionDays задаёт срок хранения записей в днях.
func (s *Service) SetRetentionDays(days int) error {
	return s.save(domain.SettingRetentionDays, strconv.Itoa(days), func(st *domain.Settings) {
		st.RetentionDays = days
	})
}

// IncrementCaptured атомарно увеличивает счётчик перехваченных нотификаций.
func (s *Service) IncrementCaptured() (int, error) {
	count, err := s.repo.IncrementCaptured()
	if err != nil {
		return 0, fmt.Errorf("инкремент счётчика: %w", err)
	}
	s.mu.Lock()
	s.current.CapturedCount = count
	snapshot := s.current
	subs := s.subscribers()
	s.mu.Unlock()
	publish(subs, snapshot)
	return count, nil
}

// ResetCaptured обнуляет счётчик перехваченных нотификаций.
func (s *Service) ResetCaptured() error {
	return s.save(domain.SettingCapturedCount, "0", func(st *domain.Settings) {
		st.CapturedCount = 0
	})
}

func (s *Service) save(key domain.SettingKey, value string, apply func(*domain.Settings)) error {
	if err := s.repo.SaveSetting(key, value); err != nil {
		return fmt.Errorf("сохранение настройки %s: %w", key, err)
	}
	s.mu.Lock()
	apply(&s.current)
	snapshot := s.current
	subs := s.subscribers()
	s.mu.Unlock()
	publish(subs, snapshot)
	return nil
}

// subscribers вызывается под s.mu.
func (s *Service) subscribers() []*subscriber {
	out := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func publish(subs []*subscriber, snapshot domain.Settings) {
	for _, sub := range subs {
		sub.push(snapshot)
	}
}

type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.Settings
	closed bool
	done   chan struct{}
	out    chan domain.Settings
}

func newSubscriber() *subscriber {
	sub := &subscriber{out: make(chan domain.Settings), done: make(chan struct{})}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.pump()
	return sub
}

func (sub *subscriber) push(snapshot domain.Settings) {
	sub.mu.Lock()
	if !sub.closed {
		sub.queue = append(sub.queue, snapshot)
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.done)
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *subscriber) pump() {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if sub.closed {
			sub.mu.Unlock()
			close(sub.out)
			return
		}
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()
		select {
		case sub.out <- next:
		case <-sub.done:
			close(sub.out)
			return
		}
	}
}
