package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
	"noti-sentry/internal/usecase/settings"
)

// ErrSessionActive возвращается при попытке начать уже идущую сессию.
var ErrSessionActive = errors.New("сессия фильтрации уже идёт")

// ErrSessionInactive возвращается при попытке остановить неактивную сессию.
var ErrSessionInactive = errors.New("сессия фильтрации не запущена")

type digestBuilder interface {
	Summarize(ctx context.Context, start, end int64) (domain.Summary, bool, error)
}

// Service управляет сессией фильтрации: парой таймстемпов, ограничивающих
// один период «фильтр включён», и итоговой суммаризацией по нему.
type Service struct {
	log      zerolog.Logger
	settings *settings.Service
	digests  digestBuilder
	now      func() time.Time
}

// NewService создаёт сервис сессий.
func NewService(log zerolog.Logger, settingsService *settings.Service, digests digestBuilder) *Service {
	return &Service{log: log, settings: settingsService, digests: digests, now: time.Now}
}

// Start включает фильтрацию и фиксирует начало окна сессии.
func (s *Service) Start(ctx context.Context) error {
	if s.settings.Snapshot().FilterEnabled {
		return ErrSessionActive
	}
	if err := s.settings.SetFilterEnabled(true); err != nil {
		return fmt.Errorf("включение фильтрации: %w", err)
	}
	startTS := s.now().UnixMilli()
	if err := s.settings.SetSessionStart(startTS); err != nil {
		return fmt.Errorf("фиксация начала сессии: %w", err)
	}
	s.log.Info().Int64("start", startTS).Msg("session: фильтрация запущена")
	return nil
}

// Stop выключает фильтрацию, фиксирует конец окна и строит дайджест по нему.
// Сбой суммаризации не считается ошибкой остановки: окно остаётся в
// настройках, пользователь может повторить позже.
func (s *Service) Stop(ctx context.Context) error {
	snapshot := s.settings.Snapshot()
	if !snapshot.FilterEnabled {
		return ErrSessionInactive
	}
	if err := s.settings.SetFilterEnabled(false); err != nil {
		return fmt.Errorf("выключение фильтрации: %w", err)
	}
	endTS := s.now().UnixMilli()
	if err := s.settings.SetSessionEnd(endTS); err != nil {
		return fmt.Errorf("фиксация конца сессии: %w", err)
	}

	if _, _, err := s.digests.Summarize(ctx, snapshot.SessionStart, endTS); err != nil {
		return fmt.Errorf("суммаризация сессии: %w", err)
	}

	if err := s.settings.ResetCaptured(); err != nil {
		s.log.Warn().Err(err).Msg("session: счётчик перехваченных не сброшен")
	}
	s.log.Info().Int64("start", snapshot.SessionStart).Int64("end", endTS).Msg("session: фильтрация остановлена")
	return nil
}
