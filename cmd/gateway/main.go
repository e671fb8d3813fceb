package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"noti-sentry/internal/adapters/appdir"
	"noti-sentry/internal/adapters/repo"
	"noti-sentry/internal/adapters/summarizer"
	"noti-sentry/internal/adapters/telegram"
	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/cache"
	"noti-sentry/internal/infra/config"
	"noti-sentry/internal/infra/db"
	httpinfra "noti-sentry/internal/infra/http"
	"noti-sentry/internal/infra/log"
	"noti-sentry/internal/infra/metrics"
	openaiinfra "noti-sentry/internal/infra/openai"
	"noti-sentry/internal/infra/queue"
	"noti-sentry/internal/usecase/intake"
	"noti-sentry/internal/usecase/retention"
	"noti-sentry/internal/usecase/session"
	settingsusecase "noti-sentry/internal/usecase/settings"
	"noti-sentry/internal/usecase/summary"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("component", "gateway").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	var cacheAdapter domain.Cache
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cacheAdapter = cache.NewRedis(redisClient)
	}

	var eventQueue domain.EventQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway: нет подключения к брокеру")
		}
		defer rabbit.Close()
		eventQueue = rabbit
	} else if redisClient != nil {
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	} else {
		logger.Fatal().Msg("gateway: не задан ни RABBITMQ_URL, ни REDIS_ADDR, очередь недоступна")
	}

	settingsService, err := settingsusecase.NewService(repoAdapter)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: настройки не загружены")
	}

	resolver := appdir.NewResolver(repoAdapter, cacheAdapter)

	var summaryOracle domain.Summarizer
	if cfg.OpenAI.APIKey != "" {
		openaiClient := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		summaryOracle = summarizer.NewLLM(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("gateway: OPENAI_API_KEY не задан, дайджесты строит резервный суммаризатор")
		summaryOracle = summarizer.NewSimple()
	}

	var relay domain.NotificationRelay
	if cfg.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway: не удалось создать Telegram-бота")
		}
		relay = telegram.NewRelay(bot, cfg.Telegram.ChatID)
	}

	intakeService := intake.NewService(
		logger, cfg.SelfPackage,
		repoAdapter, repoAdapter, settingsService,
		nil, nil, eventQueue, resolver, nil, cfg.Intake.DedupeTTL,
	)
	summaryService := summary.NewService(logger, repoAdapter, repoAdapter, settingsService, summaryOracle, relay)
	sessionService := session.NewService(logger, settingsService, summaryService)
	retentionService := retention.NewService(logger, repoAdapter, repoAdapter, settingsService)

	srv := httpinfra.NewServer(logger)
	registerRoutes(srv.Router, &handlers{
		intake:    intakeService,
		session:   sessionService,
		retention: retentionService,
		settings:  settingsService,
		resolver:  resolver,
		records:   repoAdapter,
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("gateway: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type recordStore interface {
	ListNotifications() ([]domain.Notification, error)
	ListNotificationsBetween(start, end int64) ([]domain.Notification, error)
	ListSummaries() ([]domain.Summary, error)
	DeleteSummaryCascade(id int64) error
	ListApps() ([]domain.ListedApp, error)
	AddToList(packageName string) error
	RemoveFromList(packageName string) error
}

type handlers struct {
	intake    *intake.Service
	session   *session.Service
	retention *retention.Service
	settings  *settingsusecase.Service
	resolver  *appdir.Resolver
	records   recordStore
}

func registerRoutes(r chi.Router, h *handlers) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.postEvent)

		r.Get("/notifications", h.listNotifications)
		r.Get("/summaries", h.listSummaries)
		r.Delete("/summaries/{id}", h.deleteSummary)

		r.Get("/apps", h.listApps)
		r.Put("/apps/{package}", h.addApp)
		r.Delete("/apps/{package}", h.removeApp)
		r.Post("/apps/directory", h.upsertDirectory)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Post("/session/start", h.startSession)
		r.Post("/session/stop", h.stopSession)

		r.Post("/resume", h.resume)
	})
}

// postEvent — синхронная половина конвейера: агент устройства держит
// нотификацию, пока шлюз не ответит pass или suppress.
func (h *handlers) postEvent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var event domain.NotificationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if event.PackageName == "" {
		writeError(w, http.StatusBadRequest, "package_name is required")
		return
	}
	result, err := h.intake.Screen(r.Context(), event)
	if err != nil {
		// При сбое конвейера нотификация остаётся у пользователя.
		writeJSON(w, map[string]string{"action": result.String(), "error": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"action": result.String()})
}

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	startRaw := r.URL.Query().Get("start")
	endRaw := r.URL.Query().Get("end")
	if startRaw != "" || endRaw != "" {
		start, err := strconv.ParseInt(startRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		end, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		notifications, err := h.records.ListNotificationsBetween(start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list notifications")
			return
		}
		writeJSON(w, notificationsResponse(notifications))
		return
	}
	notifications, err := h.records.ListNotifications()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, notificationsResponse(notifications))
}

func (h *handlers) listSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.records.ListSummaries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list summaries")
		return
	}
	items := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, map[string]any{
			"id":         s.ID,
			"text":       s.Text,
			"start":      s.StartTimestamp,
			"end":        s.EndTimestamp,
			"created_at": s.CreatedAt,
		})
	}
	writeJSON(w, map[string]any{"summaries": items})
}

func (h *handlers) deleteSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid summary id")
		return
	}
	if err := h.records.DeleteSummaryCascade(id); err != nil {
		if errors.Is(err, domain.ErrSummaryNotFound) {
			writeError(w, http.StatusNotFound, "summary not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete summary")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.records.ListApps()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list apps")
		return
	}
	items := make([]map[string]any, 0, len(apps))
	for _, app := range apps {
		items = append(items, map[string]any{
			"package_name": app.PackageName,
			"added_at":     app.AddedAt,
		})
	}
	writeJSON(w, map[string]any{"apps": items})
}

func (h *handlers) addApp(w http.ResponseWriter, r *http.Request) {
	packageName := chi.URLParam(r, "package")
	if packageName == "" {
		writeError(w, http.StatusBadRequest, "package is required")
		return
	}
	if err := h.records.AddToList(packageName); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add app")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *handlers) removeApp(w http.ResponseWriter, r *http.Request) {
	packageName := chi.URLParam(r, "package")
	if err := h.records.RemoveFromList(packageName); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove app")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) upsertDirectory(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req struct {
		Apps []domain.AppEntry `json:"apps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.resolver.Upsert(r.Context(), req.Apps); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update app directory")
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "updated": len(req.Apps)})
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, settingsResponse(h.settings.Snapshot()))
}

func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req struct {
		SmartFilterEnabled *bool   `json:"smart_filter_enabled"`
		FilterInstruction  *string `json:"filter_instruction"`
		IntroDone          *bool   `json:"intro_done"`
		RetentionDays      *int    `json:"retention_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RetentionDays != nil && *req.RetentionDays < 0 {
		writeError(w, http.StatusBadRequest, "retention_days must not be negative")
		return
	}
	if req.SmartFilterEnabled != nil {
		if err := h.settings.SetSmartFilterEnabled(*req.SmartFilterEnabled); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	if req.FilterInstruction != nil {
		if err := h.settings.SetFilterInstruction(*req.FilterInstruction); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	if req.IntroDone != nil {
		if err := h.settings.SetIntroDone(*req.IntroDone); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	if req.RetentionDays != nil {
		if err := h.settings.SetRetentionDays(*req.RetentionDays); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	writeJSON(w, settingsResponse(h.settings.Snapshot()))
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(r.Context()); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			writeError(w, http.StatusConflict, "session already active")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, settingsResponse(h.settings.Snapshot()))
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Stop(r.Context()); err != nil {
		if errors.Is(err, session.ErrSessionInactive) {
			writeError(w, http.StatusConflict, "session not active")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	writeJSON(w, settingsResponse(h.settings.Snapshot()))
}

// resume вызывается агентом при открытии приложения и запускает внеочередной
// ретеншен-свип.
func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.retention.Sweep(r.Context(), time.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sweep old records")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func notificationsResponse(notifications []domain.Notification) map[string]any {
	items := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, map[string]any{
			"id":                 n.ID,
			"package_name":       n.PackageName,
			"app_name":           n.AppName,
			"title":              n.Title,
			"text":               n.Text,
			"parsed_text":        n.ParsedText,
			"messages":           n.Messages,
			"conversation_title": n.ConversationTitle,
			"timestamp":          n.Timestamp,
		})
	}
	return map[string]any{"notifications": items}
}

func settingsResponse(s domain.Settings) map[string]any {
	return map[string]any{
		"filter_enabled":       s.FilterEnabled,
		"smart_filter_enabled": s.SmartFilterEnabled,
		"filter_instruction":   s.FilterInstruction,
		"session_start":        s.SessionStart,
		"session_end":          s.SessionEnd,
		"intro_done":           s.IntroDone,
		"retention_days":       s.RetentionDays,
		"captured_count":       s.CapturedCount,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
