package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"noti-sentry/internal/adapters/appdir"
	"noti-sentry/internal/adapters/classifier"
	"noti-sentry/internal/adapters/repo"
	"noti-sentry/internal/adapters/telegram"
	"noti-sentry/internal/domain"
	"noti-sentry/internal/infra/cache"
	"noti-sentry/internal/infra/config"
	"noti-sentry/internal/infra/db"
	"noti-sentry/internal/infra/log"
	"noti-sentry/internal/infra/metrics"
	openaiinfra "noti-sentry/internal/infra/openai"
	"noti-sentry/internal/infra/queue"
	"noti-sentry/internal/usecase/classify"
	"noti-sentry/internal/usecase/intake"
	settingsusecase "noti-sentry/internal/usecase/settings"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
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
			logger.Fatal().Err(err).Msg("worker: нет подключения к брокеру")
		}
		defer rabbit.Close()
		eventQueue = rabbit
	} else if redisClient != nil {
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	} else {
		logger.Fatal().Msg("worker: не задан ни RABBITMQ_URL, ни REDIS_ADDR, очередь недоступна")
	}

	settingsService, err := settingsusecase.NewService(repoAdapter)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: настройки не загружены")
	}
	go settingsService.Run(ctx, cfg.Settings.Refresh)

	var oracle domain.Classifier
	if cfg.OpenAI.APIKey != "" {
		openaiClient := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		oracle = classifier.NewLLM(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("worker: OPENAI_API_KEY не задан, работает эвристический классификатор")
		oracle = classifier.NewKeyword()
	}
	classifyService := classify.NewService(logger, settingsService, oracle, cfg.OpenAI.Timeout)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("worker: не задан TG_BOT_TOKEN, публиковать пропущенные нотификации некуда")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать Telegram-бота")
	}
	relay := telegram.NewRelay(bot, cfg.Telegram.ChatID)

	resolver := appdir.NewResolver(repoAdapter, cacheAdapter)

	intakeService := intake.NewService(
		logger, cfg.SelfPackage,
		repoAdapter, repoAdapter, settingsService,
		classifyService, relay, eventQueue, resolver, cacheAdapter, cfg.Intake.DedupeTTL,
	)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Int("workers", cfg.Intake.Workers).Msg("worker: старт")
	intakeService.Run(ctx, cfg.Intake.Workers)
	logger.Info().Msg("worker: остановка")
}
