// Package main - точка входа REST API сервиса HabitLoop Core.
//
// Ядро учёта привычек: приём чек-инов, вычисление серий (streaks),
// аналитика прогресса и достижения. Логи чек-инов - единственный
// источник истины; снапшоты серий - производный кеш.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries/Sagas)
// - Infrastructure: PostgreSQL, Redis, event bus
// - Interface: HTTP endpoints
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/habitloop/habitloop-core/config"

	// Application layer
	"github.com/habitloop/habitloop-core/internal/application/command"
	"github.com/habitloop/habitloop-core/internal/application/eventhandler"
	"github.com/habitloop/habitloop-core/internal/application/query"
	"github.com/habitloop/habitloop-core/internal/application/saga"

	// Domain layer
	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"

	// Infrastructure layer
	"github.com/habitloop/habitloop-core/internal/infrastructure/messaging"
	"github.com/habitloop/habitloop-core/internal/infrastructure/persistence/postgres"
	"github.com/habitloop/habitloop-core/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/habitloop/habitloop-core/internal/interface/http"

	// Packages
	"github.com/habitloop/habitloop-core/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	appLog := logger.New(os.Stdout, logger.ParseLevel(cfg.Observability.LogLevel))

	slogger.Info("starting HabitLoop Core API",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache    *redis.Cache
		progressCache query.ProgressCache
		redisPinger   httpserver.Pinger
	)

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		client, err := redis.NewClient(ctx, redisConfigFrom(cfg))
		if err != nil {
			slogger.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer client.Close()
			redisCache = redis.NewCache(client)
			progressCache = redis.NewProgressCache(redisCache)
			redisPinger = redisCache
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = slogger
	busConfig.AsyncMode = cfg.EventBus.Async
	busConfig.WorkerPoolSize = cfg.EventBus.Workers

	var eventBus shared.EventBus
	if cfg.EventBus.Distributed && redisCache != nil {
		client, err := redis.NewClient(ctx, redisConfigFrom(cfg))
		if err != nil {
			return fmt.Errorf("failed to connect pub/sub client: %w", err)
		}
		defer client.Close()

		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:   redis.NewPubSub(client),
			Channel:  cfg.EventBus.Channel,
			LocalBus: busConfig,
			Logger:   slogger,
		})
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
		eventBus = bus
	} else {
		eventBus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing repositories...")
	habitRepo := postgres.NewHabitRepository(dbConn)
	logRepo := postgres.NewLogRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	uow := postgres.NewUnitOfWork(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ DOMAIN ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	engine := habit.NewStreakEngine(habit.EngineConfig{
		Grace:                 cfg.Tracking.GracePeriod,
		SatisfactionThreshold: cfg.Tracking.SatisfactionThreshold,
	})
	analyzer := habit.NewAnalyzer(engine)
	evaluator := achievement.NewEvaluator()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing application layer...")
	submitCheckin := command.NewSubmitCheckinHandler(uow, engine, evaluator, achievementRepo, eventBus, appLog)
	correctCheckin := command.NewCorrectCheckinHandler(uow, engine, eventBus, appLog)
	manageHabit := command.NewManageHabitHandler(habitRepo, uow, engine, eventBus, appLog)

	getStreaks := query.NewGetStreaksHandler(habitRepo)
	getProgress := query.NewGetProgressHandler(habitRepo, logRepo, engine, analyzer,
		progressCache, cfg.Tracking.ProgressCacheTTL, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("registering event handlers...")

	streakChanged := eventhandler.NewStreakChangedHandler(progressCache, appLog)
	if err := eventBus.SubscribeAll(streakChanged.Handle); err != nil {
		return fmt.Errorf("failed to subscribe cache invalidator: %w", err)
	}

	achievementFlow := saga.NewAchievementFlow(habitRepo, logRepo, engine, evaluator,
		achievementRepo, eventBus, appLog)
	for _, t := range []shared.EventType{
		shared.EventCheckinRecorded,
		shared.EventCheckinCorrected,
		shared.EventCheckinDeleted,
		shared.EventStreakExtended,
	} {
		if err := eventBus.Subscribe(t, achievementFlow.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe achievement flow: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxHeaderBytes = cfg.HTTP.MaxHeaderBytes
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeyHashes = cfg.HTTP.APIKeyHashes
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	httpDeps := httpserver.Dependencies{
		SubmitCheckin:  submitCheckin,
		CorrectCheckin: correctCheckin,
		ManageHabit:    manageHabit,
		GetStreaks:     getStreaks,
		GetProgress:    getProgress,
		Achievements:   achievementRepo,
		Postgres:       dbConn,
		Redis:          redisPinger,
		Logger:         appLog,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	slogger.Info("HabitLoop Core API is running", "address", httpConfig.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slogger.Error("server error", "error", err)
			return err
		}
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	slogger.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupSlog настраивает структурированное логирование для инфраструктуры.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// redisConfigFrom собирает redis.Config из конфигурации приложения.
func redisConfigFrom(cfg *config.Config) redis.Config {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
	return redisCfg
}
