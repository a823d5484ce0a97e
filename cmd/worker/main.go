// Package main - точка входа для фоновых процессов (Worker) HabitLoop Core.
//
// Worker отвечает за периодические задачи:
// - Сверка снапшотов серий с историей логов (repair drift)
// - Сканирование риска срыва серий и публикация алертов
// - Доставка исходящих событий внешним потребителям
//
// Периоды закрываются ходом часов, а не записями: без Worker снапшот
// привычки устаревает, пока пользователь молчит.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/habitloop/habitloop-core/config"

	// Domain layer
	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"

	// Application layer
	"github.com/habitloop/habitloop-core/internal/application/eventhandler"
	"github.com/habitloop/habitloop-core/internal/application/saga"

	// Infrastructure layer
	"github.com/habitloop/habitloop-core/internal/infrastructure/messaging"
	"github.com/habitloop/habitloop-core/internal/infrastructure/persistence/postgres"
	"github.com/habitloop/habitloop-core/internal/infrastructure/persistence/redis"
	"github.com/habitloop/habitloop-core/internal/infrastructure/scheduler"
	"github.com/habitloop/habitloop-core/internal/infrastructure/scheduler/jobs"

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

	slogger.Info("starting HabitLoop Core Worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
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

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache    *redis.Cache
		progressCache *redis.ProgressCache
		eventSink     *redis.EventStreamSink
	)

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		client, err := redis.NewClient(ctx, redisConfigFrom(cfg))
		if err != nil {
			slogger.Warn("failed to connect to Redis, cache and sinks disabled", "error", err)
		} else {
			defer client.Close()
			redisCache = redis.NewCache(client)
			progressCache = redis.NewProgressCache(redisCache)
			eventSink = redis.NewEventStreamSink(client, "", 0)
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ EVENT BUS И DISPATCHER
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

	var dispatcher *messaging.Dispatcher
	if eventSink != nil {
		dispatcherCfg := messaging.DefaultDispatcherConfig()
		dispatcherCfg.Logger = slogger
		dispatcher = messaging.NewDispatcher(dispatcherCfg, eventSink)
		defer func() {
			slogger.Info("closing dispatcher...")
			_ = dispatcher.Close()
		}()

		if err := eventBus.SubscribeAll(dispatcher.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe dispatcher: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ И DOMAIN ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	habitRepo := postgres.NewHabitRepository(dbConn)
	logRepo := postgres.NewLogRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)

	engine := habit.NewStreakEngine(habit.EngineConfig{
		Grace:                 cfg.Tracking.GracePeriod,
		SatisfactionThreshold: cfg.Tracking.SatisfactionThreshold,
	})
	analyzer := habit.NewAnalyzer(engine)
	evaluator := achievement.NewEvaluator()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if progressCache != nil {
		streakChanged := eventhandler.NewStreakChangedHandler(progressCache, appLog)
		if err := eventBus.SubscribeAll(streakChanged.Handle); err != nil {
			return fmt.Errorf("failed to subscribe cache invalidator: %w", err)
		}
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
	// 8. ИНИЦИАЛИЗАЦИЯ SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		slogger.Warn("scheduler disabled, worker has nothing to do")
		return nil
	}

	sched := scheduler.New(scheduler.Config{
		Logger:   slogger,
		Timezone: cfg.Scheduler.Location,
	})

	reconcileJob := jobs.NewReconcileSnapshotsJob(habitRepo, logRepo, engine, eventBus, slogger)
	if err := sched.Register(cfg.Scheduler.ReconcileSpec, reconcileJob); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	riskJob := jobs.NewScanRiskJob(habitRepo, logRepo, engine, analyzer, eventBus, slogger,
		cfg.Tracking.RiskThreshold)
	if err := sched.Register(cfg.Scheduler.RiskScanSpec, riskJob); err != nil {
		return fmt.Errorf("failed to register risk scan job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sched.Start()
	slogger.Info("HabitLoop Core Worker is running",
		"reconcile_spec", cfg.Scheduler.ReconcileSpec,
		"risk_scan_spec", cfg.Scheduler.RiskScanSpec,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	sched.Stop()

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
