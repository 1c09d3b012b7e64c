package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/api"
	"github.com/annel0/shard-realms/internal/auth"
	"github.com/annel0/shard-realms/internal/broadcast"
	"github.com/annel0/shard-realms/internal/config"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/game"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/observability"
	"github.com/annel0/shard-realms/internal/shop"
	"github.com/annel0/shard-realms/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (falls back to GAME_CONFIG)")
	flag.Parse()

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		os.Exit(1)
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevels(level, level)
	logging.GetLoggerManager().EnableFileOutput(cfg.Logging.FileOutput)

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	logging.Info("🎮 Запуск Shard Realms %s", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers closerStack
	defer closers.closeAll()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	closers.pushCtx("telemetry", shutdownTelemetry)

	reg := prometheus.DefaultRegisterer

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	closers.push("event bus", bus.Close)

	busLog, err := eventbus.StartLoggingListener(bus)
	if err != nil {
		return fmt.Errorf("event logger: %w", err)
	}
	closers.push("event logger", func() error { busLog.Unsubscribe(); return nil })

	exporter, err := eventbus.NewMetricsExporter(bus, reg)
	if err != nil {
		return fmt.Errorf("event metrics: %w", err)
	}
	exporter.Start(5 * time.Second)
	closers.push("event metrics", func() error { exporter.Stop(); return nil })

	// === ХРАНИЛИЩА ===
	worlds, err := openWorldRepo(cfg.Storage)
	if err != nil {
		return fmt.Errorf("world store: %w", err)
	}
	closers.push("world store", worlds.Close)

	ledgerStore, err := openLedgerStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	ledger := economy.NewLedger(ledgerStore)
	closers.push("ledger", ledger.Close)

	inventory, err := openInventory(ctx, ledgerStore)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	itemShop := shop.New(ledger, inventory)
	closers.push("inventory", itemShop.Close)

	progress, err := openProgressRepo(cfg.Storage, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("progress store: %w", err)
	}
	closers.push("progress store", progress.Close)

	users, err := openUserRepo(ctx, cfg.Storage, cfg.Maria, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	closers.push("user store", users.Close)

	gridCache, err := openGridCache(ctx, cfg.Redis, cfg.EventBus)
	if err != nil {
		return fmt.Errorf("grid cache: %w", err)
	}
	closers.push("grid cache", gridCache.Close)

	// === ИГРА ===
	notifier, err := broadcast.NewNotifier(bus, gridCache, cfg.Redis.TTL(), reg)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	supervisor := tasks.NewSupervisor()
	engine, err := game.NewEngine(game.Config{
		Worlds:       worlds,
		Ledger:       ledger,
		Achievements: achievement.NewTracker(progress, ledger, bus, achievement.DefaultCatalog()),
		Broadcaster:  notifier,
		Narration:    openNarration(cfg.Narration),
		Tasks:        supervisor,
		Bus:          bus,
		Registerer:   reg,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	closers.pushCtx("background tasks", engine.Close)

	hub := broadcast.NewHub(bus, engine.CanSubscribe, notifier.Latest)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	closers.push("hub", func() error { hub.Close(); return nil })

	// === API ===
	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Hour)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logging.Warn("⚠️ GAME_JWT_SECRET не задан: токены не переживут перезапуск")
	}

	hostname, _ := os.Hostname()
	webhooks := api.NewOutboundWebhookManager(hostname, "production")
	if err := webhooks.Attach(ctx, bus); err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}
	closers.push("webhooks", func() error { webhooks.Close(); return nil })

	rest, err := api.NewRestServer(api.Config{
		Engine:      engine,
		Auth:        auth.NewGameAuthenticator(users, issuer),
		Hub:         hub,
		Shop:        itemShop,
		Webhooks:    webhooks,
		Registerer:  reg,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("rest: %w", err)
	}

	server := api.NewServerIntegration(rest, fmt.Sprintf(":%d", cfg.Server.GetRESTPort()))
	server.Start()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   📡 WebSocket: ws://localhost:%d/cable?world_id=<id>&token=<jwt>", cfg.Server.GetRESTPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаем сервисы...")
	case err := <-server.Errors():
		return fmt.Errorf("rest server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	closers.ctx = shutdownCtx
	closers.closeAll()
	return nil
}
