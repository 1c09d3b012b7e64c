package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/auth"
	"github.com/annel0/shard-realms/internal/cache"
	"github.com/annel0/shard-realms/internal/config"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/narration"
	"github.com/annel0/shard-realms/internal/shop"
	"github.com/annel0/shard-realms/internal/storage"
)

// closerStack закрывает ресурсы в обратном порядке открытия
type closerStack struct {
	ctx   context.Context
	items []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *closerStack) push(name string, fn func() error) {
	s.items = append(s.items, closer{name: name, fn: func(context.Context) error { return fn() }})
}

func (s *closerStack) pushCtx(name string, fn func(ctx context.Context) error) {
	s.items = append(s.items, closer{name: name, fn: fn})
}

func (s *closerStack) closeAll() {
	ctx := s.ctx
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	defer func() { s.items = nil }()
	for i := len(s.items) - 1; i >= 0; i-- {
		c := s.items[i]
		if err := c.fn(ctx); err != nil {
			logging.Error("❌ Ошибка закрытия %s: %v", c.name, err)
			continue
		}
		logging.Debug("Закрыт %s", c.name)
	}
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий: in-memory (capacity=%d)", cfg.Capacity)
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, err
	}
	logging.Info("📨 Шина событий: JetStream %s stream=%s", cfg.URL, cfg.Stream)
	return bus, nil
}

func openWorldRepo(cfg config.StorageConfig) (storage.WorldRepo, error) {
	switch cfg.Worlds {
	case "", "memory":
		return storage.NewMemoryWorldRepo(), nil
	case "badger":
		if err := os.MkdirAll(cfg.BadgerPath, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBadgerWorldRepo(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown world store %q", cfg.Worlds)
	}
}

func openLedgerStore(cfg config.StorageConfig) (economy.Store, error) {
	switch cfg.Ledger {
	case "", "memory":
		return economy.NewMemoryStore(), nil
	case "mysql":
		return economy.NewSQLStore(economy.DialectMySQL, cfg.LedgerDSN)
	case "sqlite":
		return economy.NewSQLStore(economy.DialectSQLite, cfg.LedgerDSN)
	default:
		return nil, fmt.Errorf("unknown ledger store %q", cfg.Ledger)
	}
}

// openInventory кладёт инвентарь в ту же SQL базу, что и балансы
func openInventory(ctx context.Context, store economy.Store) (shop.Inventory, error) {
	if sqlStore, ok := store.(*economy.SQLStore); ok {
		return shop.OpenSQLInventory(ctx, sqlStore.DB(), sqlStore.Dialect())
	}
	return shop.NewMemoryInventory(), nil
}

func openProgressRepo(cfg config.StorageConfig, mongo config.MongoConfig) (achievement.ProgressRepo, error) {
	switch cfg.Progress {
	case "", "memory":
		return achievement.NewMemoryProgressRepo(), nil
	case "mongo":
		return achievement.NewMongoProgressRepo(achievement.MongoConfig{
			URI:        mongo.URI,
			Database:   mongo.Database,
			Collection: "player_progress",
		})
	default:
		return nil, fmt.Errorf("unknown progress store %q", cfg.Progress)
	}
}

func openUserRepo(ctx context.Context, cfg config.StorageConfig, maria config.MariaConfig, mongo config.MongoConfig) (auth.UserRepository, error) {
	switch cfg.Users {
	case "", "memory":
		logging.Warn("⚠️ Используется in-memory репозиторий пользователей (test/test, admin/admin)")
		return auth.NewSeededMemoryUserRepo()
	case "maria":
		return auth.NewMariaUserRepo(ctx, auth.MariaConfig{
			Host:     maria.Host,
			Port:     maria.Port,
			Database: maria.Database,
			Username: maria.Username,
			Password: maria.Password,
		})
	case "mongo":
		return auth.NewMongoUserRepo(ctx, auth.MongoConfig{
			URI:        mongo.URI,
			Database:   mongo.Database,
			Collection: "users",
			Counters:   "counters",
		})
	default:
		return nil, fmt.Errorf("unknown user store %q", cfg.Users)
	}
}

// openGridCache кеш последних снапшотов сетки. При заданном NATS узлы
// рассылают друг другу инвалидации ключей.
func openGridCache(ctx context.Context, redisCfg config.RedisConfig, busCfg config.EventBusConfig) (cache.CacheRepo, error) {
	var invalidator cache.CacheInvalidator
	if busCfg.URL != "" {
		inv, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{NATSURL: busCfg.URL}, "")
		if err != nil {
			return nil, err
		}
		invalidator = inv
	}

	if redisCfg.Addr != "" {
		rc, err := cache.NewRedisCache(&cache.CacheConfig{
			RedisURL:      redisCfg.Addr,
			RedisPassword: redisCfg.Password,
			RedisDB:       redisCfg.DB,
			DefaultTTL:    redisCfg.TTL(),
		}, invalidator)
		if err != nil {
			if invalidator != nil {
				_ = invalidator.Close()
			}
			return nil, err
		}
		return rc, nil
	}

	mc := cache.NewMemoryCache(invalidator)
	if err := mc.Listen(ctx); err != nil {
		return nil, err
	}
	return mc, nil
}

func openNarration(cfg config.NarrationConfig) *narration.Safe {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		client := narration.NewOpenAI(narration.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			ImageModel: cfg.ImageModel,
		})
		logging.Info("🪶 Нарратив: OpenAI (%s)", cfg.Model)
		return narration.NewSafe(client, client, cfg.Timeout())
	}
	logging.Info("🪶 Нарратив: статический")
	return narration.NewSafe(narration.Static{}, narration.Static{}, cfg.Timeout())
}
