package broadcast

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/annel0/shard-realms/internal/cache"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

const source = "broadcast"

// publishTimeout ограничивает публикацию, не завися от отмены запроса
const publishTimeout = 2 * time.Second

// Notifier публикует снапшоты сетки в шину событий.
// Публикация "выстрелил и забыл": ошибки логируются и считаются, но не возвращаются.
type Notifier struct {
	bus      eventbus.EventBus
	cache    cache.CacheRepo
	cacheTTL time.Duration
	logger   *logging.Logger

	failures  atomic.Uint64
	published *prometheus.CounterVec
	failed    prometheus.Counter
}

// NewNotifier создаёт нотификатор. c может быть nil (без кеша последних снапшотов),
// reg может быть nil (без метрик).
func NewNotifier(bus eventbus.EventBus, c cache.CacheRepo, cacheTTL time.Duration, reg prometheus.Registerer) (*Notifier, error) {
	n := &Notifier{
		bus:      bus,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logging.GetBroadcastLogger(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broadcast",
			Name:      "published_total",
			Help:      "Опубликованные события сетки по типу.",
		}, []string{"type"}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "broadcast",
			Name:      "failures_total",
			Help:      "Публикации, завершившиеся ошибкой.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{n.published, n.failed} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func worldMeta(worldID uint64) map[string]string {
	return map[string]string{eventbus.MetaWorldID: strconv.FormatUint(worldID, 10)}
}

// Publish рассылает текущую сетку мира w с точки зрения viewer
func (n *Notifier) Publish(ctx context.Context, w *world.World, viewer uint64) {
	snapshot := BuildSnapshot(w, viewer)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if n.cache != nil {
		if data, err := json.Marshal(snapshot.ForViewer(0)); err == nil {
			if err := n.cache.Set(ctx, cache.GridKey(w.ID), data, n.cacheTTL); err != nil {
				n.logger.Warn("⚠️ Не удалось закешировать сетку мира %d: %v", w.ID, err)
			}
		}
	}

	n.emit(ctx, eventbus.TypeWorldGrid, w.ID, snapshot)
}

// PublishDestroyed сообщает зрителям, что мир удалён. Игровое событие
// world.destroyed публикует движок.
func (n *Notifier) PublishDestroyed(ctx context.Context, worldID uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if n.cache != nil {
		if err := n.cache.Invalidate(ctx, cache.GridKey(worldID)); err != nil {
			n.logger.Warn("⚠️ Не удалось инвалидировать сетку мира %d: %v", worldID, err)
		}
	}

	n.emit(ctx, eventbus.TypeWorldGridClosed, worldID, map[string]uint64{"world_id": worldID})
}

// Latest последний снапшот мира из кеша (без зрителя)
func (n *Notifier) Latest(ctx context.Context, worldID uint64) (*GridSnapshot, bool) {
	if n.cache == nil {
		return nil, false
	}
	data, err := n.cache.Get(ctx, cache.GridKey(worldID))
	if err != nil {
		if !cache.IsCacheMiss(err) {
			n.logger.Warn("⚠️ Ошибка чтения кеша сетки мира %d: %v", worldID, err)
		}
		return nil, false
	}
	var s GridSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		n.logger.Warn("⚠️ Повреждённый снапшот мира %d в кеше: %v", worldID, err)
		return nil, false
	}
	return &s, true
}

// Failures количество неудачных публикаций
func (n *Notifier) Failures() uint64 {
	return n.failures.Load()
}

func (n *Notifier) emit(ctx context.Context, eventType string, worldID uint64, payload any) {
	env, err := eventbus.NewEnvelope(source, eventType, payload, worldMeta(worldID))
	if err == nil {
		err = n.bus.Publish(ctx, env)
	}
	if err != nil {
		n.failures.Add(1)
		n.failed.Inc()
		n.logger.Error("❌ Broadcast %s для мира %d не отправлен: %v", eventType, worldID, err)
		return
	}
	n.published.WithLabelValues(eventType).Inc()
}
