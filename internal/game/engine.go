// Package game связывает сетку мира, перемещения, бои, экономику и рассылку
// в операции, которые выполняет игрок.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/broadcast"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/narration"
	"github.com/annel0/shard-realms/internal/storage"
	"github.com/annel0/shard-realms/internal/tasks"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Экономика движения
const (
	TreasureReward    int64 = 10
	MoveCostPerSquare int64 = 50
)

// Actor пользователь, от имени которого выполняется операция
type Actor struct {
	UserID   uint64
	Username string
}

// Broadcaster рассылает сетку зрителям мира
type Broadcaster interface {
	Publish(ctx context.Context, w *world.World, viewer uint64)
	PublishDestroyed(ctx context.Context, worldID uint64)
}

// Config зависимости движка. Bus и Registerer необязательны.
type Config struct {
	Worlds       storage.WorldRepo
	Ledger       *economy.Ledger
	Achievements *achievement.Tracker
	Broadcaster  Broadcaster
	Narration    *narration.Safe
	Tasks        *tasks.Supervisor
	Bus          eventbus.EventBus
	Registerer   prometheus.Registerer
	// Seed источника случайности; 0 означает текущее время
	Seed int64
}

// Engine выполняет игровые операции. Каждая изменяющая операция держит
// блокировку своего мира, меняет загруженную копию и сохраняет её только при успехе.
type Engine struct {
	worlds       storage.WorldRepo
	ledger       *economy.Ledger
	achievements *achievement.Tracker
	broadcaster  Broadcaster
	narration    *narration.Safe
	tasks        *tasks.Supervisor
	bus          eventbus.EventBus

	locks   *lockSet
	rngMu   sync.Mutex
	rng     *rand.Rand
	metrics *engineMetrics
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewEngine создаёт движок
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Worlds == nil || cfg.Ledger == nil || cfg.Achievements == nil || cfg.Broadcaster == nil || cfg.Narration == nil || cfg.Tasks == nil {
		return nil, errors.New("game: missing engine dependency")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	metrics, err := newEngineMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register game metrics: %w", err)
	}
	return &Engine{
		worlds:       cfg.Worlds,
		ledger:       cfg.Ledger,
		achievements: cfg.Achievements,
		broadcaster:  cfg.Broadcaster,
		narration:    cfg.Narration,
		tasks:        cfg.Tasks,
		bus:          cfg.Bus,
		locks:        newLockSet(),
		rng:          rand.New(rand.NewSource(seed)),
		metrics:      metrics,
		tracer:       otel.Tracer("github.com/annel0/shard-realms/internal/game"),
		logger:       logging.GetGameLogger(),
	}, nil
}

// newRand независимый генератор для одной операции
func (e *Engine) newRand() *rand.Rand {
	return rand.New(rand.NewSource(e.newSeed()))
}

func (e *Engine) newSeed() int64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Int63()
}

func (e *Engine) startSpan(ctx context.Context, op string, actor Actor, worldID uint64) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "game."+op, trace.WithAttributes(
		attribute.Int64("user.id", int64(actor.UserID)),
		attribute.Int64("world.id", int64(worldID)),
	))
}

// finish закрывает span и пишет метрики операции
func (e *Engine) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	e.metrics.observe(op, start, err)
}

// loadVisible загружает мир, который актор может видеть
func (e *Engine) loadVisible(ctx context.Context, actor Actor, worldID uint64) (*world.World, error) {
	w, err := e.worlds.Get(ctx, worldID)
	if err != nil {
		return nil, err
	}
	if !w.CanView(actor.UserID) {
		return nil, apperr.Newf(apperr.KindAccessDenied, "world %d is not visible to user %d", worldID, actor.UserID)
	}
	if w.Battles == nil {
		w.Battles = make(map[uint64]*battle.Battle)
	}
	return w, nil
}

// loadOwned загружает мир, которым владеет актор
func (e *Engine) loadOwned(ctx context.Context, actor Actor, worldID uint64) (*world.World, error) {
	w, err := e.worlds.Get(ctx, worldID)
	if err != nil {
		return nil, err
	}
	if w.CreatorID != actor.UserID {
		return nil, apperr.Newf(apperr.KindAccessDenied, "world %d belongs to another user", worldID)
	}
	return w, nil
}

// commit сохраняет мир и рассылает его сетку
func (e *Engine) commit(ctx context.Context, w *world.World, viewer uint64) error {
	if err := e.worlds.Save(ctx, w); err != nil {
		return fmt.Errorf("save world %d: %w", w.ID, err)
	}
	e.broadcaster.Publish(ctx, w, viewer)
	return nil
}

// destroy удаляет мир каскадно и сообщает зрителям
func (e *Engine) destroy(ctx context.Context, w *world.World, reason string) error {
	if err := e.worlds.Delete(ctx, w.ID); err != nil {
		return fmt.Errorf("delete world %d: %w", w.ID, err)
	}
	e.metrics.worlds.WithLabelValues("destroyed").Inc()
	e.broadcaster.PublishDestroyed(ctx, w.ID)
	e.emit(ctx, eventbus.TypeWorldDestroyed, w.ID, WorldEvent{WorldID: w.ID, CreatorID: w.CreatorID, Name: w.Name, Reason: reason})
	e.logger.Info("💥 Мир %d (%q) удалён: %s", w.ID, w.Name, reason)
	return nil
}

// CreateWorld создаёт мир актора. Лор генерируется синхронно,
// фон генерируется фоновой задачей и рассылается по готовности.
func (e *Engine) CreateWorld(ctx context.Context, actor Actor, name string, isPublic bool) (_ *world.World, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "CreateWorld", actor, 0)
	defer func() { e.finish(span, "create_world", start, err) }()

	id, err := e.worlds.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate world id: %w", err)
	}
	span.SetAttributes(attribute.Int64("world.id", int64(id)))

	seed := e.newSeed()
	w, err := world.NewWorldGenerator(rand.New(rand.NewSource(seed))).Generate(id, actor.UserID, name, isPublic, seed)
	if err != nil {
		return nil, err
	}
	w.Lore = e.narration.DescribeWorld(ctx, w.Name)

	unlock := e.locks.lock(id)
	err = e.commit(ctx, w, actor.UserID)
	unlock()
	if err != nil {
		return nil, err
	}

	e.metrics.worlds.WithLabelValues("created").Inc()
	e.emit(ctx, eventbus.TypeWorldCreated, id, WorldEvent{WorldID: id, CreatorID: actor.UserID, Name: w.Name})
	e.logger.Info("🌍 User %d создал мир %d (%q, public=%v)", actor.UserID, id, w.Name, isPublic)

	prompt := narration.BackgroundPrompt(w.Name, w.Lore)
	if _, terr := e.tasks.Go(fmt.Sprintf("background:%d", id), func(tctx context.Context) error {
		return e.applyBackground(tctx, id, prompt)
	}); terr != nil {
		e.logger.Warn("⚠️ Фон мира %d не будет сгенерирован: %v", id, terr)
	}
	return w, nil
}

// applyBackground генерирует фон и записывает его в мир, если мир ещё существует
func (e *Engine) applyBackground(ctx context.Context, worldID uint64, prompt string) error {
	url := e.narration.GenerateBackground(ctx, prompt)

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.worlds.Get(ctx, worldID)
	if errors.Is(err, apperr.ErrWorldNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	w.BackgroundImageURL = url
	return e.commit(ctx, w, 0)
}

// JoinWorld ставит актора на случайную пустую клетку мира.
// Повторный вход игрока, уже стоящего на сетке, ничего не меняет.
func (e *Engine) JoinWorld(ctx context.Context, actor Actor, worldID uint64) (_ *world.World, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "JoinWorld", actor, worldID)
	defer func() { e.finish(span, "join_world", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	if w.HasPlayer(actor.UserID) {
		return w, nil
	}

	empty := w.EmptyCells()
	if len(empty) == 0 {
		return nil, apperr.Newf(apperr.KindWorldFull, "world %d has no empty square", worldID)
	}
	pos := empty[e.newRand().Intn(len(empty))]
	w.Cell(pos).Content = world.OccupiedBy(actor.UserID)
	w.UserState(actor.UserID)

	if err := e.commit(ctx, w, actor.UserID); err != nil {
		return nil, err
	}
	e.logger.Info("🚪 User %d вошёл в мир %d на %s", actor.UserID, worldID, pos)
	return w, nil
}

// ListWorlds свои миры актора и публичные миры других игроков
func (e *Engine) ListWorlds(ctx context.Context, actor Actor) ([]world.Summary, error) {
	all, err := e.worlds.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]world.Summary, 0, len(all))
	for _, s := range all {
		if s.CreatorID == actor.UserID || s.IsPublic {
			out = append(out, s)
		}
	}
	return out, nil
}

// View мир глазами актора
type View struct {
	Grid     broadcast.GridSnapshot `json:"grid"`
	Battle   *battle.Battle         `json:"battle,omitempty"`
	Health   int                    `json:"health"`
	Position *vec.Vec2              `json:"position,omitempty"`
	Balance  int64                  `json:"balance"`
}

// ShowWorld сетка, активный бой, здоровье и баланс актора
func (e *Engine) ShowWorld(ctx context.Context, actor Actor, worldID uint64) (*View, error) {
	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	balance, err := e.ledger.Balance(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	v := &View{Grid: broadcast.BuildSnapshot(w, actor.UserID), Health: world.DefaultHealth, Balance: balance}
	if st, ok := w.Users[actor.UserID]; ok {
		v.Health = st.Health
	}
	if b, ok := w.ActiveBattle(actor.UserID); ok {
		v.Battle = b.Clone()
	}
	if pos, ok := w.PositionOf(actor.UserID); ok {
		v.Position = &pos
	}
	return v, nil
}

// DestroyWorld удаляет мир; доступно только создателю
func (e *Engine) DestroyWorld(ctx context.Context, actor Actor, worldID uint64) (err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "DestroyWorld", actor, worldID)
	defer func() { e.finish(span, "destroy_world", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadOwned(ctx, actor, worldID)
	if err != nil {
		return err
	}
	return e.destroy(ctx, w, "abandoned by creator")
}

// HostWorld помечает мир как размещённый по адресу address; пустой адрес снимает пометку
func (e *Engine) HostWorld(ctx context.Context, actor Actor, worldID uint64, address string) (_ *world.World, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "HostWorld", actor, worldID)
	defer func() { e.finish(span, "host_world", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadOwned(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	w.IsHosted = address != ""
	w.HostAddress = address
	if err := e.commit(ctx, w, actor.UserID); err != nil {
		return nil, err
	}
	return w, nil
}

// CanSubscribe проверяет подписку зрителя на канал мира
func (e *Engine) CanSubscribe(ctx context.Context, worldID, viewerID uint64) error {
	_, err := e.loadVisible(ctx, Actor{UserID: viewerID}, worldID)
	return err
}

// Balance баланс шардов актора
func (e *Engine) Balance(ctx context.Context, actor Actor) (int64, error) {
	return e.ledger.Balance(ctx, actor.UserID)
}

// Achievements каталог достижений с прогрессом актора
func (e *Engine) Achievements(ctx context.Context, actor Actor) ([]achievement.Status, error) {
	return e.achievements.List(ctx, actor.UserID)
}

// ClaimAchievement выплачивает награду за завершённое достижение
func (e *Engine) ClaimAchievement(ctx context.Context, actor Actor, achievementID uint64) (reward, balance int64, err error) {
	reward, balance, err = e.achievements.Claim(ctx, actor.UserID, achievementID)
	if err == nil {
		e.metrics.credited(reward)
	}
	return reward, balance, err
}

// Close отменяет фоновые задачи и ждёт их завершения
func (e *Engine) Close(ctx context.Context) error {
	return e.tasks.Shutdown(ctx)
}

// recordProgress засчитывает достижения; сбой трекера не отменяет действие
func (e *Engine) recordProgress(ctx context.Context, userID uint64, names ...string) {
	for _, name := range names {
		if _, _, err := e.achievements.RecordProgress(ctx, userID, name); err != nil {
			e.logger.Warn("⚠️ Прогресс %q для user %d не записан: %v", name, userID, err)
		}
	}
}
