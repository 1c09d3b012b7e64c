package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/narration"
	"github.com/annel0/shard-realms/internal/storage"
	"github.com/annel0/shard-realms/internal/tasks"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []publishCall
	destroyed []uint64
}

type publishCall struct {
	worldID uint64
	viewer  uint64
	image   string
}

func (r *recordingBroadcaster) Publish(ctx context.Context, w *world.World, viewer uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, publishCall{worldID: w.ID, viewer: viewer, image: w.BackgroundImageURL})
}

func (r *recordingBroadcaster) PublishDestroyed(ctx context.Context, worldID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, worldID)
}

func (r *recordingBroadcaster) publishCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

type failingNarrator struct{}

func (failingNarrator) DescribeEncounter(context.Context, battle.EnemyStats) (string, error) {
	return "", errors.New("provider down")
}

func (failingNarrator) DescribeWorld(context.Context, string) (string, error) {
	return "", errors.New("provider down")
}

type failingIllustrator struct{}

func (failingIllustrator) GenerateBackground(context.Context, string) (string, error) {
	return "", errors.New("provider down")
}

type fixedIllustrator string

func (f fixedIllustrator) GenerateBackground(context.Context, string) (string, error) {
	return string(f), nil
}

// unstableRepo хранилище миров, в котором можно сломать Save
type unstableRepo struct {
	*storage.MemoryWorldRepo
	failSaves atomic.Bool
}

func (r *unstableRepo) Save(ctx context.Context, w *world.World) error {
	if r.failSaves.Load() {
		return errors.New("disk full")
	}
	return r.MemoryWorldRepo.Save(ctx, w)
}

type harness struct {
	engine  *Engine
	repo    *storage.MemoryWorldRepo
	worlds  *unstableRepo
	ledger  *economy.Ledger
	tracker *achievement.Tracker
	bc      *recordingBroadcaster
	tasks   *tasks.Supervisor
}

var (
	alice = Actor{UserID: 1, Username: "alice"}
	bob   = Actor{UserID: 2, Username: "bob"}
)

func newHarness(t *testing.T, n narration.Narrator, i narration.Illustrator) *harness {
	t.Helper()
	h := &harness{
		repo:   storage.NewMemoryWorldRepo(),
		ledger: economy.NewLedger(economy.NewMemoryStore()),
		bc:     &recordingBroadcaster{},
		tasks:  tasks.NewSupervisor(),
	}
	h.tracker = achievement.NewTracker(achievement.NewMemoryProgressRepo(), h.ledger, nil, achievement.DefaultCatalog())
	h.worlds = &unstableRepo{MemoryWorldRepo: h.repo}

	engine, err := NewEngine(Config{
		Worlds:       h.worlds,
		Ledger:       h.ledger,
		Achievements: h.tracker,
		Broadcaster:  h.bc,
		Narration:    narration.NewSafe(n, i, time.Second),
		Tasks:        h.tasks,
		Registerer:   prometheus.NewRegistry(),
		Seed:         42,
	})
	require.NoError(t, err)
	h.engine = engine
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Close(ctx)
	})
	return h
}

func newStaticHarness(t *testing.T) *harness {
	return newHarness(t, narration.Static{}, narration.Static{})
}

// emptyWorld создаёт мир alice и очищает сетку: остаётся только alice на (0,0)
func (h *harness) emptyWorld(t *testing.T, public bool) *world.World {
	t.Helper()
	w, err := h.engine.CreateWorld(context.Background(), alice, "Arena", public)
	require.NoError(t, err)
	h.tasks.Wait()
	return h.edit(t, w.ID, func(w *world.World) {
		for i := range w.Cells {
			if w.Cells[i].Pos != world.StartPos {
				w.Cells[i].Content = world.Empty()
			}
		}
	})
}

// edit меняет сохранённый мир напрямую, в обход движка
func (h *harness) edit(t *testing.T, id uint64, fn func(w *world.World)) *world.World {
	t.Helper()
	ctx := context.Background()
	w, err := h.repo.Get(ctx, id)
	require.NoError(t, err)
	fn(w)
	require.NoError(t, h.repo.Save(ctx, w))
	return w
}

func (h *harness) world(t *testing.T, id uint64) *world.World {
	t.Helper()
	w, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (h *harness) balance(t *testing.T, a Actor) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), a.UserID)
	require.NoError(t, err)
	return b
}

func (h *harness) fund(t *testing.T, a Actor, amount int64) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), a.UserID, amount, "test")
	require.NoError(t, err)
}

func at(x, y int) vec.Vec2 { return vec.Vec2{X: x, Y: y} }

func TestCreateWorldGeneratesGridAndBackground(t *testing.T) {
	h := newHarness(t, narration.Static{}, fixedIllustrator("https://img.example/bg.png"))

	w, err := h.engine.CreateWorld(context.Background(), alice, "", false)
	require.NoError(t, err)
	assert.Equal(t, world.DefaultName, w.Name)
	assert.NotEmpty(t, w.Lore, "Лор генерируется синхронно")

	counts := map[world.ContentKind]int{}
	for _, c := range w.Cells {
		counts[c.Content.Kind()]++
	}
	assert.Len(t, w.Cells, world.CellCount)
	assert.Equal(t, 1, counts[world.ContentOccupied])
	assert.Equal(t, world.TreasureCount, counts[world.ContentTreasure])
	assert.Equal(t, world.EnemyCount, counts[world.ContentEnemy])
	assert.Equal(t, world.OccupiedBy(alice.UserID), w.Cell(world.StartPos).Content)

	h.tasks.Wait()
	stored := h.world(t, w.ID)
	assert.Equal(t, "https://img.example/bg.png", stored.BackgroundImageURL)

	require.GreaterOrEqual(t, h.bc.publishCount(), 2, "Создание и готовый фон рассылаются")
	last := h.bc.published[len(h.bc.published)-1]
	assert.Equal(t, "https://img.example/bg.png", last.image)
}

func TestCreateWorldNarrationFallback(t *testing.T) {
	h := newHarness(t, failingNarrator{}, narration.Static{})

	w, err := h.engine.CreateWorld(context.Background(), alice, "Broken", false)
	require.NoError(t, err)
	assert.Equal(t, narration.FallbackText, w.Lore)

	h.tasks.Wait()
	assert.Equal(t, narration.FallbackImage, h.world(t, w.ID).BackgroundImageURL)
}

func TestBackgroundSkippedForDestroyedWorld(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()

	w, err := h.engine.CreateWorld(ctx, alice, "Gone", false)
	require.NoError(t, err)
	require.NoError(t, h.engine.DestroyWorld(ctx, alice, w.ID))
	h.tasks.Wait()

	_, err = h.repo.Get(ctx, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrWorldNotFound), "Фоновая задача не воскрешает удалённый мир")
}

func TestListWorldsVisibility(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()

	own, err := h.engine.CreateWorld(ctx, alice, "Private", false)
	require.NoError(t, err)
	public, err := h.engine.CreateWorld(ctx, bob, "Public", true)
	require.NoError(t, err)
	_, err = h.engine.CreateWorld(ctx, bob, "Hidden", false)
	require.NoError(t, err)

	list, err := h.engine.ListWorlds(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, own.ID, list[0].ID)
	assert.Equal(t, public.ID, list[1].ID)
}

func TestShowWorldAccess(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)

	v, err := h.engine.ShowWorld(ctx, alice, w.ID)
	require.NoError(t, err)
	assert.Equal(t, world.DefaultHealth, v.Health)
	require.NotNil(t, v.Position)
	assert.Equal(t, world.StartPos, *v.Position)
	assert.True(t, v.Grid.Cells[0].Mine)
	assert.Nil(t, v.Battle)

	_, err = h.engine.ShowWorld(ctx, bob, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "Чужой приватный мир недоступен")

	_, err = h.engine.ShowWorld(ctx, alice, 999)
	assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))

	assert.True(t, errors.Is(h.engine.CanSubscribe(ctx, 999, alice.UserID), apperr.ErrWorldNotFound))
	assert.NoError(t, h.engine.CanSubscribe(ctx, w.ID, alice.UserID))
}

func TestJoinWorld(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()

	private := h.emptyWorld(t, false)
	_, err := h.engine.JoinWorld(ctx, bob, private.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	public := h.emptyWorld(t, true)
	w, err := h.engine.JoinWorld(ctx, bob, public.ID)
	require.NoError(t, err)
	pos, ok := w.PositionOf(bob.UserID)
	require.True(t, ok, "Игрок должен стоять на сетке")
	assert.NotEqual(t, world.StartPos, pos)
	assert.Equal(t, world.DefaultHealth, w.Users[bob.UserID].Health)

	// Повторный вход не переставляет игрока
	again, err := h.engine.JoinWorld(ctx, bob, public.ID)
	require.NoError(t, err)
	pos2, _ := again.PositionOf(bob.UserID)
	assert.Equal(t, pos, pos2)
}

func TestJoinWorldFull(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, true)
	h.edit(t, w.ID, func(w *world.World) {
		for i := range w.Cells {
			if w.Cells[i].Pos != world.StartPos {
				w.Cells[i].Content = world.Treasure()
			}
		}
	})

	_, err := h.engine.JoinWorld(context.Background(), bob, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrWorldFull))
}

func TestDestroyWorldCreatorOnly(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, true)
	_, err := h.engine.JoinWorld(ctx, bob, w.ID)
	require.NoError(t, err)

	err = h.engine.DestroyWorld(ctx, bob, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	require.NoError(t, h.engine.DestroyWorld(ctx, alice, w.ID))
	_, err = h.repo.Get(ctx, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))
	assert.Equal(t, []uint64{w.ID}, h.bc.destroyed)

	err = h.engine.DestroyWorld(ctx, alice, w.ID)
	assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))
}

func TestHostWorld(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)

	_, err := h.engine.HostWorld(ctx, bob, w.ID, "10.0.0.1:7777")
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	hosted, err := h.engine.HostWorld(ctx, alice, w.ID, "10.0.0.1:7777")
	require.NoError(t, err)
	assert.True(t, hosted.IsHosted)
	assert.Equal(t, "10.0.0.1:7777", h.world(t, w.ID).HostAddress)

	unhosted, err := h.engine.HostWorld(ctx, alice, w.ID, "")
	require.NoError(t, err)
	assert.False(t, unhosted.IsHosted)
}

func TestLockSetReleasesEntries(t *testing.T) {
	s := newLockSet()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.lock(7)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, s.size(), "Свободные блокировки удаляются")
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}
