package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/cache"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorld(t *testing.T, id, creator uint64) *world.World {
	t.Helper()
	w, err := world.NewWorldGenerator(rand.New(rand.NewSource(7))).Generate(id, creator, "Broadcast", false, 7)
	require.NoError(t, err)
	return w
}

func knownWorlds(ids ...uint64) Access {
	return func(ctx context.Context, worldID, viewerID uint64) error {
		for _, id := range ids {
			if id == worldID {
				return nil
			}
		}
		return apperr.Newf(apperr.KindWorldNotFound, "world %d not found", worldID)
	}
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case data, ok := <-c.Messages():
		require.True(t, ok, "Канал зрителя неожиданно закрыт")
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("Кадр не получен")
		return Frame{}
	}
}

func TestBuildSnapshotOrderAndMine(t *testing.T) {
	w := testWorld(t, 1, 5)
	s := BuildSnapshot(w, 5)

	require.Len(t, s.Cells, world.CellCount)
	for i, c := range s.Cells {
		assert.Equal(t, i/world.GridSize, c.Y, "Клетки упорядочены по строкам")
		assert.Equal(t, i%world.GridSize, c.X)
	}
	assert.True(t, s.Cells[0].Mine, "Стартовая клетка принадлежит создателю")
	assert.Equal(t, "occupied", s.Cells[0].Content)
	assert.Equal(t, uint64(5), s.Cells[0].PlayerID)

	other := s.ForViewer(9)
	assert.False(t, other.Cells[0].Mine)
	assert.True(t, s.Cells[0].Mine, "ForViewer не меняет исходный снапшот")
	assert.False(t, BuildSnapshot(w, 0).Cells[0].Mine)
}

func TestNotifierPublishesGrid(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *eventbus.Envelope, 1)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.TypeWorldGrid}}, func(ctx context.Context, ev *eventbus.Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	c := cache.NewMemoryCache(nil)
	n, err := NewNotifier(bus, c, time.Minute, prometheus.NewRegistry())
	require.NoError(t, err)

	w := testWorld(t, 3, 5)
	n.Publish(context.Background(), w, 5)

	select {
	case ev := <-got:
		assert.Equal(t, "3", ev.Metadata[eventbus.MetaWorldID])
		var s GridSnapshot
		require.NoError(t, json.Unmarshal(ev.Payload, &s))
		assert.Len(t, s.Cells, world.CellCount)
		assert.Equal(t, uint64(5), s.ViewerID)
	case <-time.After(2 * time.Second):
		t.Fatal("Снапшот не опубликован")
	}

	latest, ok := n.Latest(context.Background(), 3)
	require.True(t, ok, "Последний снапшот должен быть в кеше")
	assert.Equal(t, uint64(0), latest.ViewerID)

	n.PublishDestroyed(context.Background(), 3)
	_, ok = n.Latest(context.Background(), 3)
	assert.False(t, ok, "Удаление мира инвалидирует кеш")
	assert.Zero(t, n.Failures())
}

func TestNotifierSwallowsFailures(t *testing.T) {
	bus := eventbus.NewMemoryBus(4)
	require.NoError(t, bus.Close())

	n, err := NewNotifier(bus, nil, 0, nil)
	require.NoError(t, err)

	n.Publish(context.Background(), testWorld(t, 1, 1), 1)
	n.PublishDestroyed(context.Background(), 1)
	assert.Equal(t, uint64(2), n.Failures())
}

func TestHubRejectsUnknownWorld(t *testing.T) {
	bus := eventbus.NewMemoryBus(4)
	defer bus.Close()
	h := NewHub(bus, knownWorlds(1), nil)

	_, err := h.Subscribe(context.Background(), 2, 5)
	assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))
	assert.Equal(t, 0, h.Viewers(2))
}

func TestHubFansOutPerViewer(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	n, err := NewNotifier(bus, nil, 0, nil)
	require.NoError(t, err)

	h := NewHub(bus, knownWorlds(1), nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close()

	owner, err := h.Subscribe(context.Background(), 1, 5)
	require.NoError(t, err)
	guest, err := h.Subscribe(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Viewers(1))

	n.Publish(context.Background(), testWorld(t, 1, 5), 9)

	f := readFrame(t, owner)
	assert.Equal(t, FrameGrid, f.Type)
	require.NotNil(t, f.Snapshot)
	assert.True(t, f.Snapshot.Cells[0].Mine, "Владелец видит свою клетку")

	f = readFrame(t, guest)
	assert.False(t, f.Snapshot.Cells[0].Mine, "Гость не видит чужую клетку своей")

	n.PublishDestroyed(context.Background(), 1)
	f = readFrame(t, owner)
	assert.Equal(t, FrameDestroyed, f.Type)

	select {
	case _, ok := <-owner.Messages():
		assert.False(t, ok, "После удаления мира канал закрыт")
	case <-time.After(2 * time.Second):
		t.Fatal("Канал не закрыт")
	}
	assert.Eventually(t, func() bool { return h.Viewers(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendsLatestOnSubscribe(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	n, err := NewNotifier(bus, cache.NewMemoryCache(nil), time.Minute, nil)
	require.NoError(t, err)

	n.Publish(context.Background(), testWorld(t, 4, 5), 5)

	h := NewHub(bus, knownWorlds(4), n.Latest)
	c, err := h.Subscribe(context.Background(), 4, 5)
	require.NoError(t, err)

	f := readFrame(t, c)
	assert.Equal(t, uint64(4), f.WorldID)
	assert.True(t, f.Snapshot.Cells[0].Mine)
	h.Unsubscribe(c)
	h.Unsubscribe(c)
}

func TestHubServeWS(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	n, err := NewNotifier(bus, nil, 0, nil)
	require.NoError(t, err)
	h := NewHub(bus, knownWorlds(1), nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uint64(1)
		if r.URL.Query().Get("world_id") == "2" {
			id = 2
		}
		if err := h.ServeWS(w, r, id, 5); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?world_id=2", nil)
	require.Error(t, err, "Подписка на неизвестный мир отклоняется")
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?world_id=1", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Viewers(1) == 1 }, 2*time.Second, 10*time.Millisecond)
	n.Publish(context.Background(), testWorld(t, 1, 5), 5)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameGrid, f.Type)
	assert.Len(t, f.Snapshot.Cells, world.CellCount)
}

func TestPublishDestroyedIsViewerOnly(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	got := make(chan string, 4)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		got <- ev.EventType
	})
	require.NoError(t, err)

	n, err := NewNotifier(bus, nil, 0, nil)
	require.NoError(t, err)
	n.PublishDestroyed(context.Background(), 4)

	select {
	case typ := <-got:
		assert.Equal(t, eventbus.TypeWorldGridClosed, typ, "Игровое событие world.destroyed публикует движок")
	case <-time.After(2 * time.Second):
		t.Fatal("Кадр удаления не опубликован")
	}
	select {
	case typ := <-got:
		t.Fatalf("Лишнее событие %s", typ)
	case <-time.After(50 * time.Millisecond):
	}
}
