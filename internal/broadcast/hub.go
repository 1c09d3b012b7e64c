package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/gorilla/websocket"
)

// Типы кадров, которые получает зритель
const (
	FrameGrid      = "grid"
	FrameDestroyed = "world_destroyed"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// Frame сообщение зрителю
type Frame struct {
	Type     string        `json:"type"`
	WorldID  uint64        `json:"world_id"`
	Snapshot *GridSnapshot `json:"snapshot,omitempty"`
}

// ErrHubClosed подписка на закрытый hub
var ErrHubClosed = errors.New("broadcast hub closed")

// Access проверяет, что мир существует и зритель может его видеть.
// Ошибка отклоняет подписку.
type Access func(ctx context.Context, worldID, viewerID uint64) error

// Client подписчик канала мира
type Client struct {
	worldID  uint64
	viewerID uint64
	send     chan []byte
	closed   bool
}

// Messages канал кадров; закрывается при отписке или удалении мира
func (c *Client) Messages() <-chan []byte { return c.send }

// WorldID мир подписки
func (c *Client) WorldID() uint64 { return c.worldID }

// Hub раздаёт события world.grid и world.grid.closed зрителям своего мира.
// Медленный зритель с заполненным буфером отключается.
type Hub struct {
	bus    eventbus.EventBus
	access Access
	latest func(ctx context.Context, worldID uint64) (*GridSnapshot, bool)
	logger *logging.Logger

	upgrader websocket.Upgrader

	mu     sync.RWMutex
	rooms  map[uint64]map[*Client]struct{}
	sub    eventbus.Subscription
	closed bool
}

// NewHub создаёт hub. latest может быть nil: тогда новый зритель ждёт первой публикации.
func NewHub(bus eventbus.EventBus, access Access, latest func(ctx context.Context, worldID uint64) (*GridSnapshot, bool)) *Hub {
	return &Hub{
		bus:    bus,
		access: access,
		latest: latest,
		logger: logging.GetBroadcastLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[uint64]map[*Client]struct{}),
	}
}

// Start подписывает hub на шину
func (h *Hub) Start(ctx context.Context) error {
	sub, err := h.bus.Subscribe(ctx, eventbus.Filter{
		Types: []string{eventbus.TypeWorldGrid, eventbus.TypeWorldGridClosed},
	}, h.handleEvent)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	h.logger.Info("📺 Broadcast hub подписан на события сетки")
	return nil
}

// Subscribe регистрирует зрителя мира. Мир проверяется через Access.
// Если в кеше есть последний снапшот, он сразу ставится в очередь.
func (h *Hub) Subscribe(ctx context.Context, worldID, viewerID uint64) (*Client, error) {
	if err := h.access(ctx, worldID, viewerID); err != nil {
		return nil, err
	}

	c := &Client{worldID: worldID, viewerID: viewerID, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	room, ok := h.rooms[worldID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[worldID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	if h.latest != nil {
		if s, ok := h.latest(ctx, worldID); ok {
			view := s.ForViewer(viewerID)
			h.deliver(c, Frame{Type: FrameGrid, WorldID: worldID, Snapshot: &view})
		}
	}

	h.logger.Debug("👁️ Зритель %d подписан на мир %d", viewerID, worldID)
	return c, nil
}

// Unsubscribe снимает зрителя; повторный вызов безопасен
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// Viewers количество зрителей мира
func (h *Hub) Viewers(worldID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[worldID])
}

// Close отписывает hub от шины и отключает всех зрителей
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
	for _, room := range h.rooms {
		for c := range room {
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if room, ok := h.rooms[c.worldID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.worldID)
		}
	}
}

// deliver неблокирующая отправка одному зрителю
func (h *Hub) deliver(c *Client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("❌ Не удалось сериализовать кадр: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("🐢 Зритель %d мира %d не успевает, отключаем", c.viewerID, c.worldID)
		h.dropLocked(c)
	}
}

func (h *Hub) handleEvent(ctx context.Context, ev *eventbus.Envelope) {
	worldID, err := strconv.ParseUint(ev.Metadata[eventbus.MetaWorldID], 10, 64)
	if err != nil {
		h.logger.Warn("⚠️ Событие %s без world_id: %v", ev.EventType, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[worldID]))
	for c := range h.rooms[worldID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	switch ev.EventType {
	case eventbus.TypeWorldGrid:
		var s GridSnapshot
		if err := json.Unmarshal(ev.Payload, &s); err != nil {
			h.logger.Error("❌ Повреждённый снапшот мира %d: %v", worldID, err)
			return
		}
		for _, c := range clients {
			view := s.ForViewer(c.viewerID)
			h.deliver(c, Frame{Type: FrameGrid, WorldID: worldID, Snapshot: &view})
		}

	case eventbus.TypeWorldGridClosed:
		for _, c := range clients {
			h.deliver(c, Frame{Type: FrameDestroyed, WorldID: worldID})
			h.Unsubscribe(c)
		}
	}
}

// ServeWS поднимает websocket для зрителя мира. Неизвестный мир отклоняется
// до апгрейда соединения с кодом 404.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, worldID, viewerID uint64) error {
	client, err := h.Subscribe(r.Context(), worldID, viewerID)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Unsubscribe(client)
		h.logger.Warn("⚠️ WebSocket upgrade не удался: %v", err)
		return nil
	}

	go h.writePump(conn, client)
	go h.readPump(conn, client)
	return nil
}

// readPump читает только служебные кадры и обнаруживает закрытие соединения
func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		h.Unsubscribe(c)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket зрителя %d закрыт: %v", c.viewerID, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
