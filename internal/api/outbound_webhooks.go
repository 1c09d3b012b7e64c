package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
)

// OutboundWebhook исходящий webhook, зарегистрированный администратором
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events"` // типы событий или "*"
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // секунды
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookEvent тело исходящего запроса
type OutboundWebhookEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Timestamp   int64           `json:"timestamp"`
	ServerID    string          `json:"server_id"`
	WorldID     uint64          `json:"world_id,omitempty"`
	Data        json.RawMessage `json:"data"`
	Source      string          `json:"source"`
	Environment string          `json:"environment"`
}

// ForwardedEventTypes игровые события, которые пересылаются webhook'ам
var ForwardedEventTypes = []string{
	eventbus.TypeWorldCreated,
	eventbus.TypeWorldDestroyed,
	eventbus.TypeTreasureFound,
	eventbus.TypeBattleStarted,
	eventbus.TypeBattleWon,
	eventbus.TypeBattleLost,
	eventbus.TypeAchievementCompleted,
}

// TestEventType событие ручной проверки webhook'а
const TestEventType = "webhook.test"

// OutboundWebhookManager управляет исходящими webhook'ами
type OutboundWebhookManager struct {
	webhooks    map[uint64]*OutboundWebhook
	eventQueue  chan OutboundWebhookEvent
	mu          sync.RWMutex
	nextID      uint64
	httpClient  *http.Client
	serverID    string
	environment string
	retryDelay  time.Duration

	sub     eventbus.Subscription
	wg      sync.WaitGroup
	stop    chan struct{}
	stopped sync.Once
	logger  *logging.Logger
}

// NewOutboundWebhookManager создает менеджер и запускает воркер очереди
func NewOutboundWebhookManager(serverID, environment string) *OutboundWebhookManager {
	manager := &OutboundWebhookManager{
		webhooks:    make(map[uint64]*OutboundWebhook),
		eventQueue:  make(chan OutboundWebhookEvent, 1000),
		nextID:      1,
		serverID:    serverID,
		environment: environment,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryDelay:  time.Second,
		stop:        make(chan struct{}),
		logger:      logging.GetComponentLogger("webhooks"),
	}

	manager.wg.Add(1)
	go manager.eventWorker()
	return manager
}

// Attach подписывает менеджер на игровые события шины
func (owm *OutboundWebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: ForwardedEventTypes}, func(_ context.Context, ev *eventbus.Envelope) {
		owm.enqueue(owm.fromEnvelope(ev))
	})
	if err != nil {
		return err
	}
	owm.mu.Lock()
	owm.sub = sub
	owm.mu.Unlock()
	owm.logger.Info("🔗 Webhook'и подписаны на %d типов игровых событий", len(ForwardedEventTypes))
	return nil
}

func (owm *OutboundWebhookManager) fromEnvelope(ev *eventbus.Envelope) OutboundWebhookEvent {
	out := OutboundWebhookEvent{
		ID:          ev.ID,
		EventType:   ev.EventType,
		Timestamp:   ev.Timestamp.Unix(),
		ServerID:    owm.serverID,
		Data:        json.RawMessage(ev.Payload),
		Source:      ev.Source,
		Environment: owm.environment,
	}
	if id, err := strconv.ParseUint(ev.Metadata[eventbus.MetaWorldID], 10, 64); err == nil {
		out.WorldID = id
	}
	return out
}

// AddWebhook добавляет новый webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true
	if webhook.Timeout <= 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount <= 0 {
		webhook.RetryCount = 3
	}

	owm.webhooks[webhook.ID] = &webhook
	c := webhook
	return &c
}

// GetWebhooks список webhook'ов по возрастанию id
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// GetWebhook копия webhook'а или nil
func (owm *OutboundWebhookManager) GetWebhook(id uint64) *OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhook, exists := owm.webhooks[id]
	if !exists {
		return nil
	}
	c := *webhook
	return &c
}

// WebhookUpdate частичное обновление; nil поля не меняются
type WebhookUpdate struct {
	Name       *string  `json:"name"`
	URL        *string  `json:"url"`
	Secret     *string  `json:"secret"`
	Events     []string `json:"events"`
	Active     *bool    `json:"active"`
	Timeout    *int     `json:"timeout"`
	RetryCount *int     `json:"retry_count"`
}

// UpdateWebhook применяет обновление; nil если webhook не найден
func (owm *OutboundWebhookManager) UpdateWebhook(id uint64, u WebhookUpdate) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook, exists := owm.webhooks[id]
	if !exists {
		return nil
	}
	if u.Name != nil {
		webhook.Name = *u.Name
	}
	if u.URL != nil {
		webhook.URL = *u.URL
	}
	if u.Secret != nil {
		webhook.Secret = *u.Secret
	}
	if len(u.Events) > 0 {
		webhook.Events = u.Events
	}
	if u.Active != nil {
		webhook.Active = *u.Active
	}
	if u.Timeout != nil && *u.Timeout > 0 {
		webhook.Timeout = *u.Timeout
	}
	if u.RetryCount != nil && *u.RetryCount >= 0 {
		webhook.RetryCount = *u.RetryCount
	}
	c := *webhook
	return &c
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// SendEvent ставит в очередь произвольное событие (тест webhook'а)
func (owm *OutboundWebhookManager) SendEvent(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		owm.logger.Error("❌ Ошибка маршалинга события %s: %v", eventType, err)
		return
	}
	owm.enqueue(OutboundWebhookEvent{
		ID:          strconv.FormatInt(time.Now().UnixNano(), 36),
		EventType:   eventType,
		Timestamp:   time.Now().Unix(),
		ServerID:    owm.serverID,
		Data:        payload,
		Source:      "api",
		Environment: owm.environment,
	})
}

func (owm *OutboundWebhookManager) enqueue(event OutboundWebhookEvent) {
	select {
	case <-owm.stop:
		return
	default:
	}
	select {
	case owm.eventQueue <- event:
		owm.logger.Debug("📤 Событие %s добавлено в очередь webhook'ов", event.EventType)
	default:
		owm.logger.Warn("⚠️ Очередь webhook'ов переполнена, событие %s пропущено", event.EventType)
	}
}

// eventWorker обрабатывает события из очереди до Close
func (owm *OutboundWebhookManager) eventWorker() {
	defer owm.wg.Done()
	for {
		select {
		case <-owm.stop:
			return
		case event := <-owm.eventQueue:
			owm.processEvent(event)
		}
	}
}

func (owm *OutboundWebhookManager) processEvent(event OutboundWebhookEvent) {
	owm.mu.RLock()
	targets := make([]OutboundWebhook, 0)
	for _, webhook := range owm.webhooks {
		if webhook.Active && isSubscribedToEvent(webhook, event.EventType) {
			targets = append(targets, *webhook)
		}
	}
	owm.mu.RUnlock()

	body, err := json.Marshal(event)
	if err != nil {
		owm.logger.Error("❌ Ошибка маршалинга события %s: %v", event.EventType, err)
		return
	}
	for _, webhook := range targets {
		owm.wg.Add(1)
		go func(w OutboundWebhook) {
			defer owm.wg.Done()
			owm.sendToWebhook(w, event, body)
		}(webhook)
	}
}

func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribedEvent := range webhook.Events {
		if subscribedEvent == eventType || subscribedEvent == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook доставляет событие с повторами и обновляет статистику webhook'а
func (owm *OutboundWebhookManager) sendToWebhook(webhook OutboundWebhook, event OutboundWebhookEvent, body []byte) {
	success := false
	for attempt := 0; attempt <= webhook.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-owm.stop:
				return
			case <-time.After(time.Duration(attempt) * owm.retryDelay):
			}
		}
		status, err := owm.post(webhook, event, body)
		if err == nil && status >= 200 && status < 300 {
			success = true
			owm.logger.Debug("✅ Событие %s доставлено в webhook %s", event.EventType, webhook.Name)
			break
		}
		owm.logger.Warn("⚠️ Попытка %d/%d для webhook %s: status=%d err=%v", attempt+1, webhook.RetryCount+1, webhook.Name, status, err)
	}

	owm.mu.Lock()
	defer owm.mu.Unlock()
	stored, ok := owm.webhooks[webhook.ID]
	if !ok {
		return
	}
	now := time.Now()
	stored.LastUsed = &now
	if !success {
		stored.FailureCount++
	}
}

func (owm *OutboundWebhookManager) post(webhook OutboundWebhook, event OutboundWebhookEvent, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(webhook.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Shard-Realms-Server/1.0")
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderServerID, event.ServerID)
	if webhook.Secret != "" {
		ts := time.Now().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, SignPayload(webhook.Secret, ts, body))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// GetEventTypes доступные типы событий
func (owm *OutboundWebhookManager) GetEventTypes() []string {
	return append(append([]string(nil), ForwardedEventTypes...), TestEventType)
}

// Close отписывается от шины и дожидается отправок в процессе
func (owm *OutboundWebhookManager) Close() {
	owm.stopped.Do(func() {
		owm.mu.Lock()
		if owm.sub != nil {
			owm.sub.Unsubscribe()
		}
		owm.mu.Unlock()
		close(owm.stop)
		owm.wg.Wait()
	})
}
