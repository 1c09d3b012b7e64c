package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedHook struct {
	header http.Header
	body   []byte
}

type hookReceiver struct {
	mu       sync.Mutex
	received []receivedHook
	failures atomic.Int32
	server   *httptest.Server
}

// newHookReceiver отвечает 500 первые failFirst раз, затем 200
func newHookReceiver(t *testing.T, failFirst int32) *hookReceiver {
	r := &hookReceiver{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if r.failures.Add(1) <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		r.mu.Lock()
		r.received = append(r.received, receivedHook{header: req.Header.Clone(), body: body})
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *hookReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func (r *hookReceiver) first() receivedHook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received[0]
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"event_type":"battle.won"}`)
	ts := time.Now().Unix()
	sig := SignPayload("s3cret", ts, body)

	assert.True(t, VerifySignature("s3cret", ts, body, sig, time.Minute))
	assert.False(t, VerifySignature("other", ts, body, sig, time.Minute), "Чужой секрет")
	assert.False(t, VerifySignature("s3cret", ts, []byte(`{}`), sig, time.Minute), "Подменённое тело")

	old := time.Now().Add(-time.Hour).Unix()
	assert.False(t, VerifySignature("s3cret", old, body, SignPayload("s3cret", old, body), time.Minute), "Устаревшая подпись")
	assert.True(t, VerifySignature("s3cret", old, body, SignPayload("s3cret", old, body), 0))
}

func TestWebhookReceivesBusEvents(t *testing.T) {
	receiver := newHookReceiver(t, 0)
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	manager := NewOutboundWebhookManager("node-1", "test")
	defer manager.Close()
	require.NoError(t, manager.Attach(context.Background(), bus))

	manager.AddWebhook(OutboundWebhook{
		Name:   "treasure-feed",
		URL:    receiver.server.URL,
		Secret: "s3cret",
		Events: []string{eventbus.TypeTreasureFound},
	})

	ev, err := eventbus.NewEnvelope("game", eventbus.TypeTreasureFound, map[string]int{"reward": 10},
		map[string]string{eventbus.MetaWorldID: "7"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	// Неподписанный тип не пересылается
	other, err := eventbus.NewEnvelope("game", eventbus.TypeBattleStarted, map[string]int{}, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), other))

	require.Eventually(t, func() bool { return receiver.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, receiver.count(), "Только подписанные события")

	hook := receiver.first()
	assert.Equal(t, eventbus.TypeTreasureFound, hook.header.Get(HeaderEventType))
	assert.Equal(t, "node-1", hook.header.Get(HeaderServerID))

	ts, err := strconv.ParseInt(hook.header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.True(t, VerifySignature("s3cret", ts, hook.body, hook.header.Get(HeaderSignature), time.Minute))

	var payload OutboundWebhookEvent
	require.NoError(t, json.Unmarshal(hook.body, &payload))
	assert.Equal(t, uint64(7), payload.WorldID)
	assert.JSONEq(t, `{"reward":10}`, string(payload.Data))
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	receiver := newHookReceiver(t, 2)
	manager := NewOutboundWebhookManager("node-1", "test")
	manager.retryDelay = 5 * time.Millisecond
	defer manager.Close()

	created := manager.AddWebhook(OutboundWebhook{
		Name:       "flaky",
		URL:        receiver.server.URL,
		Events:     []string{"*"},
		RetryCount: 3,
	})
	manager.SendEvent(TestEventType, map[string]string{"hello": "world"})

	require.Eventually(t, func() bool { return receiver.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		w := manager.GetWebhook(created.ID)
		return w != nil && w.LastUsed != nil
	}, time.Second, 10*time.Millisecond)

	w := manager.GetWebhook(created.ID)
	assert.Equal(t, 0, w.FailureCount, "Успешная повторная попытка не считается отказом")
	assert.Equal(t, int32(3), receiver.failures.Load(), "Тело пересылается при каждой попытке")
	assert.NotEmpty(t, receiver.first().body)
}

func TestInactiveWebhookSkipped(t *testing.T) {
	receiver := newHookReceiver(t, 0)
	manager := NewOutboundWebhookManager("node-1", "test")
	defer manager.Close()

	created := manager.AddWebhook(OutboundWebhook{Name: "off", URL: receiver.server.URL, Events: []string{"*"}})
	inactive := false
	require.NotNil(t, manager.UpdateWebhook(created.ID, WebhookUpdate{Active: &inactive}))

	manager.SendEvent(TestEventType, map[string]string{})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, receiver.count())
	assert.Nil(t, manager.UpdateWebhook(999, WebhookUpdate{}))
}
