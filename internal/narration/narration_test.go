package narration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annel0/shard-realms/internal/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenProvider struct{}

func (brokenProvider) DescribeEncounter(context.Context, battle.EnemyStats) (string, error) {
	return "", errors.New("provider down")
}
func (brokenProvider) DescribeWorld(context.Context, string) (string, error) {
	return "", errors.New("provider down")
}
func (brokenProvider) GenerateBackground(context.Context, string) (string, error) {
	return "", errors.New("provider down")
}

type slowProvider struct{ brokenProvider }

func (slowProvider) DescribeWorld(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSafeFallbacks(t *testing.T) {
	s := NewSafe(brokenProvider{}, brokenProvider{}, time.Second)
	ctx := context.Background()

	assert.Equal(t, FallbackText, s.DescribeEncounter(ctx, battle.EnemyStats{}))
	assert.Equal(t, FallbackText, s.DescribeWorld(ctx, "Aria"))
	assert.Equal(t, FallbackImage, s.GenerateBackground(ctx, "prompt"))
}

func TestSafeTimeout(t *testing.T) {
	s := NewSafe(slowProvider{}, brokenProvider{}, 20*time.Millisecond)

	start := time.Now()
	assert.Equal(t, FallbackText, s.DescribeWorld(context.Background(), "Aria"))
	assert.Less(t, time.Since(start), time.Second, "Таймаут не должен блокировать создание мира")
}

func TestStaticProvider(t *testing.T) {
	s := NewSafe(Static{}, Static{}, time.Second)
	text := s.DescribeEncounter(context.Background(), battle.EnemyStats{MaxHealth: 120, Attack: 14})
	assert.Contains(t, text, "120 health")
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/chat/completions":
			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A goblin snarls.  "}}]}`))
		case "/images/generations":
			_, _ = w.Write([]byte(`{"data":[{"url":"https://img.example/bg.png"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "test-model"})

	text, err := client.DescribeEncounter(context.Background(), battle.EnemyStats{MaxHealth: 100, Attack: 10})
	require.NoError(t, err)
	assert.Equal(t, "A goblin snarls.", text)

	url, err := client.GenerateBackground(context.Background(), "castle")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/bg.png", url)
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAI(OpenAIConfig{BaseURL: srv.URL})
	_, err := client.DescribeWorld(context.Background(), "Aria")
	assert.Error(t, err)

	s := NewSafe(client, client, time.Second)
	assert.Equal(t, FallbackText, s.DescribeWorld(context.Background(), "Aria"))
}
