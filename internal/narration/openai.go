package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/annel0/shard-realms/internal/battle"
)

// OpenAIConfig configures chat completions and image generation endpoints.
type OpenAIConfig struct {
	BaseURL    string // e.g. https://api.openai.com/v1
	APIKey     string
	Model      string // chat model
	ImageModel string // image model
	HTTPClient *http.Client
}

// OpenAI implements Narrator and Illustrator over the OpenAI HTTP API.
type OpenAI struct {
	cfg OpenAIConfig
}

// NewOpenAI builds the client with defaults for empty fields.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	return &OpenAI{cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (o *OpenAI) DescribeEncounter(ctx context.Context, enemy battle.EnemyStats) (string, error) {
	prompt := fmt.Sprintf("Describe, in two sentences, a fantasy enemy with %d health, %d attack and %d defense that a player just encountered.",
		enemy.MaxHealth, enemy.Attack, enemy.Defense)
	return o.chat(ctx, prompt)
}

func (o *OpenAI) DescribeWorld(ctx context.Context, worldName string) (string, error) {
	prompt := fmt.Sprintf("Write a short lore paragraph for a fantasy world called %q.", worldName)
	return o.chat(ctx, prompt)
}

func (o *OpenAI) GenerateBackground(ctx context.Context, prompt string) (string, error) {
	var out imageResponse
	err := o.post(ctx, "/images/generations", imageRequest{
		Model:  o.cfg.ImageModel,
		Prompt: prompt,
		N:      1,
		Size:   "1024x1024",
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("image response has no url")
	}
	return out.Data[0].URL, nil
}

func (o *OpenAI) chat(ctx context.Context, prompt string) (string, error) {
	var out chatResponse
	err := o.post(ctx, "/chat/completions", chatRequest{
		Model:       o.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   150,
		Temperature: 0.7,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (o *OpenAI) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openai %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
