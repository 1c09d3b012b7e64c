// Package narration поставляет художественный текст встреч, лор миров и фоновые изображения.
package narration

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/logging"
)

// Значения, которые игра использует при любой ошибке провайдера
const (
	FallbackText  = "An error occurred while generating content."
	FallbackImage = "default_image_url"
)

// Narrator генерирует текст
type Narrator interface {
	DescribeEncounter(ctx context.Context, enemy battle.EnemyStats) (string, error)
	DescribeWorld(ctx context.Context, worldName string) (string, error)
}

// Illustrator генерирует изображение и возвращает его URL
type Illustrator interface {
	GenerateBackground(ctx context.Context, prompt string) (string, error)
}

// Safe оборачивает провайдеров таймаутом и подставляет фиксированные значения
// при ошибке. Методы Safe никогда не возвращают ошибку.
type Safe struct {
	narrator    Narrator
	illustrator Illustrator
	timeout     time.Duration
	logger      *logging.Logger
}

// NewSafe создаёт обёртку; timeout <= 0 означает 15 секунд
func NewSafe(n Narrator, i Illustrator, timeout time.Duration) *Safe {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Safe{narrator: n, illustrator: i, timeout: timeout, logger: logging.GetComponentLogger("narration")}
}

// DescribeEncounter текст встречи с врагом или FallbackText
func (s *Safe) DescribeEncounter(ctx context.Context, enemy battle.EnemyStats) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.narrator.DescribeEncounter(ctx, enemy)
	if err != nil || text == "" {
		s.logger.Warn("⚠️ Narration: encounter fallback: %v", err)
		return FallbackText
	}
	return text
}

// DescribeWorld лор мира или FallbackText
func (s *Safe) DescribeWorld(ctx context.Context, worldName string) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.narrator.DescribeWorld(ctx, worldName)
	if err != nil || text == "" {
		s.logger.Warn("⚠️ Narration: world lore fallback: %v", err)
		return FallbackText
	}
	return text
}

// GenerateBackground URL фона или FallbackImage
func (s *Safe) GenerateBackground(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	url, err := s.illustrator.GenerateBackground(ctx, prompt)
	if err != nil || url == "" {
		s.logger.Warn("⚠️ Narration: image fallback: %v", err)
		return FallbackImage
	}
	return url
}

// BackgroundPrompt промпт изображения для мира с лором lore
func BackgroundPrompt(worldName, lore string) string {
	return fmt.Sprintf("A fantasy landscape background for a world called %q. %s", worldName, lore)
}

// Static провайдер без сети: детерминированные тексты по параметрам
type Static struct{}

func (Static) DescribeEncounter(_ context.Context, enemy battle.EnemyStats) (string, error) {
	return fmt.Sprintf("A creature with %d health and %d attack blocks your path.", enemy.MaxHealth, enemy.Attack), nil
}

func (Static) DescribeWorld(_ context.Context, worldName string) (string, error) {
	return fmt.Sprintf("%s is a land of scattered shards, hidden treasure and restless monsters.", worldName), nil
}

func (Static) GenerateBackground(_ context.Context, _ string) (string, error) {
	return FallbackImage, nil
}
