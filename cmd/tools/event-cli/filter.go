package main

import (
	"strings"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
)

// eventFilter фильтр вывода по типам событий и миру
type eventFilter struct {
	Types   []string
	WorldID string
}

func (f eventFilter) match(ev *eventbus.Envelope) bool {
	if f.WorldID != "" && ev.Metadata[eventbus.MetaWorldID] != f.WorldID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.EventType {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(time.RFC3339, since)
	}

	return from.Add(-duration), nil
}
