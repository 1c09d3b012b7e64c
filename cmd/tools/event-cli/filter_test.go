package main

import (
	"testing"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"battle.won", "battle.lost"}, parseStringList(" battle.won, ,battle.lost "))
}

func TestParseSinceTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSinceTime("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSinceTime("2024-04-30T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), got)

	_, err = parseSinceTime("yesterday", now)
	assert.Error(t, err)
}

func TestEventFilterMatch(t *testing.T) {
	ev := &eventbus.Envelope{EventType: eventbus.TypeBattleWon, Metadata: map[string]string{eventbus.MetaWorldID: "3"}}

	assert.True(t, eventFilter{}.match(ev), "Пустой фильтр пропускает всё")
	assert.True(t, eventFilter{Types: []string{eventbus.TypeBattleWon}, WorldID: "3"}.match(ev))
	assert.False(t, eventFilter{WorldID: "4"}.match(ev), "Другой мир")
	assert.False(t, eventFilter{Types: []string{eventbus.TypeTreasureFound}}.match(ev), "Другой тип")
	assert.False(t, eventFilter{WorldID: "3"}.match(&eventbus.Envelope{EventType: eventbus.TypeBattleWon}), "Нет метаданных мира")
}
