package storage

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repos(t *testing.T) map[string]WorldRepo {
	t.Helper()
	badgerRepo, err := NewBadgerWorldRepo("")
	require.NoError(t, err, "Не удалось открыть BadgerDB в памяти")
	t.Cleanup(func() { badgerRepo.Close() })

	return map[string]WorldRepo{
		"memory": NewMemoryWorldRepo(),
		"badger": badgerRepo,
	}
}

func newWorld(t *testing.T, repo WorldRepo, creator uint64) *world.World {
	t.Helper()
	id, err := repo.NextID(context.Background())
	require.NoError(t, err)
	w, err := world.NewWorldGenerator(rand.New(rand.NewSource(int64(id)))).Generate(id, creator, "Test", false, int64(id))
	require.NoError(t, err)
	return w
}

func TestWorldRepoSaveGet(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w := newWorld(t, repo, 5)
			w.Battles[5] = battle.New(w.ID, 5, vec.Vec2{X: 1, Y: 0}, battle.EnemyStats{Health: 80, MaxHealth: 100, Attack: 12})
			require.NoError(t, repo.Save(ctx, w))

			got, err := repo.Get(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, w.Cells, got.Cells)
			assert.Equal(t, 80, got.Battles[5].Enemy.Health)
			assert.Equal(t, world.DefaultHealth, got.Users[5].Health)

			// Изменение копии не затрагивает хранилище
			got.Cells[0].Content = world.Empty()
			again, err := repo.Get(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, world.OccupiedBy(5), again.Cells[0].Content)
		})
	}
}

func TestWorldRepoNextIDUnique(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			seen := map[uint64]bool{}
			for i := 0; i < 40; i++ {
				id, err := repo.NextID(context.Background())
				require.NoError(t, err)
				assert.NotZero(t, id)
				assert.False(t, seen[id], "id %d выдан дважды", id)
				seen[id] = true
			}
		})
	}
}

func TestWorldRepoDeleteAndList(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newWorld(t, repo, 1)
			b := newWorld(t, repo, 2)
			b.IsPublic = true
			require.NoError(t, repo.Save(ctx, a))
			require.NoError(t, repo.Save(ctx, b))

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, a.ID, list[0].ID)
			assert.True(t, list[1].IsPublic)
			assert.Equal(t, 1, list[0].Players)

			require.NoError(t, repo.Delete(ctx, a.ID))
			_, err = repo.Get(ctx, a.ID)
			assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))

			err = repo.Delete(ctx, a.ID)
			assert.True(t, errors.Is(err, apperr.ErrWorldNotFound))

			list, err = repo.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}
