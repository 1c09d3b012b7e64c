package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

var (
	worldPrefix = []byte("world:")
	seqKey      = []byte("seq:world")
)

// BadgerWorldRepo хранит снапшоты миров в BadgerDB.
// Значение ключа world:<id> хранит JSON мира, сжатый zstd.
type BadgerWorldRepo struct {
	db      *badger.DB
	seq     *badger.Sequence
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerWorldRepo открывает BadgerDB в каталоге dbPath.
// Пустой dbPath открывает базу в памяти (тесты).
func NewBadgerWorldRepo(dbPath string) (*BadgerWorldRepo, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	seq, err := db.GetSequence(seqKey, 16)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать последовательность id: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	logging.Info("💾 BadgerDB хранилище миров открыто: %q", dbPath)
	return &BadgerWorldRepo{db: db, seq: seq, enc: enc, dec: dec, isReady: true}, nil
}

func worldKey(id uint64) []byte {
	key := make([]byte, len(worldPrefix)+8)
	copy(key, worldPrefix)
	binary.BigEndian.PutUint64(key[len(worldPrefix):], id)
	return key
}

func (r *BadgerWorldRepo) ready() error {
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

// NextID выдаёт следующий id; последовательность Badger начинается с 0, id мира с 1
func (r *BadgerWorldRepo) NextID(ctx context.Context) (uint64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return 0, err
	}
	n, err := r.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения id мира: %w", err)
	}
	return n + 1, nil
}

func (r *BadgerWorldRepo) encode(w *world.World) ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации мира %d: %w", w.ID, err)
	}
	return r.enc.EncodeAll(data, nil), nil
}

func (r *BadgerWorldRepo) decode(raw []byte) (*world.World, error) {
	data, err := r.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки снапшота: %w", err)
	}
	var w world.World
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ошибка десериализации мира: %w", err)
	}
	return &w, nil
}

func (r *BadgerWorldRepo) Get(ctx context.Context, id uint64) (*world.World, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(worldKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperr.Newf(apperr.KindWorldNotFound, "world %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения мира %d: %w", id, err)
	}
	return r.decode(raw)
}

func (r *BadgerWorldRepo) Save(ctx context.Context, w *world.World) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}

	data, err := r.encode(w)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(worldKey(w.ID), data)
	})
}

// Delete загружает мир, освобождает всё, чем он владеет, и удаляет запись
func (r *BadgerWorldRepo) Delete(ctx context.Context, id uint64) error {
	w, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	battles, users, cells := w.Release()

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(worldKey(id))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления мира %d: %w", id, err)
	}
	logging.Debug("🗑️ Мир %d удалён: боёв %d, игроков %d, клеток %d", id, battles, users, cells)
	return nil
}

func (r *BadgerWorldRepo) List(ctx context.Context) ([]world.Summary, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	var out []world.Summary
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(worldPrefix); it.ValidForPrefix(worldPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			w, err := r.decode(raw)
			if err != nil {
				return err
			}
			out = append(out, w.Summarize())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	world.SortSummaries(out)
	return out, nil
}

// Close закрывает хранилище данных
func (r *BadgerWorldRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}
	r.isReady = false

	_ = r.seq.Release()
	r.enc.Close()
	r.dec.Close()
	return r.db.Close()
}
