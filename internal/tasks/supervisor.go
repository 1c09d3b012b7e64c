// Package tasks запускает фоновые задачи с отменой и ожиданием при остановке.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/annel0/shard-realms/internal/logging"
	"github.com/google/uuid"
)

// ErrStopped задача не принята: супервизор уже остановлен
var ErrStopped = errors.New("supervisor stopped")

// Func тело задачи. ctx отменяется при Shutdown.
type Func func(ctx context.Context) error

// Supervisor отслеживает фоновые горутины. Каждая задача получает контекст,
// отменяемый при остановке, и её завершение ожидается в Shutdown.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	running map[string]string // id -> name

	logger *logging.Logger
}

// NewSupervisor создаёт супервизор
func NewSupervisor() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]string),
		logger:  logging.GetComponentLogger("tasks"),
	}
}

// Go запускает задачу name. Возвращает id задачи.
func (s *Supervisor) Go(name string, fn Func) (string, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	id := uuid.NewString()
	s.running[id] = name
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("💥 Задача %s (%s) паника: %v", name, id, r)
			}
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
		}()

		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Warn("⚠️ Задача %s (%s) завершилась с ошибкой за %v: %v", name, id, time.Since(start), err)
			return
		}
		s.logger.Debug("✅ Задача %s (%s) выполнена за %v", name, id, time.Since(start))
	}()

	return id, nil
}

// Running количество выполняющихся задач
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Wait ждёт завершения всех текущих задач без отмены
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown перестаёт принимать задачи, отменяет контекст выполняющихся
// и ждёт их завершения до истечения ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	pending := len(s.running)
	s.mu.Unlock()

	s.cancel()
	if pending > 0 {
		s.logger.Info("🛑 Отменяем %d фоновых задач", pending)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
