package game

import "sync"

// lockSet мьютексы по id мира. Запись удаляется, когда её никто не держит и не ждёт.
type lockSet struct {
	mu    sync.Mutex
	locks map[uint64]*worldLock
}

type worldLock struct {
	mu   sync.Mutex
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[uint64]*worldLock)}
}

// lock захватывает мир id и возвращает функцию освобождения
func (s *lockSet) lock(id uint64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &worldLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *lockSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
