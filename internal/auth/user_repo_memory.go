package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryUserRepo потокобезопасное хранилище в памяти для тестов и одиночного сервера.
// ID выдаются по порядку, начиная с 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User // ключ: имя в нижнем регистре
	byID   map[uint64]*User
	nextID uint64
}

// NewMemoryUserRepo пустое хранилище
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[string]*User),
		byID:   make(map[uint64]*User),
		nextID: 1,
	}
}

// NewSeededMemoryUserRepo хранилище с пользователями test/test и admin/admin
func NewSeededMemoryUserRepo() (*MemoryUserRepo, error) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	passwordHash, err := HashPassword("test")
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateUser(ctx, "test", passwordHash, false); err != nil {
		return nil, err
	}

	adminHash, err := HashPassword("admin")
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateUser(ctx, "admin", adminHash, true); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *MemoryUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) CreateUser(ctx context.Context, username string, passwordHash string, isAdmin bool) (*User, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}

	now := time.Now()
	user := &User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		LastLogin:    now,
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.users[key] = user
	r.byID[user.ID] = user
	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) ValidateCredentials(ctx context.Context, username, password string) (*User, error) {
	return validateCredentials(ctx, r, username, password)
}

func (r *MemoryUserRepo) TouchLogin(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.LastLogin = time.Now()
	return nil
}

func (r *MemoryUserRepo) Close() error { return nil }

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
