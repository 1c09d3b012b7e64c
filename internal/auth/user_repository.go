package auth

import (
	"context"
	"errors"
)

// UserRepository хранилище учётных записей.
// Реализации: память, MariaDB, MongoDB.
type UserRepository interface {
	// GetUserByUsername ищет пользователя без учёта регистра; нет пользователя => ErrUserNotFound
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByID нет пользователя => ErrUserNotFound
	GetUserByID(ctx context.Context, id uint64) (*User, error)

	// CreateUser сохраняет пользователя с bcrypt хешем пароля; занятое имя => ErrUserExists
	CreateUser(ctx context.Context, username string, passwordHash string, isAdmin bool) (*User, error)

	// ValidateCredentials проверяет пароль; неверная пара => ErrInvalidCredentials
	ValidateCredentials(ctx context.Context, username, password string) (*User, error)

	// TouchLogin обновляет время последнего входа
	TouchLogin(ctx context.Context, id uint64) error

	Close() error
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// validateCredentials общая проверка пароля поверх GetUserByUsername.
// Неизвестное имя и неверный пароль неразличимы для вызывающего.
func validateCredentials(ctx context.Context, repo UserRepository, username, password string) (*User, error) {
	user, err := repo.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
