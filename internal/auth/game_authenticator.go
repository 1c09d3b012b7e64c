package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/shard-realms/internal/logging"
)

// Ограничения на имя и пароль при регистрации
const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 4
)

var ErrInvalidUsername = errors.New("username must be 3-32 letters, digits, '_' or '-'")
var ErrWeakPassword = errors.New("password is too short")

// Session выданный токен
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// GameAuthenticator вход, регистрация и проверка bearer токенов игроков
type GameAuthenticator struct {
	users  UserRepository
	tokens *TokenIssuer
	logger *logging.Logger
}

// NewGameAuthenticator создаёт аутентификатор поверх хранилища и издателя токенов
func NewGameAuthenticator(users UserRepository, tokens *TokenIssuer) *GameAuthenticator {
	return &GameAuthenticator{users: users, tokens: tokens, logger: logging.GetComponentLogger("auth")}
}

// Login проверяет пароль и выдаёт токен
func (ga *GameAuthenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := ga.users.ValidateCredentials(ctx, username, password)
	if err != nil {
		ga.logger.Info("❌ Неудачный вход для %q: %v", username, err)
		return nil, err
	}
	if err := ga.users.TouchLogin(ctx, user.ID); err != nil {
		ga.logger.Warn("⚠️ Не удалось обновить last_login для %d: %v", user.ID, err)
	}

	session, err := ga.issue(user)
	if err != nil {
		return nil, err
	}
	ga.logger.Info("✅ Вход пользователя %s (ID: %d)", user.Username, user.ID)
	return session, nil
}

// Register создаёт учётную запись игрока и сразу выдаёт токен
func (ga *GameAuthenticator) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if !validUsername(username) {
		return nil, ErrInvalidUsername
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := ga.users.CreateUser(ctx, username, hash, false)
	if err != nil {
		return nil, err
	}

	ga.logger.Info("🆕 Зарегистрирован пользователь %s (ID: %d)", user.Username, user.ID)
	return ga.issue(user)
}

// Authenticate проверяет bearer токен и возвращает его claims.
// Токен удалённого пользователя недействителен.
func (ga *GameAuthenticator) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := ga.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	if _, err := ga.users.GetUserByID(ctx, claims.PlayerID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return claims, nil
}

func (ga *GameAuthenticator) issue(user *User) (*Session, error) {
	token, expiresAt, err := ga.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func validUsername(name string) bool {
	if len(name) < MinUsernameLen || len(name) > MaxUsernameLen {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
