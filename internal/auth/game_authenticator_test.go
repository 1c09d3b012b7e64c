package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) (*GameAuthenticator, *MemoryUserRepo) {
	t.Helper()
	repo := NewMemoryUserRepo()
	return NewGameAuthenticator(repo, newTestIssuer(t)), repo
}

func TestRegisterAndLogin(t *testing.T) {
	ga, _ := newTestAuthenticator(t)
	ctx := context.Background()

	reg, err := ga.Register(ctx, "Alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.User.ID)
	assert.NotEmpty(t, reg.Token)

	session, err := ga.Login(ctx, "alice", "secret")
	require.NoError(t, err, "Имя сравнивается без учёта регистра")
	assert.Equal(t, reg.User.ID, session.User.ID)

	claims, err := ga.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.PlayerID)
	assert.False(t, claims.IsAdmin)
}

func TestLoginWrongPassword(t *testing.T) {
	ga, _ := newTestAuthenticator(t)
	ctx := context.Background()
	_, err := ga.Register(ctx, "bob", "secret")
	require.NoError(t, err)

	_, err = ga.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = ga.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "Неизвестное имя неотличимо от неверного пароля")
}

func TestRegisterValidation(t *testing.T) {
	ga, _ := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := ga.Register(ctx, "ab", "secret")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = ga.Register(ctx, "with space", "secret")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = ga.Register(ctx, "carol", "abc")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = ga.Register(ctx, "carol", "secret")
	require.NoError(t, err)
	_, err = ga.Register(ctx, "CAROL", "secret")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	ga, _ := newTestAuthenticator(t)
	token, _, err := ga.tokens.Issue(&User{ID: 99, Username: "ghost"})
	require.NoError(t, err)

	_, err = ga.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSeededMemoryRepo(t *testing.T) {
	repo, err := NewSeededMemoryUserRepo()
	require.NoError(t, err)
	ctx := context.Background()

	admin, err := repo.ValidateCredentials(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, "admin", admin.GetRole())

	byID, err := repo.GetUserByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", byID.Username)

	_, err = repo.GetUserByID(ctx, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
