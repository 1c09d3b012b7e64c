package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash, "Пароль не хранится открытым текстом")

	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
	assert.False(t, CheckPassword("not-a-bcrypt-hash", "secret1"), "Повреждённый хеш не совпадает")
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("abc"), ErrWeakPassword)
	assert.NoError(t, ValidatePassword("abcd"))
	assert.NoError(t, ValidatePassword(strings.Repeat("x", MaxPasswordLen)))
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", MaxPasswordLen+1)), ErrPasswordTooLong)

	_, err := HashPassword(strings.Repeat("x", MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
