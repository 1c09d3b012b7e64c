package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLen bcrypt учитывает только первые 72 байта пароля
const MaxPasswordLen = 72

var ErrPasswordTooLong = errors.New("password is longer than 72 bytes")

// ValidatePassword проверяет длину пароля перед хешированием
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLen:
		return ErrWeakPassword
	case len(password) > MaxPasswordLen:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword bcrypt хеш пароля с bcrypt.DefaultCost
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLen {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword сравнивает пароль с сохранённым хешем.
// Повреждённый хеш считается несовпадением.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
