package auth

import "time"

// User учётная запись игрока или администратора
type User struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"` // уникален без учёта регистра
	PasswordHash string    `json:"-"`        // bcrypt
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
	IsAdmin      bool      `json:"is_admin"`
}

// GetRole роль пользователя для claims
func (u *User) GetRole() string {
	if u.IsAdmin {
		return "admin"
	}
	return "player"
}
