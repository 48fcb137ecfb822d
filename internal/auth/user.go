package auth

import "time"

// User — учётная запись оператора.
type User struct {
	ID           uint64    // Unique immutable identifier
	Username     string    // Unique username (case-insensitive)
	PasswordHash string    // bcrypt hashed password (60 chars)
	CreatedAt    time.Time // Account creation timestamp (server time)
	LastLogin    time.Time // Last successful login
	IsAdmin      bool      // может управлять раундом
}
