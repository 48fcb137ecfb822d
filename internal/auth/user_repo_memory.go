package auth

import (
	"strings"
	"sync"
	"time"
)

// MemoryUserRepo is a threadsafe in-memory storage.
// ID counter starts from 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User // key = lowercase(username)
	byID   map[uint64]*User
	nextID uint64
}

// NewMemoryUserRepo returns an empty repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[string]*User),
		byID:   make(map[uint64]*User),
		nextID: 1,
	}
}

// NewOperatorRepo returns repository pre-populated with a single admin
// account. Пустой пароль запрещён: без него управляющие эндпоинты закрыты.
func NewOperatorRepo(username, password string) (*MemoryUserRepo, error) {
	repo := NewMemoryUserRepo()
	if username == "" || password == "" {
		return repo, nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateUser(username, hash, true); err != nil {
		return nil, err
	}
	return repo, nil
}

// GetUserByUsername retrieves user by case-insensitive username.
func (r *MemoryUserRepo) GetUserByUsername(username string) (*User, error) {
	key := normalize(username)
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByID retrieves user by ID.
func (r *MemoryUserRepo) GetUserByID(id uint64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// CreateUser inserts a new user if username not present.
func (r *MemoryUserRepo) CreateUser(username string, passwordHash string, isAdmin bool) (*User, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}

	user := &User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.users[key] = user
	r.byID[user.ID] = user
	cp := *user
	return &cp, nil
}

// ValidateCredentials проверяет пароль и обновляет LastLogin.
// Неизвестный пользователь и неверный пароль дают одну и ту же ошибку.
func (r *MemoryUserRepo) ValidateCredentials(username, password string) (*User, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[key]
	if !ok || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = time.Now()
	cp := *user
	return &cp, nil
}

// Count возвращает число учётных записей.
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Helper to normalise usernames.
func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
