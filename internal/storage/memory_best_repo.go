package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBestScoreRepo реализует BestScoreRepo в памяти.
// Используется как fallback, когда Badger/Redis недоступны, и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryBestScoreRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBestScoreRepo создает новый репозиторий рекордов в памяти.
func NewMemoryBestScoreRepo() *MemoryBestScoreRepo {
	return &MemoryBestScoreRepo{
		data: make(map[string][]byte),
	}
}

// Load загружает рекорд из памяти.
func (r *MemoryBestScoreRepo) Load(ctx context.Context, key string) (int, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	raw, ok := r.data[key]
	r.mu.RUnlock()

	if !ok {
		return 0, false, nil
	}
	v, err := decodeScore(raw)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// Save сохраняет рекорд в памяти, если он выше текущего.
func (r *MemoryBestScoreRepo) Save(ctx context.Context, key string, score int) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if score < 0 {
		return fmt.Errorf("недействительный рекорд: %d", score)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if raw, ok := r.data[key]; ok && keepsBest(raw, score) {
		return nil
	}
	r.data[key] = encodeScore(score)
	return nil
}

// SetRaw записывает произвольное значение (для тестов повреждённых данных).
func (r *MemoryBestScoreRepo) SetRaw(key string, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte(nil), raw...)
}

// Close ничего не делает.
func (r *MemoryBestScoreRepo) Close() error { return nil }
