package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRoundRepo реализует RoundRepo в памяти с ограниченной ёмкостью:
// при переполнении вытесняются самые старые записи.
type MemoryRoundRepo struct {
	mu       sync.RWMutex
	records  []RoundRecord // в порядке добавления
	ids      map[string]struct{}
	capacity int
}

// NewMemoryRoundRepo создает репозиторий; capacity <= 0 означает 1000 записей.
func NewMemoryRoundRepo(capacity int) *MemoryRoundRepo {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRoundRepo{
		ids:      make(map[string]struct{}),
		capacity: capacity,
	}
}

// Append добавляет запись.
func (r *MemoryRoundRepo) Append(ctx context.Context, rec RoundRecord) error {
	if err := validateRound(rec); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[rec.ID]; exists {
		return fmt.Errorf("раунд %s уже записан", rec.ID)
	}

	r.records = append(r.records, rec)
	r.ids[rec.ID] = struct{}{}

	if over := len(r.records) - r.capacity; over > 0 {
		for _, old := range r.records[:over] {
			delete(r.ids, old.ID)
		}
		r.records = append([]RoundRecord(nil), r.records[over:]...)
	}
	return nil
}

// Recent возвращает последние записи, новые первыми.
func (r *MemoryRoundRepo) Recent(ctx context.Context, limit int) ([]RoundRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.records))
	out := make([]RoundRecord, 0, n)
	for i := len(r.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}

// Count возвращает количество записей (для отладки).
func (r *MemoryRoundRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Close ничего не делает.
func (r *MemoryRoundRepo) Close() error { return nil }
