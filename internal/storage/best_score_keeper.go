package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/tower"
)

var _ tower.Persistence = (*BestScoreKeeper)(nil)

// BestScoreKeeper реализует tower.Persistence поверх любого BestScoreRepo.
// Ошибки хранилища никогда не выходят наружу: отсутствующее или
// повреждённое значение читается как 0, ошибка записи только логируется.
type BestScoreKeeper struct {
	repo    BestScoreRepo
	key     string
	timeout time.Duration
	log     *logging.Logger

	mu        sync.Mutex
	lastErr   error
	loadFails int
	saveFails int
}

// NewBestScoreKeeper создаёт адаптер с ключом key ("tower:best" если пусто).
func NewBestScoreKeeper(repo BestScoreRepo, key string) *BestScoreKeeper {
	if key == "" {
		key = "tower:best"
	}
	return &BestScoreKeeper{
		repo:    repo,
		key:     key,
		timeout: 2 * time.Second,
		log:     logging.For(logging.ComponentStorage),
	}
}

// Key возвращает ключ рекорда.
func (k *BestScoreKeeper) Key() string { return k.key }

// LoadBest возвращает сохранённый рекорд или 0.
func (k *BestScoreKeeper) LoadBest() int {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	v, found, err := k.repo.Load(ctx, k.key)
	if err != nil {
		k.fail(err, true)
		if errors.Is(err, ErrCorruptValue) {
			k.log.Warn("⚠️ Повреждённый рекорд под ключом %s, считаем 0: %v", k.key, err)
		} else {
			k.log.Error("❌ Ошибка чтения рекорда %s: %v", k.key, err)
		}
		return 0
	}
	if !found {
		k.log.Debug("Рекорд %s ещё не записан", k.key)
		return 0
	}
	return v
}

// SaveBest перезаписывает рекорд. Ошибки логируются.
func (k *BestScoreKeeper) SaveBest(score int) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	if err := k.repo.Save(ctx, k.key, score); err != nil {
		k.fail(err, false)
		k.log.Error("❌ Ошибка сохранения рекорда %d в %s: %v", score, k.key, err)
		return
	}
	k.log.Info("🏆 Новый рекорд %d сохранён (%s)", score, k.key)
}

func (k *BestScoreKeeper) fail(err error, load bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastErr = err
	if load {
		k.loadFails++
	} else {
		k.saveFails++
	}
}

// Stats возвращает число неудачных чтений/записей и последнюю ошибку.
func (k *BestScoreKeeper) Stats() (loadFails, saveFails int, lastErr error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadFails, k.saveFails, k.lastErr
}
