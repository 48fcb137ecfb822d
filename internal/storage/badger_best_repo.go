package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// BadgerBestScoreRepo хранит рекорд в локальной BadgerDB.
// Аналог localStorage для одиночного хоста.
type BadgerBestScoreRepo struct {
	db      *badger.DB
	path    string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerBestScoreRepo открывает (или создает) базу в каталоге path.
func NewBadgerBestScoreRepo(path string) (*BadgerBestScoreRepo, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerBestScoreRepo{
		db:      db,
		path:    path,
		isReady: true,
	}, nil
}

// Load читает рекорд по ключу.
func (r *BadgerBestScoreRepo) Load(ctx context.Context, key string) (int, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return 0, false, fmt.Errorf("хранилище не готово")
	}

	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	v, err := decodeScore(raw)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// Save записывает рекорд в одной транзакции с проверкой текущего значения.
func (r *BadgerBestScoreRepo) Save(ctx context.Context, key string, score int) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if score < 0 {
		return fmt.Errorf("недействительный рекорд: %d", score)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if keepsBest(raw, score) {
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set([]byte(key), encodeScore(score))
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// setRaw пишет значение как есть (для тестов повреждённых данных).
func (r *BadgerBestScoreRepo) setRaw(key string, raw []byte) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Close закрывает базу.
func (r *BadgerBestScoreRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}
	r.isReady = false
	return r.db.Close()
}
