package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BestScoreRepo определяет интерфейс для хранения лучшего результата.
// Значение — одно неотрицательное целое под строковым ключом.
type BestScoreRepo interface {
	// Load загружает значение по ключу.
	// Возвращает:
	//   int - сохранённый результат
	//   bool - false, если ключ ещё не записан
	//   error - ошибка хранилища или ErrCorruptValue
	Load(ctx context.Context, key string) (int, bool, error)

	// Save записывает значение, только если оно больше сохранённого.
	// Повреждённое значение перезаписывается.
	Save(ctx context.Context, key string, score int) error

	// Close освобождает ресурсы хранилища.
	Close() error
}

// ErrCorruptValue возвращается, если сохранённое значение не является
// неотрицательным целым числом.
var ErrCorruptValue = errors.New("corrupt best score value")

// encodeScore хранит результат строкой, как localStorage оригинальной игры.
func encodeScore(score int) []byte {
	return []byte(strconv.Itoa(score))
}

// keepsBest сообщает, что сохранённое значение raw не хуже score.
func keepsBest(raw []byte, score int) bool {
	cur, err := decodeScore(raw)
	return err == nil && cur >= score
}

func decodeScore(raw []byte) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorruptValue, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative %d", ErrCorruptValue, v)
	}
	return v, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("пустой ключ рекорда")
	}
	return nil
}
