package storage

import (
	"context"
	"errors"
	"time"
)

// RoundRecord — итог одного раунда для истории.
type RoundRecord struct {
	ID         string    `json:"id" bson:"round_id"`
	Score      int       `json:"score" bson:"score"`
	MaxCombo   int       `json:"max_combo" bson:"max_combo"`
	Placements int       `json:"placements" bson:"placements"`
	Height     int       `json:"height" bson:"height"`
	Policy     string    `json:"policy" bson:"policy"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	EndedAt    time.Time `json:"ended_at" bson:"ended_at"`
}

// Duration возвращает длительность раунда.
func (r RoundRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// RoundRepo хранит историю завершённых раундов.
type RoundRepo interface {
	// Append добавляет запись. ID обязателен и уникален.
	Append(ctx context.Context, rec RoundRecord) error

	// Recent возвращает последние limit записей, новые первыми.
	Recent(ctx context.Context, limit int) ([]RoundRecord, error)

	Close() error
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// ErrInvalidRound возвращается для записи без ID или с отрицательным счётом.
var ErrInvalidRound = errors.New("invalid round record")

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

func validateRound(rec RoundRecord) error {
	if rec.ID == "" || rec.Score < 0 {
		return ErrInvalidRound
	}
	return nil
}
