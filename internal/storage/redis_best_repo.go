package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/tower-stack/internal/logging"
)

// saveBestScript записывает ARGV[1], только если текущее значение не число
// или меньше. Возвращает 1, если значение записано.
var saveBestScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]))
if cur and cur >= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisBestScoreRepo хранит рекорд в Redis (общий рекорд для нескольких хостов).
type RedisBestScoreRepo struct {
	client *redis.Client
}

// RedisOptions содержит настройки подключения к Redis
type RedisOptions struct {
	Addr     string // Адрес Redis сервера
	Password string // Пароль (пустой если не требуется)
	DB       int    // Номер базы данных
}

// NewRedisBestScoreRepo подключается к Redis и проверяет соединение.
func NewRedisBestScoreRepo(ctx context.Context, opts RedisOptions) (*RedisBestScoreRepo, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", opts.Addr)
	return &RedisBestScoreRepo{client: client}, nil
}

// NewRedisBestScoreRepoWithClient оборачивает уже созданный клиент.
func NewRedisBestScoreRepoWithClient(client *redis.Client) *RedisBestScoreRepo {
	return &RedisBestScoreRepo{client: client}
}

// Load читает рекорд по ключу.
func (r *RedisBestScoreRepo) Load(ctx context.Context, key string) (int, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("failed to get best score: %w", err)
	}

	v, err := decodeScore(data)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// Save атомарно записывает рекорд без TTL, если он выше сохранённого:
// рекорд другого хоста, записанный во время раунда, не затирается.
func (r *RedisBestScoreRepo) Save(ctx context.Context, key string, score int) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if score < 0 {
		return fmt.Errorf("недействительный рекорд: %d", score)
	}
	if err := saveBestScript.Run(ctx, r.client, []string{key}, score).Err(); err != nil {
		return fmt.Errorf("failed to save best score: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisBestScoreRepo) Close() error {
	return r.client.Close()
}
