package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaOptions содержит настройки подключения к MariaDB
type MariaOptions struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, tower
	Username string // пользователь БД
	Password string // пароль БД
}

// DSN формирует строку подключения для go-sql-driver/mysql.
func (o MariaOptions) DSN() string {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 3306
	}
	if o.Database == "" {
		o.Database = "tower"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		o.Username, o.Password, o.Host, o.Port, o.Database)
}

// MariaRoundRepo реализует RoundRepo для MariaDB/MySQL.
// Использует таблицу tower_rounds.
type MariaRoundRepo struct {
	db *sql.DB
}

// NewMariaRoundRepo подключается к базе и создает таблицу, если её нет.
func NewMariaRoundRepo(ctx context.Context, opts MariaOptions) (*MariaRoundRepo, error) {
	db, err := sql.Open("mysql", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaRoundRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

// NewMariaRoundRepoWithDB использует готовое подключение (таблица должна существовать).
func NewMariaRoundRepoWithDB(db *sql.DB) *MariaRoundRepo {
	return &MariaRoundRepo{db: db}
}

func (r *MariaRoundRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tower_rounds (
			id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			round_id    CHAR(36)     NOT NULL UNIQUE,
			score       INT          NOT NULL,
			max_combo   INT          NOT NULL DEFAULT 0,
			placements  INT          NOT NULL DEFAULT 0,
			height      INT          NOT NULL DEFAULT 1,
			policy      VARCHAR(32)  NOT NULL,
			started_at  DATETIME(3)  NOT NULL,
			ended_at    DATETIME(3)  NOT NULL,
			INDEX idx_ended_at (ended_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы tower_rounds: %w", err)
	}
	return nil
}

// Append добавляет запись о раунде.
func (r *MariaRoundRepo) Append(ctx context.Context, rec RoundRecord) error {
	if err := validateRound(rec); err != nil {
		return err
	}

	query := `
		INSERT INTO tower_rounds
			(round_id, score, max_combo, placements, height, policy, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Score, rec.MaxCombo, rec.Placements, rec.Height, rec.Policy,
		rec.StartedAt.UTC(), rec.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения раунда %s: %w", rec.ID, err)
	}
	return nil
}

// Recent возвращает последние раунды по времени окончания.
func (r *MariaRoundRepo) Recent(ctx context.Context, limit int) ([]RoundRecord, error) {
	query := `
		SELECT round_id, score, max_combo, placements, height, policy, started_at, ended_at
		FROM tower_rounds
		ORDER BY ended_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории раундов: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var rec RoundRecord
		if err := rows.Scan(&rec.ID, &rec.Score, &rec.MaxCombo, &rec.Placements,
			&rec.Height, &rec.Policy, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("ошибка разбора строки tower_rounds: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close закрывает соединение с базой данных.
func (r *MariaRoundRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
