package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/annel0/tower-stack/internal/app"
	"github.com/annel0/tower-stack/internal/bot"
	"github.com/annel0/tower-stack/internal/config"
	"github.com/annel0/tower-stack/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "путь к YAML конфигурации")
		rounds     = flag.Int("rounds", 0, "число раундов (0 — из конфигурации)")
		seed       = flag.Int64("seed", 0, "сид шума прицеливания (0 — из конфигурации)")
		asJSON     = flag.Bool("json", false, "вывести отчёт в JSON")
	)
	flag.Parse()

	if err := logging.InitDefaultLogger("bot"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *rounds > 0 {
		cfg.Bot.Rounds = *rounds
	}
	if *seed != 0 {
		cfg.Bot.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка сборки приложения: %v", err)
	}
	defer a.Close()

	b := bot.New(bot.Config{
		Seed:      cfg.Bot.Seed,
		AimWindow: cfg.Bot.AimWindow,
		Jitter:    cfg.Bot.Jitter,
	})
	logging.Info("🤖 Бот: %d раундов, seed=%d, jitter=%.1fpx", cfg.Bot.Rounds, cfg.Bot.Seed, cfg.Bot.Jitter)

	report, err := b.Play(ctx, a.Session, cfg.Bot.Rounds)
	if err != nil {
		logging.Error("❌ Игра прервана: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Printf("Раундов: %d\n", report.Rounds)
	fmt.Printf("Лучший счёт: %d (сохранённый рекорд %d)\n", report.Best, a.Keeper.LoadBest())
	fmt.Printf("Средний счёт: %.1f\n", report.MeanScore)
	fmt.Printf("Установок: %d, perfect: %.0f%%\n", report.TotalPlacements, report.PerfectRate*100)
	for i, s := range report.Summaries {
		capped := ""
		if s.Capped {
			capped = " (лимит)"
		}
		id := s.RoundID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("  #%-3d %s счёт=%-5d установок=%-4d combo=%d%s\n", i+1, id, s.Score, s.Placements, s.MaxCombo, capped)
	}
}
