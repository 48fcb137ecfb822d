package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/tower-stack/internal/api"
	"github.com/annel0/tower-stack/internal/app"
	"github.com/annel0/tower-stack/internal/auth"
	"github.com/annel0/tower-stack/internal/config"
	"github.com/annel0/tower-stack/internal/health"
	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $TOWER_CONFIG)")
	flag.Parse()

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.CloseComponents()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetConsoleLevel(level)
	}
	if err := logging.Components().ApplyLevels(cfg.LogLevels); err != nil {
		logging.Warn("⚠️ log_levels: %v", err)
	}

	logging.Info("🧱 Запуск tower-stack...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Warn("⚠️ OpenTelemetry не инициализирован: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	// === ИГРА И ИНФРАСТРУКТУРА ===
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("сборка приложения: %w", err)
	}
	defer a.Close()

	// === REST API ===
	users, err := auth.NewOperatorRepo(cfg.Auth.OperatorUser, cfg.Auth.OperatorPassword)
	if err != nil {
		return fmt.Errorf("репозиторий операторов: %w", err)
	}
	if users.Count() == 0 {
		logging.Warn("⚠️ Пароль оператора не задан: управляющие эндпоинты недоступны")
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	if err != nil {
		return fmt.Errorf("JWT: %w", err)
	}

	restPort := cfg.Server.GetRESTPort()
	rest, err := api.NewRestServer(api.Config{
		Port:     fmt.Sprintf(":%d", restPort),
		Game:     a.Session,
		Best:     a.Keeper,
		Users:    users,
		Tokens:   tokens,
		Registry: a.Registry,
	})
	if err != nil {
		return fmt.Errorf("REST API: %w", err)
	}
	httpServer := api.NewHTTPServer(rest)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("запуск REST API: %w", err)
	}

	// === gRPC HEALTH ===
	healthServer := health.NewServer(a.Session.Running)
	grpcPort := cfg.Server.GetGRPCPort()
	go func() {
		if err := healthServer.ListenAndServe(grpcPort); err != nil {
			logging.Error("❌ Ошибка gRPC health сервера: %v", err)
		}
	}()
	go healthServer.Watch(ctx, time.Second)

	// === ИГРОВОЙ ЦИКЛ ===
	if cfg.Game.AutoStart {
		a.Session.Restart(ctx)
	}
	loopErr := make(chan error, 1)
	go func() { loopErr <- a.Session.Run(ctx) }()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   🩺 gRPC health: localhost:%d", grpcPort)
	logging.Info("   ⚙️ Сложность: %q, блокировка ввода: %q, тик %v", cfg.Game.Policy, cfg.Game.LockRelease, cfg.Game.TickInterval())

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-httpServer.Errors():
		runErr = fmt.Errorf("REST API: %w", err)
	case err := <-loopErr:
		if !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("игровой цикл: %w", err)
		}
	}
	stop()

	// === GRACEFUL SHUTDOWN ===
	healthServer.Stop()
	if err := httpServer.Stop(context.Background()); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	return runErr
}
