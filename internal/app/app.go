package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/tower-stack/internal/config"
	"github.com/annel0/tower-stack/internal/eventbus"
	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/protocol"
	"github.com/annel0/tower-stack/internal/session"
	"github.com/annel0/tower-stack/internal/storage"
	"github.com/annel0/tower-stack/internal/tower"
)

const connectTimeout = 5 * time.Second

// App — собранная игровая сессия со всей инфраструктурой вокруг неё.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry

	Best      storage.BestScoreRepo
	Keeper    *storage.BestScoreKeeper
	Rounds    storage.RoundRepo
	Bus       eventbus.EventBus
	Codec     *protocol.Codec
	Publisher *eventbus.Publisher
	Session   *session.Session

	busMetrics *eventbus.MetricsExporter
	busLogger  eventbus.Subscription
	log        *logging.Logger
}

// New собирает приложение по конфигурации. Недоступные внешние хранилища
// и шина заменяются in-memory реализациями с предупреждением в логе.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		log:      logging.For(logging.ComponentApp),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Best = a.openBestRepo(ctx, cfg.Storage)
	a.Keeper = storage.NewBestScoreKeeper(a.Best, cfg.Game.BestKey)
	a.Rounds = a.openRoundRepo(ctx, cfg.Storage)
	a.Bus = a.openBus(cfg.EventBus)

	format, err := protocol.ParseFormat(cfg.EventBus.Codec)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Codec, err = protocol.NewCodec(format, cfg.EventBus.CompressThreshold); err != nil {
		a.Close()
		return nil, fmt.Errorf("codec: %w", err)
	}

	host, _ := os.Hostname()
	a.Publisher = eventbus.NewPublisher(a.Bus, a.Codec, "tower-stack@"+host)

	if a.busMetrics, err = eventbus.NewMetricsExporter(a.Bus, a.Registry); err != nil {
		a.Close()
		return nil, fmt.Errorf("bus metrics: %w", err)
	}
	a.busMetrics.Start(5 * time.Second)

	if a.busLogger, err = eventbus.StartLoggingListener(a.Bus); err != nil {
		a.Close()
		return nil, fmt.Errorf("bus logger: %w", err)
	}

	if a.Session, err = a.buildSession(cfg.Game); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildSession(g config.GameConfig) (*session.Session, error) {
	policy, err := tower.PolicyByName(g.Policy)
	if err != nil {
		return nil, err
	}
	release, err := tower.ParseLockRelease(g.LockRelease)
	if err != nil {
		return nil, err
	}
	metrics, err := session.NewMetrics(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}

	return session.New(session.Options{
		Engine: tower.Options{
			Tuning:      g.Tuning,
			Policy:      policy,
			LockRelease: release,
			Sink:        a.Publisher,
			Persistence: a.Keeper,
		},
		TickInterval:  g.TickInterval(),
		AckDelay:      g.AckDelay(),
		Rounds:        a.Rounds,
		Metrics:       metrics,
		RoundIDSetter: a.Publisher,
	})
}

func (a *App) openBestRepo(ctx context.Context, cfg config.StorageConfig) storage.BestScoreRepo {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Best {
	case "badger":
		repo, err := storage.NewBadgerBestScoreRepo(cfg.BadgerPath)
		if err == nil {
			a.log.Info("💾 Рекорд хранится в BadgerDB: %s", cfg.BadgerPath)
			return repo
		}
		a.log.Warn("⚠️ BadgerDB недоступна (%v), рекорд в памяти", err)
	case "redis":
		repo, err := storage.NewRedisBestScoreRepo(ctx, storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err == nil {
			return repo
		}
		a.log.Warn("⚠️ Redis недоступен (%v), рекорд в памяти", err)
	}
	return storage.NewMemoryBestScoreRepo()
}

func (a *App) openRoundRepo(ctx context.Context, cfg config.StorageConfig) storage.RoundRepo {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Rounds {
	case "mariadb":
		repo, err := storage.NewMariaRoundRepo(ctx, storage.MariaOptions{
			Host:     cfg.Maria.Host,
			Port:     cfg.Maria.Port,
			Database: cfg.Maria.Database,
			Username: cfg.Maria.Username,
			Password: cfg.Maria.Password,
		})
		if err == nil {
			a.log.Info("✅ MariaDB подключена успешно")
			return repo
		}
		a.log.Warn("⚠️ MariaDB недоступна (%v), история раундов в памяти", err)
	case "mongo":
		repo, err := storage.NewMongoRoundRepo(ctx, storage.MongoOptions{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err == nil {
			a.log.Info("✅ MongoDB подключена успешно")
			return repo
		}
		a.log.Warn("⚠️ MongoDB недоступна (%v), история раундов в памяти", err)
	}
	return storage.NewMemoryRoundRepo(0)
}

func (a *App) openBus(cfg config.EventBusConfig) eventbus.EventBus {
	if cfg.Backend == "jetstream" {
		retention := time.Duration(cfg.Retention) * time.Hour
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, retention)
		if err == nil {
			a.log.Info("📨 JetStream подключён: %s", cfg.URL)
			return bus
		}
		a.log.Warn("⚠️ NATS недоступен (%v), шина в памяти", err)
	}
	return eventbus.NewMemoryBus(cfg.BufferSize)
}

// Close освобождает ресурсы в обратном порядке создания.
func (a *App) Close() error {
	var errs []error
	if a.Session != nil {
		a.Session.Close()
	}
	if a.busLogger != nil {
		a.busLogger.Unsubscribe()
	}
	if a.busMetrics != nil {
		a.busMetrics.Stop()
	}
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.Codec != nil {
		a.Codec.Close()
	}
	if a.Rounds != nil {
		errs = append(errs, a.Rounds.Close())
	}
	if a.Best != nil {
		errs = append(errs, a.Best.Close())
	}
	return errors.Join(errs...)
}
