package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/tower-stack/internal/tower"
)

// Metrics — Prometheus-метрики игровой сессии
type Metrics struct {
	drops         *prometheus.CounterVec
	rounds        prometheus.Counter
	score         prometheus.Gauge
	best          prometheus.Gauge
	height        prometheus.Gauge
	speed         prometheus.Gauge
	roundDuration prometheus.Histogram
}

// NewMetrics создаёт и регистрирует метрики в reg (nil — глобальный регистр).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "drops_total",
			Help:      "Количество команд Drop по результату.",
		}, []string{"outcome"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "rounds_total",
			Help:      "Количество завершённых раундов.",
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "score",
			Help:      "Счёт текущего раунда.",
		}),
		best: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "best_score",
			Help:      "Лучший результат.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "stack_height",
			Help:      "Количество блоков в башне, включая основание.",
		}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "block_speed",
			Help:      "Текущая горизонтальная скорость активного блока, px/s.",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tower",
			Subsystem: "session",
			Name:      "round_duration_seconds",
			Help:      "Длительность раунда.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
	}

	collectors := []prometheus.Collector{m.drops, m.rounds, m.score, m.best, m.height, m.speed, m.roundDuration}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Emit обновляет метрики по событиям движка (tower.Sink).
func (m *Metrics) Emit(ev tower.Event) {
	if m == nil {
		return
	}
	switch e := ev.(type) {
	case tower.RoundStartedEvent:
		m.score.Set(0)
		m.height.Set(1)
		m.best.Set(float64(e.BestScore))
		m.speed.Set(e.Speed)
	case tower.PlacedEvent:
		m.score.Set(float64(e.Score))
		m.height.Set(float64(e.Height))
		m.speed.Set(e.Speed)
	case tower.BestUpdatedEvent:
		m.best.Set(float64(e.Best))
	case tower.GameOverEvent:
		m.rounds.Inc()
	}
}

func (m *Metrics) observeDrop(kind tower.OutcomeKind) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeRoundDuration(seconds float64) {
	if m == nil {
		return
	}
	m.roundDuration.Observe(seconds)
}
