package bot

import (
	"context"
	"errors"
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/tower"
)

// Параметры шума прицеливания
const (
	noiseAlpha   = 2.0 // сглаживание
	noiseBeta    = 2.0 // частота
	noiseOctaves = int32(3)
	noiseStep    = 0.37 // шаг по оси шума между установками
	minTickDt    = 1e-3
)

// ErrStalled — раунд не продвигается: шаги кончились, а установок нет.
var ErrStalled = errors.New("bot: round stalled")

// Player — то, чем управляет бот. *session.Session реализует его целиком.
type Player interface {
	Restart(ctx context.Context) tower.Snapshot
	Tick(dt float64)
	Drop(ctx context.Context) tower.DropOutcome
	ReleaseInput() bool
	Snapshot() tower.Snapshot
	RoundID() string
}

// Config — поведение бота
type Config struct {
	Seed          int64
	AimWindow     float64 // px вокруг точки прицеливания, в которых бот жмёт Drop
	Jitter        float64 // амплитуда ошибки прицеливания, px
	MaxPlacements int     // 0 — 500; раунд прерывается по достижении
}

// RoundSummary — итог одного раунда бота
type RoundSummary struct {
	RoundID    string `json:"round_id"`
	Score      int    `json:"score"`
	MaxCombo   int    `json:"max_combo"`
	Placements int    `json:"placements"`
	Perfects   int    `json:"perfects"`
	Goods      int    `json:"goods"`
	Capped     bool   `json:"capped"` // раунд остановлен лимитом MaxPlacements
}

// Bot играет раунды, выбирая момент Drop по снимку состояния.
// Не потокобезопасен.
type Bot struct {
	cfg   Config
	noise *perlin.Perlin
	drops int
	log   *logging.Logger
}

// New создаёт бота; одинаковый Seed даёт одинаковую игру.
func New(cfg Config) *Bot {
	if cfg.MaxPlacements <= 0 {
		cfg.MaxPlacements = 500
	}
	if cfg.AimWindow <= 0 {
		cfg.AimWindow = 0.5
	}
	return &Bot{
		cfg:   cfg,
		noise: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, cfg.Seed),
		log:   logging.For(logging.ComponentBot),
	}
}

// AimOffset возвращает ошибку прицеливания для очередной установки.
func (b *Bot) AimOffset() float64 {
	// в узлах решётки шум Перлина равен нулю, поэтому сдвиг на полшага
	return b.cfg.Jitter * b.noise.Noise1D(float64(b.drops)*noiseStep+0.5)
}

// target — точка прицеливания: центр верхнего блока плюс ошибка, в пределах поля.
func (b *Bot) target(snap tower.Snapshot) (float64, bool) {
	top, ok := snap.Top()
	if !ok {
		return 0, false
	}
	return math.Min(math.Max(top.CenterX+b.AimOffset(), snap.MinX), snap.MaxX), true
}

// ShouldDrop сообщает, пора ли жать Drop для данного снимка.
func (b *Bot) ShouldDrop(snap tower.Snapshot) bool {
	if snap.Phase != tower.PhasePlaying || snap.Active == nil || snap.InputLocked || snap.Paused {
		return false
	}
	target, ok := b.target(snap)
	if !ok {
		return false
	}
	return math.Abs(snap.Active.CenterX-target) <= b.cfg.AimWindow
}

// nextDt — время до точки прицеливания, если блок движется к ней,
// иначе до ближайшего края по направлению движения.
func (b *Bot) nextDt(snap tower.Snapshot) float64 {
	if snap.Active == nil || snap.Speed <= 0 {
		return minTickDt
	}
	x := snap.Active.CenterX
	dir := float64(snap.Direction)

	if target, ok := b.target(snap); ok {
		if dist := (target - x) * dir; dist >= 0 {
			return math.Max(dist/snap.Speed, minTickDt)
		}
	}
	edge := snap.MaxX - x
	if snap.Direction == tower.DirLeft {
		edge = x - snap.MinX
	}
	return math.Max(edge/snap.Speed, minTickDt)
}

// PlayRound начинает новый раунд и играет его до промаха или лимита установок.
func (b *Bot) PlayRound(ctx context.Context, p Player) (RoundSummary, error) {
	snap := p.Restart(ctx)
	sum := RoundSummary{RoundID: p.RoundID()}

	// к краю, обратно, к цели и снятие блокировки укладываются в 8 шагов
	budget := (b.cfg.MaxPlacements + 1) * 8
	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return b.finish(sum, p.Snapshot()), err
		}
		if snap.Phase == tower.PhaseGameOver {
			return b.finish(sum, snap), nil
		}
		if sum.Placements >= b.cfg.MaxPlacements {
			sum.Capped = true
			return b.finish(sum, snap), nil
		}
		if steps > budget {
			return b.finish(sum, snap), ErrStalled
		}

		if snap.InputLocked {
			p.ReleaseInput()
			snap = p.Snapshot()
			continue
		}

		if !b.ShouldDrop(snap) {
			p.Tick(b.nextDt(snap))
			snap = p.Snapshot()
			continue
		}

		out := p.Drop(ctx)
		b.drops++
		switch out.Kind {
		case tower.OutcomePerfect:
			sum.Perfects++
			sum.Placements++
		case tower.OutcomeGood:
			sum.Goods++
			sum.Placements++
		}
		snap = p.Snapshot()
	}
}

func (b *Bot) finish(sum RoundSummary, snap tower.Snapshot) RoundSummary {
	sum.Score = snap.Score
	sum.MaxCombo = snap.MaxCombo
	b.log.Debug("🤖 Раунд %s: счёт %d, установок %d (perfect %d, good %d)",
		sum.RoundID, sum.Score, sum.Placements, sum.Perfects, sum.Goods)
	return sum
}

// Report — сводка по серии раундов
type Report struct {
	Rounds          int            `json:"rounds"`
	Best            int            `json:"best"`
	MeanScore       float64        `json:"mean_score"`
	TotalPlacements int            `json:"total_placements"`
	PerfectRate     float64        `json:"perfect_rate"`
	Summaries       []RoundSummary `json:"summaries"`
}

// Play играет rounds раундов подряд.
func (b *Bot) Play(ctx context.Context, p Player, rounds int) (Report, error) {
	var rep Report
	var perfects, total int
	for i := 0; i < rounds; i++ {
		sum, err := b.PlayRound(ctx, p)
		if err != nil {
			return rep, err
		}
		rep.Summaries = append(rep.Summaries, sum)
		rep.Rounds++
		rep.TotalPlacements += sum.Placements
		rep.Best = max(rep.Best, sum.Score)
		total += sum.Score
		perfects += sum.Perfects
		b.log.Info("🤖 Раунд %d/%d: счёт %d", i+1, rounds, sum.Score)
	}
	if rep.Rounds > 0 {
		rep.MeanScore = float64(total) / float64(rep.Rounds)
	}
	if rep.TotalPlacements > 0 {
		rep.PerfectRate = float64(perfects) / float64(rep.TotalPlacements)
	}
	return rep, nil
}
