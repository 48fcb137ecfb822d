package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/storage"
	"github.com/annel0/tower-stack/internal/tower"
)

const (
	// максимальный шаг кадра: после паузы процесса блок не должен
	// пролетать поле за один Tick
	maxFrameDelta = 250 * time.Millisecond

	recordTimeout = 3 * time.Second
)

// ErrAlreadyRunning возвращается повторным вызовом Run.
var ErrAlreadyRunning = errors.New("session loop already running")

// RoundIDSetter получает ID нового раунда (например, eventbus.Publisher).
type RoundIDSetter interface {
	SetRoundID(id string)
}

// Options — зависимости сессии
type Options struct {
	Engine       tower.Options
	TickInterval time.Duration // период игрового цикла, по умолчанию 1/60 с
	AckDelay     time.Duration // для ReleaseOnAck: сессия снимает блокировку сама через AckDelay (0 — ждать ReleaseInput)

	Rounds  storage.RoundRepo // nil — история не пишется
	Metrics *Metrics          // nil — без метрик
	Tracer  trace.Tracer      // nil — otel.Tracer("tower/session")
	Logger  *logging.Logger   // nil — logging.For(logging.ComponentSession)

	// вызывается при старте каждого раунда
	RoundIDSetter RoundIDSetter
}

// roundInfo — данные текущего раунда, которых нет в движке
type roundInfo struct {
	id        string
	number    uint64
	startedAt time.Time
	ctx       context.Context
	span      trace.Span
}

// Session владеет одним движком и сериализует все обращения к нему.
// Движок не синхронизирован, поэтому мьютекс сессии — единственная точка входа.
type Session struct {
	mu     sync.Mutex
	engine *tower.Engine
	round  *roundInfo

	// итог раунда, зафиксированный sink'ом под мьютексом и
	// записываемый в репозиторий после его освобождения
	pending *storage.RoundRecord

	// номер блокировки ввода: растёт на каждой принятой установке и
	// каждом раунде, таймер AckDelay снимает только свою блокировку
	lockGen uint64

	tickInterval time.Duration
	ackDelay     time.Duration
	lockRelease  tower.LockRelease

	rounds   storage.RoundRepo
	metrics  *Metrics
	tracer   trace.Tracer
	log      *logging.Logger
	idSetter RoundIDSetter

	running  atomic.Bool
	lastTick atomic.Int64 // unix nano последнего кадра
}

// New создаёт сессию; раунд не начинается до Restart.
func New(opts Options) (*Session, error) {
	s := &Session{
		tickInterval: opts.TickInterval,
		ackDelay:     opts.AckDelay,
		lockRelease:  opts.Engine.LockRelease,
		rounds:       opts.Rounds,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		log:          opts.Logger,
		idSetter:     opts.RoundIDSetter,
	}
	if s.tickInterval <= 0 {
		s.tickInterval = time.Second / 60
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("tower/session")
	}
	if s.log == nil {
		s.log = logging.For(logging.ComponentSession)
	}

	engineOpts := opts.Engine
	sinks := tower.MultiSink{tower.SinkFunc(s.observe)}
	if s.metrics != nil {
		sinks = append(sinks, s.metrics)
	}
	if engineOpts.Sink != nil {
		sinks = append(sinks, engineOpts.Sink)
	}
	engineOpts.Sink = sinks

	engine, err := tower.NewEngine(engineOpts)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// observe вызывается движком синхронно, под s.mu.
func (s *Session) observe(ev tower.Event) {
	switch e := ev.(type) {
	case tower.GameOverEvent:
		if s.round == nil {
			return
		}
		now := time.Now().UTC()
		s.pending = &storage.RoundRecord{
			ID:         s.round.id,
			Score:      e.Score,
			MaxCombo:   e.MaxCombo,
			Placements: e.Placements,
			Height:     e.Height,
			Policy:     s.engine.Policy().Name(),
			StartedAt:  s.round.startedAt,
			EndedAt:    now,
		}
		s.round.span.SetAttributes(
			attribute.Int("tower.score", e.Score),
			attribute.Int("tower.best_score", e.BestScore),
			attribute.Int("tower.max_combo", e.MaxCombo),
			attribute.Int("tower.placements", e.Placements),
		)
		s.round.span.End()
		s.metrics.observeRoundDuration(now.Sub(s.round.startedAt).Seconds())
		s.log.Info("🏁 Раунд %s окончен: счёт %d, рекорд %d, высота %d", s.round.id, e.Score, e.BestScore, e.Height)
	case tower.BestUpdatedEvent:
		s.log.Info("🏆 Новый рекорд: %d (был %d)", e.Best, e.Previous)
	}
}

// Restart начинает новый раунд. Незавершённый раунд прерывается.
func (s *Session) Restart(ctx context.Context) tower.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.round != nil && s.engine.Phase() == tower.PhasePlaying {
		s.round.span.SetStatus(codes.Error, "abandoned")
		s.round.span.End()
		s.log.Debug("Раунд %s прерван перезапуском", s.round.id)
	}

	id := uuid.NewString()
	rctx, span := s.tracer.Start(context.WithoutCancel(ctx), "tower.round",
		trace.WithAttributes(
			attribute.String("tower.round_id", id),
			attribute.String("tower.policy", s.engine.Policy().Name()),
		))
	s.round = &roundInfo{
		id:        id,
		startedAt: time.Now().UTC(),
		ctx:       rctx,
		span:      span,
	}
	if s.idSetter != nil {
		s.idSetter.SetRoundID(id)
	}

	s.lockGen++
	s.engine.StartRound()
	s.round.number = s.engine.State().Round
	s.log.Info("🧱 Раунд %s начат", id)
	return s.engine.State()
}

// Tick продвигает активный блок на dt секунд.
func (s *Session) Tick(dt float64) {
	s.mu.Lock()
	s.engine.Tick(dt)
	s.mu.Unlock()
}

// Drop фиксирует активный блок. Итог завершившегося раунда записывается в
// историю после освобождения мьютекса.
func (s *Session) Drop(ctx context.Context) tower.DropOutcome {
	s.mu.Lock()

	var span trace.Span
	if s.round != nil {
		_, span = s.tracer.Start(s.round.ctx, "tower.drop")
	}

	out := s.engine.Drop()
	s.metrics.observeDrop(out.Kind)

	pending := s.pending
	s.pending = nil
	if out.Accepted() {
		s.lockGen++
	}
	gen := s.lockGen
	s.mu.Unlock()

	if span != nil {
		span.SetAttributes(
			attribute.String("tower.outcome", out.Kind.String()),
			attribute.Int("tower.score_delta", out.ScoreDelta),
			attribute.Int("tower.combo", out.Combo),
			attribute.Float64("tower.offset", out.Offset),
		)
		span.End()
	}

	if out.Accepted() && s.lockRelease == tower.ReleaseOnAck && s.ackDelay > 0 {
		time.AfterFunc(s.ackDelay, func() { s.releaseFor(gen) })
	}

	if pending != nil {
		s.record(ctx, *pending)
	}
	return out
}

func (s *Session) record(ctx context.Context, rec storage.RoundRecord) {
	if s.rounds == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.rounds.Append(ctx, rec); err != nil {
		s.log.Error("❌ Не удалось записать раунд %s: %v", rec.ID, err)
	}
}

// releaseFor снимает блокировку, только если после установки gen не было
// ни новой установки, ни нового раунда.
func (s *Session) releaseFor(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockGen != gen {
		return
	}
	s.engine.ReleaseInput()
}

// ReleaseInput снимает блокировку ввода (конец анимации установки).
func (s *Session) ReleaseInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ReleaseInput()
}

// Pause ставит раунд на паузу.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Pause()
}

// Resume снимает паузу.
func (s *Session) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Resume()
}

// Resize меняет размеры поля.
func (s *Session) Resize(width, height float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Resize(width, height)
}

// Snapshot возвращает копию состояния движка.
func (s *Session) Snapshot() tower.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// RoundID возвращает ID текущего (или последнего) раунда.
func (s *Session) RoundID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil {
		return ""
	}
	return s.round.id
}

// Tuning возвращает константы движка.
func (s *Session) Tuning() tower.Tuning { return s.engine.Tuning() }

// Rounds возвращает последние раунды из истории.
func (s *Session) Rounds(ctx context.Context, limit int) ([]storage.RoundRecord, error) {
	if s.rounds == nil {
		return nil, nil
	}
	return s.rounds.Recent(ctx, limit)
}

// Running сообщает, работает ли игровой цикл.
func (s *Session) Running() bool { return s.running.Load() }

// LastTick возвращает время последнего кадра игрового цикла.
func (s *Session) LastTick() time.Time {
	ns := s.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run крутит игровой цикл до отмены ctx: на каждом кадре вызывает Tick с
// измеренным временем кадра.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.log.Info("▶️ Игровой цикл запущен (%v на кадр)", s.tickInterval)
	last := time.Now()
	s.lastTick.Store(last.UnixNano())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("⏹️ Игровой цикл остановлен")
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if dt > maxFrameDelta {
				dt = maxFrameDelta
			}
			s.Tick(dt.Seconds())
			s.lastTick.Store(now.UnixNano())
		}
	}
}

// Close завершает span незаконченного раунда.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round != nil && s.engine.Phase() == tower.PhasePlaying {
		s.round.span.SetStatus(codes.Error, "shutdown")
		s.round.span.End()
	}
}
