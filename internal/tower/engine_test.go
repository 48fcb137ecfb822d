package tower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink запоминает все события движка
type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(ev Event) { r.events = append(r.events, ev) }

func (r *recordingSink) types() []EventType {
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.GetType())
	}
	return out
}

func (r *recordingSink) reset() { r.events = nil }

// memoryBest — хранилище рекорда для тестов
type memoryBest struct {
	best  int
	saves []int
}

func (m *memoryBest) LoadBest() int { return m.best }

func (m *memoryBest) SaveBest(score int) {
	m.best = score
	m.saves = append(m.saves, score)
}

// scenarioTuning даёт основание [100, 320] шириной 220
func scenarioTuning() Tuning {
	t := DefaultTuning()
	t.FieldWidth = 420
	t.BaseWidth = 220
	return t
}

func newTestEngine(t *testing.T, tuning Tuning, opts ...func(*Options)) (*Engine, *recordingSink, *memoryBest) {
	t.Helper()
	sink := &recordingSink{}
	best := &memoryBest{}
	o := Options{Tuning: tuning, Sink: sink, Persistence: best}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := NewEngine(o)
	require.NoError(t, err)
	return e, sink, best
}

// moveActiveTo ставит активный блок в заданную позицию без Tick
func moveActiveTo(e *Engine, x float64) {
	e.active.CenterX = x
}

func TestEngine_StartRound(t *testing.T) {
	e, sink, _ := newTestEngine(t, scenarioTuning())
	assert.Equal(t, PhaseIdle, e.Phase())

	e.StartRound()

	s := e.State()
	assert.Equal(t, PhasePlaying, s.Phase)
	require.Len(t, s.Stack, 1, "после старта в башне только основание")
	assert.Equal(t, 210.0, s.Stack[0].CenterX)
	assert.Equal(t, 220.0, s.Stack[0].Width)
	assert.Equal(t, 100.0, s.Stack[0].Left())
	assert.Equal(t, 320.0, s.Stack[0].Right())
	assert.Equal(t, 0, s.Score)
	assert.Equal(t, 350.0, s.Speed)
	assert.False(t, s.InputLocked)

	require.NotNil(t, s.Active)
	assert.Equal(t, s.MinX, s.Active.CenterX, "первый блок стартует слева")
	assert.Equal(t, DirRight, s.Direction)
	assert.Equal(t, 220.0, s.Active.Width)
	assert.Equal(t, s.Stack[0].Y-32, s.Active.Y)

	assert.Equal(t, []EventType{EventTypeRoundStarted, EventTypeSpawned}, sink.types())
}

func TestEngine_PerfectPlacementScenario(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 210)

	out := e.Drop()

	assert.Equal(t, OutcomePerfect, out.Kind)
	assert.Equal(t, 1+5+0, out.ScoreDelta)
	assert.Equal(t, 1, out.Combo)
	require.NotNil(t, out.Placed)
	assert.Equal(t, 220.0, out.Placed.Width)
	assert.Empty(t, out.Overhang)

	s := e.State()
	assert.Equal(t, 6, s.Score)
	assert.Equal(t, 1, s.Combo)
	assert.Equal(t, 1, s.MaxCombo)
	assert.Len(t, s.Stack, 2)
}

func TestEngine_PerfectSnapsWithinTolerance(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 212.5)

	out := e.Drop()

	require.Equal(t, OutcomePerfect, out.Kind)
	assert.Equal(t, 210.0, out.Placed.CenterX, "центр привязывается к блоку ниже")
	assert.Equal(t, 220.0, out.Placed.Width)
	assert.InDelta(t, 2.5, out.Offset, 1e-9)
}

func TestEngine_PerfectIdempotence(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()

	for i := 1; i <= 12; i++ {
		moveActiveTo(e, 210)
		out := e.Drop()
		require.Equal(t, OutcomePerfect, out.Kind)
		assert.Equal(t, i, out.Combo)
		// 1 + бонус + combo/3
		assert.Equal(t, 1+5+i/3, out.ScoreDelta)
	}

	for _, b := range e.State().Stack {
		assert.Equal(t, 220.0, b.Width, "ширина не дрейфует при идеальных установках")
		assert.Equal(t, 210.0, b.CenterX)
	}
}

func TestEngine_GoodPlacementScenario(t *testing.T) {
	e, sink, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	sink.reset()
	moveActiveTo(e, 350) // [240, 460]

	out := e.Drop()

	require.Equal(t, OutcomeGood, out.Kind)
	require.NotNil(t, out.Placed)
	assert.Equal(t, 240.0, out.Placed.Left())
	assert.Equal(t, 320.0, out.Placed.Right())
	assert.Equal(t, 80.0, out.Placed.Width)
	assert.False(t, out.InTolerance)
	assert.Equal(t, 1, out.ScoreDelta)
	assert.Equal(t, 0, out.Combo)

	require.Len(t, out.Overhang, 1)
	assert.Equal(t, 140.0, out.Overhang[0].Width)
	assert.Equal(t, 390.0, out.Overhang[0].CenterX)

	s := e.State()
	assert.Equal(t, 1, s.Score)
	require.NotNil(t, s.Active)
	assert.Equal(t, 80.0, s.Active.Width, "следующий блок наследует обрезанную ширину")

	assert.Equal(t, []EventType{EventTypeOverhang, EventTypePlaced, EventTypeSpawned}, sink.types())
}

func TestEngine_GoodWithinTolerance(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 205) // смещение -5: не perfect, но good

	out := e.Drop()

	require.Equal(t, OutcomeGood, out.Kind)
	assert.True(t, out.InTolerance)
	assert.Equal(t, 1+2, out.ScoreDelta)
	assert.Equal(t, 1, out.Combo)
	assert.Equal(t, 215.0, out.Placed.Width)
	require.Len(t, out.Overhang, 1)
	assert.Equal(t, 5.0, out.Overhang[0].Width)
}

func TestEngine_ComboResetsOutsideTolerance(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()

	moveActiveTo(e, 210)
	require.Equal(t, 1, e.Drop().Combo)
	moveActiveTo(e, 210)
	require.Equal(t, 2, e.Drop().Combo)

	moveActiveTo(e, 250)
	out := e.Drop()
	require.Equal(t, OutcomeGood, out.Kind)
	assert.Equal(t, 0, out.Combo)
	assert.Equal(t, 2, e.State().MaxCombo)
}

func TestEngine_MissScenario(t *testing.T) {
	e, sink, best := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 210)
	require.Equal(t, OutcomePerfect, e.Drop().Kind)
	sink.reset()

	moveActiveTo(e, 510) // curLeft = 400 > prevRight = 320
	out := e.Drop()

	assert.Equal(t, OutcomeMiss, out.Kind)
	s := e.State()
	assert.True(t, s.GameOver)
	assert.Equal(t, PhaseGameOver, s.Phase)
	assert.Nil(t, s.Active)
	assert.Equal(t, 0, s.Combo)
	assert.Equal(t, []int{6}, best.saves)
	assert.Equal(t, []EventType{EventTypeMissed, EventTypeBestUpdated, EventTypeGameOver}, sink.types())
}

func TestEngine_DegenerateOverlapIsMiss(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	// пересечение [310, 320] шириной 10 < MinBlockWidth 15
	moveActiveTo(e, 420)

	out := e.Drop()

	assert.Equal(t, OutcomeMiss, out.Kind)
	for _, b := range e.State().Stack {
		assert.Greater(t, b.Width, 0.0)
	}
}

func TestEngine_MissFinality(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 210)
	e.Drop()
	moveActiveTo(e, 600)
	require.Equal(t, OutcomeMiss, e.Drop().Kind)

	before := e.State()
	e.Tick(0.5)
	assert.Equal(t, OutcomeIgnored, e.Drop().Kind)
	assert.False(t, e.Pause())
	after := e.State()

	assert.Equal(t, before, after)

	e.StartRound()
	assert.Equal(t, PhasePlaying, e.Phase())
	assert.Equal(t, 0, e.State().Score)
}

func TestEngine_BestScoreOncePerRound(t *testing.T) {
	e, _, best := newTestEngine(t, scenarioTuning())
	best.best = 10

	// раунд с результатом ниже рекорда
	e.StartRound()
	moveActiveTo(e, 210)
	e.Drop()
	moveActiveTo(e, 600)
	e.Drop()
	assert.Empty(t, best.saves)
	assert.Equal(t, 10, e.State().BestScoreHint)

	// раунд с новым рекордом
	e.StartRound()
	for i := 0; i < 3; i++ {
		moveActiveTo(e, 210)
		e.Drop()
	}
	score := e.State().Score
	require.Greater(t, score, 10)
	moveActiveTo(e, 600)
	e.Drop()
	assert.Equal(t, []int{score}, best.saves)
	assert.Equal(t, score, e.State().BestScoreHint)
}

func TestEngine_EqualScoreDoesNotUpdateBest(t *testing.T) {
	e, sink, best := newTestEngine(t, scenarioTuning())
	best.best = 6
	e.StartRound()
	moveActiveTo(e, 210)
	e.Drop() // 6 очков
	moveActiveTo(e, 600)
	e.Drop()

	assert.Empty(t, best.saves)
	assert.NotContains(t, sink.types(), EventTypeBestUpdated)
}

func TestEngine_SpawnParity(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	s := e.State()

	for i := 0; i < 6; i++ {
		require.NotNil(t, s.Active)
		if i%2 == 0 {
			assert.Equal(t, s.MinX, s.Active.CenterX, "чётное число установок: слева")
			assert.Equal(t, DirRight, s.Direction)
		} else {
			assert.Equal(t, s.MaxX, s.Active.CenterX, "нечётное число установок: справа")
			assert.Equal(t, DirLeft, s.Direction)
		}
		moveActiveTo(e, 210)
		require.Equal(t, OutcomePerfect, e.Drop().Kind)
		s = e.State()
	}
}

func TestEngine_StackGeometry(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	for i := 0; i < 5; i++ {
		moveActiveTo(e, 212)
		e.Drop()
	}

	stack := e.State().Stack
	for i := 1; i < len(stack); i++ {
		assert.Equal(t, stack[i-1].Y-32, stack[i].Y, "каждый блок выше предыдущего на шаг")
		assert.LessOrEqual(t, stack[i].Width, stack[i-1].Width)
	}
}

func TestEngine_TickMovesAndBounces(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	s := e.State()
	start := s.Active.CenterX

	e.Tick(0.1)
	assert.InDelta(t, start+35, e.State().Active.CenterX, 1e-9)

	// большой dt прижимает к правой границе и разворачивает
	e.Tick(10)
	s = e.State()
	assert.Equal(t, s.MaxX, s.Active.CenterX)
	assert.Equal(t, DirLeft, s.Direction)

	e.Tick(0.1)
	assert.InDelta(t, s.MaxX-35, e.State().Active.CenterX, 1e-9)

	e.Tick(10)
	s = e.State()
	assert.Equal(t, s.MinX, s.Active.CenterX)
	assert.Equal(t, DirRight, s.Direction)
}

func TestEngine_TickIgnoresInvalidDelta(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	before := e.State().Active.CenterX

	e.Tick(0)
	e.Tick(-1)
	assert.Equal(t, before, e.State().Active.CenterX)
}

func TestEngine_IgnoredBeforeStart(t *testing.T) {
	e, sink, _ := newTestEngine(t, scenarioTuning())

	e.Tick(1)
	out := e.Drop()

	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.Empty(t, sink.events)
}

func TestEngine_LockReleaseOnAck(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning(), func(o *Options) {
		o.LockRelease = ReleaseOnAck
	})
	e.StartRound()
	moveActiveTo(e, 210)
	require.Equal(t, OutcomePerfect, e.Drop().Kind)

	s := e.State()
	require.True(t, s.InputLocked)
	require.NotNil(t, s.Active, "следующий блок уже создан")

	e.Tick(0.5)
	assert.Equal(t, s.Active.CenterX, e.State().Active.CenterX, "Tick игнорируется при блокировке")
	assert.Equal(t, OutcomeIgnored, e.Drop().Kind)

	assert.True(t, e.ReleaseInput())
	assert.False(t, e.ReleaseInput())
	e.Tick(0.1)
	assert.NotEqual(t, s.Active.CenterX, e.State().Active.CenterX)
}

func TestEngine_LockReleaseImmediate(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 210)
	e.Drop()

	assert.False(t, e.State().InputLocked)
	assert.False(t, e.ReleaseInput())
}

func TestEngine_PauseResume(t *testing.T) {
	e, sink, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	sink.reset()

	require.True(t, e.Pause())
	assert.False(t, e.Pause())
	before := e.State().Active.CenterX
	e.Tick(0.5)
	assert.Equal(t, before, e.State().Active.CenterX)
	assert.Equal(t, OutcomeIgnored, e.Drop().Kind)

	require.True(t, e.Resume())
	e.Tick(0.1)
	assert.NotEqual(t, before, e.State().Active.CenterX)
	assert.Equal(t, []EventType{EventTypePaused, EventTypeResumed}, sink.types())
}

func TestEngine_RampPolicy(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultTuning(), func(o *Options) {
		o.Policy = DefaultRampSpeed()
	})
	e.StartRound()

	prev := e.State().Speed
	for i := 1; i <= 60; i++ {
		moveActiveTo(e, 360)
		require.Equal(t, OutcomePerfect, e.Drop().Kind)
		speed := e.State().Speed
		assert.GreaterOrEqual(t, speed, prev, "скорость не убывает")
		assert.LessOrEqual(t, speed, 800.0)
		prev = speed
	}
	assert.Equal(t, 800.0, prev)
}

func TestEngine_FrozenPolicyKeepsSpeed(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultTuning())
	e.StartRound()
	for i := 0; i < 10; i++ {
		moveActiveTo(e, 360)
		e.Drop()
	}
	assert.Equal(t, 350.0, e.State().Speed)
}

func TestEngine_Resize(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	moveActiveTo(e, 250)
	e.Drop()

	require.NoError(t, e.Resize(620, 1000))
	s := e.State()
	assert.Equal(t, 310.0, s.Stack[0].CenterX)
	assert.Equal(t, 600.0, s.MaxX)
	// верхний блок сдвинут вместе с основанием
	assert.Equal(t, 330.0, s.Stack[1].CenterX)

	require.NoError(t, e.Resize(200, 400))
	s = e.State()
	assert.LessOrEqual(t, s.Active.CenterX, s.MaxX)

	assert.Error(t, e.Resize(0, 100))
}

func TestEngine_SnapshotIsCopy(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()

	s := e.State()
	s.Stack[0].Width = 1
	s.Active.CenterX = -100

	fresh := e.State()
	assert.Equal(t, 220.0, fresh.Stack[0].Width)
	assert.NotEqual(t, -100.0, fresh.Active.CenterX)
}

func TestEngine_ScoreMonotonic(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	positions := []float64{210, 214, 230, 205, 209, 260, 250}
	last := 0
	for _, x := range positions {
		moveActiveTo(e, x)
		out := e.Drop()
		if out.Kind == OutcomeMiss {
			break
		}
		score := e.State().Score
		assert.GreaterOrEqual(t, score, last)
		last = score
	}
}

func TestEngine_ColorCycles(t *testing.T) {
	e, _, _ := newTestEngine(t, scenarioTuning())
	e.StartRound()
	s := e.State()
	assert.Equal(t, 1, s.Stack[0].ColorIndex)
	assert.Equal(t, 2, s.Active.ColorIndex)
	for i := 0; i < len(Palette); i++ {
		moveActiveTo(e, 210)
		e.Drop()
	}
	s = e.State()
	for _, b := range s.Stack {
		assert.Less(t, b.ColorIndex, len(Palette))
	}
}

func TestNewEngine_InvalidTuning(t *testing.T) {
	tuning := DefaultTuning()
	tuning.MinBlockWidth = 0

	_, err := NewEngine(Options{Tuning: tuning})
	assert.ErrorIs(t, err, ErrInvalidTuning)
}

func TestParseLockRelease(t *testing.T) {
	l, err := ParseLockRelease("ack")
	require.NoError(t, err)
	assert.Equal(t, ReleaseOnAck, l)

	l, err = ParseLockRelease("")
	require.NoError(t, err)
	assert.Equal(t, ReleaseImmediate, l)

	_, err = ParseLockRelease("later")
	assert.Error(t, err)
}
