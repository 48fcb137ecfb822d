package tower

import (
	"fmt"
	"math"
)

// Phase — состояние конечного автомата раунда
type Phase uint8

const (
	PhaseIdle     Phase = iota // раунд ещё не начинался
	PhasePlaying               // идёт игра (движение/установка)
	PhaseGameOver              // промах, ждём StartRound
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhaseGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// MarshalText сериализует фазу строкой.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText разбирает строковое представление фазы.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhasePlaying, PhaseGameOver} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Direction — направление горизонтального движения активного блока
type Direction int

const (
	DirLeft  Direction = -1
	DirRight Direction = 1
)

// LockRelease определяет, когда снимается блокировка ввода после установки.
type LockRelease uint8

const (
	// ReleaseImmediate — блокировка снимается сразу после вычисления нового состояния.
	ReleaseImmediate LockRelease = iota
	// ReleaseOnAck — блокировка держится до вызова ReleaseInput (конец анимации у хоста).
	ReleaseOnAck
)

// ParseLockRelease разбирает значение из конфигурации.
func ParseLockRelease(s string) (LockRelease, error) {
	switch s {
	case "", "immediate":
		return ReleaseImmediate, nil
	case "ack", "on_ack":
		return ReleaseOnAck, nil
	default:
		return ReleaseImmediate, fmt.Errorf("unknown lock release policy %q", s)
	}
}

func (l LockRelease) String() string {
	if l == ReleaseOnAck {
		return "ack"
	}
	return "immediate"
}

// RoundState — счёт и флаги текущего раунда
type RoundState struct {
	Score       int     `json:"score"`
	Combo       int     `json:"combo"`
	MaxCombo    int     `json:"max_combo"`
	Speed       float64 `json:"speed"`
	Placements  int     `json:"placements"`
	GameOver    bool    `json:"is_game_over"`
	InputLocked bool    `json:"input_locked"`
}

// Snapshot — проекция состояния только для чтения (для отрисовки и API).
// Срезы и указатели в снимке не разделяют память с движком.
type Snapshot struct {
	Round         uint64    `json:"round"`
	Phase         Phase     `json:"phase"`
	Score         int       `json:"score"`
	BestScoreHint int       `json:"best_score_hint"`
	Combo         int       `json:"combo"`
	MaxCombo      int       `json:"max_combo"`
	Speed         float64   `json:"speed"`
	Placements    int       `json:"placements"`
	Stack         []Block   `json:"stack"`
	Active        *Block    `json:"active,omitempty"`
	Direction     Direction `json:"direction"`
	GameOver      bool      `json:"is_game_over"`
	InputLocked   bool      `json:"input_locked"`
	Paused        bool      `json:"paused"`
	MinX          float64   `json:"min_x"`
	MaxX          float64   `json:"max_x"`
}

// Top возвращает верхний блок башни.
func (s Snapshot) Top() (Block, bool) {
	if len(s.Stack) == 0 {
		return Block{}, false
	}
	return s.Stack[len(s.Stack)-1], true
}

// Options — зависимости и политики движка.
type Options struct {
	Tuning      Tuning
	Policy      DifficultyPolicy // nil — FrozenSpeed
	LockRelease LockRelease
	Sink        Sink        // nil — события отбрасываются
	Persistence Persistence // nil — рекорд не хранится
}

// Engine — игровой автомат одной башни. Владеет башней, активным блоком и
// состоянием раунда. Не синхронизирован: вызовы Tick/Drop/StartRound должен
// сериализовать хост.
type Engine struct {
	tuning      Tuning
	policy      DifficultyPolicy
	lockRelease LockRelease
	sink        Sink
	store       Persistence

	phase  Phase
	paused bool
	round  uint64

	stack  []Block
	active *Block
	dir    Direction
	state  RoundState

	best        int
	bestAtStart int

	colorIndex int

	width, height     float64
	minX, maxX, baseY float64
}

// NewEngine создаёт движок в состоянии Idle.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Tuning.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		tuning:      opts.Tuning,
		policy:      opts.Policy,
		lockRelease: opts.LockRelease,
		sink:        opts.Sink,
		store:       opts.Persistence,
		phase:       PhaseIdle,
		dir:         DirRight,
	}
	if e.policy == nil {
		e.policy = FrozenSpeed{}
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	e.setBounds(opts.Tuning.FieldWidth, opts.Tuning.FieldHeight)
	if e.store != nil {
		e.best = e.store.LoadBest()
	}
	return e, nil
}

// Tuning возвращает константы движка.
func (e *Engine) Tuning() Tuning { return e.tuning }

// Policy возвращает активную политику сложности.
func (e *Engine) Policy() DifficultyPolicy { return e.policy }

// Phase возвращает текущую фазу.
func (e *Engine) Phase() Phase { return e.phase }

// StartRound сбрасывает башню к одному основанию, обнуляет счёт и
// переходит в Playing. Рекорд перечитывается из хранилища.
func (e *Engine) StartRound() {
	if e.store != nil {
		e.best = e.store.LoadBest()
	}
	e.bestAtStart = e.best

	e.round++
	e.paused = false
	e.active = nil
	e.colorIndex = 0
	e.state = RoundState{Speed: e.tuning.MoveSpeed}

	base := Block{
		CenterX:    e.width * 0.5,
		Width:      e.tuning.BaseWidth,
		Height:     e.tuning.BlockHeight,
		Y:          e.baseY,
		ColorIndex: e.nextColor(),
	}
	e.stack = []Block{base}
	e.phase = PhasePlaying

	e.sink.Emit(RoundStartedEvent{
		Round:     e.round,
		Base:      base,
		BestScore: e.best,
		Speed:     e.state.Speed,
		Policy:    e.policy.Name(),
	})
	e.spawnNext()
}

// Tick сдвигает активный блок на direction*speed*dt. У края блок
// прижимается к границе и разворачивается.
func (e *Engine) Tick(dt float64) {
	if e.phase != PhasePlaying || e.active == nil || e.state.InputLocked || e.paused {
		return
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return
	}

	x := e.active.CenterX + float64(e.dir)*e.state.Speed*dt
	switch {
	case x >= e.maxX:
		x = e.maxX
		e.dir = DirLeft
	case x <= e.minX:
		x = e.minX
		e.dir = DirRight
	}
	e.active.CenterX = x
}

// Drop фиксирует активный блок над башней.
func (e *Engine) Drop() DropOutcome {
	if e.phase != PhasePlaying || e.active == nil || e.state.InputLocked || e.paused {
		return DropOutcome{Kind: OutcomeIgnored}
	}
	e.state.InputLocked = true

	top := e.stack[len(e.stack)-1]
	cur := *e.active

	offset := cur.CenterX - top.CenterX
	absOffset := math.Abs(offset)

	if absOffset <= e.tuning.PerfectPx {
		cur.CenterX = top.CenterX
		cur.Width = top.Width
		e.state.Combo++
		points := PerfectPoints(e.tuning, e.state.Combo)
		return e.place(cur, DropOutcome{
			Kind:        OutcomePerfect,
			ScoreDelta:  points,
			Offset:      offset,
			InTolerance: true,
		}, nil)
	}

	prev := top.Span()
	span := cur.Span()
	overlap := Overlap(prev, span)
	width := overlap.Width()

	// крошечное положительное пересечение ниже порога тоже промах
	if width <= 0 || width < e.tuning.MinBlockWidth {
		return e.miss(cur, offset)
	}

	var pieces []Piece
	for _, s := range Overhangs(prev, span) {
		pieces = append(pieces, pieceFromSpan(s, cur))
	}

	cur.CenterX = overlap.Center()
	cur.Width = width

	inTolerance := absOffset <= e.tuning.GoodPx
	if inTolerance {
		e.state.Combo++
	} else {
		e.state.Combo = 0
	}

	return e.place(cur, DropOutcome{
		Kind:        OutcomeGood,
		ScoreDelta:  PlacementPoints(e.tuning, inTolerance),
		Offset:      offset,
		InTolerance: inTolerance,
	}, pieces)
}

// place кладёт блок на башню и порождает следующий активный блок.
func (e *Engine) place(b Block, out DropOutcome, pieces []Piece) DropOutcome {
	e.active = nil
	e.stack = append(e.stack, b)
	e.state.Score += out.ScoreDelta
	e.state.MaxCombo = max(e.state.MaxCombo, e.state.Combo)
	e.state.Placements++
	e.state.Speed = e.policy.NextSpeed(e.state.Speed, e.state.Placements)

	for _, p := range pieces {
		e.sink.Emit(OverhangEvent{Round: e.round, Piece: p})
	}
	e.sink.Emit(PlacedEvent{
		Round:      e.round,
		Block:      b,
		Kind:       out.Kind,
		ScoreDelta: out.ScoreDelta,
		Score:      e.state.Score,
		Combo:      e.state.Combo,
		Height:     len(e.stack),
		Speed:      e.state.Speed,
	})

	e.spawnNext()
	if e.lockRelease == ReleaseImmediate {
		e.state.InputLocked = false
	}

	placed := b
	out.Placed = &placed
	out.Combo = e.state.Combo
	out.Overhang = pieces
	return out
}

// miss завершает раунд: блок падает, combo сбрасывается, при новом рекорде
// он сохраняется ровно один раз.
func (e *Engine) miss(b Block, offset float64) DropOutcome {
	e.active = nil
	e.state.Combo = 0
	e.state.GameOver = true
	e.state.InputLocked = false
	e.phase = PhaseGameOver

	e.sink.Emit(MissedEvent{Round: e.round, Block: b})

	if e.state.Score > e.bestAtStart {
		prev := e.best
		e.best = e.state.Score
		if e.store != nil {
			e.store.SaveBest(e.best)
		}
		e.sink.Emit(BestUpdatedEvent{Round: e.round, Previous: prev, Best: e.best})
	}

	e.sink.Emit(GameOverEvent{
		Round:      e.round,
		Score:      e.state.Score,
		BestScore:  e.best,
		MaxCombo:   e.state.MaxCombo,
		Placements: e.state.Placements,
		Height:     len(e.stack),
	})
	return DropOutcome{Kind: OutcomeMiss, Offset: offset}
}

// spawnNext создаёт активный блок над верхом башни. Стартовая позиция
// чередуется с чётностью числа установок: чётное — слева и вправо,
// нечётное — справа и влево.
func (e *Engine) spawnNext() {
	top := e.stack[len(e.stack)-1]

	x, dir := e.minX, DirRight
	if e.state.Placements%2 == 1 {
		x, dir = e.maxX, DirLeft
	}

	e.active = &Block{
		CenterX:    x,
		Width:      top.Width,
		Height:     e.tuning.BlockHeight,
		Y:          top.Y - e.tuning.VerticalStep,
		ColorIndex: e.nextColor(),
	}
	e.dir = dir

	e.sink.Emit(SpawnedEvent{Round: e.round, Block: *e.active, Direction: dir})
}

// ReleaseInput снимает блокировку ввода (для ReleaseOnAck).
// Возвращает true, если блокировка была снята.
func (e *Engine) ReleaseInput() bool {
	if e.phase != PhasePlaying || !e.state.InputLocked {
		return false
	}
	e.state.InputLocked = false
	return true
}

// Pause останавливает движение и ввод. Возвращает false вне Playing.
func (e *Engine) Pause() bool {
	if e.phase != PhasePlaying || e.paused {
		return false
	}
	e.paused = true
	e.sink.Emit(PauseEvent{Round: e.round, Paused: true})
	return true
}

// Resume снимает паузу.
func (e *Engine) Resume() bool {
	if e.phase != PhasePlaying || !e.paused {
		return false
	}
	e.paused = false
	e.sink.Emit(PauseEvent{Round: e.round, Paused: false})
	return true
}

// Resize пересчитывает границы движения под новое поле. Башня сдвигается
// по горизонтали целиком, чтобы основание осталось по центру; активный
// блок прижимается к новым границам.
func (e *Engine) Resize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: field %.0fx%.0f", ErrInvalidTuning, width, height)
	}
	e.setBounds(width, height)

	if len(e.stack) > 0 {
		dx := e.width*0.5 - e.stack[0].CenterX
		for i := range e.stack {
			e.stack[i].CenterX += dx
		}
	}
	if e.active != nil {
		e.active.CenterX = math.Min(math.Max(e.active.CenterX, e.minX), e.maxX)
	}

	e.sink.Emit(ResizedEvent{Round: e.round, Width: width, Height: height, MinX: e.minX, MaxX: e.maxX})
	return nil
}

func (e *Engine) setBounds(width, height float64) {
	e.width = width
	e.height = height
	e.minX = e.tuning.EdgePadding
	e.maxX = width - e.tuning.EdgePadding
	if e.maxX < e.minX {
		e.maxX = e.minX
	}
	e.baseY = math.Floor(height * e.tuning.BaseYRatio)
}

func (e *Engine) nextColor() int {
	e.colorIndex = (e.colorIndex + 1) % len(Palette)
	return e.colorIndex
}

// State возвращает проекцию состояния для отрисовки.
func (e *Engine) State() Snapshot {
	s := Snapshot{
		Round:         e.round,
		Phase:         e.phase,
		Score:         e.state.Score,
		BestScoreHint: e.best,
		Combo:         e.state.Combo,
		MaxCombo:      e.state.MaxCombo,
		Speed:         e.state.Speed,
		Placements:    e.state.Placements,
		Stack:         append([]Block(nil), e.stack...),
		Direction:     e.dir,
		GameOver:      e.state.GameOver,
		InputLocked:   e.state.InputLocked,
		Paused:        e.paused,
		MinX:          e.minX,
		MaxX:          e.maxX,
	}
	if e.active != nil {
		a := *e.active
		s.Active = &a
	}
	return s
}

// RoundState возвращает копию счёта и флагов раунда.
func (e *Engine) RoundState() RoundState { return e.state }
