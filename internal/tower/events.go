package tower

// EventType определяет тип события движка
type EventType uint8

const (
	EventTypeRoundStarted EventType = iota // Начало раунда
	EventTypeSpawned                       // Появился новый активный блок
	EventTypeOverhang                      // Отрезан свес
	EventTypePlaced                        // Блок установлен на башню
	EventTypeMissed                        // Блок пролетел мимо
	EventTypeBestUpdated                   // Новый рекорд
	EventTypeGameOver                      // Конец раунда
	EventTypePaused                        // Пауза
	EventTypeResumed                       // Снятие паузы
	EventTypeResized                       // Изменились размеры поля
)

var eventTypeNames = [...]string{
	EventTypeRoundStarted: "RoundStarted",
	EventTypeSpawned:      "Spawned",
	EventTypeOverhang:     "Overhang",
	EventTypePlaced:       "Placed",
	EventTypeMissed:       "Missed",
	EventTypeBestUpdated:  "BestUpdated",
	EventTypeGameOver:     "GameOver",
	EventTypePaused:       "Paused",
	EventTypeResumed:      "Resumed",
	EventTypeResized:      "Resized",
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "Unknown"
}

// Event представляет собой интерфейс для всех событий движка
type Event interface {
	GetType() EventType
	GetRound() uint64
}

// RoundStartedEvent отправляется после сброса башни
type RoundStartedEvent struct {
	Round     uint64  `json:"round"`
	Base      Block   `json:"base"`
	BestScore int     `json:"best_score"`
	Speed     float64 `json:"speed"`
	Policy    string  `json:"policy"`
}

func (e RoundStartedEvent) GetType() EventType { return EventTypeRoundStarted }
func (e RoundStartedEvent) GetRound() uint64   { return e.Round }

// SpawnedEvent — новый активный блок над башней
type SpawnedEvent struct {
	Round     uint64    `json:"round"`
	Block     Block     `json:"block"`
	Direction Direction `json:"direction"`
}

func (e SpawnedEvent) GetType() EventType { return EventTypeSpawned }
func (e SpawnedEvent) GetRound() uint64   { return e.Round }

// OverhangEvent — отрезанный свес для анимации падения
type OverhangEvent struct {
	Round uint64 `json:"round"`
	Piece Piece  `json:"piece"`
}

func (e OverhangEvent) GetType() EventType { return EventTypeOverhang }
func (e OverhangEvent) GetRound() uint64   { return e.Round }

// PlacedEvent — блок поставлен (используется для шага камеры, фона, всплывающего счёта)
type PlacedEvent struct {
	Round      uint64      `json:"round"`
	Block      Block       `json:"block"`
	Kind       OutcomeKind `json:"kind"`
	ScoreDelta int         `json:"score_delta"`
	Score      int         `json:"score"`
	Combo      int         `json:"combo"`
	Height     int         `json:"height"` // количество блоков в башне вместе с основанием
	Speed      float64     `json:"speed"`
}

func (e PlacedEvent) GetType() EventType { return EventTypePlaced }
func (e PlacedEvent) GetRound() uint64   { return e.Round }

// MissedEvent — блок не попал на башню и падает целиком
type MissedEvent struct {
	Round uint64 `json:"round"`
	Block Block  `json:"block"`
}

func (e MissedEvent) GetType() EventType { return EventTypeMissed }
func (e MissedEvent) GetRound() uint64   { return e.Round }

// BestUpdatedEvent — побочный эффект для хранилища рекорда
type BestUpdatedEvent struct {
	Round    uint64 `json:"round"`
	Previous int    `json:"previous"`
	Best     int    `json:"best"`
}

func (e BestUpdatedEvent) GetType() EventType { return EventTypeBestUpdated }
func (e BestUpdatedEvent) GetRound() uint64   { return e.Round }

// GameOverEvent — итог раунда
type GameOverEvent struct {
	Round      uint64 `json:"round"`
	Score      int    `json:"score"`
	BestScore  int    `json:"best_score"`
	MaxCombo   int    `json:"max_combo"`
	Placements int    `json:"placements"`
	Height     int    `json:"height"`
}

func (e GameOverEvent) GetType() EventType { return EventTypeGameOver }
func (e GameOverEvent) GetRound() uint64   { return e.Round }

// PauseEvent отправляется при постановке и снятии паузы
type PauseEvent struct {
	Round  uint64 `json:"round"`
	Paused bool   `json:"paused"`
}

func (e PauseEvent) GetType() EventType {
	if e.Paused {
		return EventTypePaused
	}
	return EventTypeResumed
}
func (e PauseEvent) GetRound() uint64 { return e.Round }

// ResizedEvent — новые границы движения
type ResizedEvent struct {
	Round  uint64  `json:"round"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	MinX   float64 `json:"min_x"`
	MaxX   float64 `json:"max_x"`
}

func (e ResizedEvent) GetType() EventType { return EventTypeResized }
func (e ResizedEvent) GetRound() uint64   { return e.Round }

// Sink принимает события движка (презентер: отрисовка, камера, звук, HUD).
// Вызывается синхронно из Tick/Drop/StartRound, поэтому не должен блокироваться.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc адаптирует функцию к интерфейсу Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// MultiSink рассылает событие всем получателям по порядку.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Persistence хранит лучший результат между раундами.
// LoadBest никогда не возвращает ошибку: повреждённое или отсутствующее
// значение трактуется реализацией как 0.
type Persistence interface {
	LoadBest() int
	SaveBest(score int)
}
