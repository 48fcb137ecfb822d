package eventbus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Envelope описывает универсальный контейнер события.
// Все поля фиксированы для версионирования и трассировки.
type Envelope struct {
	ID            string            `json:"id"`             // Глобально уникальный идентификатор (UUID).
	Timestamp     time.Time         `json:"timestamp"`      // Время создания события (UTC).
	Source        string            `json:"source"`         // Имя хоста-источника.
	EventType     string            `json:"event_type"`     // Тип события движка (Placed, GameOver…).
	Version       int               `json:"version"`        // Схема полезной нагрузки.
	CorrelationID string            `json:"correlation_id"` // ID раунда для связывания цепочек.
	Priority      int               `json:"priority"`       // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            `json:"payload"`        // Кадр protocol.Codec.
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// HighPriority — конверты с приоритетом не ниже этого не отбрасываются
// при переполнении буфера.
const HighPriority = 5

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто — все типы.
	Sources []string // Если пусто — все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// ErrBusClosed возвращается Publish после Close.
var ErrBusClosed = errors.New("event bus closed")

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int

	statsMu sync.Mutex
	stats   Stats

	// sendMu: Publish отправляет в buffer под RLock, Close выставляет
	// closed под Lock, поэтому принятое событие всегда успевает в буфер
	// до финальной вычитки dispatchLoop
	sendMu    sync.RWMutex
	buffer    chan *Envelope
	closed    atomic.Bool
	closing   chan struct{} // закрывается первым, будит заблокированных публикаторов
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory Bus с указанным буфером.
// Подписчики получают события в порядке публикации.
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 1
	}
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		closing:     make(chan struct{}),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.sendMu.RLock()
	defer mb.sendMu.RUnlock()
	if mb.closed.Load() {
		return ErrBusClosed
	}

	select {
	case mb.buffer <- ev:
		mb.count(&mb.stats.Published)
		return nil
	default:
	}

	// Буфер заполнен — дропаем низкий приоритет
	if ev.Priority < HighPriority {
		mb.count(&mb.stats.Dropped)
		return nil
	}
	// Для High-priority блокируем до освобождения места или отмены контекста
	select {
	case mb.buffer <- ev:
		mb.count(&mb.stats.Published)
		return nil
	case <-mb.closing:
		return ErrBusClosed
	case <-ctx.Done():
		mb.count(&mb.stats.Dropped)
		return ctx.Err()
	}
}

func (mb *memoryBus) count(counter *uint64) {
	mb.statsMu.Lock()
	*counter++
	mb.statsMu.Unlock()
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	if mb.closed.Load() {
		return nil, ErrBusClosed
	}

	mb.mu.Lock()
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	mb.mu.Unlock()

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.statsMu.Lock()
	s := mb.stats
	mb.statsMu.Unlock()
	s.InFlight = len(mb.buffer)
	return s
}

// Close прекращает приём событий, доставляет уже принятые и
// отменяет контексты подписчиков.
func (mb *memoryBus) Close() error {
	mb.closeOnce.Do(func() {
		close(mb.closing)
		mb.sendMu.Lock()
		mb.closed.Store(true)
		mb.sendMu.Unlock()
		close(mb.quit)
		<-mb.done

		mb.mu.Lock()
		for id, sub := range mb.subscribers {
			sub.cancel()
			delete(mb.subscribers, id)
		}
		mb.mu.Unlock()
	})
	return nil
}

// dispatchLoop рассылает события подписчикам.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)

	for {
		select {
		case ev := <-mb.buffer:
			mb.deliver(ev)
		case <-mb.quit:
			// дочитываем то, что уже в буфере
			for {
				select {
				case ev := <-mb.buffer:
					mb.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (mb *memoryBus) deliver(ev *Envelope) {
	mb.mu.RLock()
	ids := make([]int, 0, len(mb.subscribers))
	for id := range mb.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, mb.subscribers[id])
	}
	mb.mu.RUnlock()

	for _, sub := range subs {
		if !matchFilter(ev, sub.filter) || sub.ctx.Err() != nil {
			continue
		}
		sub.handler(sub.ctx, ev)
		mb.count(&mb.stats.Consumed)
	}
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
