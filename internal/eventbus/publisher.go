package eventbus

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/protocol"
	"github.com/annel0/tower-stack/internal/tower"
)

// PayloadVersion — версия схемы документа события.
const PayloadVersion = 1

// Publisher реализует tower.Sink: заворачивает события движка в Envelope
// и публикует их в шину. Emit вызывается под мьютексом сессии, поэтому
// каждая публикация ограничена таймаутом.
type Publisher struct {
	bus     EventBus
	codec   *protocol.Codec
	source  string
	timeout time.Duration

	// CorrelationID каждого конверта — ID текущего раунда
	roundID atomic.Value

	failures uint64
}

var _ tower.Sink = (*Publisher)(nil)

// NewPublisher создаёт издателя событий хоста source.
func NewPublisher(bus EventBus, codec *protocol.Codec, source string) *Publisher {
	p := &Publisher{
		bus:     bus,
		codec:   codec,
		source:  source,
		timeout: 100 * time.Millisecond,
	}
	p.roundID.Store("")
	return p
}

// SetRoundID задаёт идентификатор раунда для последующих конвертов.
func (p *Publisher) SetRoundID(id string) { p.roundID.Store(id) }

// Failures возвращает число событий, которые не удалось опубликовать.
func (p *Publisher) Failures() uint64 { return atomic.LoadUint64(&p.failures) }

// Emit реализует tower.Sink.
func (p *Publisher) Emit(ev tower.Event) {
	env, err := p.Envelope(ev)
	if err != nil {
		atomic.AddUint64(&p.failures, 1)
		logging.Error("❌ Ошибка кодирования события %s: %v", ev.GetType(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.bus.Publish(ctx, env); err != nil {
		atomic.AddUint64(&p.failures, 1)
		logging.Warn("⚠️ Событие %s не опубликовано: %v", env.EventType, err)
	}
}

// Envelope строит конверт для события.
func (p *Publisher) Envelope(ev tower.Event) (*Envelope, error) {
	doc, err := protocol.EventDocument(ev)
	if err != nil {
		return nil, err
	}
	payload, err := p.codec.Encode(doc)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        p.source,
		EventType:     ev.GetType().String(),
		Version:       PayloadVersion,
		CorrelationID: p.roundID.Load().(string),
		Priority:      protocol.EventPriority(ev.GetType()),
		Payload:       payload,
		Metadata: map[string]string{
			"round":  strconv.FormatUint(ev.GetRound(), 10),
			"format": p.codec.Format().String(),
		},
	}, nil
}
