package eventbus

import (
	"context"

	"github.com/annel0/tower-stack/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог на уровне DEBUG.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s round=%s prio=%d size=%dB",
			ev.ID, ev.EventType, ev.Source, ev.CorrelationID, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
