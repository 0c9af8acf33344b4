package eventbus

import (
	"context"

	"github.com/annel0/mmo-grid/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Для событий регионов дополнительно раскрывает запись.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	log := logging.GetEventBusLogger()
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if IsRegionEvent(ev) {
			if rec, err := DecodeRegionEvent(ev); err == nil {
				log.Debug("[EventBus] %s %s src=%s region=%s %s name=%q online=%t",
					ev.ID, ev.EventType, ev.Source, rec.RegionID, rec.Handle, rec.Name, rec.Online)
				return
			}
		}
		log.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
