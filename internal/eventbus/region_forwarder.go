package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/google/uuid"
)

// Типы событий региона.
const (
	EventRegionChanged = "RegionChanged"
	EventRegionOffline = "RegionOffline"
)

// RegionEventVersion: версия схемы полезной нагрузки (JSON grid.RegionRecord).
const RegionEventVersion = 1

// RegionSource: всё, на что может подписаться форвардер.
type RegionSource interface {
	Subscribe(fn grid.Subscriber) grid.Subscription
}

// ForwarderConfig настройки RegionForwarder.
type ForwarderConfig struct {
	Source         string        // Envelope.Source, обычно node_id
	Compress       bool          // сжимать полезную нагрузку zstd
	PublishTimeout time.Duration // предел ожидания шины на одно событие
}

// RegionForwarder переводит уведомления директории в события шины.
// Публикация выполняется синхронно в горутине, изменившей директорию,
// поэтому время ожидания ограничено PublishTimeout.
type RegionForwarder struct {
	bus   EventBus
	cfg   ForwarderConfig
	codec payloadCodec

	mu  sync.Mutex
	sub grid.Subscription

	forwarded uint64
	failed    uint64
}

// NewRegionForwarder создаёт форвардер; к директории он подключается через Attach.
func NewRegionForwarder(bus EventBus, cfg ForwarderConfig) (*RegionForwarder, error) {
	if bus == nil {
		return nil, fmt.Errorf("region forwarder: шина не задана")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 500 * time.Millisecond
	}
	if cfg.Source == "" {
		cfg.Source = "grid"
	}

	encoding := EncodingJSON
	if cfg.Compress {
		encoding = EncodingZstd
	}
	codec, err := codecFor(encoding)
	if err != nil {
		return nil, err
	}

	return &RegionForwarder{bus: bus, cfg: cfg, codec: codec}, nil
}

// Attach подписывает форвардер на источник. Повторный вызов заменяет подписку.
func (f *RegionForwarder) Attach(src RegionSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.Unsubscribe()
	}
	f.sub = src.Subscribe(f.Forward)
	logging.Info("📡 RegionForwarder: подключен (encoding=%s, timeout=%s)", f.codec.Name(), f.cfg.PublishTimeout)
}

// Detach отписывает форвардер от источника.
func (f *RegionForwarder) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.Unsubscribe()
		f.sub = nil
	}
}

// Forward публикует одно изменение региона. Ошибки логируются и считаются,
// но не возвращаются: уведомление директории не должно падать из-за шины.
func (f *RegionForwarder) Forward(rec grid.RegionRecord) {
	ev, err := f.envelope(rec)
	if err != nil {
		atomic.AddUint64(&f.failed, 1)
		logging.Error("📡 RegionForwarder: не удалось упаковать %s: %v", rec.RegionID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.PublishTimeout)
	defer cancel()

	if err := f.bus.Publish(ctx, ev); err != nil {
		atomic.AddUint64(&f.failed, 1)
		logging.Warn("📡 RegionForwarder: публикация %s для %s не удалась: %v", ev.EventType, rec.RegionID, err)
		return
	}
	atomic.AddUint64(&f.forwarded, 1)
	logging.Trace("📡 RegionForwarder: %s %s %s", ev.EventType, rec.RegionID, rec.Handle)
}

// Stats возвращает число опубликованных и неудавшихся событий.
func (f *RegionForwarder) Stats() (forwarded, failed uint64) {
	return atomic.LoadUint64(&f.forwarded), atomic.LoadUint64(&f.failed)
}

func (f *RegionForwarder) envelope(rec grid.RegionRecord) (*Envelope, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	payload, err := f.codec.Encode(raw)
	if err != nil {
		return nil, err
	}

	eventType, priority := EventRegionChanged, 5
	if !rec.Online {
		eventType, priority = EventRegionOffline, 7
	}

	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    f.cfg.Source,
		EventType: eventType,
		Version:   RegionEventVersion,
		Priority:  priority,
		Payload:   payload,
		Metadata: map[string]string{
			"region_id": rec.RegionID.String(),
			"handle":    fmt.Sprintf("%d", uint64(rec.Handle)),
			"encoding":  f.codec.Name(),
		},
	}, nil
}

// IsRegionEvent сообщает, несёт ли конверт запись региона.
func IsRegionEvent(ev *Envelope) bool {
	return ev != nil && (ev.EventType == EventRegionChanged || ev.EventType == EventRegionOffline)
}

// DecodeRegionEvent извлекает запись региона из конверта.
func DecodeRegionEvent(ev *Envelope) (grid.RegionRecord, error) {
	var rec grid.RegionRecord
	if !IsRegionEvent(ev) {
		return rec, fmt.Errorf("событие не относится к регионам")
	}
	if ev.Version != RegionEventVersion {
		return rec, fmt.Errorf("неподдерживаемая версия события: %d", ev.Version)
	}

	codec, err := codecFor(ev.Metadata["encoding"])
	if err != nil {
		return rec, err
	}
	raw, err := codec.Decode(ev.Payload)
	if err != nil {
		return rec, fmt.Errorf("распаковка: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("разбор записи: %w", err)
	}
	return rec, nil
}
