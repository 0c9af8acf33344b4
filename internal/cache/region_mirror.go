package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
)

// RegionSource: директория, которую зеркалирует RegionMirror.
type RegionSource interface {
	Subscribe(fn grid.Subscriber) grid.Subscription
	Regions() []grid.RegionRecord
	LookupByID(id uuid.UUID) (grid.RegionRecord, bool)
	LookupByHandle(h tile.Handle) (grid.RegionRecord, bool)
}

// MirrorConfig настройки зеркала.
type MirrorConfig struct {
	KeyPrefix string        // например "grid:"
	TTL       time.Duration // 0: ключи не истекают
	Timeout   time.Duration // предел на одну операцию с кешем
}

// RegionMirror отражает онлайн-регионы во внешний кеш:
//
//	<prefix>region:<id>      -> JSON записи
//	<prefix>tile:<handle>    -> region id
//
// Изменения приходят от директории; регистрации без обновлений
// подхватываются периодическим Resync, он же удаляет ключи регионов,
// которых в директории больше нет.
type RegionMirror struct {
	cache CacheRepo
	cfg   MirrorConfig

	mu  sync.Mutex
	sub grid.Subscription
	src RegionSource

	writes   uint64
	deletes  uint64
	failures uint64
}

// NewRegionMirror создаёт зеркало поверх CacheRepo.
func NewRegionMirror(c CacheRepo, cfg MirrorConfig) *RegionMirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	return &RegionMirror{cache: c, cfg: cfg}
}

// RegionKey возвращает ключ записи региона.
func (m *RegionMirror) RegionKey(id uuid.UUID) string {
	return fmt.Sprintf("%sregion:%s", m.cfg.KeyPrefix, id)
}

// TileKey возвращает ключ индекса тайла.
func (m *RegionMirror) TileKey(h tile.Handle) string {
	return fmt.Sprintf("%stile:%d", m.cfg.KeyPrefix, uint64(h))
}

// Attach подписывает зеркало на директорию.
func (m *RegionMirror) Attach(src RegionSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
	m.src = src
	m.sub = src.Subscribe(m.Apply)
}

// Detach отписывает зеркало.
func (m *RegionMirror) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}
	m.src = nil
}

func (m *RegionMirror) source() RegionSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src
}

// Apply записывает онлайн-регион или удаляет оба ключа офлайн-региона.
// При подключённой директории пишется её текущая версия записи: запоздавшее
// уведомление об уже снятом регионе превращается в удаление.
// Ошибки кеша только логируются.
func (m *RegionMirror) Apply(rec grid.RegionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	if rec.Online {
		if src := m.source(); src != nil {
			current, ok := src.LookupByID(rec.RegionID)
			if ok {
				rec = current
			} else {
				rec.Online = false
			}
		}
	}

	if !rec.Online {
		if err := m.cache.Delete(ctx, m.RegionKey(rec.RegionID), m.TileKey(rec.Handle)); err != nil {
			atomic.AddUint64(&m.failures, 1)
			logging.Warn("🧊 RegionMirror: не удалось удалить %s: %v", rec.RegionID, err)
			return
		}
		atomic.AddUint64(&m.deletes, 1)
		return
	}

	items, err := m.items(rec)
	if err != nil {
		atomic.AddUint64(&m.failures, 1)
		logging.Error("🧊 RegionMirror: сериализация %s: %v", rec.RegionID, err)
		return
	}
	if err := m.cache.BatchSet(ctx, items, m.cfg.TTL); err != nil {
		atomic.AddUint64(&m.failures, 1)
		logging.Warn("🧊 RegionMirror: не удалось записать %s: %v", rec.RegionID, err)
		return
	}
	atomic.AddUint64(&m.writes, 1)
}

// Resync записывает все текущие регионы источника одним пакетом, затем
// исправляет записи, изменившиеся за время записи, и удаляет ключи регионов,
// которых в источнике больше нет.
func (m *RegionMirror) Resync(ctx context.Context, src RegionSource) error {
	records := src.Regions()
	items := make(map[string][]byte, len(records)*2)
	for _, rec := range records {
		kv, err := m.items(rec)
		if err != nil {
			return err
		}
		for k, v := range kv {
			items[k] = v
		}
	}

	setCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.cache.BatchSet(setCtx, items, m.cfg.TTL)
	cancel()
	if err != nil {
		atomic.AddUint64(&m.failures, 1)
		return fmt.Errorf("resync %d регионов: %w", len(records), err)
	}
	atomic.AddUint64(&m.writes, uint64(len(records)))

	// Снимок мог устареть, пока шла запись
	for _, rec := range records {
		current, ok := src.LookupByID(rec.RegionID)
		switch {
		case !ok:
			rec.Online = false
			m.Apply(rec)
		case current != rec:
			m.Apply(current)
		}
	}

	pruned, err := m.prune(ctx, src)
	if err != nil {
		atomic.AddUint64(&m.failures, 1)
		return fmt.Errorf("resync: очистка: %w", err)
	}
	logging.Debug("🧊 RegionMirror: resync %d регионов, удалено %d ключей", len(records), pruned)
	return nil
}

// prune удаляет ключи регионов, отсутствующих в источнике, и ключи свободных тайлов.
func (m *RegionMirror) prune(ctx context.Context, src RegionSource) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var stale []string

	regionPrefix := m.cfg.KeyPrefix + "region:"
	regionKeys, err := m.cache.Keys(ctx, regionPrefix+"*")
	if err != nil {
		return 0, err
	}
	for _, key := range regionKeys {
		id, err := uuid.Parse(strings.TrimPrefix(key, regionPrefix))
		if err != nil {
			continue
		}
		if _, ok := src.LookupByID(id); !ok {
			stale = append(stale, key)
		}
	}

	tilePrefix := m.cfg.KeyPrefix + "tile:"
	tileKeys, err := m.cache.Keys(ctx, tilePrefix+"*")
	if err != nil {
		return 0, err
	}
	for _, key := range tileKeys {
		h, err := strconv.ParseUint(strings.TrimPrefix(key, tilePrefix), 10, 64)
		if err != nil {
			continue
		}
		if _, ok := src.LookupByHandle(tile.Handle(h)); !ok {
			stale = append(stale, key)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.cache.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	atomic.AddUint64(&m.deletes, uint64(len(stale)))
	return len(stale), nil
}

// Run выполняет Resync сразу и затем каждые interval до отмены ctx.
func (m *RegionMirror) Run(ctx context.Context, src RegionSource, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Resync(ctx, src); err != nil {
			logging.Warn("🧊 RegionMirror: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Lookup читает зеркалированную запись по ID.
func (m *RegionMirror) Lookup(ctx context.Context, id uuid.UUID) (grid.RegionRecord, error) {
	var rec grid.RegionRecord
	data, err := m.cache.Get(ctx, m.RegionKey(id))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("разбор записи %s: %w", id, err)
	}
	return rec, nil
}

// Stats возвращает счётчики записей, удалений и ошибок.
func (m *RegionMirror) Stats() (writes, deletes, failures uint64) {
	return atomic.LoadUint64(&m.writes), atomic.LoadUint64(&m.deletes), atomic.LoadUint64(&m.failures)
}

func (m *RegionMirror) items(rec grid.RegionRecord) (map[string][]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		m.RegionKey(rec.RegionID): data,
		m.TileKey(rec.Handle):     []byte(rec.RegionID.String()),
	}, nil
}
