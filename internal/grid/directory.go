package grid

import (
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DirectoryConfig содержит зависимости директории регионов
type DirectoryConfig struct {
	// Registerer для метрик; nil: метрики не экспортируются
	Registerer prometheus.Registerer
	// NewID генерирует RegionID; по умолчанию uuid.New
	NewID func() uuid.UUID
}

// Directory: реестр регионов с двумя ключами (handle и RegionID).
//
// Все изменения и чтения проходят через одну таблицу под одним мьютексом,
// уведомления подписчикам рассылаются после его освобождения.
// Экземпляр создаётся явно и передаётся потребителям; остановка не требуется.
type Directory struct {
	store    *regionStore
	notifier *Notifier
	metrics  *Metrics
	newID    func() uuid.UUID
}

// NewDirectory создаёт пустую директорию
func NewDirectory(cfg DirectoryConfig) *Directory {
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.New
	}

	d := &Directory{
		store:    newRegionStore(),
		notifier: NewNotifier(),
		metrics:  NewMetrics(cfg.Registerer),
		newID:    newID,
	}
	d.notifier.onFailure = func(RegionRecord, interface{}) {
		d.metrics.SubscriberFailures.Inc()
	}
	return d
}

// Register регистрирует регион и возвращает выданный ему RegionID.
// Если тайл уже занят, возвращает *CollisionError (errors.Is(err, ErrCollision))
// и ничего не меняет.
func (d *Directory) Register(info RegionInfo) (uuid.UUID, error) {
	rec := &RegionRecord{
		RegionID:        d.newID(),
		Handle:          info.TileHandle(),
		Name:            info.Name,
		Owner:           info.Owner,
		HTTPEndpoint:    info.HTTPEndpoint,
		IPAndPort:       info.IPAndPort,
		MapTextureID:    info.MapTextureID,
		Online:          true,
		EnableClientCap: info.EnableClientCap,
	}

	occupant, ok := d.store.insert(rec)
	if !ok {
		d.metrics.Registrations.WithLabelValues("collision").Inc()
		logging.Warn("🗺️ Grid: регион %q отклонён, %s занят регионом %s (%q)",
			info.Name, rec.Handle, occupant.RegionID, occupant.Name)
		return uuid.Nil, &CollisionError{Handle: rec.Handle, Occupant: occupant.RegionID}
	}

	d.metrics.Registrations.WithLabelValues("ok").Inc()
	d.metrics.Regions.Inc()
	logging.Info("🗺️ Grid: зарегистрирован регион %q [%s] на %s", rec.Name, rec.RegionID, rec.Handle)
	return rec.RegionID, nil
}

// Unregister снимает регион с регистрации и рассылает его запись с Online=false.
// Возвращает false, если регион неизвестен.
func (d *Directory) Unregister(id uuid.UUID) bool {
	rec, ok := d.store.remove(id)
	if !ok {
		logging.Debug("🗺️ Grid: снятие неизвестного региона %s проигнорировано", id)
		return false
	}

	d.metrics.Unregistrations.Inc()
	d.metrics.Regions.Dec()
	logging.Info("🗺️ Grid: регион %q [%s] снят с %s", rec.Name, rec.RegionID, rec.Handle)

	d.notifier.Publish(rec)
	return true
}

// Update применяет патч метаданных и рассылает обновлённую запись.
// Неизвестный RegionID молча игнорируется (возвращается false): при гонках
// регистрации между узлами это ожидаемая ситуация.
func (d *Directory) Update(id uuid.UUID, patch RegionPatch) bool {
	rec, ok := d.store.updateByID(id, patch)
	if !ok {
		d.metrics.Updates.WithLabelValues("unknown").Inc()
		logging.Debug("🗺️ Grid: обновление неизвестного региона %s проигнорировано", id)
		return false
	}

	d.metrics.Updates.WithLabelValues("applied").Inc()
	logging.Debug("🗺️ Grid: обновлён регион %q [%s]", rec.Name, rec.RegionID)

	d.notifier.Publish(rec)
	return true
}

// Heartbeat: точка расширения для контроля живости регионов.
// Сейчас ничего не меняет: политика таймаутов и вытеснения не определена.
func (d *Directory) Heartbeat(id uuid.UUID) {
	d.metrics.Heartbeats.Inc()
	logging.Trace("🗺️ Grid: heartbeat от %s", id)
}

// LookupByID ищет регион по идентификатору
func (d *Directory) LookupByID(id uuid.UUID) (RegionRecord, bool) {
	return d.store.getByID(id)
}

// LookupByCoordinate ищет регион по индексам тайла
func (d *Directory) LookupByCoordinate(tileX, tileY uint32) (RegionRecord, bool) {
	return d.store.getByHandle(tile.Encode(tileX, tileY))
}

// LookupByHandle ищет регион по упакованному handle
func (d *Directory) LookupByHandle(h tile.Handle) (RegionRecord, bool) {
	return d.store.getByHandle(h)
}

// RegionsInArea возвращает регионы, чьи тайлы попадают в прямоугольник
// [minX..maxX]x[minY..maxY] включительно. Порядок не определён.
func (d *Directory) RegionsInArea(minX, minY, maxX, maxY uint32) []RegionRecord {
	return d.store.scanRange(minX, minY, maxX, maxY)
}

// DefaultRegion возвращает любой зарегистрированный регион как запасную цель.
// Выбор между вызовами не стабилен.
func (d *Directory) DefaultRegion() (RegionRecord, bool) {
	return d.store.first()
}

// Regions возвращает снимок всех зарегистрированных регионов
func (d *Directory) Regions() []RegionRecord {
	return d.store.snapshot()
}

// Count возвращает количество зарегистрированных регионов
func (d *Directory) Count() int {
	return d.store.count()
}

// Subscribe подписывает fn на изменения регионов (обновление и снятие)
func (d *Directory) Subscribe(fn Subscriber) Subscription {
	return d.notifier.Subscribe(fn)
}
