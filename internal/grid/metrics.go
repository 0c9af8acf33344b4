package grid

import (
	"errors"

	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит Prometheus-метрики директории регионов
type Metrics struct {
	Regions            prometheus.Gauge
	Registrations      *prometheus.CounterVec
	Unregistrations    prometheus.Counter
	Updates            *prometheus.CounterVec
	Heartbeats         prometheus.Counter
	SubscriberFailures prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, метрики работают, но никуда не экспортируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "regions",
			Help:      "Количество зарегистрированных регионов",
		}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "registrations_total",
			Help:      "Попытки регистрации регионов по результату",
		}, []string{"result"}),
		Unregistrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "unregistrations_total",
			Help:      "Общее количество снятых с регистрации регионов",
		}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "updates_total",
			Help:      "Обновления метаданных регионов по результату",
		}, []string{"result"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "heartbeats_total",
			Help:      "Полученные heartbeat-сообщения регионов",
		}),
		SubscriberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grid",
			Subsystem: "directory",
			Name:      "subscriber_failures_total",
			Help:      "Паники подписчиков при рассылке изменений",
		}),
	}

	if reg == nil {
		return m
	}

	m.Regions = register(reg, m.Regions)
	m.Registrations = register(reg, m.Registrations)
	m.Unregistrations = register(reg, m.Unregistrations)
	m.Updates = register(reg, m.Updates)
	m.Heartbeats = register(reg, m.Heartbeats)
	m.SubscriberFailures = register(reg, m.SubscriberFailures)
	return m
}

// register регистрирует c в reg. Если такая метрика в reg уже есть,
// возвращает существующий коллектор, чтобы значения попадали в экспорт.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	logging.Warn("📈 Grid: не удалось зарегистрировать метрику директории: %v", err)
	return c
}
