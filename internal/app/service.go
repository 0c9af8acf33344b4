package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/mmo-grid/internal/api"
	"github.com/annel0/mmo-grid/internal/cache"
	"github.com/annel0/mmo-grid/internal/config"
	"github.com/annel0/mmo-grid/internal/eventbus"
	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/annel0/mmo-grid/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Service собирает директорию регионов и её окружение:
// шину событий, зеркало в Redis, REST API, метрики и трассировку.
type Service struct {
	cfg *config.Config

	registry  *prometheus.Registry
	directory *grid.Directory
	rest      *api.RestServer

	bus       eventbus.EventBus
	forwarder *eventbus.RegionForwarder
	exporter  *eventbus.MetricsExporter
	busLogSub eventbus.Subscription

	cacheRepo cache.CacheRepo
	mirror    *cache.RegionMirror

	shutdownTelemetry observability.ShutdownFunc

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
	stopOnce sync.Once
}

// Option меняет зависимости Service (тесты подставляют свои реализации).
type Option func(*Service)

// WithBus использует готовую шину вместо создаваемой по конфигу.
func WithBus(bus eventbus.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithCache использует готовый кеш вместо Redis из конфига.
func WithCache(c cache.CacheRepo) Option {
	return func(s *Service) { s.cacheRepo = c }
}

// New создаёт все компоненты, но не начинает обслуживать запросы.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:               cfg,
		registry:          prometheus.NewRegistry(),
		shutdownTelemetry: observability.Noop(),
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		s.shutdownTelemetry = shutdown
	}

	s.directory = grid.NewDirectory(grid.DirectoryConfig{Registerer: s.registry})

	if err := s.setupEventBus(); err != nil {
		s.closeDependencies(ctx)
		return nil, err
	}
	if err := s.setupMirror(); err != nil {
		s.closeDependencies(ctx)
		return nil, err
	}

	rest, err := api.NewRestServer(api.Config{
		Addr:       net.JoinHostPort("", strconv.Itoa(cfg.Server.GetRESTPort())),
		NodeID:     cfg.Grid.NodeID,
		Directory:  s.directory,
		Registerer: s.registry,
		Gatherer:   s.registry,
		Logger:     logging.GetAPILogger(),
		Tracing:    cfg.Telemetry.Enabled,
		Extra:      s.serverStats(),
	})
	if err != nil {
		s.closeDependencies(ctx)
		return nil, err
	}
	s.rest = rest

	logging.Info("🗺️ Grid: сервис %s собран (eventbus=%t, redis=%t, telemetry=%t)",
		cfg.Grid.NodeID, s.bus != nil, s.mirror != nil, cfg.Telemetry.Enabled)
	return s, nil
}

func (s *Service) setupEventBus() error {
	ebCfg := s.cfg.EventBus
	if s.bus == nil && !ebCfg.Enabled {
		return nil
	}

	if s.bus == nil {
		if ebCfg.URL == "" {
			s.bus = eventbus.NewMemoryBus(ebCfg.MemoryCapacity)
			logging.Info("📨 EventBus: in-memory (capacity=%d)", ebCfg.MemoryCapacity)
		} else {
			jsBus, err := eventbus.NewJetStreamBus(ebCfg.URL, ebCfg.Stream, ebCfg.RetentionDuration())
			if err != nil {
				return fmt.Errorf("eventbus: %w", err)
			}
			s.bus = jsBus
			logging.Info("📨 EventBus: JetStream %s (stream=%s)", ebCfg.URL, ebCfg.Stream)
		}
	}

	fwd, err := eventbus.NewRegionForwarder(s.bus, eventbus.ForwarderConfig{
		Source:         s.cfg.Grid.NodeID,
		Compress:       ebCfg.UseZstd,
		PublishTimeout: ebCfg.PublishTimeoutDuration(),
	})
	if err != nil {
		return err
	}
	fwd.Attach(s.directory)
	s.forwarder = fwd

	if sub, err := eventbus.StartLoggingListener(s.bus); err != nil {
		logging.Warn("📨 EventBus: логирующий слушатель не запущен: %v", err)
	} else {
		s.busLogSub = sub
	}

	s.exporter = eventbus.NewMetricsExporter(s.bus, s.registry, time.Second)
	s.exporter.Start()
	return nil
}

func (s *Service) setupMirror() error {
	rCfg := s.cfg.Redis
	if s.cacheRepo == nil && !rCfg.Enabled {
		return nil
	}

	if s.cacheRepo == nil {
		rc, err := cache.NewRedisCache(cache.CacheConfig{
			RedisURL:      rCfg.Addr,
			RedisPassword: rCfg.Password,
			RedisDB:       rCfg.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		s.cacheRepo = rc
	}

	s.mirror = cache.NewRegionMirror(s.cacheRepo, cache.MirrorConfig{
		KeyPrefix: rCfg.KeyPrefix,
		TTL:       rCfg.TTLDuration(),
		Timeout:   rCfg.TimeoutDuration(),
	})
	s.mirror.Attach(s.directory)
	return nil
}

// serverStats: дополнительные разделы /api/server.
func (s *Service) serverStats() map[string]api.StatsFunc {
	stats := make(map[string]api.StatsFunc)
	if s.bus != nil {
		stats["eventbus"] = func() interface{} {
			forwarded, failed := s.forwarder.Stats()
			return map[string]interface{}{
				"bus":       s.bus.Metrics(),
				"forwarded": forwarded,
				"failed":    failed,
			}
		}
	}
	if s.mirror != nil {
		stats["mirror"] = func() interface{} {
			writes, deletes, failures := s.mirror.Stats()
			return map[string]interface{}{
				"cache":    s.cacheRepo.GetMetrics(),
				"writes":   writes,
				"deletes":  deletes,
				"failures": failures,
			}
		}
	}
	return stats
}

// Directory возвращает директорию регионов.
func (s *Service) Directory() *grid.Directory { return s.directory }

// Rest возвращает REST-сервер.
func (s *Service) Rest() *api.RestServer { return s.rest }

// Registry возвращает реестр метрик сервиса.
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// Run запускает фоновые задачи и REST API; блокируется до отмены ctx
// или ошибки HTTP-сервера.
func (s *Service) Run(ctx context.Context) error {
	if s.mirror != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.mirror.Run(s.bgCtx, s.directory, s.cfg.Redis.ResyncInterval())
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.rest.Start() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown останавливает компоненты в обратном порядке.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	s.stopOnce.Do(func() {
		if s.rest != nil {
			if err := s.rest.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rest: %w", err))
			}
		}
		s.bgCancel()
		s.bg.Wait()
		errs = append(errs, s.closeDependencies(ctx)...)
		logging.Info("👋 Grid: сервис %s остановлен", s.cfg.Grid.NodeID)
	})
	return errors.Join(errs...)
}

func (s *Service) closeDependencies(ctx context.Context) []error {
	var errs []error
	if s.mirror != nil {
		s.mirror.Detach()
	}
	if s.cacheRepo != nil {
		if err := s.cacheRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.forwarder != nil {
		s.forwarder.Detach()
	}
	if s.busLogSub != nil {
		s.busLogSub.Unsubscribe()
	}
	if s.exporter != nil {
		s.exporter.Stop()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("eventbus: %w", err))
		}
	}
	if err := s.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errs
}
