package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/annel0/mmo-grid/internal/middleware"
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Version: версия grid-сервиса в /api/server.
const Version = "v0.1.0"

// StatsFunc отдаёт дополнительный раздел для /api/server (шина, кеш).
type StatsFunc func() interface{}

// RestServer представляет REST API директории регионов
type RestServer struct {
	router    *gin.Engine
	httpSrv   *http.Server
	directory *grid.Directory
	addr      string
	nodeID    string
	metrics   *ServerMetrics
	log       *logging.Logger
	extra     map[string]StatsFunc
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr      string          // адрес для запуска сервера, например ":8090"
	NodeID    string          // имя узла в /api/server
	Directory *grid.Directory // директория регионов

	// Registerer/Gatherer для HTTP-метрик и /metrics; nil: глобальный реестр
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger *logging.Logger // nil: пакетный логгер
	// Tracing включает otelgin
	Tracing bool
	// Extra: именованные разделы /api/server
	Extra map[string]StatsFunc
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Directory == nil {
		return nil, fmt.Errorf("api: директория не задана")
	}
	if config.Addr == "" {
		config.Addr = ":8090"
	}
	if config.NodeID == "" {
		config.NodeID = "grid"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	if config.Tracing {
		router.Use(otelgin.Middleware("grid_api"))
	}
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware("grid_api", config.Registerer)
	router.Use(promMw.Handler())
	middleware.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:    router,
		directory: config.Directory,
		addr:      config.Addr,
		nodeID:    config.NodeID,
		metrics:   NewServerMetrics(),
		log:       config.Logger,
		extra:     config.Extra,
	}
	rs.httpSrv = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := rs.router.Group("/api")
	{
		regions := api.Group("/regions")
		regions.POST("", rs.handleRegister)
		regions.GET("", rs.handleListRegions)
		regions.GET("/:id", rs.handleGetRegion)
		regions.PATCH("/:id", rs.handleUpdate)
		regions.DELETE("/:id", rs.handleUnregister)
		regions.POST("/:id/heartbeat", rs.handleHeartbeat)

		api.GET("/tiles/:x/:y", rs.handleTileLookup)
		api.GET("/default-region", rs.handleDefaultRegion)
		api.GET("/server", rs.handleServerInfo)
	}

	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера (для httptest).
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до Stop.
func (rs *RestServer) Start() error {
	rs.infof("🌐 REST API слушает %s", rs.addr)
	if err := rs.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер, дожидаясь активных запросов.
func (rs *RestServer) Stop(ctx context.Context) error {
	rs.infof("🌐 REST API останавливается")
	return rs.httpSrv.Shutdown(ctx)
}

func (rs *RestServer) infof(format string, args ...interface{}) {
	if rs.log != nil {
		rs.log.Info(format, args...)
		return
	}
	logging.Info(format, args...)
}

func (rs *RestServer) warnf(format string, args ...interface{}) {
	if rs.log != nil {
		rs.log.Warn(format, args...)
		return
	}
	logging.Warn(format, args...)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}

// statusFor переводит ошибку директории в HTTP-статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, grid.ErrCollision):
		return http.StatusConflict
	case errors.Is(err, grid.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError отвечает на ошибку директории; message уходит клиенту
// для 404 и 500, коллизия описывается CollisionResponse.
func (rs *RestServer) respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	var collision *grid.CollisionError
	if errors.As(err, &collision) {
		c.JSON(status, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Тайл %s уже занят", collision.Handle),
			Data:    CollisionResponse{Handle: uint64(collision.Handle), Occupant: collision.Occupant},
		})
		return
	}
	if status == http.StatusInternalServerError {
		rs.warnf("🌐 REST: %s: %v", message, err)
	}
	fail(c, status, message)
}

// regionID разбирает :id; при ошибке уже ответил 400.
func regionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный идентификатор региона")
		return uuid.Nil, false
	}
	return id, true
}

func parseCoord(raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// handleRegister регистрирует регион на тайле
func (rs *RestServer) handleRegister(c *gin.Context) {
	var req RegisterRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := req.validate(); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	info := req.info()
	id, err := rs.directory.Register(info)
	if err != nil {
		rs.respondError(c, err, "Ошибка регистрации")
		return
	}

	ok(c, http.StatusCreated, "Регион зарегистрирован", RegisterRegionResponse{
		RegionID: id,
		Handle:   uint64(info.TileHandle()),
	})
}

// handleUnregister снимает регион с регистрации
func (rs *RestServer) handleUnregister(c *gin.Context) {
	id, valid := regionID(c)
	if !valid {
		return
	}
	if !rs.directory.Unregister(id) {
		rs.respondError(c, grid.ErrNotFound, "Регион не найден")
		return
	}
	ok(c, http.StatusOK, "Регион снят с регистрации", gin.H{"region_id": id})
}

// handleUpdate обновляет метаданные региона
func (rs *RestServer) handleUpdate(c *gin.Context) {
	id, valid := regionID(c)
	if !valid {
		return
	}

	var req UpdateRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if req.movesRegion() {
		fail(c, http.StatusBadRequest, "Перемещение региона не поддерживается: снимите его с регистрации и зарегистрируйте заново")
		return
	}
	patch := req.patch()
	if patch.Empty() {
		fail(c, http.StatusBadRequest, "Пустое обновление")
		return
	}

	if !rs.directory.Update(id, patch) {
		rs.respondError(c, grid.ErrNotFound, "Регион не найден")
		return
	}
	rec, found := rs.directory.LookupByID(id)
	if !found {
		// Регион сняли между Update и чтением
		rs.respondError(c, grid.ErrNotFound, "Регион не найден")
		return
	}
	ok(c, http.StatusOK, "Регион обновлён", viewOf(rec))
}

// handleHeartbeat принимает сигнал жизни региона
func (rs *RestServer) handleHeartbeat(c *gin.Context) {
	id, valid := regionID(c)
	if !valid {
		return
	}
	rs.directory.Heartbeat(id)
	ok(c, http.StatusOK, "Heartbeat принят", nil)
}

// handleGetRegion возвращает регион по ID
func (rs *RestServer) handleGetRegion(c *gin.Context) {
	id, valid := regionID(c)
	if !valid {
		return
	}
	rec, found := rs.directory.LookupByID(id)
	if !found {
		rs.respondError(c, grid.ErrNotFound, "Регион не найден")
		return
	}
	ok(c, http.StatusOK, "Регион найден", viewOf(rec))
}

// handleListRegions возвращает все регионы или регионы в прямоугольнике тайлов
func (rs *RestServer) handleListRegions(c *gin.Context) {
	keys := []string{"min_x", "min_y", "max_x", "max_y"}
	present := 0
	for _, k := range keys {
		if _, has := c.GetQuery(k); has {
			present++
		}
	}

	if present == 0 {
		ok(c, http.StatusOK, "Все регионы", viewsOf(rs.directory.Regions()))
		return
	}
	if present != len(keys) {
		fail(c, http.StatusBadRequest, "Нужны все параметры min_x, min_y, max_x, max_y")
		return
	}

	var bounds [4]uint32
	for i, k := range keys {
		v, err := parseCoord(c.Query(k))
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Неверное значение %s", k))
			return
		}
		bounds[i] = v
	}

	regions := rs.directory.RegionsInArea(bounds[0], bounds[1], bounds[2], bounds[3])
	ok(c, http.StatusOK, fmt.Sprintf("Регионов в области: %d", len(regions)), viewsOf(regions))
}

// handleTileLookup возвращает регион на тайле
func (rs *RestServer) handleTileLookup(c *gin.Context) {
	x, errX := parseCoord(c.Param("x"))
	y, errY := parseCoord(c.Param("y"))
	if errX != nil || errY != nil {
		fail(c, http.StatusBadRequest, "Неверные координаты тайла")
		return
	}
	rec, found := rs.directory.LookupByCoordinate(x, y)
	if !found {
		rs.respondError(c, grid.ErrNotFound, fmt.Sprintf("Тайл %s свободен", tile.Encode(x, y)))
		return
	}
	ok(c, http.StatusOK, "Регион найден", viewOf(rec))
}

// handleDefaultRegion возвращает регион для входа по умолчанию
func (rs *RestServer) handleDefaultRegion(c *gin.Context) {
	rec, found := rs.directory.DefaultRegion()
	if !found {
		rs.respondError(c, grid.ErrNotFound, "Нет зарегистрированных регионов")
		return
	}
	ok(c, http.StatusOK, "Регион по умолчанию", viewOf(rec))
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := map[string]interface{}{
		"version": Version,
		"name":    "MMO Grid Directory",
		"node_id": rs.nodeID,
		"status":  "running",
		"regions": rs.directory.Count(),
		"host":    rs.metrics.Snapshot(),
	}
	for name, fn := range rs.extra {
		info[name] = fn()
	}
	ok(c, http.StatusOK, "Информация о сервере", info)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}
