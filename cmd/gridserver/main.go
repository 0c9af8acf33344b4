package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/mmo-grid/internal/app"
	"github.com/annel0/mmo-grid/internal/config"
	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию ENV GRID_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	os.Exit(run(cfg))
}

// run возвращает код выхода; отложенные закрытия логгеров выполняются до os.Exit.
func run(cfg *config.Config) int {
	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("gridserver"); err != nil {
		log.Printf("❌ Ошибка инициализации логирования: %v", err)
		return 1
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()
	consoleLevel, fileLevel := logging.ParseLevel(cfg.Logging.ConsoleLevel), logging.ParseLevel(cfg.Logging.FileLevel)
	logging.SetDefaultLevels(consoleLevel, fileLevel)
	logging.GetLoggerManager().SetLevels(consoleLevel, fileLevel)

	gin.SetMode(gin.ReleaseMode)

	logging.Info("🗺️ Запуск grid-сервера %s...", cfg.Grid.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		logging.Error("❌ Ошибка создания сервиса: %v", err)
		return 1
	}

	port := cfg.Server.GetRESTPort()
	logging.Info("✅ Сервис готов")
	logging.Info("   🌐 REST API: http://localhost:%d/api/regions", port)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", port)
	logging.Info("   📈 Метрики: http://localhost:%d/metrics", port)

	runErr := svc.Run(ctx)
	if runErr != nil {
		logging.Error("❌ REST API остановился с ошибкой: %v", runErr)
	} else {
		logging.Info("📡 Получен сигнал завершения, останавливаемся...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибки при остановке: %v", err)
	}

	if runErr != nil {
		return 1
	}
	return 0
}
