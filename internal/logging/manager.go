package logging

import (
	"errors"
	"fmt"
	"sync"
)

// LoggerManager хранит логгеры компонентов (api, eventbus, ...) и общие для них уровни.
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger

	hasLevels    bool
	consoleLevel LogLevel
	fileLevel    LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = NewLoggerManager()
	})
	return globalManager
}

func NewLoggerManager() *LoggerManager {
	return &LoggerManager{loggers: make(map[string]*Logger)}
}

// GetLogger возвращает логгер компонента, при первом обращении открывает его файл.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, ok := lm.loggers[component]; ok {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер компонента %s: %w", component, err)
	}
	if lm.hasLevels {
		logger.SetLevels(lm.consoleLevel, lm.fileLevel)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// SetLevels применяет уровни ко всем открытым и будущим логгерам компонентов.
func (lm *LoggerManager) SetLevels(consoleLevel, fileLevel LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.hasLevels = true
	lm.consoleLevel, lm.fileLevel = consoleLevel, fileLevel
	for _, logger := range lm.loggers {
		logger.SetLevels(consoleLevel, fileLevel)
	}
}

// CloseAll закрывает файлы всех логгеров и забывает их.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// GetComponentLogger возвращает логгер компонента; если файл не открылся,
// пишет только в консоль.
func GetComponentLogger(component string) *Logger {
	logger, err := GetLoggerManager().GetLogger(component)
	if err != nil {
		Warn("⚠️ Logging: %v, компонент %s пишет только в консоль", err, component)
		return NewConsoleLogger(component)
	}
	return logger
}

func GetAPILogger() *Logger {
	return GetComponentLogger("api")
}

func GetEventBusLogger() *Logger {
	return GetComponentLogger("eventbus")
}
