package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics собирает метрики процесса и хоста для /api/server.
type ServerMetrics struct {
	StartTime time.Time
}

// HostStats: снимок состояния процесса.
type HostStats struct {
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	HeapMB        float64 `json:"heap_mb"`
	SysMB         float64 `json:"sys_mb"`
	Goroutines    int     `json:"goroutines"`
	NumGC         uint32  `json:"num_gc"`
	CPUPercent    float64 `json:"cpu_percent"`
	HostMemUsed   float64 `json:"host_mem_used_percent,omitempty"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{StartTime: time.Now()}
}

// Snapshot собирает метрики. Ошибки gopsutil не фатальны: поле остаётся нулевым.
func (sm *ServerMetrics) Snapshot() HostStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(sm.StartTime)
	stats := HostStats{
		Uptime:        FormatUptime(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		HeapMB:        float64(m.HeapAlloc) / 1024 / 1024,
		SysMB:         float64(m.Sys) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		NumGC:         m.NumGC,
	}

	if cpuPercent, err := sm.processCPU(); err == nil {
		stats.CPUPercent = cpuPercent
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemUsed = vm.UsedPercent
	}
	return stats
}

// processCPU возвращает загрузку CPU процессом; при ошибке: системную.
func (sm *ServerMetrics) processCPU() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if percent, err := proc.CPUPercent(); err == nil {
			return percent, nil
		}
	}

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu: нет данных")
	}
	return percents[0], nil
}

// FormatUptime форматирует длительность как "1д 2ч 3м 4с", опуская старшие нули.
func FormatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}
