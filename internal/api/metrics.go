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

// ServerMetrics собирает сведения о процессе для /api/server
type ServerMetrics struct {
	StartTime time.Time
}

// ServerInfo — ответ /api/server
type ServerInfo struct {
	Name          string  `json:"name"`
	Version       string  `json:"version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryMB      float64 `json:"memory_mb"`
	HeapMB        float64 `json:"heap_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	SystemMemUsed float64 `json:"system_mem_used_percent"`
	Goroutines    int     `json:"goroutines"`
	NumGC         uint32  `json:"num_gc"`
	LoopRunning   bool    `json:"loop_running"`
	ServerTime    int64   `json:"server_time"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		StartTime: time.Now(),
	}
}

// FormatUptime форматирует длительность как "1д 2ч 3м 4с".
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

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		// метрика процесса недоступна, берём системную
		cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
		if err != nil || len(cpuPercents) == 0 {
			return 0, err
		}
		return cpuPercents[0], nil
	}
	return cpuPercent, nil
}

// Collect собирает ServerInfo. Ошибки gopsutil не фатальны: поле остаётся нулевым.
func (sm *ServerMetrics) Collect() ServerInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(sm.StartTime)
	info := ServerInfo{
		Name:          "tower-stack",
		Version:       Version,
		Uptime:        FormatUptime(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		MemoryMB:      float64(m.Alloc) / 1024 / 1024,
		HeapMB:        float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		NumGC:         m.NumGC,
		ServerTime:    time.Now().Unix(),
	}
	if cpuPercent, err := sm.GetCPUUsage(); err == nil {
		info.CPUPercent = cpuPercent
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.SystemMemUsed = vm.UsedPercent
	}
	return info
}
