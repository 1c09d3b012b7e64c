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

// ServerMetrics снимает показатели процесса и хоста для /api/server
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// HostStats снимок показателей
type HostStats struct {
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	ProcessCPU    float64 `json:"process_cpu_percent"`
	ProcessRSSMB  float64 `json:"process_rss_mb"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	Goroutines    int     `json:"goroutines"`
	NumGC         uint32  `json:"num_gc"`
	HostMemUsed   float64 `json:"host_mem_used_percent"`
	HostCPU       float64 `json:"host_cpu_percent"`
	CPUCount      int     `json:"cpu_count"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

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

// Snapshot собирает показатели. Ошибки gopsutil оставляют нулевые значения:
// часть счётчиков недоступна в контейнерах.
func (sm *ServerMetrics) Snapshot() HostStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := HostStats{
		Uptime:        sm.GetUptime(),
		UptimeSeconds: int64(time.Since(sm.StartTime).Seconds()),
		HeapAllocMB:   float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		NumGC:         m.NumGC,
		CPUCount:      runtime.NumCPU(),
	}

	if sm.proc != nil {
		if pct, err := sm.proc.CPUPercent(); err == nil {
			stats.ProcessCPU = pct
		}
		if info, err := sm.proc.MemoryInfo(); err == nil {
			stats.ProcessRSSMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemUsed = vm.UsedPercent
	}
	// Интервал 0 сравнивает с предыдущим вызовом и не блокирует запрос
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		stats.HostCPU = pcts[0]
	}
	return stats
}
