package services

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
)

type MetricSample struct {
	CapturedAt        time.Time `json:"captured_at"`
	ProcessRSSBytes   int64     `json:"process_rss_bytes"`
	SystemMemoryTotal int64     `json:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `json:"system_memory_used_bytes"`
	DiskTotalBytes    int64     `json:"disk_total_bytes"`
	DiskUsedBytes     int64     `json:"disk_used_bytes"`
	ProcessCPULoad    float64   `json:"process_cpu_load"`
	SystemCPULoad     float64   `json:"system_cpu_load"`
}

// CaptureHostMetrics samples this process and its host. Samples that fail leave
// their fields zero; disk usage falls back to "/" when diskPath is unreadable.
func CaptureHostMetrics(diskPath string) MetricSample {
	sample := MetricSample{CapturedAt: time.Now().UTC()}
	if memStat, err := mem.VirtualMemory(); err == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.Usage(diskPath)
	if err != nil {
		diskStat, err = disk.Usage("/")
	}
	if err == nil {
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		if perc, err := proc.CPUPercent(); err == nil {
			sample.ProcessCPULoad = perc / 100.0
		}
	}
	if sysCPU, err := cpu.Percent(0, false); err == nil && len(sysCPU) > 0 {
		sample.SystemCPULoad = sysCPU[0] / 100.0
	}
	return sample
}

// MetricsRecorder keeps the most recent samples in memory and pushes each new
// one to admins.
type MetricsRecorder struct {
	mu       sync.Mutex
	samples  []MetricSample
	capacity int
	diskPath string
	capture  func(string) MetricSample
	events   realtime.Bus
	log      *logger.Logger
}

func NewMetricsRecorder(diskPath string, capacity int, events realtime.Bus, log *logger.Logger) *MetricsRecorder {
	if capacity <= 0 {
		capacity = 360
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MetricsRecorder{
		capacity: capacity,
		diskPath: diskPath,
		capture:  CaptureHostMetrics,
		events:   events,
		log:      log.With("component", "MetricsRecorder"),
	}
}

func (r *MetricsRecorder) Record(ctx context.Context) MetricSample {
	sample := r.capture(r.diskPath)
	r.mu.Lock()
	r.samples = append(r.samples, sample)
	if over := len(r.samples) - r.capacity; over > 0 {
		r.samples = append([]MetricSample(nil), r.samples[over:]...)
	}
	r.mu.Unlock()
	if r.events != nil {
		ev := realtime.Event{Type: realtime.EventMetrics, Role: models.RoleAdmin, Data: sample}
		if err := r.events.Publish(ctx, ev); err != nil {
			r.log.Warn("publish metrics failed", "error", err)
		}
	}
	return sample
}

// Latest returns up to limit samples, oldest first.
func (r *MetricsRecorder) Latest(limit int) []MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.samples) {
		limit = len(r.samples)
	}
	out := make([]MetricSample, limit)
	copy(out, r.samples[len(r.samples)-limit:])
	return out
}

// Run records a sample every interval until ctx is done.
func (r *MetricsRecorder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Record(ctx)
		case <-ctx.Done():
			return
		}
	}
}
