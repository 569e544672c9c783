package diagnostics

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot holds host and process resource usage at a point in time.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Host
	Hostname    string  `json:"hostname,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	CPUThreads  int     `json:"cpu_threads"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPath    string  `json:"disk_path"`
	DiskFreeGB  float64 `json:"disk_free_gb"`
	DiskPercent float64 `json:"disk_percent"`
	LoadAvg1    float64 `json:"load_avg_1"`

	// Process
	Goroutines  int           `json:"goroutines"`
	HeapAllocMB float64       `json:"heap_alloc_mb"`
	RSSMB       float64       `json:"rss_mb"`
	OpenFDs     int32         `json:"open_fds"`
	Uptime      time.Duration `json:"uptime"`
}

// Collector takes snapshots. CPU usage is computed against the previous
// Collect call, so the first snapshot reports zero.
type Collector struct {
	mu           sync.Mutex
	diskPath     string
	started      time.Time
	lastCPUTotal float64
	lastCPUIdle  float64

	infoCollected bool
	hostname      string
	platform      string
	cpuModel      string
	cpuThreads    int
}

// NewCollector creates a collector reporting disk usage for diskPath. An
// empty path means the root filesystem.
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &Collector{diskPath: diskPath, started: time.Now()}
}

// Collect gathers the current figures.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Timestamp: time.Now(), DiskPath: c.diskPath}
	c.collectInfo(ctx, &s)
	c.collectCPU(ctx, &s)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotalMB = float64(vm.Total) / 1024 / 1024
		s.MemUsedMB = float64(vm.Used) / 1024 / 1024
		s.MemPercent = vm.UsedPercent
	}
	if usage, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		s.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
		s.DiskPercent = usage.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.LoadAvg1 = avg.Load1
	}

	collectProcess(ctx, &s)
	s.Uptime = time.Since(c.started)
	return s
}

func (c *Collector) collectInfo(ctx context.Context, s *Snapshot) {
	if !c.infoCollected {
		if info, err := host.InfoWithContext(ctx); err == nil {
			c.hostname = info.Hostname
			c.platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		}
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
			c.cpuThreads = threads
		}
		c.infoCollected = true
	}
	s.Hostname = c.hostname
	s.Platform = c.platform
	s.CPUModel = c.cpuModel
	s.CPUThreads = c.cpuThreads
}

func (c *Collector) collectCPU(ctx context.Context, s *Snapshot) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		if delta := total - c.lastCPUTotal; delta > 0 {
			s.CPUPercent = (1 - (idle-c.lastCPUIdle)/delta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func collectProcess(ctx context.Context, s *Snapshot) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		s.RSSMB = float64(info.RSS) / 1024 / 1024
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		s.OpenFDs = fds
	}
}

// Warnings returns human-readable concerns about s.
func (s Snapshot) Warnings() []string {
	var out []string
	if s.MemPercent >= 90 {
		out = append(out, "host memory above 90%")
	}
	if s.DiskPercent >= 90 {
		out = append(out, "disk "+s.DiskPath+" above 90%")
	}
	if s.CPUThreads > 0 && s.LoadAvg1 > float64(2*s.CPUThreads) {
		out = append(out, "load average exceeds twice the thread count")
	}
	return out
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
