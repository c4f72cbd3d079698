package proc

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/leeineian/jukebox/sys"
)

const memorySampleCount = 10

// HealthReport is the JSON shape served by the status API.
type HealthReport struct {
	Uptime        string   `json:"uptime"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	MemoryBytes   uint64   `json:"memory_bytes"`
	Memory        string   `json:"memory"`
	Samples       []uint64 `json:"memory_samples"`
	Errors        int64    `json:"errors"`
	LastError     string   `json:"last_error,omitempty"`
	Sessions      int      `json:"sessions"`
}

// HealthMonitor tracks uptime, recorded errors and heap usage.
type HealthMonitor struct {
	start    time.Time
	cfg      sys.HealthTuning
	sessions func() int
	readMem  func() uint64

	errors atomic.Int64

	mu      sync.Mutex
	lastErr string
	samples []uint64
}

// NewHealthMonitor starts the uptime clock. sessions may be nil.
func NewHealthMonitor(cfg sys.HealthTuning, sessions func() int) *HealthMonitor {
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	return &HealthMonitor{
		start:    time.Now(),
		cfg:      cfg,
		sessions: sessions,
		readMem:  heapInUse,
	}
}

func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

func (h *HealthMonitor) RecordError(err error) {
	if err == nil {
		return
	}
	h.errors.Add(1)
	h.mu.Lock()
	h.lastErr = err.Error()
	h.mu.Unlock()
}

func (h *HealthMonitor) Uptime() time.Duration {
	return time.Since(h.start)
}

// ErrorStats returns the error count and the message of the last error.
func (h *HealthMonitor) ErrorStats() (int64, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errors.Load(), h.lastErr
}

// Sample records the current heap size, keeping the most recent samples,
// and warns when it crosses the configured threshold.
func (h *HealthMonitor) Sample() uint64 {
	mem := h.readMem()

	h.mu.Lock()
	h.samples = append(h.samples, mem)
	if len(h.samples) > memorySampleCount {
		h.samples = h.samples[len(h.samples)-memorySampleCount:]
	}
	h.mu.Unlock()

	if mem > h.cfg.MemoryWarnMB*humanize.MiByte {
		sys.LogComponentWarn("health", "High memory usage: %s", humanize.IBytes(mem))
	}
	return mem
}

func (h *HealthMonitor) Samples() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.samples...)
}

func (h *HealthMonitor) Report() HealthReport {
	mem := h.readMem()
	count, last := h.ErrorStats()
	up := h.Uptime()
	return HealthReport{
		Uptime:        formatUptime(up),
		UptimeSeconds: int64(up / time.Second),
		MemoryBytes:   mem,
		Memory:        humanize.IBytes(mem),
		Samples:       h.Samples(),
		Errors:        count,
		LastError:     last,
		Sessions:      h.sessions(),
	}
}

// Status is the one-line summary logged every report interval.
func (h *HealthMonitor) Status() string {
	r := h.Report()
	return fmt.Sprintf("Uptime: %s | Memory: %s | Errors: %d | Sessions: %d", r.Uptime, r.Memory, r.Errors, r.Sessions)
}

func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
}

// Run samples memory every interval and logs the status line every report
// interval until ctx is done.
func (h *HealthMonitor) Run(ctx context.Context) {
	sample := time.NewTicker(h.cfg.Interval)
	defer sample.Stop()
	report := time.NewTicker(h.cfg.ReportInterval)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sample.C:
			h.Sample()
		case <-report.C:
			sys.LogHealth("%s", h.Status())
		}
	}
}
