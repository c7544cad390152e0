package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage of a supervised ffmpeg process.
type ProcessStats struct {
	PID          int32   `json:"pid"`
	CPUPercent   float64 `json:"cpu_percent"`
	RSSBytes     uint64  `json:"rss_bytes"`
	PeakRSSBytes uint64  `json:"peak_rss_bytes"`
}

// ProcessMonitor samples CPU and memory usage of a running process.
type ProcessMonitor struct {
	proc     *process.Process
	interval time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID. Returns nil if the
// process cannot be inspected; monitoring is best effort.
func NewProcessMonitor(pid int) *ProcessMonitor {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		proc:     proc,
		interval: time.Second,
		stats:    ProcessStats{PID: int32(pid)},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		pm.sample()
		for {
			select {
			case <-pm.ctx.Done():
				return
			case <-ticker.C:
				pm.sample()
			}
		}
	}()
}

// Stop stops sampling and waits for the loop to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the latest sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) sample() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	// Sampling errors mean the process exited; keep the last values.
	if cpu, err := pm.proc.CPUPercent(); err == nil {
		pm.stats.CPUPercent = cpu
	}
	if mi, err := pm.proc.MemoryInfo(); err == nil {
		pm.stats.RSSBytes = mi.RSS
		if mi.RSS > pm.stats.PeakRSSBytes {
			pm.stats.PeakRSSBytes = mi.RSS
		}
	}
}
