// Package perf monitors process memory during long crawls.
package perf

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Level classifies memory pressure.
type Level int

const (
	LevelNominal Level = iota
	LevelElevated
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNominal:
		return "nominal"
	case LevelElevated:
		return "elevated"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Config defines the memory limits the monitor enforces.
type Config struct {
	SoftLimit      uint64        // Allocation that triggers forced GC
	HardLimit      uint64        // Allocation that pauses the crawl
	SampleInterval time.Duration // How often allocation is sampled
	MinGCInterval  time.Duration // Floor between forced GCs
}

// DefaultConfig sizes the limits from the memory the runtime has
// already obtained, with a 1GB fallback when that is not known yet.
func DefaultConfig() *Config {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	total := m.Sys
	if total == 0 {
		total = 1 << 30
	}

	return &Config{
		SoftLimit:      total / 2,
		HardLimit:      total * 3 / 4,
		SampleInterval: time.Second,
		MinGCInterval:  5 * time.Second,
	}
}

// Monitor samples heap allocation on an interval and reacts to
// pressure: forced GC above the soft limit, crawl pause above the
// hard limit. The crawl loop polls Paused between page fetches, so a
// pause never interrupts an in-flight request.
type Monitor struct {
	mu       sync.RWMutex
	cfg      *Config
	level    Level
	peak     uint64
	lastGC   time.Time
	paused   int32
	onChange func(Level)
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. A nil config uses DefaultConfig.
func NewMonitor(cfg *Config) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Monitor{
		cfg:  cfg,
		stop: make(chan struct{}),
	}
}

// Start launches the sampling loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.SampleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends the sampling loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	if stats.Alloc > m.peak {
		m.peak = stats.Alloc
	}
	old := m.level
	m.level = m.cfg.classify(stats.Alloc)
	level := m.level
	cb := m.onChange

	forceGC := false
	switch level {
	case LevelHigh:
		if time.Since(m.lastGC) > m.cfg.MinGCInterval {
			m.lastGC = time.Now()
			forceGC = true
		}
	case LevelCritical:
		m.lastGC = time.Now()
		forceGC = true
	}
	m.mu.Unlock()

	if level == LevelCritical {
		atomic.StoreInt32(&m.paused, 1)
	} else {
		atomic.StoreInt32(&m.paused, 0)
	}
	if forceGC {
		runtime.GC()
		if level == LevelCritical {
			debug.FreeOSMemory()
		}
	}
	if cb != nil && level != old {
		cb(level)
	}
}

func (c *Config) classify(alloc uint64) Level {
	switch {
	case alloc >= c.HardLimit:
		return LevelCritical
	case alloc >= c.SoftLimit:
		return LevelHigh
	case alloc >= c.SoftLimit*3/4:
		return LevelElevated
	default:
		return LevelNominal
	}
}

// OnChange registers a callback invoked when the pressure level moves.
func (m *Monitor) OnChange(cb func(Level)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = cb
}

// Level returns the pressure level from the last sample.
func (m *Monitor) Level() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// Paused reports whether the crawl should hold off on new fetches.
func (m *Monitor) Paused() bool {
	return atomic.LoadInt32(&m.paused) == 1
}

// WaitNominal blocks until the pause lifts or the context ends.
func (m *Monitor) WaitNominal(ctx context.Context) error {
	for m.Paused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// Snapshot is a point-in-time view of process memory.
type Snapshot struct {
	Alloc     uint64
	Sys       uint64
	HeapInuse uint64
	NumGC     uint32
	Peak      uint64
	Level     Level
}

// Snapshot reads current runtime memory statistics.
func (m *Monitor) Snapshot() *Snapshot {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.RLock()
	defer m.mu.RUnlock()

	peak := m.peak
	if stats.Alloc > peak {
		peak = stats.Alloc
	}

	return &Snapshot{
		Alloc:     stats.Alloc,
		Sys:       stats.Sys,
		HeapInuse: stats.HeapInuse,
		NumGC:     stats.NumGC,
		Peak:      peak,
		Level:     m.level,
	}
}
