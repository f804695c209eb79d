package pipeline

// #region imports
import (
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

// #endregion

// #region observer

// Observer receives best-effort notifications after each frame, each step
// and each dispatched action.
type Observer interface {
	OnFrameProcessed(clientID string, m FrameMetrics)
	OnActionSent(clientID string, a game.Action)
	OnStep(clientID string, step StepType, d time.Duration)
}

// MetricsCollector fans notifications out to subscribed observers.
type MetricsCollector struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewMetricsCollector creates a collector with the given observers.
func NewMetricsCollector(obs ...Observer) *MetricsCollector {
	return &MetricsCollector{observers: obs}
}

// Subscribe adds an observer.
func (m *MetricsCollector) Subscribe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *MetricsCollector) snapshot() []Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Observer(nil), m.observers...)
}

// FrameProcessed notifies every observer of the completed steps, then of
// the frame itself.
func (m *MetricsCollector) FrameProcessed(fc *FrameContext) {
	obs := m.snapshot()
	for _, r := range fc.Log {
		if r.Status != StatusCompleted && r.Status != StatusError {
			continue
		}
		for _, o := range obs {
			o.OnStep(fc.ClientID, r.Type, r.Duration)
		}
	}
	for _, o := range obs {
		o.OnFrameProcessed(fc.ClientID, fc.Metrics)
	}
}

// ActionSent notifies every observer of a dispatched action.
func (m *MetricsCollector) ActionSent(clientID string, a game.Action) {
	for _, o := range m.snapshot() {
		o.OnActionSent(clientID, a)
	}
}

// #endregion observer

// #region performance-monitor

const ewmaAlpha = 0.1

func ewma(cur float64, v time.Duration) float64 {
	return cur*(1-ewmaAlpha) + float64(v.Microseconds())*ewmaAlpha
}

// StepStats is the smoothed and worst-case duration of one step type, in µs.
type StepStats struct {
	AvgMicros float64
	MaxMicros int64
	Count     int
}

// PerformanceStats is a snapshot of the monitor.
type PerformanceStats struct {
	FramesProcessed int
	ActionsSent     int
	AvgFrameMicros  float64
	FramesPerSecond float64
	Steps           map[StepType]StepStats
}

// PerformanceMonitor keeps EWMA timings and a once-per-second FPS figure.
type PerformanceMonitor struct {
	mu       sync.Mutex
	stats    PerformanceStats
	fpsCount int
	fpsSince time.Time
	now      func() time.Time
}

// NewPerformanceMonitor creates an empty monitor.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		stats:    PerformanceStats{Steps: make(map[StepType]StepStats)},
		fpsSince: time.Now(),
		now:      time.Now,
	}
}

// SetClock replaces the time source and restarts the FPS window.
func (p *PerformanceMonitor) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.fpsSince = now()
	p.mu.Unlock()
}

func (p *PerformanceMonitor) OnFrameProcessed(_ string, m FrameMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.FramesProcessed++
	p.stats.AvgFrameMicros = ewma(p.stats.AvgFrameMicros, m.Total)

	p.fpsCount++
	now := p.now()
	if elapsed := now.Sub(p.fpsSince); elapsed >= time.Second {
		p.stats.FramesPerSecond = float64(p.fpsCount) / elapsed.Seconds()
		p.fpsCount = 0
		p.fpsSince = now
	}
}

func (p *PerformanceMonitor) OnActionSent(string, game.Action) {
	p.mu.Lock()
	p.stats.ActionsSent++
	p.mu.Unlock()
}

func (p *PerformanceMonitor) OnStep(_ string, step StepType, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats.Steps[step]
	s.AvgMicros = ewma(s.AvgMicros, d)
	if us := d.Microseconds(); us > s.MaxMicros {
		s.MaxMicros = us
	}
	s.Count++
	p.stats.Steps[step] = s
}

// Stats returns a copy of the current figures.
func (p *PerformanceMonitor) Stats() PerformanceStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.Steps = make(map[StepType]StepStats, len(p.stats.Steps))
	for k, v := range p.stats.Steps {
		out.Steps[k] = v
	}
	return out
}

// #endregion performance-monitor

// #region debug-tracker

const (
	slowFrame    = 50 * time.Millisecond
	slowStep     = 20 * time.Millisecond
	keepFrames   = 10
	keepWarnings = 5
)

// DebugInfo is a snapshot of the tracker.
type DebugInfo struct {
	LastClient   string
	LastAction   string
	RecentFrames []time.Duration
	Warnings     []string
}

// DebugTracker keeps recent frame times and bottleneck warnings.
type DebugTracker struct {
	mu   sync.Mutex
	info DebugInfo
}

// NewDebugTracker creates an empty tracker.
func NewDebugTracker() *DebugTracker {
	return &DebugTracker{}
}

func (d *DebugTracker) warn(msg string) {
	monitoring.Logf("[PERF] %s", msg)
	d.info.Warnings = append(d.info.Warnings, msg)
	if len(d.info.Warnings) > keepWarnings {
		d.info.Warnings = d.info.Warnings[len(d.info.Warnings)-keepWarnings:]
	}
}

func (d *DebugTracker) OnFrameProcessed(clientID string, m FrameMetrics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info.LastClient = clientID
	d.info.RecentFrames = append(d.info.RecentFrames, m.Total)
	if len(d.info.RecentFrames) > keepFrames {
		d.info.RecentFrames = d.info.RecentFrames[len(d.info.RecentFrames)-keepFrames:]
	}
	if m.Total > slowFrame {
		d.warn(fmt.Sprintf("slow frame: %dus for client %s", m.Total.Microseconds(), clientID))
	}
}

func (d *DebugTracker) OnActionSent(clientID string, a game.Action) {
	d.mu.Lock()
	d.info.LastAction = fmt.Sprintf("client %s: %s", clientID, a)
	d.mu.Unlock()
}

func (d *DebugTracker) OnStep(_ string, step StepType, dur time.Duration) {
	if dur <= slowStep {
		return
	}
	d.mu.Lock()
	d.warn(fmt.Sprintf("slow step %s: %dus", step, dur.Microseconds()))
	d.mu.Unlock()
}

// Info returns a copy of the tracked state.
func (d *DebugTracker) Info() DebugInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.info
	out.RecentFrames = append([]time.Duration(nil), d.info.RecentFrames...)
	out.Warnings = append([]string(nil), d.info.Warnings...)
	return out
}

// #endregion debug-tracker
