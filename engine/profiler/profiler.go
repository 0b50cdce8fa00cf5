package profiler

import (
	"cmp"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-lighting/common"
)

// PhaseStats is the accumulated timing of one named phase over a report interval.
type PhaseStats struct {
	Name    string
	Count   int
	Total   time.Duration
	Longest time.Duration
}

// Mean returns the average duration of the phase, or zero if it never ran.
func (s PhaseStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Profiler tracks frame rate, memory statistics and the duration of named
// lighting setup phases. Outputs stats to the engine logger at a configurable interval.
// Phase timings may be recorded from several goroutines.
type Profiler struct {
	mu *sync.Mutex

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	readMem        bool

	phases map[string]*PhaseStats
	last   []PhaseStats
	now    func() time.Time
}

// ProfilerOption is a functional option applied by NewProfiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often Tick reports. Non-positive values are ignored.
//
// Parameters:
//   - d: the report interval
//
// Returns:
//   - ProfilerOption: option function to apply
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithMemStats enables reading runtime memory statistics on each report.
// ReadMemStats stops the world, so it is off by default.
//
// Parameters:
//   - enabled: whether to include heap and GC figures
//
// Returns:
//   - ProfilerOption: option function to apply
func WithMemStats(enabled bool) ProfilerOption {
	return func(p *Profiler) {
		p.readMem = enabled
	}
}

// WithClock replaces the time source.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - ProfilerOption: option function to apply
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		updateInterval: time.Second,
		phases:         make(map[string]*PhaseStats),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Begin starts timing a phase and returns the function that stops it.
//
//	defer p.Begin("cluster")()
//
// Parameters:
//   - phase: the phase name
//
// Returns:
//   - func(): stops the timer and records the duration
func (p *Profiler) Begin(phase string) func() {
	start := p.now()
	return func() {
		p.Record(phase, p.now().Sub(start))
	}
}

// Record adds one measured duration to a phase.
//
// Parameters:
//   - phase: the phase name
//   - d: the measured duration
func (p *Profiler) Record(phase string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.phases[phase]
	if !ok {
		s = &PhaseStats{Name: phase}
		p.phases[phase] = s
	}
	s.Count++
	s.Total += d
	s.Longest = max(s.Longest, d)
}

// Phases returns the phase statistics of the last completed report interval,
// sorted by name.
//
// Returns:
//   - []PhaseStats: a copy of the last report
func (p *Profiler) Phases() []PhaseStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.last)
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include FPS, the mean and longest duration of every recorded
// phase and, when enabled, heap usage, allocation rate and GC pauses.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	attrs := []any{"component", "profiler", "fps", fps}

	if p.readMem {
		attrs = append(attrs, p.memAttrs(elapsed)...)
	}

	p.last = p.last[:0]
	for _, s := range p.phases {
		p.last = append(p.last, *s)
	}
	slices.SortFunc(p.last, func(a, b PhaseStats) int { return cmp.Compare(a.Name, b.Name) })
	for _, s := range p.last {
		attrs = append(attrs, slog.Group(s.Name,
			"mean", s.Mean(),
			"max", s.Longest,
			"count", s.Count,
		))
	}
	clear(p.phases)

	common.Logger().Info("profile", attrs...)

	p.frameCount = 0
	p.lastTime = currentTime
	return true
}

func (p *Profiler) memAttrs(elapsed time.Duration) []any {
	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap; TotalAlloc: cumulative, tracks churn; Sys: process footprint
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc

	return []any{
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
	}
}
