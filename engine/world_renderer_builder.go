package engine

import (
	"github.com/Carmen-Shannon/oxy-lighting/engine/cluster"
	"github.com/Carmen-Shannon/oxy-lighting/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/Carmen-Shannon/oxy-lighting/engine/shadow"
)

// WorldRendererOption is a functional option applied by NewWorldRenderer.
type WorldRendererOption func(*worldRenderer)

// WithRenderGraph sets the graph shadow passes are declared on.
//
// Parameters:
//   - g: the render graph
//
// Returns:
//   - WorldRendererOption: option function to apply
func WithRenderGraph(g renderer.RenderGraph) WorldRendererOption {
	return func(w *worldRenderer) {
		w.graph = g
	}
}

// WithScheduler replaces the shadow scheduler.
//
// Parameters:
//   - s: the scheduler
//
// Returns:
//   - WorldRendererOption: option function to apply
func WithScheduler(s shadow.Scheduler) WorldRendererOption {
	return func(w *worldRenderer) {
		w.scheduler = s
	}
}

// WithClusterOptions sets the options every per-view cluster pass is created with.
//
// Parameters:
//   - opts: cluster pass options, e.g. cluster.WithDimensions
//
// Returns:
//   - WorldRendererOption: option function to apply
func WithClusterOptions(opts ...cluster.LightClusterPassBuilderOption) WorldRendererOption {
	return func(w *worldRenderer) {
		w.clusterOptions = append(w.clusterOptions, opts...)
	}
}

// WithAsyncCluster runs each view's cluster pass on a worker pool while the
// shadow scheduler runs on the calling goroutine.
//
// Parameters:
//   - workers: pool size, minimum 1
//
// Returns:
//   - WorldRendererOption: option function to apply
func WithAsyncCluster(workers int) WorldRendererOption {
	return func(w *worldRenderer) {
		w.async = true
		w.workers = max(workers, 1)
	}
}

// WithSetupProfiler records the cluster and shadow phase durations.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - WorldRendererOption: option function to apply
func WithSetupProfiler(p *profiler.Profiler) WorldRendererOption {
	return func(w *worldRenderer) {
		w.profiler = p
	}
}
