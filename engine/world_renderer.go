package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/cluster"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/Carmen-Shannon/oxy-lighting/engine/scene"
	"github.com/Carmen-Shannon/oxy-lighting/engine/shadow"
)

// LightingOutputs are the read-only inputs the lit pass of one view binds after
// a successful Setup.
type LightingOutputs struct {
	TileBuffer        renderer.StructBuffer
	LightIndexBuffer  renderer.StructBuffer
	LightRecordBuffer renderer.StructBuffer
	ShadowAtlas       renderer.TargetSetHandle
	LightCount        int
	Params            light.GPUClusterParams
	Stats             cluster.Stats
	Shadows           shadow.SetupResult
	SetupTime         time.Duration
}

// Resources returns the buffers and atlas a lighting bind group is built from.
func (o LightingOutputs) Resources() renderer.LightingResources {
	return renderer.LightingResources{
		Tiles:   o.TileBuffer,
		Indices: o.LightIndexBuffer,
		Records: o.LightRecordBuffer,
		Atlas:   o.ShadowAtlas,
	}
}

// WorldRenderer runs the lighting setup of each view: light clustering and
// shadow scheduling over the same gathered light list.
type WorldRenderer interface {
	// Setup clusters the view's lights, schedules its shadows and declares the
	// shadow passes on the render graph. On error the view's lighting is aborted
	// for this frame and the error is logged; it never panics.
	//
	// Parameters:
	//   - view: the render view
	//   - gathered: the scene content gathered for this frame
	//
	// Returns:
	//   - LightingOutputs: the buffers and atlas of the view
	//   - error: joined cluster and shadow errors
	Setup(view camera.RenderView, gathered scene.GatheredView) (LightingOutputs, error)

	// Graph returns the render graph shadow passes are declared on.
	Graph() renderer.RenderGraph

	// Scheduler returns the shadow scheduler.
	Scheduler() shadow.Scheduler

	// ClusterPass returns the cluster pass of a view, creating it on first use.
	//
	// Parameters:
	//   - index: the view index
	//
	// Returns:
	//   - cluster.LightClusterPass: the view's pass
	ClusterPass(index int) cluster.LightClusterPass

	// ReleaseView drops a view's cluster pass and cached shadow state.
	//
	// Parameters:
	//   - index: the view index
	ReleaseView(index int)
}

type worldRenderer struct {
	mu *sync.Mutex

	r         renderer.Renderer
	graph     renderer.RenderGraph
	scheduler shadow.Scheduler
	profiler  *profiler.Profiler

	clusterOptions []cluster.LightClusterPassBuilderOption
	clusterPasses  map[int]cluster.LightClusterPass

	async   bool
	workers int
	pool    worker.DynamicWorkerPool
	taskID  int
}

var _ WorldRenderer = &worldRenderer{}

// NewWorldRenderer creates a WorldRenderer allocating its buffers through r.
//
// Parameters:
//   - r: the renderer buffers are created with
//   - options: variadic list of WorldRendererOption functions
//
// Returns:
//   - WorldRenderer: the world renderer
func NewWorldRenderer(r renderer.Renderer, options ...WorldRendererOption) WorldRenderer {
	w := &worldRenderer{
		mu:            &sync.Mutex{},
		r:             r,
		clusterPasses: make(map[int]cluster.LightClusterPass),
		workers:       2,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.graph == nil {
		w.graph = renderer.NewRenderGraph()
	}
	if w.scheduler == nil {
		w.scheduler = shadow.NewScheduler()
	}
	if w.async {
		w.pool = worker.NewDynamicWorkerPool(w.workers, 256, 1*time.Second)
	}
	return w
}

func (w *worldRenderer) Graph() renderer.RenderGraph {
	return w.graph
}

func (w *worldRenderer) Scheduler() shadow.Scheduler {
	return w.scheduler
}

func (w *worldRenderer) ClusterPass(index int) cluster.LightClusterPass {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clusterPass(index)
}

// clusterPass returns the view's pass. Caller must hold the mutex.
func (w *worldRenderer) clusterPass(index int) cluster.LightClusterPass {
	if p, ok := w.clusterPasses[index]; ok {
		return p
	}
	opts := append([]cluster.LightClusterPassBuilderOption{cluster.WithBufferSource(w.r)}, w.clusterOptions...)
	p := cluster.NewLightClusterPass(opts...)
	w.clusterPasses[index] = p
	return p
}

func (w *worldRenderer) ReleaseView(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.clusterPasses, index)
	w.scheduler.ResetView(index)
}

func (w *worldRenderer) Setup(view camera.RenderView, gathered scene.GatheredView) (LightingOutputs, error) {
	start := time.Now()

	w.mu.Lock()
	pass := w.clusterPass(view.Index)
	async := w.async
	w.mu.Unlock()

	out := LightingOutputs{LightCount: len(gathered.Lights)}

	records, err := w.r.StructBuffer(fmt.Sprintf("lights/records/%d", view.Index),
		(&light.GPULightShaderRecord{}).Size(), light.MaxLightCount)
	if err != nil {
		err = fmt.Errorf("lighting setup (view %d): light record buffer: %w", view.Index, err)
		w.logFailure(view, err)
		return out, err
	}

	var clusterErr, shadowErr error
	runCluster := func() {
		stop := w.begin("cluster")
		defer stop()
		clusterErr = pass.Setup(view, gathered.Lights)
	}

	// Both stages read the immutable light list and write disjoint buffers.
	if async {
		var wg sync.WaitGroup
		wg.Add(1)
		w.mu.Lock()
		id := w.taskID
		w.taskID++
		w.mu.Unlock()
		w.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				runCluster()
				return nil, clusterErr
			},
		})
		out.Shadows, shadowErr = w.scheduleShadows(view, gathered, records)
		wg.Wait()
	} else {
		runCluster()
		out.Shadows, shadowErr = w.scheduleShadows(view, gathered, records)
	}

	out.SetupTime = time.Since(start)
	if err := errors.Join(clusterErr, shadowErr); err != nil {
		w.logFailure(view, err)
		return out, err
	}

	out.TileBuffer = pass.TileBuffer()
	out.LightIndexBuffer = pass.LightIndexBuffer()
	out.LightRecordBuffer = records
	out.ShadowAtlas = out.Shadows.Atlas
	out.Params = pass.Params()
	out.Stats = pass.Stats()

	common.Logger().Debug("lighting set up",
		"component", "world",
		"view", view.Index,
		"frame", view.FrameCount,
		"lights", gathered.Lights.ActiveCount(),
		"occupied", out.Stats.OccupiedCells,
		"indices", out.Stats.IndexCount,
		"took", out.SetupTime,
	)
	return out, nil
}

func (w *worldRenderer) scheduleShadows(view camera.RenderView, gathered scene.GatheredView, records renderer.StructBuffer) (shadow.SetupResult, error) {
	stop := w.begin("shadow")
	defer stop()
	return w.scheduler.Setup(shadow.SetupInput{
		View:   view,
		Lights: gathered.Lights,
		Probe:  gathered.Probe(),
	}, w.graph, records)
}

func (w *worldRenderer) begin(phase string) func() {
	if w.profiler == nil {
		return func() {}
	}
	return w.profiler.Begin(phase)
}

func (w *worldRenderer) logFailure(view camera.RenderView, err error) {
	common.Logger().Error("lighting setup aborted",
		"component", "world",
		"view", view.Index,
		"frame", view.FrameCount,
		"error", err,
	)
}
