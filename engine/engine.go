package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/cluster"
	"github.com/Carmen-Shannon/oxy-lighting/engine/config"
	"github.com/Carmen-Shannon/oxy-lighting/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/Carmen-Shannon/oxy-lighting/engine/scene"
	"github.com/Carmen-Shannon/oxy-lighting/engine/shadow"
	"github.com/Carmen-Shannon/oxy-lighting/engine/telemetry"
)

// engine implements the Engine interface.
// Coordinates the tick and render goroutines and the per-view lighting setup.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	cfg      *config.Config
	renderer renderer.Renderer
	world    WorldRenderer

	profiler         *profiler.Profiler
	profilingEnabled bool
	recorder         *telemetry.Recorder
	ownsRecorder     bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenes  map[int]scene.Scene
	outputs map[int]LightingOutputs

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the lighting core.
// It drives frames over the registered scenes: gather, per-view lighting
// setup and shadow pass execution.
type Engine interface {
	// Config returns the active configuration.
	Config() *config.Config

	// Renderer returns the renderer buffers and passes go through.
	Renderer() renderer.Renderer

	// WorldRenderer returns the per-view lighting setup.
	WorldRenderer() WorldRenderer

	// Telemetry returns the frame statistics recorder, or nil when telemetry is off.
	Telemetry() *telemetry.Recorder

	// SetShadowQuality switches the shadow tier. Cached cascades are dropped.
	//
	// Parameters:
	//   - q: the tier
	//
	// Returns:
	//   - error: config.ErrInvalidSettings for unknown tiers
	SetShadowQuality(q config.Quality) error

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this to move cameras, lights and renderables.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each render frame.
	// Lighting outputs of the frame are available through Outputs.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene as the view with the given index.
	// Views are set up in ascending index order.
	//
	// Parameters:
	//   - key: the view index
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes a view and drops its cached lighting state.
	//
	// Parameters:
	//   - key: the view index
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given view index.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the view index
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by view index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Frame runs one frame synchronously over every active scene. A view whose
	// lighting setup fails keeps no outputs for the frame; the other views still run.
	//
	// Parameters:
	//   - dt: elapsed time since the last frame in seconds
	//
	// Returns:
	//   - error: the joined per-view errors
	Frame(dt float32) error

	// Outputs returns the lighting outputs a view produced in the last frame.
	//
	// Parameters:
	//   - key: the view index
	//
	// Returns:
	//   - LightingOutputs: the outputs
	//   - bool: false if the view has no outputs for the last frame
	Outputs(key int) (LightingOutputs, bool)

	// Run starts the tick and render loops and blocks until Quit is called.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release flushes telemetry and frees renderer resources.
	//
	// Returns:
	//   - error: telemetry flush errors
	Release() error
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Without WithRenderer a headless renderer is created; without WithConfig the
// embedded defaults are used.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: renderer or telemetry creation errors
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		outputs:         make(map[int]LightingOutputs),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if e.renderer == nil {
		r, err := renderer.NewRenderer(renderer.BackendTypeHeadless)
		if err != nil {
			return nil, fmt.Errorf("creating renderer: %w", err)
		}
		e.renderer = r
	}

	if e.cfg.Profiler.Enabled {
		e.profilingEnabled = true
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(
			profiler.WithInterval(e.cfg.Derived.ProfilerInterval),
			profiler.WithMemStats(e.cfg.Profiler.MemStats),
		)
	}

	if e.recorder == nil && e.cfg.Telemetry.Enabled {
		rec, err := telemetry.CreateRecorder(e.cfg.Telemetry.Path, telemetry.WithFlushEvery(e.cfg.Telemetry.FlushEvery))
		if err != nil {
			return nil, fmt.Errorf("creating telemetry: %w", err)
		}
		e.recorder = rec
		e.ownsRecorder = true
	}

	if e.world == nil {
		worldOpts := []WorldRendererOption{
			WithScheduler(shadow.NewScheduler(shadow.WithSettings(e.cfg.Derived.Shadow))),
			WithClusterOptions(
				cluster.WithDimensions(e.cfg.Cluster.DimXY, e.cfg.Cluster.DimZ),
				cluster.WithMaxLightsPerCluster(e.cfg.Cluster.MaxLightsPerCluster),
			),
			WithSetupProfiler(e.profiler),
		}
		if e.cfg.Cluster.Async {
			worldOpts = append(worldOpts, WithAsyncCluster(e.cfg.Cluster.Workers))
		}
		e.world = NewWorldRenderer(e.renderer, worldOpts...)
	}

	common.Logger().Info("engine created",
		"component", "world",
		"backend", e.renderer.BackendType(),
		"quality", e.cfg.Shadows.Quality,
		"async_cluster", e.cfg.Cluster.Async,
	)
	return e, nil
}

func (e *engine) Config() *config.Config {
	return e.cfg
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) WorldRenderer() WorldRenderer {
	return e.world
}

func (e *engine) Telemetry() *telemetry.Recorder {
	return e.recorder
}

func (e *engine) SetShadowQuality(q config.Quality) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cfg.SetQuality(q); err != nil {
		return err
	}
	e.world.Scheduler().SetSettings(e.cfg.Derived.Shadow)
	return nil
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	e.handle()
	e.wg.Wait()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

func (e *engine) Release() error {
	e.signalQuit()
	var err error
	if e.ownsRecorder {
		err = e.recorder.Close()
	} else {
		err = e.recorder.Flush()
	}
	e.renderer.Release()
	return err
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render goroutine recovered from panic", "component", "world", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			// Per-view failures are logged by the world renderer; the loop keeps going.
			_ = e.Frame(dt)

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Frame(dt float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]int, 0, len(e.scenes))
	for k, s := range e.scenes {
		if s.Active() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	clear(e.outputs)
	shadowsEnabled := e.world.Scheduler().Settings().Enabled
	graph := e.world.Graph()

	var errs []error
	for _, key := range keys {
		s := e.scenes[key]
		cam := s.Camera()
		cam.Update()
		view := cam.RenderView(key)
		view.DeltaTime = dt

		stop := e.profiler.Begin("gather")
		gathered := s.Gather(e.cfg.Lights.MaxLightCount, shadowsEnabled)
		stop()

		out, err := e.world.Setup(view, gathered)
		e.record(view.FrameCount, key, gathered, out, err)
		if err != nil {
			// Passes the cluster failure left behind must not draw into a stale atlas.
			graph.Reset()
			errs = append(errs, err)
			cam.Advance(dt)
			continue
		}
		e.outputs[key] = out

		stop = e.profiler.Begin("execute")
		if err := e.renderer.Execute(graph, gathered.Drawables); err != nil {
			common.Logger().Error("shadow passes failed",
				"component", "world",
				"view", key,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("executing passes (view %d): %w", key, err))
		}
		stop()
		cam.Advance(dt)
	}

	if e.profilingEnabled {
		e.profiler.Tick()
	}
	return errors.Join(errs...)
}

// record appends the view's frame statistics to telemetry. Caller must hold the mutex.
func (e *engine) record(frame uint64, view int, gathered scene.GatheredView, out LightingOutputs, setupErr error) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(telemetry.FrameStats{
		Frame:             frame,
		View:              view,
		Lights:            gathered.Lights.ActiveCount(),
		OccupiedCells:     out.Stats.OccupiedCells,
		IndexCount:        out.Stats.IndexCount,
		MeanOccupancy:     out.Stats.MeanOccupancy,
		StdDevOccupancy:   out.Stats.StdDevOccupancy,
		MaxOccupancy:      out.Stats.MaxOccupancy,
		CascadesRefreshed: len(out.Shadows.RefreshedSlices),
		SpotsPacked:       out.Shadows.SpotsPacked,
		SpotsDropped:      out.Shadows.SpotsDropped,
		AtlasUtilization:  out.Shadows.AtlasUtilization,
		SetupMicros:       out.SetupTime.Microseconds(),
		Failed:            setupErr != nil,
	})
	if err != nil {
		common.Logger().Warn("telemetry write failed", "component", "world", "error", err)
	}
}

func (e *engine) Outputs(key int) (LightingOutputs, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outputs[key]
	return out, ok
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
	delete(e.outputs, key)
	e.world.ReleaseView(key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}
