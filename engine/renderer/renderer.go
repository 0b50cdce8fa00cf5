package renderer

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	bufferCache map[string]StructBuffer

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	device               *wgpu.Device
	queue                *wgpu.Queue
	drawer               GeometryDrawer
}

// Renderer defines the interface for the GPU resource layer used by the lighting core.
//
// The Renderer owns a cache of named structured buffers and executes declared render
// graph passes through its backend. It implements a backend which allows for multiple
// backend implementations to exist: WebGPU for real frames and a headless backend that
// keeps buffers in host memory and records passes.
type Renderer interface {
	// BackendType returns the type of the active backend.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// StructBuffer returns the cached structured buffer registered under name,
	// creating it through the backend on first use or when its element size or
	// count changed.
	//
	// Parameters:
	//   - name: the unique buffer label, e.g. "lights/tiles/0"
	//   - elementSize: element stride in bytes
	//   - elementCount: capacity in elements
	//
	// Returns:
	//   - StructBuffer: the buffer
	//   - error: an error if buffer creation fails
	StructBuffer(name string, elementSize, elementCount int) (StructBuffer, error)

	// Execute runs every pass declared on graph and resets its pass list.
	//
	// Parameters:
	//   - graph: the render graph
	//   - drawables: scene drawables handed to pass callbacks
	//
	// Returns:
	//   - error: the joined pass errors
	Execute(graph RenderGraph, drawables []Drawable) error

	// ExecutedPasses returns and clears the pass records of the headless backend.
	// Other backends return nil.
	//
	// Returns:
	//   - []ExecutedPass: passes executed since the last call
	ExecutedPasses() []ExecutedPass

	// TargetView returns the depth view and optional comparison sampler of a target
	// set once the WebGPU backend has created it.
	//
	// Parameters:
	//   - h: the target set handle
	//
	// Returns:
	//   - *wgpu.TextureView: the depth view
	//   - *wgpu.Sampler: the comparison sampler, or nil
	//   - bool: false for unknown handles and non-WebGPU backends
	TargetView(h TargetSetHandle) (*wgpu.TextureView, *wgpu.Sampler, bool)

	// LightingBindGroup binds one view's tile, light index and light record
	// buffers together with the shadow atlas for shading passes. The atlas must
	// have been created by a prior Execute. The caller releases the result.
	//
	// Parameters:
	//   - label: debug label
	//   - res: the view's lighting resources
	//   - visibility: the shader stages that read the group
	//
	// Returns:
	//   - LightingBindGroup: the bind group
	//   - error: ErrUnsupportedBackend on the headless backend, or a creation error
	LightingBindGroup(label string, res LightingResources, visibility wgpu.ShaderStage) (LightingBindGroup, error)

	// Release frees every backend resource.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer with the given backend.
//
// Parameters:
//   - backendType: the backend to create
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if the backend cannot be created
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		bufferCache: make(map[string]StructBuffer),
		backendType: backendType,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeHeadless:
		r.backend = newHeadlessRendererBackend()
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(r.device, r.queue, r.forceFallbackAdapter)
		if err != nil {
			return nil, fmt.Errorf("wgpu backend: %w", err)
		}
		b.SetGeometryDrawer(r.drawer)
		r.backend = b
	default:
		return nil, fmt.Errorf("unknown backend type %d", backendType)
	}
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) StructBuffer(name string, elementSize, elementCount int) (StructBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buf, ok := r.bufferCache[name]; ok {
		if buf.ElementSize() == elementSize && buf.ElementCount() == elementCount {
			return buf, nil
		}
		if wb, ok := buf.(*wgpuStructBuffer); ok {
			wb.release()
		}
		delete(r.bufferCache, name)
	}

	buf, err := r.backend.CreateStructBuffer(name, elementSize, elementCount)
	if err != nil {
		return nil, err
	}
	r.bufferCache[name] = buf
	return buf, nil
}

func (r *renderer) Execute(graph RenderGraph, drawables []Drawable) error {
	return graph.Execute(r.backend, drawables)
}

func (r *renderer) ExecutedPasses() []ExecutedPass {
	if b, ok := r.backend.(*headlessRendererBackend); ok {
		return b.drainHistory()
	}
	return nil
}

func (r *renderer) TargetView(h TargetSetHandle) (*wgpu.TextureView, *wgpu.Sampler, bool) {
	if b, ok := r.backend.(wgpuRendererBackend); ok {
		return b.TargetView(h)
	}
	return nil, nil, false
}

func (r *renderer) LightingBindGroup(label string, res LightingResources, visibility wgpu.ShaderStage) (LightingBindGroup, error) {
	if err := res.validate(); err != nil {
		return nil, err
	}
	b, ok := r.backend.(*wgpuRendererBackendImpl)
	if !ok {
		return nil, ErrUnsupportedBackend
	}
	return b.createLightingBindGroup(label, res, visibility)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bufferCache = make(map[string]StructBuffer)
	r.backend.Release()
}
