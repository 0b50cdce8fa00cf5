package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/go-gl/mathgl/mgl32"
)

// TargetSetHandle identifies a render target set owned by a RenderGraph.
// The zero value is invalid.
type TargetSetHandle uint32

// InvalidTargetSet is the zero, unassigned handle.
const InvalidTargetSet TargetSetHandle = 0

// Valid reports whether the handle refers to a target set.
func (h TargetSetHandle) Valid() bool {
	return h != InvalidTargetSet
}

// DepthFormat selects the depth attachment format of a target set.
type DepthFormat int

const (
	// DepthFormat32Float is a 32-bit float depth attachment, the shadow atlas format.
	DepthFormat32Float DepthFormat = iota
	// DepthFormat24Plus is the platform's 24-bit-or-better depth format.
	DepthFormat24Plus
)

// TargetSetDesc describes a depth-only render target set.
type TargetSetDesc struct {
	Name        string
	Width       int
	Height      int
	DepthFormat DepthFormat
	Comparison  bool // also create a comparison sampler for shadow lookups
}

// Bounds returns the target rectangle at the origin.
func (d TargetSetDesc) Bounds() common.Rect {
	return common.Rect{Width: d.Width, Height: d.Height}
}

// DrawFilter restricts which drawables a pass issues.
type DrawFilter int

const (
	// DrawFilterAll issues every drawable.
	DrawFilterAll DrawFilter = iota
	// DrawFilterStaticOnly issues only drawables that never move.
	DrawFilterStaticOnly
	// DrawFilterDynamicOnly issues only moving or animated drawables.
	DrawFilterDynamicOnly
)

// String returns the lower-case name of the filter.
func (f DrawFilter) String() string {
	switch f {
	case DrawFilterStaticOnly:
		return "static"
	case DrawFilterDynamicOnly:
		return "dynamic"
	default:
		return "all"
	}
}

// Accepts reports whether a drawable with the given dynamic flag passes the filter.
func (f DrawFilter) Accepts(dynamic bool) bool {
	switch f {
	case DrawFilterStaticOnly:
		return !dynamic
	case DrawFilterDynamicOnly:
		return dynamic
	default:
		return true
	}
}

// TechniqueShadow is the technique name of depth-only shadow draws.
const TechniqueShadow = "shadow"

// Drawable is the renderer's view of a scene object.
type Drawable interface {
	// WorldBounds returns the world-space bounding sphere.
	WorldBounds() common.Sphere
	// Dynamic reports whether the drawable moves or animates.
	Dynamic() bool
}

// DrawRequest is what a pass callback asks the executor to draw.
type DrawRequest struct {
	Technique  string
	Filter     DrawFilter
	View       mgl32.Mat4      // world to the pass's view space
	Projection mgl32.Mat4      // pass view space to clip space
	Cull       *common.Frustum // optional, in the pass's view space
}

// RenderContext is handed to a pass callback while its pass is being executed.
type RenderContext interface {
	// Pass returns the pass being executed.
	Pass() RenderPass

	// DrawScene issues the scene's drawables that pass the request's filter and
	// cull volume.
	//
	// Parameters:
	//   - req: technique, filter, matrices and cull volume
	//
	// Returns:
	//   - int: number of drawables issued
	DrawScene(req DrawRequest) int
}

// RenderPass is a pass declared during setup and executed later by a PassExecutor.
// Build must only use state it captured by value.
type RenderPass struct {
	Name     string
	Target   TargetSetHandle
	Viewport common.Rect
	Clear    bool // clear the viewport region before drawing
	Build    func(ctx RenderContext)
}

// PassExecutor turns declared passes into GPU work (or a record of it).
type PassExecutor interface {
	// BeginPasses starts a batch of passes.
	//
	// Returns:
	//   - error: an error if the batch cannot start
	BeginPasses() error

	// ExecutePass runs one pass against its target set.
	//
	// Parameters:
	//   - pass: the declared pass
	//   - target: description of the pass's target set
	//   - drawables: the scene's drawables for DrawScene
	//
	// Returns:
	//   - error: an error if the pass could not be encoded
	ExecutePass(pass RenderPass, target TargetSetDesc, drawables []Drawable) error

	// EndPasses submits the batch.
	//
	// Returns:
	//   - error: an error if submission fails
	EndPasses() error
}

// RenderGraph collects persistent target sets and per-frame passes.
type RenderGraph interface {
	// AddPersistentTargetSet returns the handle of the target set registered under
	// key, creating it or updating its description when it changed. Handles stay
	// stable across frames for the same key.
	//
	// Parameters:
	//   - key: stable identifier, e.g. "shadow_atlas/0"
	//   - desc: the target description
	//
	// Returns:
	//   - TargetSetHandle: the handle
	AddPersistentTargetSet(key string, desc TargetSetDesc) TargetSetHandle

	// TargetSet returns the description of a target set.
	//
	// Parameters:
	//   - h: the handle
	//
	// Returns:
	//   - TargetSetDesc: the description
	//   - bool: false if the handle is unknown
	TargetSet(h TargetSetHandle) (TargetSetDesc, bool)

	// AddPass declares a pass for this frame.
	//
	// Parameters:
	//   - pass: the pass; its viewport must lie inside its target
	//
	// Returns:
	//   - error: an error if the target is unknown or the viewport is out of bounds
	AddPass(pass RenderPass) error

	// Passes returns the passes declared since the last Reset, in order.
	//
	// Returns:
	//   - []RenderPass: the declared passes
	Passes() []RenderPass

	// Reset drops the declared passes and keeps the persistent target sets.
	Reset()

	// Execute runs every declared pass through exec, then resets the pass list.
	//
	// Parameters:
	//   - exec: the executor
	//   - drawables: the scene's drawables
	//
	// Returns:
	//   - error: the joined errors of all failed passes
	Execute(exec PassExecutor, drawables []Drawable) error
}

type targetEntry struct {
	handle TargetSetHandle
	desc   TargetSetDesc
}

// renderGraphImpl is the implementation of the RenderGraph interface.
type renderGraphImpl struct {
	mu      sync.Mutex
	keys    map[string]TargetSetHandle
	targets map[TargetSetHandle]targetEntry
	passes  []RenderPass
	next    TargetSetHandle
}

var _ RenderGraph = &renderGraphImpl{}

// NewRenderGraph creates an empty RenderGraph.
//
// Returns:
//   - RenderGraph: the graph
func NewRenderGraph() RenderGraph {
	return &renderGraphImpl{
		keys:    make(map[string]TargetSetHandle),
		targets: make(map[TargetSetHandle]targetEntry),
		next:    1,
	}
}

func (g *renderGraphImpl) AddPersistentTargetSet(key string, desc TargetSetDesc) TargetSetHandle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.keys[key]; ok {
		g.targets[h] = targetEntry{handle: h, desc: desc}
		return h
	}
	h := g.next
	g.next++
	g.keys[key] = h
	g.targets[h] = targetEntry{handle: h, desc: desc}
	return h
}

func (g *renderGraphImpl) TargetSet(h TargetSetHandle) (TargetSetDesc, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.targets[h]
	return e.desc, ok
}

func (g *renderGraphImpl) AddPass(pass RenderPass) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.targets[pass.Target]
	if !ok {
		return fmt.Errorf("pass %q: unknown target set %d", pass.Name, pass.Target)
	}
	if !pass.Viewport.Within(e.desc.Bounds()) {
		return fmt.Errorf("pass %q: viewport %+v outside target %q (%dx%d)",
			pass.Name, pass.Viewport, e.desc.Name, e.desc.Width, e.desc.Height)
	}
	g.passes = append(g.passes, pass)
	return nil
}

func (g *renderGraphImpl) Passes() []RenderPass {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RenderPass, len(g.passes))
	copy(out, g.passes)
	return out
}

func (g *renderGraphImpl) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes = g.passes[:0]
}

func (g *renderGraphImpl) Execute(exec PassExecutor, drawables []Drawable) error {
	passes := g.Passes()
	defer g.Reset()

	if len(passes) == 0 {
		return nil
	}
	if err := exec.BeginPasses(); err != nil {
		return fmt.Errorf("begin passes: %w", err)
	}

	var errs []error
	for _, p := range passes {
		desc, _ := g.TargetSet(p.Target)
		if err := exec.ExecutePass(p, desc, drawables); err != nil {
			errs = append(errs, fmt.Errorf("pass %q: %w", p.Name, err))
		}
	}
	if err := exec.EndPasses(); err != nil {
		errs = append(errs, fmt.Errorf("end passes: %w", err))
	}
	return errors.Join(errs...)
}

// SelectDrawables returns the drawables that pass req's filter and whose world
// bounds, moved into the pass's view space, are not outside req.Cull.
//
// Parameters:
//   - drawables: candidate drawables
//   - req: the draw request
//
// Returns:
//   - []Drawable: the drawables to issue, in input order
func SelectDrawables(drawables []Drawable, req DrawRequest) []Drawable {
	out := make([]Drawable, 0, len(drawables))
	for _, d := range drawables {
		if !req.Filter.Accepts(d.Dynamic()) {
			continue
		}
		if req.Cull != nil {
			b := d.WorldBounds()
			c := common.TransformPoint(req.View, b.Center)
			if req.Cull.InsideSphere(c, b.Radius) == common.Outside {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
