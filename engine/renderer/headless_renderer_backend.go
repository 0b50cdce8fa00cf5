package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
)

// ExecutedPass is the record the headless backend keeps for every executed pass.
type ExecutedPass struct {
	Name      string
	Target    TargetSetHandle
	Viewport  common.Rect
	Technique string
	Filter    DrawFilter
	Drawn     int
}

// headlessRendererBackend keeps buffers in host memory and records passes.
type headlessRendererBackend struct {
	mu      sync.Mutex
	history []ExecutedPass
}

var _ RendererBackend = &headlessRendererBackend{}

// newHeadlessRendererBackend creates the host-memory backend.
func newHeadlessRendererBackend() *headlessRendererBackend {
	return &headlessRendererBackend{}
}

func (b *headlessRendererBackend) CreateStructBuffer(name string, elementSize, elementCount int) (StructBuffer, error) {
	return NewStructBuffer(name, elementSize, elementCount), nil
}

func (b *headlessRendererBackend) BeginPasses() error {
	return nil
}

func (b *headlessRendererBackend) ExecutePass(pass RenderPass, target TargetSetDesc, drawables []Drawable) error {
	ctx := &headlessRenderContext{pass: pass, drawables: drawables}
	if pass.Build != nil {
		pass.Build(ctx)
	}
	rec := ExecutedPass{
		Name:      pass.Name,
		Target:    pass.Target,
		Viewport:  pass.Viewport,
		Technique: ctx.technique,
		Filter:    ctx.filter,
		Drawn:     ctx.drawn,
	}

	b.mu.Lock()
	b.history = append(b.history, rec)
	b.mu.Unlock()
	return nil
}

func (b *headlessRendererBackend) EndPasses() error {
	return nil
}

func (b *headlessRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// drainHistory returns and clears the executed pass records.
func (b *headlessRendererBackend) drainHistory() []ExecutedPass {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.history
	b.history = nil
	return out
}

// headlessRenderContext counts the drawables a pass would issue.
type headlessRenderContext struct {
	pass      RenderPass
	drawables []Drawable
	technique string
	filter    DrawFilter
	drawn     int
}

func (c *headlessRenderContext) Pass() RenderPass {
	return c.pass
}

func (c *headlessRenderContext) DrawScene(req DrawRequest) int {
	n := len(SelectDrawables(c.drawables, req))
	c.technique = req.Technique
	c.filter = req.Filter
	c.drawn += n
	return n
}
