package renderer

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed assets/depth_clear.wgsl
var depthClearSource string

// GeometryDrawer encodes the draw calls of one drawable into a depth-only pass.
// The renderer owns no meshes; the application supplies this hook.
type GeometryDrawer func(pass *wgpu.RenderPassEncoder, technique string, d Drawable, viewProj mgl32.Mat4)

// wgpuTargetSet is the GPU side of a persistent target set.
type wgpuTargetSet struct {
	desc    TargetSetDesc
	texture *wgpu.Texture
	view    *wgpu.TextureView
	sampler *wgpu.Sampler
}

func (t *wgpuTargetSet) release() {
	if t.sampler != nil {
		t.sampler.Release()
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.texture != nil {
		t.texture.Release()
	}
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance   *wgpu.Instance
	adapter    *wgpu.Adapter
	ownsDevice bool

	buffers        []*wgpuStructBuffer
	targets        map[TargetSetHandle]*wgpuTargetSet
	clearPipelines map[wgpu.TextureFormat]*wgpu.RenderPipeline
	drawer         GeometryDrawer

	// Pass batch state. All passes of one Execute share a command encoder and
	// a single queue submission.
	passEncoder *wgpu.CommandEncoder
}

type wgpuRendererBackend interface {
	RendererBackend
	Device() *wgpu.Device
	Queue() *wgpu.Queue
	TargetView(h TargetSetHandle) (*wgpu.TextureView, *wgpu.Sampler, bool)
	SetGeometryDrawer(drawer GeometryDrawer)
}

var _ wgpuRendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend creates a headless WebGPU backend. When device and queue
// are nil a new adapter and device are requested; otherwise the caller's device
// is borrowed and not released.
func newWGPURendererBackend(device *wgpu.Device, queue *wgpu.Queue, forceFallbackAdapter bool) (*wgpuRendererBackendImpl, error) {
	w := &wgpuRendererBackendImpl{
		mu:             &sync.Mutex{},
		targets:        make(map[TargetSetHandle]*wgpuTargetSet),
		clearPipelines: make(map[wgpu.TextureFormat]*wgpu.RenderPipeline),
	}
	if device != nil && queue != nil {
		w.device = device
		w.queue = queue
		return w, nil
	}

	w.instance = wgpu.CreateInstance(nil)
	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Lighting Device",
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.ownsDevice = true
	return w, nil
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) SetGeometryDrawer(drawer GeometryDrawer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drawer = drawer
}

func (b *wgpuRendererBackendImpl) CreateStructBuffer(name string, elementSize, elementCount int) (StructBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := newWGPUStructBuffer(b.device, b.queue, name, elementSize, elementCount)
	if err != nil {
		return nil, err
	}
	b.buffers = append(b.buffers, buf)
	return buf, nil
}

func (b *wgpuRendererBackendImpl) TargetView(h TargetSetHandle) (*wgpu.TextureView, *wgpu.Sampler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[h]
	if !ok {
		return nil, nil, false
	}
	return t.view, t.sampler, true
}

// ensureTarget returns the GPU target for h, re-creating it when its description changed.
func (b *wgpuRendererBackendImpl) ensureTarget(h TargetSetHandle, desc TargetSetDesc) (*wgpuTargetSet, error) {
	if t, ok := b.targets[h]; ok {
		if t.desc == desc {
			return t, nil
		}
		t.release()
		delete(b.targets, h)
	}

	view, tex, err := b.createDepthTexture(desc)
	if err != nil {
		return nil, err
	}
	t := &wgpuTargetSet{desc: desc, texture: tex, view: view}
	if desc.Comparison {
		samp, err := b.createComparisonSampler()
		if err != nil {
			t.release()
			return nil, err
		}
		t.sampler = samp
	}
	b.targets[h] = t
	common.Logger().Info("target set created",
		"component", "renderer",
		"name", desc.Name,
		"width", desc.Width,
		"height", desc.Height,
	)
	return t, nil
}

func depthTextureFormat(f DepthFormat) wgpu.TextureFormat {
	if f == DepthFormat24Plus {
		return wgpu.TextureFormatDepth24Plus
	}
	return wgpu.TextureFormatDepth32Float
}

func (b *wgpuRendererBackendImpl) createDepthTexture(desc TargetSetDesc) (*wgpu.TextureView, *wgpu.Texture, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: common.Coalesce(desc.Name, "Depth Target"),
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthTextureFormat(desc.DepthFormat),
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create depth texture %q: %w", desc.Name, err)
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("failed to create depth texture view %q: %w", desc.Name, err)
	}

	return view, tex, nil
}

func (b *wgpuRendererBackendImpl) createComparisonSampler() (*wgpu.Sampler, error) {
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Shadow Comparison Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		Compare:       wgpu.CompareFunctionLess,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create comparison sampler: %w", err)
	}

	return samp, nil
}

// clearPipeline returns the depth-only pipeline that resets a viewport region
// to the far plane, creating it on first use for the format.
func (b *wgpuRendererBackendImpl) clearPipeline(format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	if p, ok := b.clearPipelines[format]; ok {
		return p, nil
	}

	vs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Depth Clear",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: depthClearSource,
		},
	})
	if err != nil {
		return nil, err
	}
	defer vs.Release()

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Depth Clear Pipeline",
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: "vs_main",
		},
		// No fragment shader: depth-only pass
		Fragment: nil,
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionAlways,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	b.clearPipelines[format] = created
	return created, nil
}

func (b *wgpuRendererBackendImpl) BeginPasses() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.passEncoder != nil {
		return errors.New("pass batch already open")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.passEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) ExecutePass(pass RenderPass, target TargetSetDesc, drawables []Drawable) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.passEncoder == nil {
		return errors.New("no pass batch open")
	}
	t, err := b.ensureTarget(pass.Target, target)
	if err != nil {
		return err
	}

	rp := b.passEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		// No color attachments: depth-only pass
		ColorAttachments: nil,
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            t.view,
			DepthLoadOp:     wgpu.LoadOpLoad, // other regions of the atlas stay valid
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})

	vp := pass.Viewport
	rp.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	rp.SetScissorRect(uint32(vp.X), uint32(vp.Y), uint32(vp.Width), uint32(vp.Height))

	if pass.Clear {
		clearPipe, err := b.clearPipeline(depthTextureFormat(target.DepthFormat))
		if err != nil {
			rp.End()
			return fmt.Errorf("depth clear pipeline: %w", err)
		}
		rp.SetPipeline(clearPipe)
		rp.Draw(3, 1, 0, 0)
	}

	if pass.Build != nil {
		pass.Build(&wgpuRenderContext{
			pass:      pass,
			encoder:   rp,
			drawables: drawables,
			drawer:    b.drawer,
		})
	}
	rp.End()
	return nil
}

func (b *wgpuRendererBackendImpl) EndPasses() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.passEncoder == nil {
		return nil
	}

	commandBuffer, err := b.passEncoder.Finish(nil)
	if err != nil {
		b.passEncoder.Release()
		b.passEncoder = nil
		return err
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.passEncoder.Release()
	b.passEncoder = nil
	return nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, buf := range b.buffers {
		buf.release()
	}
	b.buffers = nil
	for h, t := range b.targets {
		t.release()
		delete(b.targets, h)
	}
	for f, p := range b.clearPipelines {
		p.Release()
		delete(b.clearPipelines, f)
	}
	if !b.ownsDevice {
		return
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

// wgpuRenderContext forwards DrawScene to the application's GeometryDrawer.
type wgpuRenderContext struct {
	pass      RenderPass
	encoder   *wgpu.RenderPassEncoder
	drawables []Drawable
	drawer    GeometryDrawer
}

func (c *wgpuRenderContext) Pass() RenderPass {
	return c.pass
}

func (c *wgpuRenderContext) DrawScene(req DrawRequest) int {
	selected := SelectDrawables(c.drawables, req)
	if c.drawer == nil {
		return 0
	}
	viewProj := req.Projection.Mul4(req.View)
	for _, d := range selected {
		c.drawer(c.encoder, req.Technique, d, viewProj)
	}
	return len(selected)
}
