package renderer

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Binding indices of the lighting bind group consumed by shading passes.
const (
	LightingBindingTiles         = 0
	LightingBindingIndices       = 1
	LightingBindingRecords       = 2
	LightingBindingShadowAtlas   = 3
	LightingBindingShadowSampler = 4
)

// ErrUnsupportedBackend is returned for GPU-only operations on the headless backend.
var ErrUnsupportedBackend = errors.New("renderer: operation needs the wgpu backend")

// LightingResources are the per-view outputs a lighting bind group is built from.
type LightingResources struct {
	Tiles   StructBuffer
	Indices StructBuffer
	Records StructBuffer
	Atlas   TargetSetHandle
}

// validate reports the first missing resource.
func (r LightingResources) validate() error {
	switch {
	case r.Tiles == nil:
		return errors.New("lighting resources: missing tile buffer")
	case r.Indices == nil:
		return errors.New("lighting resources: missing light index buffer")
	case r.Records == nil:
		return errors.New("lighting resources: missing light record buffer")
	case !r.Atlas.Valid():
		return errors.New("lighting resources: invalid shadow atlas handle")
	}
	return nil
}

// LightingBindGroupLayoutEntries describes the lighting bind group: three
// read-only storage buffers, the depth atlas and its comparison sampler.
//
// Parameters:
//   - visibility: the shader stages that read the group
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: entries ordered by binding index
func LightingBindGroupLayoutEntries(visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, 5)
	for _, b := range []uint32{LightingBindingTiles, LightingBindingIndices, LightingBindingRecords} {
		e := wgpu.BindGroupLayoutEntry{Binding: b, Visibility: visibility}
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		entries = append(entries, e)
	}

	atlas := wgpu.BindGroupLayoutEntry{Binding: LightingBindingShadowAtlas, Visibility: visibility}
	atlas.Texture.SampleType = wgpu.TextureSampleTypeDepth
	atlas.Texture.ViewDimension = wgpu.TextureViewDimension2D
	entries = append(entries, atlas)

	samp := wgpu.BindGroupLayoutEntry{Binding: LightingBindingShadowSampler, Visibility: visibility}
	samp.Sampler.Type = wgpu.SamplerBindingTypeComparison
	return append(entries, samp)
}

// LightingBindGroup owns a bind group over one view's lighting outputs.
// The buffers and atlas it references stay owned by the renderer.
type LightingBindGroup interface {
	// Label returns the debug label.
	Label() string

	// BindGroup returns the GPU bind group.
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the layout the bind group was created with.
	BindGroupLayout() *wgpu.BindGroupLayout

	// Release frees the bind group and its layout.
	Release()
}

type lightingBindGroup struct {
	label     string
	bindGroup *wgpu.BindGroup
	layout    *wgpu.BindGroupLayout
}

var _ LightingBindGroup = &lightingBindGroup{}

func (g *lightingBindGroup) Label() string {
	return g.label
}

func (g *lightingBindGroup) BindGroup() *wgpu.BindGroup {
	return g.bindGroup
}

func (g *lightingBindGroup) BindGroupLayout() *wgpu.BindGroupLayout {
	return g.layout
}

func (g *lightingBindGroup) Release() {
	if g.bindGroup != nil {
		g.bindGroup.Release()
		g.bindGroup = nil
	}
	if g.layout != nil {
		g.layout.Release()
		g.layout = nil
	}
}

// createLightingBindGroup builds the layout and bind group on the backend device.
// The atlas target must have been created by a prior Execute.
func (b *wgpuRendererBackendImpl) createLightingBindGroup(label string, res LightingResources, visibility wgpu.ShaderStage) (*lightingBindGroup, error) {
	view, sampler, ok := b.TargetView(res.Atlas)
	if !ok || sampler == nil {
		return nil, fmt.Errorf("%s: shadow atlas not created yet", label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buffers := make(map[uint32]*wgpu.Buffer, 3)
	for binding, sb := range map[uint32]StructBuffer{
		LightingBindingTiles:   res.Tiles,
		LightingBindingIndices: res.Indices,
		LightingBindingRecords: res.Records,
	} {
		wb, ok := sb.(*wgpuStructBuffer)
		if !ok || wb.Buffer() == nil {
			return nil, fmt.Errorf("%s: binding %d is not a live wgpu buffer", label, binding)
		}
		buffers[binding] = wb.Buffer()
	}

	entries := LightingBindGroupLayoutEntries(visibility)
	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + " Layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create bind group layout: %w", label, err)
	}

	groupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, entry := range entries {
		switch entry.Binding {
		case LightingBindingShadowAtlas:
			groupEntries[i] = wgpu.BindGroupEntry{Binding: entry.Binding, TextureView: view}
		case LightingBindingShadowSampler:
			groupEntries[i] = wgpu.BindGroupEntry{Binding: entry.Binding, Sampler: sampler}
		default:
			groupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buffers[entry.Binding],
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  layout,
		Entries: groupEntries,
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("%s: failed to create bind group: %w", label, err)
	}
	return &lightingBindGroup{label: label, bindGroup: bg, layout: layout}, nil
}
