package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithDevice makes the WebGPU backend borrow an existing device and queue instead
// of requesting its own. The renderer never releases a borrowed device.
//
// Parameters:
//   - device: the device to allocate buffers and textures on
//   - queue: the queue used for uploads and submissions
//
// Returns:
//   - RendererBuilderOption: a function that applies the device option to a renderer
func WithDevice(device *wgpu.Device, queue *wgpu.Queue) RendererBuilderOption {
	return func(r *renderer) {
		r.device = device
		r.queue = queue
	}
}

// WithGeometryDrawer installs the hook the WebGPU backend calls for every drawable
// a pass issues. Without it shadow passes only clear their regions.
//
// Parameters:
//   - drawer: the geometry drawer
//
// Returns:
//   - RendererBuilderOption: a function that applies the drawer option to a renderer
func WithGeometryDrawer(drawer GeometryDrawer) RendererBuilderOption {
	return func(r *renderer) {
		r.drawer = drawer
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful for running lighting setup on CI machines.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
