package cluster

import "github.com/Carmen-Shannon/oxy-lighting/engine/renderer"

// LightClusterPassBuilderOption is a functional option applied by NewLightClusterPass.
type LightClusterPassBuilderOption func(*lightClusterPassImpl)

// WithDimensions sets the grid size. Non-positive values keep the defaults.
//
// Parameters:
//   - dimXY: tiles along each screen axis
//   - dimZ: depth slices
//
// Returns:
//   - LightClusterPassBuilderOption: a function that sets the grid size
func WithDimensions(dimXY, dimZ int) LightClusterPassBuilderOption {
	return func(p *lightClusterPassImpl) {
		if dimXY > 0 {
			p.dimXY = dimXY
		}
		if dimZ > 0 {
			p.dimZ = dimZ
		}
	}
}

// WithMaxLightsPerCluster sets the per-cell light cap.
//
// Parameters:
//   - n: the cap, ignored when not positive
//
// Returns:
//   - LightClusterPassBuilderOption: a function that sets the cap
func WithMaxLightsPerCluster(n int) LightClusterPassBuilderOption {
	return func(p *lightClusterPassImpl) {
		if n > 0 {
			p.maxLightsPerCluster = n
		}
	}
}

// WithBufferSource sets where per-view tile and index buffers come from.
//
// Parameters:
//   - src: the buffer source, typically the renderer
//
// Returns:
//   - LightClusterPassBuilderOption: a function that sets the buffer source
func WithBufferSource(src BufferSource) LightClusterPassBuilderOption {
	return func(p *lightClusterPassImpl) {
		p.buffers = src
	}
}

// WithBuffers injects fixed tile and light index buffers. Used when a single
// view is rendered or in tests.
//
// Parameters:
//   - tiles: buffer of GPUTileRecords
//   - indices: buffer of u32 light slot indices
//
// Returns:
//   - LightClusterPassBuilderOption: a function that sets the buffers
func WithBuffers(tiles, indices renderer.StructBuffer) LightClusterPassBuilderOption {
	return func(p *lightClusterPassImpl) {
		p.tileBuffer = tiles
		p.indexBuffer = indices
	}
}
