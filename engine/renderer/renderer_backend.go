package renderer

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the host-memory backend. Buffers live in RAM and
	// passes are recorded instead of encoded; used for tests and tooling.
	BackendTypeHeadless
)

// String returns the lower-case backend name.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeHeadless:
		return "headless"
	default:
		return "wgpu"
	}
}

// RendererBackend is the top-level backend interface for the Renderer.
// Each backend allocates structured buffers and executes declared passes.
type RendererBackend interface {
	PassExecutor

	// CreateStructBuffer allocates a structured buffer.
	//
	// Parameters:
	//   - name: debug label
	//   - elementSize: element stride in bytes
	//   - elementCount: capacity in elements
	//
	// Returns:
	//   - StructBuffer: the buffer
	//   - error: an error if allocation fails
	CreateStructBuffer(name string, elementSize, elementCount int) (StructBuffer, error)

	// Release frees every GPU resource owned by the backend.
	Release()
}
