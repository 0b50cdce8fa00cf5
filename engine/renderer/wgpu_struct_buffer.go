package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuStructBuffer is a storage buffer with a host-side shadow copy. Writes go
// to the shadow copy and are uploaded with Queue.WriteBuffer on Unlock.
type wgpuStructBuffer struct {
	mu          sync.Mutex
	name        string
	elementSize int
	buffer      *wgpu.Buffer
	queue       *wgpu.Queue
	shadow      []byte
	locked      bool
}

var _ StructBuffer = &wgpuStructBuffer{}

// newWGPUStructBuffer creates a storage buffer of elementSize*elementCount bytes.
func newWGPUStructBuffer(device *wgpu.Device, queue *wgpu.Queue, name string, elementSize, elementCount int) (*wgpuStructBuffer, error) {
	size := elementSize * elementCount
	if size <= 0 {
		return nil, fmt.Errorf("struct buffer %q: invalid size %d x %d", name, elementSize, elementCount)
	}
	// Storage buffer sizes must be a multiple of 4.
	alloc := (size + 3) &^ 3

	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            name,
		Size:             uint64(alloc),
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create struct buffer %q: %w", name, err)
	}

	return &wgpuStructBuffer{
		name:        name,
		elementSize: elementSize,
		buffer:      buf,
		queue:       queue,
		shadow:      make([]byte, alloc),
	}, nil
}

func (b *wgpuStructBuffer) Name() string {
	return b.name
}

func (b *wgpuStructBuffer) ElementSize() int {
	return b.elementSize
}

func (b *wgpuStructBuffer) ElementCount() int {
	return len(b.shadow) / b.elementSize
}

func (b *wgpuStructBuffer) Lock() (*WriteView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffer == nil {
		return nil, errors.New("buffer released")
	}
	if b.locked {
		return nil, errors.New("already locked")
	}
	b.locked = true

	n := b.ElementCount() * b.elementSize
	return NewWriteView(b.shadow[:n], b.elementSize, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.locked = false
		if b.buffer == nil {
			return errors.New("buffer released while locked")
		}
		b.queue.WriteBuffer(b.buffer, 0, b.shadow)
		return nil
	}), nil
}

func (b *wgpuStructBuffer) Contents() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.shadow))
	copy(out, b.shadow)
	return out
}

// Buffer returns the GPU buffer for bind group creation.
func (b *wgpuStructBuffer) Buffer() *wgpu.Buffer {
	return b.buffer
}

func (b *wgpuStructBuffer) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}
