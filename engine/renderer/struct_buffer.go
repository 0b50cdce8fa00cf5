package renderer

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBufferLock is returned when a structured buffer cannot be mapped for writing.
// It is the only failure path of the lighting setup and aborts that frame's lighting.
var ErrBufferLock = errors.New("renderer: structured buffer lock failed")

// StructBuffer is a GPU-visible array of fixed-size elements written by the CPU
// once per frame. Writers acquire a WriteView with Lock and must release it with
// Unlock; Fill wraps both.
type StructBuffer interface {
	// Name returns the debug label of the buffer.
	//
	// Returns:
	//   - string: the buffer label
	Name() string

	// ElementSize returns the size in bytes of one element.
	//
	// Returns:
	//   - int: element stride in bytes
	ElementSize() int

	// ElementCount returns the capacity of the buffer in elements.
	//
	// Returns:
	//   - int: number of elements
	ElementCount() int

	// Lock maps the buffer for writing. Only one WriteView may be open at a time.
	//
	// Returns:
	//   - *WriteView: the write handle, valid until Unlock
	//   - error: an error if the buffer is already locked or cannot be mapped
	Lock() (*WriteView, error)

	// Contents returns a copy of the buffer contents as of the last Unlock.
	//
	// Returns:
	//   - []byte: the buffer bytes
	Contents() []byte
}

// WriteView is a scoped write handle over a locked StructBuffer.
type WriteView struct {
	data        []byte
	elementSize int
	unlock      func() error
	released    bool
}

// NewWriteView creates a write handle over data. Backends call this from Lock;
// unlock runs exactly once, on the first call to Unlock.
//
// Parameters:
//   - data: the mapped bytes
//   - elementSize: element stride in bytes
//   - unlock: release callback that flushes data to the backing store
//
// Returns:
//   - *WriteView: the write handle
func NewWriteView(data []byte, elementSize int, unlock func() error) *WriteView {
	return &WriteView{data: data, elementSize: elementSize, unlock: unlock}
}

// Bytes returns the whole mapped range.
func (w *WriteView) Bytes() []byte {
	return w.data
}

// Len returns the number of elements in the mapped range.
func (w *WriteView) Len() int {
	if w.elementSize == 0 {
		return 0
	}
	return len(w.data) / w.elementSize
}

// Element returns the bytes of element i.
func (w *WriteView) Element(i int) []byte {
	off := i * w.elementSize
	return w.data[off : off+w.elementSize : off+w.elementSize]
}

// Clear zeroes the mapped range.
func (w *WriteView) Clear() {
	clear(w.data)
}

// Unlock releases the view and flushes it to the buffer. Calls after the first
// are no-ops.
//
// Returns:
//   - error: the flush error, if any
func (w *WriteView) Unlock() error {
	if w.released {
		return nil
	}
	w.released = true
	if w.unlock == nil {
		return nil
	}
	return w.unlock()
}

// Fill locks buf, runs fn over the write view and unlocks it on every exit path.
// Lock and flush failures wrap ErrBufferLock; errors from fn are returned as is.
//
// Parameters:
//   - buf: the buffer to fill
//   - fn: the fill function
//
// Returns:
//   - error: nil when the buffer was written and flushed
func Fill(buf StructBuffer, fn func(*WriteView) error) (err error) {
	view, err := buf.Lock()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBufferLock, buf.Name(), err)
	}
	defer func() {
		if uerr := view.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("%w: %s: flush: %v", ErrBufferLock, buf.Name(), uerr)
		}
	}()
	return fn(view)
}

// cpuStructBuffer is a StructBuffer backed by host memory.
type cpuStructBuffer struct {
	mu          sync.Mutex
	name        string
	elementSize int
	data        []byte
	staging     []byte
	locked      bool
}

var _ StructBuffer = &cpuStructBuffer{}

// NewStructBuffer creates a host-memory StructBuffer. It backs the headless
// renderer and tests.
//
// Parameters:
//   - name: debug label
//   - elementSize: element stride in bytes
//   - elementCount: capacity in elements
//
// Returns:
//   - StructBuffer: the buffer, zero-filled
func NewStructBuffer(name string, elementSize, elementCount int) StructBuffer {
	return &cpuStructBuffer{
		name:        name,
		elementSize: elementSize,
		data:        make([]byte, elementSize*elementCount),
		staging:     make([]byte, elementSize*elementCount),
	}
}

func (b *cpuStructBuffer) Name() string {
	return b.name
}

func (b *cpuStructBuffer) ElementSize() int {
	return b.elementSize
}

func (b *cpuStructBuffer) ElementCount() int {
	if b.elementSize == 0 {
		return 0
	}
	return len(b.data) / b.elementSize
}

func (b *cpuStructBuffer) Lock() (*WriteView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locked {
		return nil, errors.New("already locked")
	}
	b.locked = true
	copy(b.staging, b.data)
	return NewWriteView(b.staging, b.elementSize, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		copy(b.data, b.staging)
		b.locked = false
		return nil
	}), nil
}

func (b *cpuStructBuffer) Contents() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
