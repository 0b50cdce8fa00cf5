package shadow

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/gogpu/gg/text/msdf"
)

// AtlasRect is a region of the spot-light part of the shadow atlas, in texels
// relative to that region's origin.
type AtlasRect = common.Rect

type atlasPackerImpl struct {
	mu        *sync.Mutex
	width     int
	height    int
	allocator *msdf.ShelfAllocator
	rects     []AtlasRect
}

// AtlasPacker hands out non-overlapping rectangles of a fixed-size region for
// one frame. Reset starts a new frame.
type AtlasPacker interface {
	// Reset forgets every allocation.
	Reset()

	// Insert allocates a w × h rectangle.
	//
	// Parameters:
	//   - w: width in texels
	//   - h: height in texels
	//
	// Returns:
	//   - AtlasRect: the allocated rectangle
	//   - bool: false when the region has no room
	Insert(w, h int) (AtlasRect, bool)

	// Utilization returns the allocated fraction of the region in [0, 1].
	//
	// Returns:
	//   - float64: the used area ratio
	Utilization() float64

	// Size returns the region dimensions.
	//
	// Returns:
	//   - width, height: the region size in texels
	Size() (width, height int)

	// Allocations returns the rectangles handed out since the last Reset.
	//
	// Returns:
	//   - []AtlasRect: a copy of the allocations
	Allocations() []AtlasRect
}

var _ AtlasPacker = &atlasPackerImpl{}

// NewAtlasPacker creates a shelf packer over a width × height region.
//
// Parameters:
//   - width: region width in texels
//   - height: region height in texels
//
// Returns:
//   - AtlasPacker: the packer
func NewAtlasPacker(width, height int) AtlasPacker {
	return &atlasPackerImpl{
		mu:        &sync.Mutex{},
		width:     width,
		height:    height,
		allocator: msdf.NewShelfAllocator(width, height, 0),
	}
}

func (p *atlasPackerImpl) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocator.Reset()
	p.rects = p.rects[:0]
}

func (p *atlasPackerImpl) Insert(w, h int) (AtlasRect, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A fresh shelf only checks height, so oversized requests are rejected here.
	if w <= 0 || h <= 0 || w > p.width || h > p.height {
		return AtlasRect{}, false
	}
	x, y, ok := p.allocator.Allocate(w, h)
	if !ok {
		return AtlasRect{}, false
	}
	r := AtlasRect{X: x, Y: y, Width: w, Height: h}
	p.rects = append(p.rects, r)
	return r, true
}

func (p *atlasPackerImpl) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocator.Utilization()
}

func (p *atlasPackerImpl) Size() (int, int) {
	return p.width, p.height
}

func (p *atlasPackerImpl) Allocations() []AtlasRect {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AtlasRect, len(p.rects))
	copy(out, p.rects)
	return out
}
