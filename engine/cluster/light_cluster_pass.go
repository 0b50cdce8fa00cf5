package cluster

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat"
)

// BufferSource hands out named structured buffers. renderer.Renderer satisfies it.
type BufferSource interface {
	StructBuffer(name string, elementSize, elementCount int) (renderer.StructBuffer, error)
}

// Stats summarizes the grid written by the last Setup.
type Stats struct {
	Cells           int     // total grid cells
	OccupiedCells   int     // cells with at least one light
	IndexCount      int     // light index entries written
	MaxOccupancy    int     // largest per-cell count
	MeanOccupancy   float64 // mean count over occupied cells
	StdDevOccupancy float64
}

// viewLight is one listed light moved into view space for the current Setup.
type viewLight struct {
	slot      uint32
	lightType light.LightType
	position  mgl32.Vec3
	radius    float32
	minZ      float32
	maxZ      float32
}

type lightClusterPassImpl struct {
	mu *sync.Mutex

	dimXY               int
	dimZ                int
	maxLightsPerCluster int

	buffers BufferSource

	tileBuffer  renderer.StructBuffer
	indexBuffer renderer.StructBuffer

	// Scratch reused across frames
	viewLights []viewLight
	candidates []int
	sidePlanes [][4]common.Plane
	counts     []float64

	params light.GPUClusterParams
	stats  Stats
}

// LightClusterPass assigns every listed light to the cells of a view-aligned
// dimXY × dimXY × dimZ grid. Each cell gets a contiguous run of light slot
// indices so the lit fragment shader only evaluates lights that can reach it.
//
// Depth slices are geometric between the view near and far planes; tile side
// planes pass through the eye. A cell holds at most maxLightsPerCluster lights
// chosen in light-list order.
type LightClusterPass interface {
	// Setup fills the view's tile and light index buffers.
	//
	// Parameters:
	//   - view: the render view to cluster for
	//   - lights: the arranged light list; nil slots are skipped
	//
	// Returns:
	//   - error: a wrapped renderer.ErrBufferLock when a buffer cannot be written
	Setup(view camera.RenderView, lights light.LightList) error

	// TileBuffer returns the tile record buffer of the last Setup.
	//
	// Returns:
	//   - renderer.StructBuffer: dimXY²·dimZ GPUTileRecords, or nil before the first Setup
	TileBuffer() renderer.StructBuffer

	// LightIndexBuffer returns the light index buffer of the last Setup.
	//
	// Returns:
	//   - renderer.StructBuffer: u32 slot indices, or nil before the first Setup
	LightIndexBuffer() renderer.StructBuffer

	// Params returns the shader uniform describing the grid of the last Setup.
	//
	// Returns:
	//   - light.GPUClusterParams: grid dimensions and depth mapping
	Params() light.GPUClusterParams

	// Stats returns occupancy figures of the last Setup.
	//
	// Returns:
	//   - Stats: the statistics
	Stats() Stats

	// Dimensions returns the grid size.
	//
	// Returns:
	//   - dimXY: tiles along each screen axis
	//   - dimZ: depth slices
	Dimensions() (dimXY, dimZ int)
}

var _ LightClusterPass = &lightClusterPassImpl{}

// NewLightClusterPass creates a LightClusterPass with the default grid size.
// A buffer source must be supplied with WithBufferSource unless buffers are
// injected with WithBuffers.
//
// Parameters:
//   - options: variadic list of LightClusterPassBuilderOption functions
//
// Returns:
//   - LightClusterPass: the pass
func NewLightClusterPass(options ...LightClusterPassBuilderOption) LightClusterPass {
	p := &lightClusterPassImpl{
		mu:                  &sync.Mutex{},
		dimXY:               light.ClusterDimXY,
		dimZ:                light.ClusterDimZ,
		maxLightsPerCluster: light.MaxLightsPerCluster,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// SliceDepth returns the view depth of slice boundary z of a dimZ-slice grid
// between near and far: near·(far/near)^(z/dimZ). Boundaries 0 and dimZ return
// near and far exactly.
//
// Parameters:
//   - near: view near depth (> 0)
//   - far: view far depth
//   - z: boundary index in [0, dimZ]
//   - dimZ: slice count
//
// Returns:
//   - float32: the boundary depth
func SliceDepth(near, far float32, z, dimZ int) float32 {
	switch {
	case z <= 0:
		return near
	case z >= dimZ:
		return far
	}
	return near * float32(math.Pow(float64(far/near), float64(z)/float64(dimZ)))
}

func (p *lightClusterPassImpl) Setup(view camera.RenderView, lights light.LightList) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.acquireBuffers(view.Index); err != nil {
		return err
	}

	near, far := view.Near(), view.Far()
	p.gatherViewLights(view.View, lights)
	p.buildSidePlanes(view.ViewFrustum)

	cells := light.ClusterCount(p.dimXY, p.dimZ)
	if cap(p.counts) < cells {
		p.counts = make([]float64, cells)
	}
	p.counts = p.counts[:cells]

	err := renderer.Fill(p.tileBuffer, func(tiles *renderer.WriteView) error {
		return renderer.Fill(p.indexBuffer, func(indices *renderer.WriteView) error {
			return p.assign(tiles, indices, near, far)
		})
	})
	if err != nil {
		return fmt.Errorf("light cluster setup (view %d): %w", view.Index, err)
	}

	p.params = light.GPUClusterParams{
		DimXY:               uint32(p.dimXY),
		DimZ:                uint32(p.dimZ),
		MaxLightsPerCluster: uint32(p.maxLightsPerCluster),
		LightCount:          uint32(len(lights)),
		NearZ:               near,
		FarZ:                far,
		LogFarOverNear:      float32(math.Log(float64(far / near))),
	}
	p.updateStats()

	common.Logger().Debug("light clusters built",
		"component", "cluster",
		"view", view.Index,
		"lights", len(p.viewLights),
		"indices", p.stats.IndexCount,
	)
	return nil
}

func (p *lightClusterPassImpl) TileBuffer() renderer.StructBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tileBuffer
}

func (p *lightClusterPassImpl) LightIndexBuffer() renderer.StructBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexBuffer
}

func (p *lightClusterPassImpl) Params() light.GPUClusterParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

func (p *lightClusterPassImpl) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *lightClusterPassImpl) Dimensions() (int, int) {
	return p.dimXY, p.dimZ
}

// acquireBuffers fetches the view's buffers from the buffer source. Injected
// buffers are kept as they are. Caller must hold the mutex.
func (p *lightClusterPassImpl) acquireBuffers(viewIndex int) error {
	if p.buffers == nil {
		if p.tileBuffer == nil || p.indexBuffer == nil {
			return fmt.Errorf("light cluster setup (view %d): no buffer source", viewIndex)
		}
		return nil
	}
	cells := light.ClusterCount(p.dimXY, p.dimZ)
	tileSize := (&light.GPUTileRecord{}).Size()

	tiles, err := p.buffers.StructBuffer(fmt.Sprintf("lights/tiles/%d", viewIndex), tileSize, cells)
	if err != nil {
		return fmt.Errorf("tile buffer: %w", err)
	}
	indices, err := p.buffers.StructBuffer(fmt.Sprintf("lights/indices/%d", viewIndex), light.LightIndexSize, cells*p.maxLightsPerCluster)
	if err != nil {
		return fmt.Errorf("light index buffer: %w", err)
	}
	p.tileBuffer, p.indexBuffer = tiles, indices
	return nil
}

// gatherViewLights moves every listed, enabled light into view space and
// computes its depth extent. Caller must hold the mutex.
func (p *lightClusterPassImpl) gatherViewLights(view mgl32.Mat4, lights light.LightList) {
	p.viewLights = p.viewLights[:0]
	for slot, l := range lights {
		if l == nil {
			continue
		}
		t := l.Type()
		if t == light.LightTypeDisabled {
			continue
		}
		vl := viewLight{
			slot:      uint32(slot),
			lightType: t,
			position:  common.TransformPoint(view, l.Position()),
			radius:    l.FarRange(),
		}
		switch t {
		case light.LightTypePoint:
			vl.minZ = vl.position.Z() - vl.radius
			vl.maxZ = vl.position.Z() + vl.radius
		case light.LightTypeSpot:
			vl.minZ, vl.maxZ = spotDepthRange(vl.position, common.TransformDirection(view, l.Direction()), vl.radius, l.ConeAngle())
		}
		p.viewLights = append(p.viewLights, vl)
	}
}

// spotDepthRange returns the view depth extent of a spot light's bounding
// points: the apex and the four corners of the square around the cone's far
// disc.
func spotDepthRange(apex, dir mgl32.Vec3, farRange, halfAngle float32) (minZ, maxZ float32) {
	if dir.LenSqr() == 0 {
		return apex.Z() - farRange, apex.Z() + farRange
	}
	dir = dir.Normalize()
	axisX, axisY := common.OrthonormalBasis(dir, common.WorldUp)
	half := farRange * float32(math.Tan(float64(halfAngle)))
	center := apex.Add(dir.Mul(farRange))

	minZ, maxZ = apex.Z(), apex.Z()
	for _, sx := range [2]float32{-1, 1} {
		for _, sy := range [2]float32{-1, 1} {
			z := center.Add(axisX.Mul(sx * half)).Add(axisY.Mul(sy * half)).Z()
			minZ = min(minZ, z)
			maxZ = max(maxZ, z)
		}
	}
	return minZ, maxZ
}

// buildSidePlanes derives the four side planes of every screen tile by bilinear
// subdivision of the frustum's near face. Caller must hold the mutex.
func (p *lightClusterPassImpl) buildSidePlanes(f common.Frustum) {
	n := p.dimXY * p.dimXY
	if cap(p.sidePlanes) < n {
		p.sidePlanes = make([][4]common.Plane, n)
	}
	p.sidePlanes = p.sidePlanes[:n]

	lb, rb, rt, lt := f.Corners[0], f.Corners[1], f.Corners[2], f.Corners[3]
	at := func(u, v float32) mgl32.Vec3 {
		bottom := common.LerpVec3(lb, rb, u)
		top := common.LerpVec3(lt, rt, u)
		return common.LerpVec3(bottom, top, v)
	}

	d := float32(p.dimXY)
	var origin mgl32.Vec3
	for y := range p.dimXY {
		v0, v1 := float32(y)/d, float32(y+1)/d
		for x := range p.dimXY {
			u0, u1 := float32(x)/d, float32(x+1)/d
			c00, c10 := at(u0, v0), at(u1, v0)
			c11, c01 := at(u1, v1), at(u0, v1)
			center := at((u0+u1)/2, (v0+v1)/2)

			edges := [4][2]mgl32.Vec3{
				{c00, c01}, // left
				{c10, c11}, // right
				{c00, c10}, // bottom
				{c01, c11}, // top
			}
			var planes [4]common.Plane
			for i, e := range edges {
				pl := common.NewPlaneFromPoints(origin, e[0], e[1])
				if pl.SignedDistance(center) < 0 {
					pl = pl.Flipped()
				}
				planes[i] = pl
			}
			p.sidePlanes[x+y*p.dimXY] = planes
		}
	}
}

// assign writes every cell's record and light indices. Caller must hold the mutex.
func (p *lightClusterPassImpl) assign(tiles, indices *renderer.WriteView, near, far float32) error {
	tileCount := p.dimXY * p.dimXY
	if tiles.Len() < tileCount*p.dimZ {
		return fmt.Errorf("tile buffer holds %d records, need %d", tiles.Len(), tileCount*p.dimZ)
	}
	maxIndices := indices.Len()

	var offset uint32
	var cell common.Frustum
	cell.PlaneCount = 6

	for z := range p.dimZ {
		sliceNear := SliceDepth(near, far, z, p.dimZ)
		sliceFar := SliceDepth(near, far, z+1, p.dimZ)

		p.candidates = p.candidates[:0]
		for i, vl := range p.viewLights {
			if vl.lightType == light.LightTypeDirectional || (vl.maxZ >= sliceNear && vl.minZ <= sliceFar) {
				p.candidates = append(p.candidates, i)
			}
		}

		base := z * tileCount
		if len(p.candidates) == 0 {
			for t := range tileCount {
				rec := light.GPUTileRecord{LightOffset: offset}
				rec.Put(tiles.Element(base + t))
				p.counts[base+t] = 0
			}
			continue
		}

		cell.Planes[common.FrustumNear] = common.Plane{Normal: mgl32.Vec3{0, 0, 1}, Distance: -sliceNear}
		cell.Planes[common.FrustumFar] = common.Plane{Normal: mgl32.Vec3{0, 0, -1}, Distance: sliceFar}

		for t := range tileCount {
			side := p.sidePlanes[t]
			copy(cell.Planes[:4], side[:])

			var count uint32
			for _, ci := range p.candidates {
				if int(count) >= p.maxLightsPerCluster || int(offset+count) >= maxIndices {
					break
				}
				vl := p.viewLights[ci]
				if vl.lightType != light.LightTypeDirectional && cell.InsideSphere(vl.position, vl.radius) == common.Outside {
					continue
				}
				binary.LittleEndian.PutUint32(indices.Element(int(offset+count)), vl.slot)
				count++
			}

			rec := light.GPUTileRecord{LightOffset: offset, LightCount: count}
			rec.Put(tiles.Element(base + t))
			p.counts[base+t] = float64(count)
			offset += count
		}
	}
	return nil
}

// updateStats recomputes occupancy figures from the per-cell counts.
// Caller must hold the mutex.
func (p *lightClusterPassImpl) updateStats() {
	s := Stats{Cells: len(p.counts)}
	occupied := make([]float64, 0, len(p.counts))
	for _, c := range p.counts {
		if c == 0 {
			continue
		}
		occupied = append(occupied, c)
		s.IndexCount += int(c)
		s.MaxOccupancy = max(s.MaxOccupancy, int(c))
	}
	s.OccupiedCells = len(occupied)
	if len(occupied) > 0 {
		s.MeanOccupancy, s.StdDevOccupancy = stat.MeanStdDev(occupied, nil)
	}
	p.stats = s
}
