package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPULightShaderRecordSource is the canonical WGSL definition of the LightRecord struct.
// Matches GPULightShaderRecord layout exactly (160 bytes, std430 aligned).
//
//go:embed assets/light_record.wgsl
var GPULightShaderRecordSource string

// GPULightShaderRecord is the GPU-aligned unified per-light record, indexed
// directly by light slot. Matches the WGSL LightRecord struct layout exactly
// (see GPULightShaderRecordSource).
// Size: 160 bytes (std430 / WGSL aligned).
//
// Layout:
//
//	u32         light_type      ( 4 bytes, offset   0)
//	u32         casts_shadows   ( 4 bytes, offset   4)
//	u32 × 2     padding         ( 8 bytes, offset   8)
//	vec4<f32>   range_radius    (16 bytes, offset  16)
//	vec4<f32>   position        (16 bytes, offset  32)
//	vec4<f32>   direction       (16 bytes, offset  48)
//	vec4<f32>   color           (16 bytes, offset  64)
//	mat4x4<f32> view_to_light   (64 bytes, offset  80)
//	vec4<f32>   atlas_transform (16 bytes, offset 144)
type GPULightShaderRecord struct {
	LightType      uint32      // LightType value; 0 disables the slot
	CastsShadows   uint32      // 1 = casts shadows, 0 = does not
	_pad           [2]uint32   // padding to 16-byte alignment
	RangeRadius    [4]float32  // near range, far range, cos(inner half-angle), cos(outer half-angle)
	Position       [4]float32  // view-space position, w = 1
	Direction      [4]float32  // view-space travel direction, w = 0
	Color          [4]float32  // RGB color premultiplied by intensity, w = 1
	ViewToLight    [16]float32 // view space to shadow clip space, column-major
	AtlasTransform [4]float32  // atlas UV offset (xy) and scale (zw); zero when unshadowed
}

// Size returns the size of the GPULightShaderRecord struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (160)
func (r *GPULightShaderRecord) Size() int {
	return int(unsafe.Sizeof(*r))
}

// Put serializes the record into dst, which must hold at least Size() bytes.
//
// Parameters:
//   - dst: destination slice, typically one element of a mapped structured buffer
func (r *GPULightShaderRecord) Put(dst []byte) {
	_ = dst[159]
	binary.LittleEndian.PutUint32(dst[0:4], r.LightType)
	binary.LittleEndian.PutUint32(dst[4:8], r.CastsShadows)
	binary.LittleEndian.PutUint32(dst[8:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	putFloats(dst[16:32], r.RangeRadius[:])
	putFloats(dst[32:48], r.Position[:])
	putFloats(dst[48:64], r.Direction[:])
	putFloats(dst[64:80], r.Color[:])
	putFloats(dst[80:144], r.ViewToLight[:])
	putFloats(dst[144:160], r.AtlasTransform[:])
}

// Marshal serializes the GPULightShaderRecord struct into a byte buffer suitable
// for GPU upload.
//
// Returns:
//   - []byte: 160-byte buffer ready for GPU upload
func (r *GPULightShaderRecord) Marshal() []byte {
	buf := make([]byte, 160)
	r.Put(buf)
	return buf
}

// SetViewToLight stores a view-to-shadow-clip matrix.
//
// Parameters:
//   - m: the column-major transform
func (r *GPULightShaderRecord) SetViewToLight(m mgl32.Mat4) {
	r.ViewToLight = m
}

// SetAtlasTransform stores the light's atlas rectangle in UV units.
//
// Parameters:
//   - x, y: UV offset of the region's top-left corner
//   - w, h: UV size of the region
func (r *GPULightShaderRecord) SetAtlasTransform(x, y, w, h float32) {
	r.AtlasTransform = [4]float32{x, y, w, h}
}

// GPUTileRecordSource is the canonical WGSL definition of the TileRecord struct.
// Matches GPUTileRecord layout exactly (8 bytes).
//
//go:embed assets/tile_record.wgsl
var GPUTileRecordSource string

// GPUTileRecord addresses one cluster cell's contiguous run in the light index buffer.
// Matches the WGSL TileRecord struct layout exactly (see GPUTileRecordSource).
// Size: 8 bytes.
type GPUTileRecord struct {
	LightOffset uint32 // first entry in the light index buffer
	LightCount  uint32 // number of entries, at most the cluster cap
}

// Size returns the size of the GPUTileRecord struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (t *GPUTileRecord) Size() int {
	return int(unsafe.Sizeof(*t))
}

// Put serializes the record into dst, which must hold at least 8 bytes.
//
// Parameters:
//   - dst: destination slice
func (t *GPUTileRecord) Put(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], t.LightOffset)
	binary.LittleEndian.PutUint32(dst[4:8], t.LightCount)
}

// ReadGPUTileRecord decodes a tile record from src.
//
// Parameters:
//   - src: at least 8 bytes in GPUTileRecord layout
//
// Returns:
//   - GPUTileRecord: the decoded record
func ReadGPUTileRecord(src []byte) GPUTileRecord {
	return GPUTileRecord{
		LightOffset: binary.LittleEndian.Uint32(src[0:4]),
		LightCount:  binary.LittleEndian.Uint32(src[4:8]),
	}
}

// LightIndexSize is the size in bytes of one light index buffer entry (u32).
const LightIndexSize = 4

// GPUClusterParamsSource is the canonical WGSL definition of the ClusterParams
// struct and the cluster_index lookup used by the lit fragment shader.
// Matches GPUClusterParams layout exactly (48 bytes).
//
//go:embed assets/cluster_params.wgsl
var GPUClusterParamsSource string

// GPUClusterParams is the per-view uniform that lets the lit fragment shader
// find its cluster cell and sample the shadow atlas.
// Matches the WGSL ClusterParams struct layout exactly (see GPUClusterParamsSource).
// Size: 48 bytes.
//
// Layout:
//
//	u32       dim_xy                 ( 4 bytes, offset  0)
//	u32       dim_z                  ( 4 bytes, offset  4)
//	u32       max_lights_per_cluster ( 4 bytes, offset  8)
//	u32       light_count            ( 4 bytes, offset 12)
//	f32       near_z                 ( 4 bytes, offset 16)
//	f32       far_z                  ( 4 bytes, offset 20)
//	f32       log_far_over_near      ( 4 bytes, offset 24)
//	u32       cascade_count          ( 4 bytes, offset 28)
//	vec2<f32> atlas_size             ( 8 bytes, offset 32)
//	f32       shadow_bias            ( 4 bytes, offset 40)
//	u32       _pad                   ( 4 bytes, offset 44)
type GPUClusterParams struct {
	DimXY               uint32
	DimZ                uint32
	MaxLightsPerCluster uint32
	LightCount          uint32
	NearZ               float32
	FarZ                float32
	LogFarOverNear      float32
	CascadeCount        uint32
	AtlasSize           [2]float32
	ShadowBias          float32
	_pad                uint32
}

// Size returns the size of the GPUClusterParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (p *GPUClusterParams) Size() int {
	return int(unsafe.Sizeof(*p))
}

// Marshal serializes GPUClusterParams into a 48-byte little-endian buffer
// suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (p *GPUClusterParams) Marshal() []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint32(buf[0:4], p.DimXY)
	binary.LittleEndian.PutUint32(buf[4:8], p.DimZ)
	binary.LittleEndian.PutUint32(buf[8:12], p.MaxLightsPerCluster)
	binary.LittleEndian.PutUint32(buf[12:16], p.LightCount)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(p.NearZ))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(p.FarZ))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(p.LogFarOverNear))
	binary.LittleEndian.PutUint32(buf[28:32], p.CascadeCount)
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(p.AtlasSize[0]))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(p.AtlasSize[1]))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(p.ShadowBias))
	binary.LittleEndian.PutUint32(buf[44:48], 0) // padding
	return buf
}

// ToGPULightShaderRecord converts a light into its base shader record: type,
// ranges, view-space position and direction and color. The shadow transform and
// atlas rectangle are left zero. A nil light yields a disabled record.
//
// Parameters:
//   - l: the light to convert, may be nil
//   - view: the world-to-view matrix of the view being set up
//
// Returns:
//   - GPULightShaderRecord: the GPU-aligned representation
func ToGPULightShaderRecord(l Light, view mgl32.Mat4) GPULightShaderRecord {
	if l == nil || l.Type() == LightTypeDisabled {
		return GPULightShaderRecord{}
	}
	shadowVal := uint32(0)
	if l.CastsShadows() {
		shadowVal = 1
	}
	pos := common.TransformPoint(view, l.Position())
	dir := common.TransformDirection(view, l.Direction())
	if dir.LenSqr() > 0 {
		dir = dir.Normalize()
	}
	return GPULightShaderRecord{
		LightType:    uint32(l.Type()),
		CastsShadows: shadowVal,
		RangeRadius:  [4]float32{l.NearRange(), l.FarRange(), l.InnerConeCos(), l.OuterConeCos()},
		Position:     pos.Vec4(1),
		Direction:    dir.Vec4(0),
		Color:        l.Color().Vec4(1),
	}
}

// putFloats writes vals as consecutive little-endian float32s.
func putFloats(dst []byte, vals []float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(dst[i*4:i*4+4], math.Float32bits(v))
	}
}
