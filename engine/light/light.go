package light

import (
	"math"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/go-gl/mathgl/mgl32"
)

// LightType identifies the kind of light source. The numeric values are
// written into the light shader record and must stay stable.
type LightType uint32

const (
	// LightTypeDisabled marks an inactive light or an empty record slot.
	// Shaders skip records of this type.
	LightTypeDisabled LightType = iota

	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun or moon. Affects all fragments
	// uniformly with no distance attenuation.
	LightTypeDirectional

	// LightTypePoint represents a light that emits in all directions from a position.
	// Used for bare bulbs, lanterns, candle flames, and particle-emitted lights.
	// Attenuates with distance up to a configurable range.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	// Used for flashlights, desk lamps, and wall sconces. Attenuates with both
	// distance and angle from the cone axis.
	LightTypeSpot
)

// String returns the lower-case name of the light type.
func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	default:
		return "disabled"
	}
}

// coneFalloff is the angular width of the soft edge of a spot cone.
const coneFalloff = 4.0 * math.Pi / 180.0

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	lightType    LightType
	position     mgl32.Vec3
	direction    mgl32.Vec3
	color        mgl32.Vec3
	intensity    float32
	nearRange    float32
	farRange     float32
	coneAngle    float32 // half-angle in radians
	enabled      bool
	castsShadows bool
	dynamic      bool
}

// Light defines the interface for a light source in the scene.
//
// Lights are owned by the scene and are read-only to the lighting core for the
// duration of a frame. All light types share this interface; type-specific
// properties (e.g. the cone angle for spot lights) are ignored when not applicable.
//
// Direction is the direction light travels: a sun overhead points along -Y.
type Light interface {
	// Type returns the kind of light source. Disabled lights report LightTypeDisabled.
	//
	// Returns:
	//   - LightType: the light type
	Type() LightType

	// Position returns the world-space position of the light.
	// Meaningless for directional lights.
	//
	// Returns:
	//   - mgl32.Vec3: position as (x, y, z)
	Position() mgl32.Vec3

	// Direction returns the normalized direction the light travels.
	// Meaningless for point lights.
	//
	// Returns:
	//   - mgl32.Vec3: normalized direction
	Direction() mgl32.Vec3

	// Transform returns the light's world transform. The Z axis is the light
	// direction and the translation is the light position.
	//
	// Returns:
	//   - mgl32.Mat4: the world transform
	Transform() mgl32.Mat4

	// Color returns the RGB color of the light premultiplied by its intensity.
	//
	// Returns:
	//   - mgl32.Vec3: color as (r, g, b)
	Color() mgl32.Vec3

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// NearRange returns the distance at which attenuation starts.
	//
	// Returns:
	//   - float32: the near range
	NearRange() float32

	// FarRange returns the maximum attenuation distance for point and spot lights.
	// Beyond this distance the light contributes zero energy.
	//
	// Returns:
	//   - float32: the far range
	FarRange() float32

	// ConeAngle returns the spot cone half-angle in radians.
	//
	// Returns:
	//   - float32: half-angle in radians
	ConeAngle() float32

	// InnerConeCos returns the cosine of the angle where the spot falloff starts.
	//
	// Returns:
	//   - float32: cos(half-angle minus the soft edge)
	InnerConeCos() float32

	// OuterConeCos returns the cosine of the spot cone half-angle.
	//
	// Returns:
	//   - float32: cos(half-angle)
	OuterConeCos() float32

	// Enabled returns whether this light is active for rendering.
	//
	// Returns:
	//   - bool: true if the light is enabled
	Enabled() bool

	// CastsShadows returns whether this light is eligible for a shadow map.
	// Only directional (cascaded) and spot (atlas) lights render shadows.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// Dynamic returns whether the light moves or animates. Dynamic lights mark
	// the cascades they overlap as holding dynamic content.
	//
	// Returns:
	//   - bool: true if dynamic
	Dynamic() bool

	// Bounds returns the world-space sphere of influence of the light.
	// Directional lights return a zero sphere.
	//
	// Returns:
	//   - common.Sphere: the influence sphere
	Bounds() common.Sphere

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - x, y, z: position components
	SetPosition(x, y, z float32)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - x, y, z: direction components (will be normalized)
	SetDirection(x, y, z float32)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - r, g, b: color components
	SetColor(r, g, b float32)

	// SetIntensity sets the scalar intensity multiplier.
	//
	// Parameters:
	//   - intensity: the intensity value
	SetIntensity(intensity float32)

	// SetRange sets the near and far attenuation distances.
	//
	// Parameters:
	//   - near: distance where attenuation starts
	//   - far: distance where the light contributes nothing
	SetRange(near, far float32)

	// SetConeAngle sets the spot cone half-angle.
	//
	// Parameters:
	//   - deg: half-angle in degrees
	SetConeAngle(deg float32)

	// SetEnabled enables or disables the light for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light is eligible for shadow mapping.
	//
	// Parameters:
	//   - castsShadows: true to enable shadow casting
	SetCastsShadows(castsShadows bool)

	// SetDynamic marks the light as moving or animated.
	//
	// Parameters:
	//   - dynamic: true if dynamic
	SetDynamic(dynamic bool)
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - lightType: the kind of light to create
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		lightType:    lightType,
		position:     mgl32.Vec3{0, 0, 0},
		direction:    mgl32.Vec3{0, -1, 0},
		color:        mgl32.Vec3{1, 1, 1},
		intensity:    1.0,
		nearRange:    0.0,
		farRange:     10.0,
		coneAngle:    float32(35.0 * math.Pi / 180.0),
		enabled:      true,
		castsShadows: false,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Type() LightType {
	if !l.enabled {
		return LightTypeDisabled
	}
	return l.lightType
}

func (l *lightImpl) Position() mgl32.Vec3 {
	return l.position
}

func (l *lightImpl) Direction() mgl32.Vec3 {
	return l.direction
}

func (l *lightImpl) Transform() mgl32.Mat4 {
	axisX, axisY := common.OrthonormalBasis(l.direction, common.WorldUp)
	return mgl32.Mat4FromCols(
		axisX.Vec4(0),
		axisY.Vec4(0),
		l.direction.Vec4(0),
		l.position.Vec4(1),
	)
}

func (l *lightImpl) Color() mgl32.Vec3 {
	return l.color.Mul(l.intensity)
}

func (l *lightImpl) Intensity() float32 {
	return l.intensity
}

func (l *lightImpl) NearRange() float32 {
	return l.nearRange
}

func (l *lightImpl) FarRange() float32 {
	return l.farRange
}

func (l *lightImpl) ConeAngle() float32 {
	return l.coneAngle
}

func (l *lightImpl) InnerConeCos() float32 {
	return float32(math.Cos(float64(max(l.coneAngle-coneFalloff, 0))))
}

func (l *lightImpl) OuterConeCos() float32 {
	return float32(math.Cos(float64(l.coneAngle)))
}

func (l *lightImpl) Enabled() bool {
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	return l.castsShadows
}

func (l *lightImpl) Dynamic() bool {
	return l.dynamic
}

func (l *lightImpl) Bounds() common.Sphere {
	if l.lightType == LightTypeDirectional {
		return common.Sphere{}
	}
	return common.Sphere{Center: l.position, Radius: l.farRange}
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.position = mgl32.Vec3{x, y, z}
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.direction = normalize3(x, y, z)
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.color = mgl32.Vec3{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.intensity = intensity
}

func (l *lightImpl) SetRange(near, far float32) {
	l.nearRange = near
	l.farRange = far
}

func (l *lightImpl) SetConeAngle(deg float32) {
	l.coneAngle = degToRad(deg)
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.castsShadows = castsShadows
}

func (l *lightImpl) SetDynamic(dynamic bool) {
	l.dynamic = dynamic
}
