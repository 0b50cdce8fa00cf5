package light

// ShadowMapResolution is the default width and height in texels of one shadow
// region: a cascade slice or the whole spot light area of the atlas.
const ShadowMapResolution = 2048

// MaxCascadingSlices caps the number of cascade slices. Each slice writes its own
// shader record into the reserved slots, so this can never exceed CascadeSlotCount.
const MaxCascadingSlices = CascadeSlotCount

// DefaultCascadingSlices is the default number of cascade slices.
const DefaultCascadingSlices = 4

// DefaultCascadingLambda is the default exponent applied to the normalized slice
// index when splitting the cascade depth range. 1 gives uniform splits; larger
// values concentrate slices near the camera.
const DefaultCascadingLambda float32 = 2.0

// DefaultShadowFar is the default far distance covered by the cascades.
const DefaultShadowFar float32 = 200.0

// DefaultShadowBias is the constant depth bias applied to shadow comparisons
// to reduce shadow acne artifacts.
const DefaultShadowBias float32 = 0.001

// DefaultCacheMargin is the scale applied to a cascade's sub-frustum before it
// is cached for the next frame's containment test. Values above 1 keep a slice
// cached across small camera motion.
const DefaultCacheMargin float32 = 1.0

// SpotShadowBaseSize is the texel size of a spot shadow at distance zero. The
// size halves every SpotShadowFalloffDistance world units from the eye.
const SpotShadowBaseSize = 256

// SpotShadowFalloffDistance is the eye distance over which a spot shadow's size halves.
const SpotShadowFalloffDistance float32 = 4.0

// SpotShadowMaxShift caps how many times a spot shadow's size can halve.
const SpotShadowMaxShift = 8

// SpotShadowNear is the near plane of a spot light's perspective shadow projection.
const SpotShadowNear float32 = 0.1

// QuantizeExtentStep is the world-space step that quantized cascade extents are
// rounded up to.
const QuantizeExtentStep float32 = 8.0

// SpotShadowSize returns the square atlas size requested by a spot light at the
// given distance from the eye: SpotShadowBaseSize halved once per
// SpotShadowFalloffDistance, at most SpotShadowMaxShift times, never below 1.
//
// Parameters:
//   - distance: world-space distance between the eye and the light
//
// Returns:
//   - int: the requested width and height in texels
func SpotShadowSize(distance float32) int {
	shift := 0
	if distance > 0 {
		shift = min(int(distance/SpotShadowFalloffDistance), SpotShadowMaxShift)
	}
	return max(SpotShadowBaseSize>>shift, 1)
}
