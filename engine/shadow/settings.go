package shadow

import (
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
)

// Settings are the shadow parameters of one quality tier.
type Settings struct {
	Enabled            bool
	Resolution         int     // texels per side of a cascade slice and of the spot region
	CascadingSlices    int     // 0..light.MaxCascadingSlices
	CascadingLambda    float32 // split distribution exponent; 1 is uniform
	FarZ               float32 // depth covered by the cascades
	Bias               float32
	QuantizeProjection bool
	CacheMargin        float32 // scale of cached slice volumes; 1 caches them exactly
}

// DefaultSettings returns the high tier defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:            true,
		Resolution:         light.ShadowMapResolution,
		CascadingSlices:    light.DefaultCascadingSlices,
		CascadingLambda:    light.DefaultCascadingLambda,
		FarZ:               light.DefaultShadowFar,
		Bias:               light.DefaultShadowBias,
		QuantizeProjection: true,
		CacheMargin:        light.DefaultCacheMargin,
	}
}

// normalized clamps settings into the range the scheduler supports.
func (s Settings) normalized() Settings {
	s.CascadingSlices = min(max(s.CascadingSlices, 0), light.MaxCascadingSlices)
	if s.Resolution <= 0 {
		s.Enabled = false
	}
	if s.CascadingLambda <= 0 {
		s.CascadingLambda = 1
	}
	if s.CacheMargin <= 0 {
		s.CacheMargin = 1
	}
	return s
}
