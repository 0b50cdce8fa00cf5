package light

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/go-gl/mathgl/mgl32"
)

// CascadeSlotCount is the number of light slots reserved at the front of every
// LightList. Slot 0 holds the cascade-casting directional light (or nil); the
// cascade writes one shader record per slice into slots 0..CascadeSlotCount-1,
// so ordinary lights always start at this index.
const CascadeSlotCount = 4

// MaxLightCount is the maximum length of a LightList, reserved slots included.
// It also sizes the light shader record buffer.
const MaxLightCount = 1024

// ErrInvalidLight is returned by Validate for lights whose parameters would
// poison the clustering or shadow math.
var ErrInvalidLight = errors.New("light: invalid light")

// LightList is the ordered, length-capped light array consumed by one view's
// lighting setup. A nil entry is an empty slot. The list is read-only once it
// has been arranged.
type LightList []Light

// CascadeLight returns the light in slot 0, or nil when no light casts
// cascaded shadows this frame.
func (ll LightList) CascadeLight() Light {
	if len(ll) == 0 {
		return nil
	}
	return ll[0]
}

// ActiveCount returns the number of non-nil slots.
func (ll LightList) ActiveCount() int {
	n := 0
	for _, l := range ll {
		if l != nil {
			n++
		}
	}
	return n
}

// ArrangeLights builds the positional LightList from an unordered set of scene
// lights. The first enabled, shadow-casting directional light takes slot 0 when
// shadows are enabled; slots 1..CascadeSlotCount-1 stay empty; every other
// enabled light is appended in input order. Lights past maxCount are dropped
// with a warning.
//
// Parameters:
//   - lights: candidate lights in scene order (nil and disabled entries are skipped)
//   - maxCount: list length cap, clamped to [CascadeSlotCount, MaxLightCount]
//   - shadowsEnabled: whether slot 0 may be filled
//
// Returns:
//   - LightList: the arranged list, always at least CascadeSlotCount long
func ArrangeLights(lights []Light, maxCount int, shadowsEnabled bool) LightList {
	maxCount = min(max(maxCount, CascadeSlotCount), MaxLightCount)

	list := make(LightList, CascadeSlotCount, min(len(lights)+CascadeSlotCount, maxCount))

	var cascade Light
	if shadowsEnabled {
		for _, l := range lights {
			if l != nil && l.Type() == LightTypeDirectional && l.CastsShadows() {
				cascade = l
				list[0] = l
				break
			}
		}
	}

	dropped := 0
	for _, l := range lights {
		if l == nil || l == cascade || l.Type() == LightTypeDisabled {
			continue
		}
		if len(list) >= maxCount {
			dropped++
			continue
		}
		list = append(list, l)
	}

	if dropped > 0 {
		common.Logger().Warn("light list truncated",
			"component", "light",
			"max", maxCount,
			"dropped", dropped,
		)
	}
	return list
}

// Validate rejects lights with parameters the clustering and shadow loops do
// not defend against: non-finite positions or directions, a non-positive far
// range on local lights and spot cones outside (0, 90) degrees.
//
// Parameters:
//   - l: the light to check
//
// Returns:
//   - error: nil when the light is usable, otherwise an error wrapping ErrInvalidLight
func Validate(l Light) error {
	if l == nil {
		return fmt.Errorf("%w: nil light", ErrInvalidLight)
	}
	if !finite3(l.Position()) {
		return fmt.Errorf("%w: non-finite position %v", ErrInvalidLight, l.Position())
	}
	if !finite3(l.Direction()) || l.Direction().LenSqr() == 0 {
		if l.Type() != LightTypePoint {
			return fmt.Errorf("%w: bad direction %v", ErrInvalidLight, l.Direction())
		}
	}
	switch l.Type() {
	case LightTypePoint, LightTypeSpot:
		if !(l.FarRange() > 0) || math.IsInf(float64(l.FarRange()), 0) {
			return fmt.Errorf("%w: %s light range %v", ErrInvalidLight, l.Type(), l.FarRange())
		}
		if l.NearRange() < 0 || l.NearRange() > l.FarRange() {
			return fmt.Errorf("%w: near range %v outside [0, %v]", ErrInvalidLight, l.NearRange(), l.FarRange())
		}
	}
	if l.Type() == LightTypeSpot {
		if a := l.ConeAngle(); !(a > 0) || a >= math.Pi/2 {
			return fmt.Errorf("%w: spot cone half-angle %v rad", ErrInvalidLight, a)
		}
	}
	return nil
}

func finite3(v mgl32.Vec3) bool {
	for _, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
