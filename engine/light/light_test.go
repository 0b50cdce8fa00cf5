package light

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestArrangeLights_SlotLayout(t *testing.T) {
	sun := NewLight(LightTypeDirectional, WithDirection(0, -1, 0), WithCastsShadows(true))
	moon := NewLight(LightTypeDirectional, WithDirection(0, -1, 1), WithCastsShadows(true))
	lamp := NewLight(LightTypePoint, WithPosition(1, 2, 3), WithRange(5))
	off := NewLight(LightTypePoint, WithEnabled(false))
	spot := NewLight(LightTypeSpot, WithCastsShadows(true))

	list := ArrangeLights([]Light{lamp, sun, off, nil, moon, spot}, MaxLightCount, true)

	if len(list) != CascadeSlotCount+3 {
		t.Fatalf("len = %d, want %d", len(list), CascadeSlotCount+3)
	}
	if list.CascadeLight() != sun {
		t.Errorf("slot 0 = %v, want the first shadow-casting directional light", list[0])
	}
	for i := 1; i < CascadeSlotCount; i++ {
		if list[i] != nil {
			t.Errorf("reserved slot %d = %v, want nil", i, list[i])
		}
	}
	want := []Light{lamp, moon, spot}
	for i, l := range want {
		if list[CascadeSlotCount+i] != l {
			t.Errorf("slot %d holds the wrong light", CascadeSlotCount+i)
		}
	}
	if got := list.ActiveCount(); got != 4 {
		t.Errorf("ActiveCount = %d, want 4", got)
	}
}

func TestArrangeLights_ShadowsDisabled(t *testing.T) {
	sun := NewLight(LightTypeDirectional, WithCastsShadows(true))
	list := ArrangeLights([]Light{sun}, MaxLightCount, false)

	if list.CascadeLight() != nil {
		t.Fatal("slot 0 filled while shadows are disabled")
	}
	if len(list) != CascadeSlotCount+1 || list[CascadeSlotCount] != sun {
		t.Errorf("directional light not appended as an ordinary light: %v", list)
	}
}

func TestArrangeLights_Truncates(t *testing.T) {
	lights := make([]Light, 20)
	for i := range lights {
		lights[i] = NewLight(LightTypePoint, WithRange(1))
	}
	list := ArrangeLights(lights, 10, true)
	if len(list) != 10 {
		t.Fatalf("len = %d, want 10", len(list))
	}
	if list[9] != lights[5] {
		t.Error("truncation did not keep input order")
	}

	list = ArrangeLights(lights, 1, true)
	if len(list) != CascadeSlotCount {
		t.Errorf("len = %d, want reserved slots only", len(list))
	}
}

func TestValidate(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name    string
		light   Light
		wantErr bool
	}{
		{"point ok", NewLight(LightTypePoint, WithRange(4)), false},
		{"spot ok", NewLight(LightTypeSpot, WithRange(4), WithConeAngle(30)), false},
		{"directional ok", NewLight(LightTypeDirectional, WithDirection(1, -1, 0)), false},
		{"nil", nil, true},
		{"nan position", NewLight(LightTypePoint, WithPosition(nan, 0, 0)), true},
		{"zero range", NewLight(LightTypePoint, WithRange(0)), true},
		{"near past far", NewLight(LightTypePoint, WithNearRange(5), WithRange(4)), true},
		{"zero direction", NewLight(LightTypeSpot, WithDirection(0, 0, 0)), true},
		{"cone too wide", NewLight(LightTypeSpot, WithConeAngle(90)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.light)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLight) {
				t.Errorf("error %v does not wrap ErrInvalidLight", err)
			}
		})
	}
}

func TestSpotShadowSize(t *testing.T) {
	tests := []struct {
		distance float32
		want     int
	}{
		{0, 256},
		{3.9, 256},
		{4, 128},
		{12, 32},
		{31, 2},
		{32, 1},
		{1000, 1},
	}
	for _, tt := range tests {
		if got := SpotShadowSize(tt.distance); got != tt.want {
			t.Errorf("SpotShadowSize(%v) = %d, want %d", tt.distance, got, tt.want)
		}
	}
}

func TestGPUStructSizes(t *testing.T) {
	if got := (&GPULightShaderRecord{}).Size(); got != 160 {
		t.Errorf("GPULightShaderRecord size = %d, want 160", got)
	}
	if got := (&GPUTileRecord{}).Size(); got != 8 {
		t.Errorf("GPUTileRecord size = %d, want 8", got)
	}
	if got := (&GPUClusterParams{}).Size(); got != 48 {
		t.Errorf("GPUClusterParams size = %d, want 48", got)
	}
}

func TestGPULightShaderRecord_PutOffsets(t *testing.T) {
	rec := GPULightShaderRecord{LightType: uint32(LightTypeSpot), CastsShadows: 1}
	rec.RangeRadius = [4]float32{1, 2, 3, 4}
	rec.SetViewToLight(mgl32.Translate3D(7, 8, 9))
	rec.SetAtlasTransform(0.5, 0.25, 0.125, 0.0625)
	buf := rec.Marshal()

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	if binary.LittleEndian.Uint32(buf[0:]) != uint32(LightTypeSpot) {
		t.Error("light type not at offset 0")
	}
	if f32(20) != 2 {
		t.Errorf("far range at offset 20 = %v, want 2", f32(20))
	}
	// column 3 of the translation holds (7, 8, 9, 1)
	if f32(80+48) != 7 || f32(80+56) != 9 {
		t.Errorf("view_to_light translation = (%v, %v), want (7, 9)", f32(128), f32(136))
	}
	if f32(144) != 0.5 || f32(156) != 0.0625 {
		t.Errorf("atlas transform = (%v .. %v), want (0.5 .. 0.0625)", f32(144), f32(156))
	}
}

func TestToGPULightShaderRecord(t *testing.T) {
	view := mgl32.Translate3D(0, 0, 10)
	spot := NewLight(LightTypeSpot,
		WithPosition(1, 0, 0),
		WithDirection(0, 0, 1),
		WithColor(1, 0.5, 0),
		WithIntensity(2),
		WithRange(8),
		WithConeAngle(30),
	)

	rec := ToGPULightShaderRecord(spot, view)
	if rec.LightType != uint32(LightTypeSpot) {
		t.Errorf("LightType = %d, want %d", rec.LightType, LightTypeSpot)
	}
	if rec.Position != [4]float32{1, 0, 10, 1} {
		t.Errorf("Position = %v, want view-space (1, 0, 10, 1)", rec.Position)
	}
	if rec.Color != [4]float32{2, 1, 0, 1} {
		t.Errorf("Color = %v, want color times intensity", rec.Color)
	}
	if mgl32.Abs(rec.RangeRadius[3]-float32(math.Cos(math.Pi/6))) > 1e-5 {
		t.Errorf("outer cone cos = %v", rec.RangeRadius[3])
	}
	if rec.RangeRadius[2] <= rec.RangeRadius[3] {
		t.Error("inner cone cos must exceed outer cone cos")
	}
	if rec.AtlasTransform != [4]float32{} {
		t.Error("base record must not carry an atlas rectangle")
	}

	if got := ToGPULightShaderRecord(nil, view); got != (GPULightShaderRecord{}) {
		t.Error("nil light must produce a zero record")
	}
}

func TestClusterIndex(t *testing.T) {
	if got := ClusterIndex(3, 2, 1, 16); got != 3+2*16+256 {
		t.Errorf("ClusterIndex = %d", got)
	}
	if got := ClusterCount(ClusterDimXY, ClusterDimZ); got != 16*16*24 {
		t.Errorf("ClusterCount = %d", got)
	}
}
