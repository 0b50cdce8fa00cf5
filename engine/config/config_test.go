package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cluster.DimXY != 16 || cfg.Cluster.DimZ != 24 || cfg.Cluster.MaxLightsPerCluster != 16 {
		t.Errorf("cluster = %+v, want 16x16x24 with 16 lights per cluster", cfg.Cluster)
	}
	if cfg.Shadows.Quality != QualityHigh {
		t.Errorf("quality = %q, want high", cfg.Shadows.Quality)
	}
	s := cfg.Derived.Shadow
	if !s.Enabled || s.Resolution != 2048 || s.CascadingSlices != 4 {
		t.Errorf("derived shadow settings = %+v, want enabled high tier", s)
	}
	if cfg.Derived.ProfilerInterval != time.Second {
		t.Errorf("profiler interval = %v, want 1s", cfg.Derived.ProfilerInterval)
	}
}

func TestParse_OverlayKeepsUntouchedKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
shadows:
  quality: low
  tiers:
    low:
      resolution: 256
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	low := cfg.Shadows.Tiers.Low
	if low.Resolution != 256 {
		t.Errorf("low.resolution = %d, want 256", low.Resolution)
	}
	if low.CascadingSlices != 2 || low.FarZ != 60 {
		t.Errorf("low tier lost its defaults: %+v", low)
	}
	if cfg.Derived.Shadow.Resolution != 256 {
		t.Errorf("derived resolution = %d, want 256", cfg.Derived.Shadow.Resolution)
	}
	if cfg.Cluster.DimXY != 16 {
		t.Error("unrelated section changed by the overlay")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"near not positive", "view: {near: 0}", "view.near"},
		{"far before near", "view: {near: 10, far: 5}", "view.far"},
		{"zero slices dim", "cluster: {dim_z: 0}", "cluster.dim_z"},
		{"unknown quality", "shadows: {quality: extreme}", "shadows.quality"},
		{"too many cascades", "shadows: {tiers: {ultra: {cascading_slices: 9}}}", "cascading_slices"},
		{"margin below one", "shadows: {tiers: {medium: {cache_margin: 0.5}}}", "cache_margin"},
		{"light cap", "lights: {max_light_count: 2}", "lights.max_light_count"},
		{"telemetry without path", "telemetry: {enabled: true, path: \"\"}", "telemetry.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("err = %v, want ErrInvalidSettings", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("view: [1, 2"))
	if err == nil || errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want a parse error", err)
	}
}

func TestConfig_ShadowSettingsPerQuality(t *testing.T) {
	cfg := Default()
	tests := []struct {
		q           Quality
		wantEnabled bool
		wantRes     int
	}{
		{QualityOff, false, 0},
		{QualityLow, true, 512},
		{QualityMedium, true, 1024},
		{QualityHigh, true, 2048},
		{QualityUltra, true, 4096},
	}
	for _, tt := range tests {
		t.Run(string(tt.q), func(t *testing.T) {
			s := cfg.ShadowSettings(tt.q)
			if s.Enabled != tt.wantEnabled {
				t.Errorf("Enabled = %v, want %v", s.Enabled, tt.wantEnabled)
			}
			if tt.wantEnabled && s.Resolution != tt.wantRes {
				t.Errorf("Resolution = %d, want %d", s.Resolution, tt.wantRes)
			}
		})
	}
}

func TestConfig_SetQuality(t *testing.T) {
	cfg := Default()
	if err := cfg.SetQuality(QualityOff); err != nil {
		t.Fatalf("SetQuality(off): %v", err)
	}
	if cfg.Derived.Shadow.Enabled {
		t.Error("shadows still enabled after switching to off")
	}
	if err := cfg.SetQuality("cinematic"); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
	if cfg.Shadows.Quality != QualityOff {
		t.Error("a rejected quality must not change the active tier")
	}
}

func TestConfig_WriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Cluster.DimXY = 8
	path := filepath.Join(t.TempDir(), "lighting.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("written file missing: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Cluster.DimXY != 8 {
		t.Errorf("dim_xy = %d, want 8", loaded.Cluster.DimXY)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
