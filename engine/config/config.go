// Package config provides YAML-based configuration for the lighting core.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/shadow"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidSettings is returned by Validate and Load for out-of-range values.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Quality names a shadow tier.
type Quality string

const (
	QualityOff    Quality = "off"
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// Config holds all lighting configuration.
type Config struct {
	View      ViewConfig      `yaml:"view"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Lights    LightsConfig    `yaml:"lights"`
	Shadows   ShadowsConfig   `yaml:"shadows"`
	Profiler  ProfilerConfig  `yaml:"profiler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Derived DerivedConfig `yaml:"-"`
}

type ViewConfig struct {
	FovDeg float32 `yaml:"fov_deg"`
	Near   float32 `yaml:"near"`
	Far    float32 `yaml:"far"`
}

type ClusterConfig struct {
	DimXY               int  `yaml:"dim_xy"`
	DimZ                int  `yaml:"dim_z"`
	MaxLightsPerCluster int  `yaml:"max_lights_per_cluster"`
	Async               bool `yaml:"async"`
	Workers             int  `yaml:"workers"`
}

type LightsConfig struct {
	MaxLightCount int `yaml:"max_light_count"`
}

type ShadowsConfig struct {
	Quality Quality     `yaml:"quality"`
	Tiers   TiersConfig `yaml:"tiers"`
}

// TiersConfig keeps one struct field per tier so a user file can override a
// single key of one tier without clearing the rest.
type TiersConfig struct {
	Low    TierConfig `yaml:"low"`
	Medium TierConfig `yaml:"medium"`
	High   TierConfig `yaml:"high"`
	Ultra  TierConfig `yaml:"ultra"`
}

type TierConfig struct {
	Resolution      int     `yaml:"resolution"`
	CascadingSlices int     `yaml:"cascading_slices"`
	CascadingLambda float32 `yaml:"cascading_lambda"`
	FarZ            float32 `yaml:"far_z"`
	Bias            float32 `yaml:"bias"`
	Quantize        bool    `yaml:"quantize"`
	CacheMargin     float32 `yaml:"cache_margin"` // >= 1; scale of cached cascade volumes
}

type ProfilerConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"interval_ms"`
	MemStats   bool `yaml:"mem_stats"`
}

type TelemetryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	FlushEvery int    `yaml:"flush_every"`
}

// DerivedConfig holds values computed from the loaded fields.
type DerivedConfig struct {
	FovY             float32         // View.FovDeg in radians
	Shadow           shadow.Settings // settings of the selected quality tier
	ProfilerInterval time.Duration
}

// Load reads the embedded defaults, overlays the YAML file at path when path
// is not empty, computes derived values and validates the result.
//
// Parameters:
//   - path: optional user config file
//
// Returns:
//   - *Config: the loaded configuration
//   - error: read, parse or validation errors
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays data on the embedded defaults. Only keys present in data
// replace defaults.
//
// Parameters:
//   - data: user YAML, may be empty
//
// Returns:
//   - *Config: the parsed configuration
//   - error: parse or validation errors
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Tier returns the tier settings for q and whether q names a tier.
// QualityOff is not a tier.
func (c *Config) Tier(q Quality) (TierConfig, bool) {
	switch q {
	case QualityLow:
		return c.Shadows.Tiers.Low, true
	case QualityMedium:
		return c.Shadows.Tiers.Medium, true
	case QualityHigh:
		return c.Shadows.Tiers.High, true
	case QualityUltra:
		return c.Shadows.Tiers.Ultra, true
	}
	return TierConfig{}, false
}

// ShadowSettings converts the tier selected by q into scheduler settings.
// QualityOff and unknown names yield disabled settings.
//
// Parameters:
//   - q: the quality tier
//
// Returns:
//   - shadow.Settings: the scheduler settings
func (c *Config) ShadowSettings(q Quality) shadow.Settings {
	t, ok := c.Tier(q)
	if !ok {
		s := shadow.DefaultSettings()
		s.Enabled = false
		return s
	}
	return shadow.Settings{
		Enabled:            true,
		Resolution:         t.Resolution,
		CascadingSlices:    t.CascadingSlices,
		CascadingLambda:    t.CascadingLambda,
		FarZ:               t.FarZ,
		Bias:               t.Bias,
		QuantizeProjection: t.Quantize,
		CacheMargin:        t.CacheMargin,
	}
}

// SetQuality switches the active shadow tier and recomputes derived values.
//
// Parameters:
//   - q: the new tier
//
// Returns:
//   - error: ErrInvalidSettings for unknown tier names
func (c *Config) SetQuality(q Quality) error {
	if _, ok := c.Tier(q); !ok && q != QualityOff {
		return fmt.Errorf("%w: unknown shadow quality %q", ErrInvalidSettings, q)
	}
	c.Shadows.Quality = q
	c.computeDerived()
	return nil
}

// Validate checks every section and joins all problems into one error
// wrapping ErrInvalidSettings.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.View.FovDeg > 0 && c.View.FovDeg < 180, "view.fov_deg %v outside (0, 180)", c.View.FovDeg)
	check(c.View.Near > 0, "view.near %v must be positive", c.View.Near)
	check(c.View.Far > c.View.Near, "view.far %v must exceed view.near %v", c.View.Far, c.View.Near)

	check(c.Cluster.DimXY > 0, "cluster.dim_xy %d must be positive", c.Cluster.DimXY)
	check(c.Cluster.DimZ > 0, "cluster.dim_z %d must be positive", c.Cluster.DimZ)
	check(c.Cluster.MaxLightsPerCluster > 0, "cluster.max_lights_per_cluster %d must be positive", c.Cluster.MaxLightsPerCluster)
	check(!c.Cluster.Async || c.Cluster.Workers > 0, "cluster.workers %d must be positive when async", c.Cluster.Workers)

	check(c.Lights.MaxLightCount >= light.CascadeSlotCount && c.Lights.MaxLightCount <= light.MaxLightCount,
		"lights.max_light_count %d outside [%d, %d]", c.Lights.MaxLightCount, light.CascadeSlotCount, light.MaxLightCount)

	if _, ok := c.Tier(c.Shadows.Quality); !ok && c.Shadows.Quality != QualityOff {
		errs = append(errs, fmt.Errorf("shadows.quality %q is not one of off, low, medium, high, ultra", c.Shadows.Quality))
	}
	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh, QualityUltra} {
		t, _ := c.Tier(q)
		check(t.Resolution > 0, "shadows.tiers.%s.resolution %d must be positive", q, t.Resolution)
		check(t.CascadingSlices >= 0 && t.CascadingSlices <= light.MaxCascadingSlices,
			"shadows.tiers.%s.cascading_slices %d outside [0, %d]", q, t.CascadingSlices, light.MaxCascadingSlices)
		check(t.CascadingLambda > 0, "shadows.tiers.%s.cascading_lambda %v must be positive", q, t.CascadingLambda)
		check(t.FarZ > 0, "shadows.tiers.%s.far_z %v must be positive", q, t.FarZ)
		check(t.CacheMargin >= 1, "shadows.tiers.%s.cache_margin %v must be at least 1", q, t.CacheMargin)
	}

	check(c.Profiler.IntervalMs > 0 || !c.Profiler.Enabled, "profiler.interval_ms %d must be positive", c.Profiler.IntervalMs)
	check(c.Telemetry.Path != "" || !c.Telemetry.Enabled, "telemetry.path is required when telemetry is enabled")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

// computeDerived calculates derived values from the loaded config.
func (c *Config) computeDerived() {
	c.Derived.FovY = mgl32.DegToRad(c.View.FovDeg)
	c.Derived.Shadow = c.ShadowSettings(c.Shadows.Quality)
	c.Derived.ProfilerInterval = time.Duration(c.Profiler.IntervalMs) * time.Millisecond
}

// WriteYAML writes the configuration to path.
//
// Parameters:
//   - path: destination file
//
// Returns:
//   - error: marshal or write errors
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
