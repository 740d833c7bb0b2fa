// Package config reads the agent configuration file: engine address, tilt
// thresholds, the collision detection policy, and the orientation table
// location.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"github.com/magbot-sim/magbot/articulation"
	"github.com/magbot-sim/magbot/safety"
)

// Config is the top-level configuration document.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Safety SafetyConfig `yaml:"safety"`
	// OrientationTable is a path to a solution table file (.json or
	// .json.gz); empty uses the table embedded in the binary.
	OrientationTable string `yaml:"orientation_table,omitempty"`
	// FrameRateHz paces the step loop; zero runs frames back to back.
	FrameRateHz float64 `yaml:"frame_rate_hz,omitempty"`
}

// EngineConfig locates the physics engine.
type EngineConfig struct {
	Address string `yaml:"address"`
}

// SafetyConfig mirrors safety.Thresholds and safety.DetectionConfig in file
// form. Booleans are pointers so an absent key can default to true.
type SafetyConfig struct {
	TippingDeg        float64 `yaml:"tipping_deg,omitempty"`
	NearTippingDeg    float64 `yaml:"near_tipping_deg,omitempty"`
	EmergencyDropMass float64 `yaml:"emergency_drop_mass,omitempty"`

	StopOnWall    *bool   `yaml:"stop_on_wall,omitempty"`
	StopOnFloor   *bool   `yaml:"stop_on_floor,omitempty"`
	StopOnObjects *bool   `yaml:"stop_on_objects,omitempty"`
	MassThreshold float64 `yaml:"mass_threshold,omitempty"`
	IncludeIDs    []int   `yaml:"include_ids,omitempty"`
	ExcludeIDs    []int   `yaml:"exclude_ids,omitempty"`

	AbortIfPreviousSameDirectionCollided *bool `yaml:"abort_if_previous_same_direction_collided,omitempty"`
}

// Read loads and validates a configuration file.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the document for structural problems.
func (c *Config) Validate(path string) error {
	if c.Engine.Address == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "engine.address")
	}
	if c.Safety.TippingDeg < 0 || c.Safety.NearTippingDeg < 0 {
		return goutils.NewConfigValidationError(path, errors.New("tilt thresholds must be non-negative"))
	}
	if c.Safety.TippingDeg != 0 && c.Safety.NearTippingDeg > c.Safety.TippingDeg {
		return goutils.NewConfigValidationError(path,
			errors.New("near_tipping_deg must not exceed tipping_deg"))
	}
	if c.FrameRateHz < 0 {
		return goutils.NewConfigValidationError(path, errors.New("frame_rate_hz must be non-negative"))
	}
	return nil
}

// Thresholds converts the file's tilt section, falling back to defaults for
// absent values.
func (c *Config) Thresholds() safety.Thresholds {
	th := safety.DefaultThresholds()
	if c.Safety.TippingDeg != 0 {
		th.TippingDeg = c.Safety.TippingDeg
	}
	if c.Safety.NearTippingDeg != 0 {
		th.NearTippingDeg = c.Safety.NearTippingDeg
	}
	if c.Safety.EmergencyDropMass != 0 {
		th.EmergencyDropMass = c.Safety.EmergencyDropMass
	}
	return th
}

// Detection converts the file's collision section.
func (c *Config) Detection() *safety.DetectionConfig {
	cfg := safety.DefaultDetectionConfig()
	if c.Safety.StopOnWall != nil {
		cfg.StopOnWall = *c.Safety.StopOnWall
	}
	if c.Safety.StopOnFloor != nil {
		cfg.StopOnFloor = *c.Safety.StopOnFloor
	}
	if c.Safety.StopOnObjects != nil {
		cfg.StopOnObjects = *c.Safety.StopOnObjects
	}
	if c.Safety.MassThreshold != 0 {
		cfg.MassThreshold = c.Safety.MassThreshold
	}
	if c.Safety.AbortIfPreviousSameDirectionCollided != nil {
		cfg.AbortOnPreviousSameDirection = *c.Safety.AbortIfPreviousSameDirectionCollided
	}
	if len(c.Safety.IncludeIDs) > 0 {
		cfg.IncludeIDs = map[int]struct{}{}
		for _, id := range c.Safety.IncludeIDs {
			cfg.IncludeIDs[id] = struct{}{}
		}
	}
	if len(c.Safety.ExcludeIDs) > 0 {
		cfg.ExcludeIDs = map[int]struct{}{}
		for _, id := range c.Safety.ExcludeIDs {
			cfg.ExcludeIDs[id] = struct{}{}
		}
	}
	return cfg
}

// Table loads the configured orientation table, or the embedded default.
func (c *Config) Table() (*articulation.Table, error) {
	if c.OrientationTable == "" {
		return articulation.DefaultTable()
	}
	return articulation.LoadTable(c.OrientationTable)
}

// FrameInterval converts the frame rate to a pacing interval; zero means
// unpaced.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FrameRateHz)
}
