// Package config gathers every numeric knob of the engine on one object.
// The shipped defaults are baked into the binary; a YAML file can
// override any subset of them.
package config

import (
	_ "embed"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/tier"
	"github.com/Grimnirrrr/keratin/pkg/yarn"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var validate = validator.New()

// History tunes the command log and the timeline built over it.
type History struct {
	MaxCommands  int   `json:"maxCommands" yaml:"maxCommands" validate:"min=1"`
	IdleMinutes  int   `json:"idleMinutes" yaml:"idleMinutes" validate:"min=1"`
	GroupSeconds int   `json:"groupSeconds" yaml:"groupSeconds" validate:"min=1"`
	Milestones   []int `json:"milestones" yaml:"milestones" validate:"min=1,dive,min=1"`
}

// IdleThreshold is the gap that starts a new timeline session.
func (h History) IdleThreshold() time.Duration {
	return time.Duration(h.IdleMinutes) * time.Minute
}

// GroupWindow is the span within which same-type actions collapse.
func (h History) GroupWindow() time.Duration {
	return time.Duration(h.GroupSeconds) * time.Second
}

// Backups tunes the safety snapshot ring and the recovery log.
type Backups struct {
	MaxBackups     int `json:"maxBackups" yaml:"maxBackups" validate:"min=1"`
	MaxRecoveryLog int `json:"maxRecoveryLog" yaml:"maxRecoveryLog" validate:"min=1"`
}

// Suggestions tunes the suggestion cache.
type Suggestions struct {
	CacheSize  int `json:"cacheSize" yaml:"cacheSize" validate:"min=1"`
	TTLSeconds int `json:"ttlSeconds" yaml:"ttlSeconds" validate:"min=1"`
}

// TTL is the suggestion cache entry lifetime.
func (s Suggestions) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Geometry tunes spatial behavior. A SnapGrid of 0 disables snapping.
type Geometry struct {
	SnapGrid float64 `json:"snapGrid" yaml:"snapGrid" validate:"gte=0"`
}

// Config is the single object handed to the engine at construction.
type Config struct {
	History     History         `json:"history" yaml:"history"`
	Backups     Backups         `json:"backups" yaml:"backups"`
	Suggestions Suggestions     `json:"suggestions" yaml:"suggestions"`
	Geometry    Geometry        `json:"geometry" yaml:"geometry"`
	Tiers       tier.Table      `json:"tiers" yaml:"tiers"`
	Billing     tier.Thresholds `json:"billing" yaml:"billing"`
	Yarn        yarn.Tables     `json:"yarn" yaml:"yarn"`
}

// Default returns the built-in configuration. The embedded file is
// compile-time data; failing to parse it is a build defect.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic("config: embedded defaults are invalid: " + err.Error())
	}
	return cfg
}

// Parse overlays a YAML document onto the defaults and validates the
// result, so partial files only need the keys they change.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(fault.ValidationFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML file and overlays it onto the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.NotFound, err)
	}
	return Parse(data)
}

// Validate checks the structural constraints and the cross-field rules
// the tag language cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fault.Wrap(fault.ValidationFailed, err)
	}
	for _, t := range []tier.Tier{tier.Freemium, tier.Pro, tier.Studio} {
		limits, ok := c.Tiers[t]
		if !ok {
			return fault.New(fault.ValidationFailed, "tier table is missing %q", t)
		}
		if limits.MaxPieces < 1 {
			return fault.New(fault.ValidationFailed, "tier %q allows no pieces", t)
		}
		if limits.MaxSaves < 0 {
			return fault.New(fault.ValidationFailed, "tier %q has negative saves", t)
		}
		if limits.MaxCustomPieces < tier.Unlimited {
			return fault.New(fault.ValidationFailed, "tier %q has invalid custom piece cap", t)
		}
		if limits.OverageRate < 0 {
			return fault.New(fault.ValidationFailed, "tier %q has negative overage rate", t)
		}
	}
	b := c.Billing
	if b.PaymentMinimum <= 0 || b.WarningLevel < b.PaymentMinimum || b.AutoBillLevel < b.WarningLevel {
		return fault.New(fault.ValidationFailed,
			"billing thresholds must satisfy 0 < minimum <= warning <= autoBill")
	}
	for stitch, cm := range c.Yarn.Consumption {
		if cm < 0 {
			return fault.New(fault.ValidationFailed, "negative consumption for %q", stitch)
		}
	}
	if c.Yarn.WasteFactor < 0 {
		return fault.New(fault.ValidationFailed, "negative waste factor")
	}
	for _, y := range c.Yarn.Catalog {
		if y.Meters100g <= 0 || y.MetersPerSkein <= 0 {
			return fault.New(fault.ValidationFailed, "catalog yarn %q has non-positive length", y.Name)
		}
	}
	return nil
}
