package config

import "flamingods.net/ledplans/plan"

// RuntimeConfig defines the subset of the configuration that can be
// safely modified at runtime through the web API. It excludes hardware,
// network and secret settings.
type RuntimeConfig struct {
	Plans      plan.Settings  `yaml:"Plans" json:"Plans"`
	Policy     PolicyConfig   `yaml:"Policy" json:"Policy"`
	Brightness int            `yaml:"Brightness" json:"Brightness"`
	Daylight   DaylightConfig `yaml:"Daylight" json:"Daylight"`
}

// Runtime extracts the runtime subset.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Plans:      c.Plans,
		Policy:     c.Policy,
		Brightness: c.Hardware.Brightness,
		Daylight:   c.Daylight,
	}
}

// ApplyRuntime merges a runtime subset into the configuration.
func (c *Config) ApplyRuntime(rc RuntimeConfig) {
	c.Plans = rc.Plans
	c.Policy = rc.Policy
	c.Hardware.Brightness = rc.Brightness
	c.Daylight = rc.Daylight
}
