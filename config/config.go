package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"flamingods.net/ledplans/plan"
)

const CONFILE = "config.yml"

// FirmwareVersion is reported by /status and /version. Release builds set
// it with -ldflags "-X flamingods.net/ledplans/config.FirmwareVersion=...".
var FirmwareVersion = "1.0.0"

// Environment variables that take precedence over the config file. They
// may also come from a .env file next to the binary.
const (
	EnvVariant      = "LEDPLANS_VARIANT"
	EnvListenAddr   = "LEDPLANS_LISTEN_ADDR"
	EnvOTAPassword  = "LEDPLANS_OTA_PASSWORD"
	EnvProbeAddress = "LEDPLANS_PROBE_ADDRESS"
)

type Config struct {
	Device   DeviceConfig   `yaml:"Device"`
	Hardware HardwareConfig `yaml:"Hardware"`
	Loop     LoopConfig     `yaml:"Loop"`
	Plans    plan.Settings  `yaml:"Plans"`
	Policy   PolicyConfig   `yaml:"Policy"`
	Link     LinkConfig     `yaml:"Link"`
	OTA      OTAConfig      `yaml:"OTA"`
	HTTP     HTTPConfig     `yaml:"HTTP"`
	Daylight DaylightConfig `yaml:"Daylight"`
	Logging  LoggingConfig  `yaml:"Logging"`
}

type DeviceConfig struct {
	Variant string `yaml:"Variant"`
	// Free text name shown in logs and the TUI title.
	Name string `yaml:"Name"`
}

type HardwareConfig struct {
	// 0 means: take the geometry of the variant.
	Strips       int    `yaml:"Strips"`
	LedsPerStrip int    `yaml:"LedsPerStrip"`
	ColorOrder   string `yaml:"ColorOrder"`
	SpiSpeedHz   int    `yaml:"SpiSpeedHz"`
	ResetBytes   int    `yaml:"ResetBytes"`
	Brightness   int    `yaml:"Brightness" json:"Brightness"`
}

type LoopConfig struct {
	TickDelay       time.Duration `yaml:"TickDelay"`
	CheckInterval   time.Duration `yaml:"CheckInterval"`
	CommandsPerTick int           `yaml:"CommandsPerTick"`
	CommandQueue    int           `yaml:"CommandQueue"`
}

type PolicyConfig struct {
	// Plans that connectivity switching must not interrupt. Empty means
	// the defaults of the variant.
	OverridePlans []string `yaml:"OverridePlans" json:"OverridePlans"`
	// Plan shown during a firmware transfer. Empty means the variant's.
	OTASafePlan string `yaml:"OTASafePlan" json:"OTASafePlan"`
	// Station colour name to plan name.
	StationColorPlans map[string]string `yaml:"StationColorPlans" json:"StationColorPlans"`
	// Plan for colours without a mapping. Empty means the first override
	// plan of the variant, or show.
	StationDefaultPlan string `yaml:"StationDefaultPlan" json:"StationDefaultPlan"`
	StationMixedPlan   string `yaml:"StationMixedPlan" json:"StationMixedPlan"`
}

type LinkConfig struct {
	// "net" probes ProbeAddress over TCP, "sim" is toggled by hand.
	Kind          string        `yaml:"Kind"`
	ProbeAddress  string        `yaml:"ProbeAddress"`
	ProbeTimeout  time.Duration `yaml:"ProbeTimeout"`
	ProbeInterval time.Duration `yaml:"ProbeInterval"`
	ReconnectMin  time.Duration `yaml:"ReconnectMin"`
	ReconnectMax  time.Duration `yaml:"ReconnectMax"`
	// Initial state of the simulated link.
	SimConnected bool `yaml:"SimConnected"`
}

type OTAConfig struct {
	ListenAddr string `yaml:"ListenAddr"`
	Password   string `yaml:"Password"`
	// When set, a push is only accepted within ArmWindow after POST /ota.
	RequireArm   bool          `yaml:"RequireArm"`
	ArmWindow    time.Duration `yaml:"ArmWindow"`
	RestartDelay time.Duration `yaml:"RestartDelay"`
	FirmwarePath string        `yaml:"FirmwarePath"`
	ReadTimeout  time.Duration `yaml:"ReadTimeout"`
	MaxImageSize int64         `yaml:"MaxImageSize"`
}

type HTTPConfig struct {
	ListenAddr     string        `yaml:"ListenAddr"`
	MaxConnections int           `yaml:"MaxConnections"`
	StreamInterval time.Duration `yaml:"StreamInterval"`
}

type DaylightConfig struct {
	Enabled       bool    `yaml:"Enabled" json:"Enabled"`
	Latitude      float64 `yaml:"Latitude" json:"Latitude"`
	Longitude     float64 `yaml:"Longitude" json:"Longitude"`
	DayBrightness int     `yaml:"DayBrightness" json:"DayBrightness"`
}

type LogConfig struct {
	Level      string `yaml:"Level"`
	Format     string `yaml:"Format"`
	File       string `yaml:"File"`
	MaxSizeMB  int    `yaml:"MaxSizeMB"`
	MaxBackups int    `yaml:"MaxBackups"`
	MaxAgeDays int    `yaml:"MaxAgeDays"`
}

// LoggingConfig has one section for the terminal simulation and one for
// headless or real hardware operation.
type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

// Default returns a complete configuration for the stage variant. Values
// from the YAML file are decoded on top of it.
func Default() Config {
	return Config{
		Device:   DeviceConfig{Variant: "stage"},
		Hardware: HardwareConfig{SpiSpeedHz: 2400000, ResetBytes: 40, Brightness: 200},
		Loop: LoopConfig{
			TickDelay:       20 * time.Millisecond,
			CheckInterval:   10 * time.Second,
			CommandsPerTick: 8,
			CommandQueue:    32,
		},
		Plans: plan.DefaultSettings(),
		Link: LinkConfig{
			Kind:          "net",
			ProbeAddress:  "192.168.4.1:80",
			ProbeTimeout:  2 * time.Second,
			ProbeInterval: 5 * time.Second,
			ReconnectMin:  time.Second,
			ReconnectMax:  time.Minute,
		},
		OTA: OTAConfig{
			ListenAddr:   ":3232",
			ArmWindow:    5 * time.Minute,
			RestartDelay: 3 * time.Second,
			FirmwarePath: "/usr/local/bin/ledplans",
			ReadTimeout:  10 * time.Second,
			MaxImageSize: 64 << 20,
		},
		HTTP: HTTPConfig{ListenAddr: ":80", MaxConnections: 16, StreamInterval: 200 * time.Millisecond},
		Daylight: DaylightConfig{
			Latitude:      52.52,
			Longitude:     13.40,
			DayBrightness: 255,
		},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		},
	}
}

// ReadConfig reads the YAML file, applies environment overrides and the
// variant geometry, and validates the result.
func ReadConfig(cfile string) (*Config, error) {
	conf, err := load(cfile)
	if err != nil {
		return nil, err
	}
	conf.applyEnv()
	if err := conf.resolve(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ForVariant returns the resolved default configuration of a variant.
func ForVariant(name string) (*Config, error) {
	conf := Default()
	conf.Device.Variant = name
	if err := conf.resolve(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// load decodes the file over the defaults without any further processing.
func load(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()
	conf := Default()
	if err := yaml.NewDecoder(f).Decode(&conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	return &conf, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvVariant); ok && v != "" {
		c.Device.Variant = v
	}
	if v, ok := os.LookupEnv(EnvListenAddr); ok && v != "" {
		c.HTTP.ListenAddr = v
	}
	if v, ok := os.LookupEnv(EnvOTAPassword); ok {
		c.OTA.Password = v
	}
	if v, ok := os.LookupEnv(EnvProbeAddress); ok && v != "" {
		c.Link.ProbeAddress = v
	}
}

func (c *Config) resolve() error {
	v, err := plan.LookupVariant(c.Device.Variant)
	if err != nil {
		return err
	}
	if c.Hardware.Strips == 0 {
		c.Hardware.Strips = v.Strips
	}
	if c.Hardware.LedsPerStrip == 0 {
		c.Hardware.LedsPerStrip = v.LedsPerStrip
	}
	if c.Hardware.ColorOrder == "" {
		c.Hardware.ColorOrder = v.ColorOrder
	}
	if c.Device.Name == "" {
		c.Device.Name = v.DeviceID
	}
	return c.Validate()
}

// Variant returns the device variant with the policy of this config
// applied to it.
func (c *Config) Variant() (*plan.Variant, error) {
	v, err := plan.LookupVariant(c.Device.Variant)
	if err != nil {
		return nil, err
	}
	if len(c.Policy.OverridePlans) > 0 {
		v.Overrides = v.Overrides[:0]
		for _, name := range c.Policy.OverridePlans {
			p, err := plan.Parse(name)
			if err != nil {
				return nil, err
			}
			v.Overrides = append(v.Overrides, p)
		}
	}
	if c.Policy.OTASafePlan != "" {
		p, err := plan.Parse(c.Policy.OTASafePlan)
		if err != nil {
			return nil, err
		}
		v.OTASafe = p
	}
	return v, nil
}

// Validate checks the whole configuration and reports all problems at
// once.
func (c *Config) Validate() error {
	var errs []error
	v, err := plan.LookupVariant(c.Device.Variant)
	if err != nil {
		return err
	}
	member := func(field, name string) {
		p, err := plan.Parse(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		if !v.Has(p) {
			errs = append(errs, fmt.Errorf("%s: plan %s is not available on %s, valid plans are %v",
				field, p, v.Name, v.PlanNames()))
		}
	}
	for _, name := range c.Policy.OverridePlans {
		member("Policy.OverridePlans", name)
	}
	if c.Policy.OTASafePlan != "" {
		member("Policy.OTASafePlan", c.Policy.OTASafePlan)
	}
	if c.Policy.StationDefaultPlan != "" {
		member("Policy.StationDefaultPlan", c.Policy.StationDefaultPlan)
	}
	if c.Policy.StationMixedPlan != "" {
		member("Policy.StationMixedPlan", c.Policy.StationMixedPlan)
	}
	colors := make([]string, 0, len(c.Policy.StationColorPlans))
	for color := range c.Policy.StationColorPlans {
		colors = append(colors, color)
	}
	slices.Sort(colors)
	for _, color := range colors {
		member("Policy.StationColorPlans["+color+"]", c.Policy.StationColorPlans[color])
	}

	if err := c.Plans.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("Plans: %w", err))
	}

	if c.Hardware.Strips < 1 || c.Hardware.LedsPerStrip < 1 {
		errs = append(errs, fmt.Errorf("Hardware.Strips and Hardware.LedsPerStrip must be > 0"))
	}
	if !slices.Contains([]string{"RGB", "RBG", "GRB", "GBR", "BRG", "BGR"}, strings.ToUpper(c.Hardware.ColorOrder)) {
		errs = append(errs, fmt.Errorf("Hardware.ColorOrder %q must be a permutation of RGB", c.Hardware.ColorOrder))
	}
	if c.Hardware.Brightness < 0 || c.Hardware.Brightness > 255 {
		errs = append(errs, fmt.Errorf("Hardware.Brightness must be between 0 and 255, got %d", c.Hardware.Brightness))
	}
	if c.Hardware.SpiSpeedHz <= 0 || c.Hardware.ResetBytes < 0 {
		errs = append(errs, fmt.Errorf("Hardware.SpiSpeedHz must be > 0 and Hardware.ResetBytes must be non-negative"))
	}

	if c.Loop.TickDelay <= 0 || c.Loop.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("Loop.TickDelay and Loop.CheckInterval must be > 0"))
	}
	if c.Loop.CommandsPerTick < 1 || c.Loop.CommandQueue < 1 {
		errs = append(errs, fmt.Errorf("Loop.CommandsPerTick and Loop.CommandQueue must be > 0"))
	}

	switch c.Link.Kind {
	case "net":
		if c.Link.ProbeAddress == "" {
			errs = append(errs, fmt.Errorf("Link.ProbeAddress is required for Link.Kind net"))
		}
		if c.Link.ProbeInterval >= c.Loop.CheckInterval {
			errs = append(errs, fmt.Errorf("Link.ProbeInterval must be shorter than Loop.CheckInterval"))
		}
	case "sim":
	default:
		errs = append(errs, fmt.Errorf("Link.Kind must be net or sim, got %q", c.Link.Kind))
	}
	for name, d := range map[string]time.Duration{
		"Link.ProbeTimeout":  c.Link.ProbeTimeout,
		"Link.ProbeInterval": c.Link.ProbeInterval,
		"Link.ReconnectMin":  c.Link.ReconnectMin,
		"OTA.ReadTimeout":    c.OTA.ReadTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	if c.Link.ReconnectMax < c.Link.ReconnectMin {
		errs = append(errs, fmt.Errorf("Link.ReconnectMax must not be smaller than Link.ReconnectMin"))
	}
	if c.OTA.RestartDelay < 0 || c.OTA.ArmWindow < 0 {
		errs = append(errs, fmt.Errorf("OTA.RestartDelay and OTA.ArmWindow must be non-negative"))
	}
	if c.OTA.ListenAddr != "" && c.OTA.FirmwarePath == "" {
		errs = append(errs, fmt.Errorf("OTA.FirmwarePath is required when OTA.ListenAddr is set"))
	}
	if c.OTA.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("OTA.MaxImageSize must be > 0"))
	}
	if c.HTTP.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("HTTP.ListenAddr is required"))
	}
	if c.HTTP.StreamInterval <= 0 {
		errs = append(errs, fmt.Errorf("HTTP.StreamInterval must be > 0"))
	}

	if c.Daylight.DayBrightness < 0 || c.Daylight.DayBrightness > 255 {
		errs = append(errs, fmt.Errorf("Daylight.DayBrightness must be between 0 and 255, got %d", c.Daylight.DayBrightness))
	}
	if c.Daylight.Latitude < -90 || c.Daylight.Latitude > 90 || c.Daylight.Longitude < -180 || c.Daylight.Longitude > 180 {
		errs = append(errs, fmt.Errorf("Daylight.Latitude/Longitude out of range"))
	}
	for name, lc := range map[string]LogConfig{"Logging.TUI": c.Logging.TUI, "Logging.HW": c.Logging.HW} {
		if !slices.Contains([]string{"", "DEBUG", "INFO", "WARN", "ERROR"}, strings.ToUpper(lc.Level)) {
			errs = append(errs, fmt.Errorf("%s.Level %q must be one of DEBUG, INFO, WARN, ERROR", name, lc.Level))
		}
		if !slices.Contains([]string{"", "text", "json"}, strings.ToLower(lc.Format)) {
			errs = append(errs, fmt.Errorf("%s.Format %q must be text or json", name, lc.Format))
		}
	}
	return errors.Join(errs...)
}

// Local Variables:
// compile-command: "cd .. && go build"
// End:
