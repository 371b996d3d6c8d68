package plan

import (
	"fmt"
	"time"
)

// Settings tunes the renderers. It is embedded in the YAML config and is
// editable at runtime.
type Settings struct {
	Idle     IdleSettings     `yaml:"Idle" json:"Idle"`
	Skip     SkipSettings     `yaml:"Skip" json:"Skip"`
	Show     ShowSettings     `yaml:"Show" json:"Show"`
	Party    PartySettings    `yaml:"Party" json:"Party"`
	Fallback FallbackSettings `yaml:"Fallback" json:"Fallback"`
	Wave     WaveSettings     `yaml:"Wave" json:"Wave"`
	Moving   MovingSettings   `yaml:"Moving" json:"Moving"`
}

type IdleSettings struct {
	// Base color of the breathing halo at full brightness.
	LedRGB []int `yaml:"LedRGB" json:"LedRGB"`
	// Added to the 8-bit pulse angle once per tick, multiplied by 2.
	PulseSpeed int `yaml:"PulseSpeed" json:"PulseSpeed"`
}

type SkipStep struct {
	Duration time.Duration `yaml:"Duration" json:"Duration"`
	LedRGB   []int         `yaml:"LedRGB" json:"LedRGB"`
}

type SkipSettings struct {
	Steps []SkipStep `yaml:"Steps" json:"Steps"`
}

type ShowSettings struct {
	RotationPeriod time.Duration `yaml:"RotationPeriod" json:"RotationPeriod"`
	LedRGB         []int         `yaml:"LedRGB" json:"LedRGB"`
}

type PartySettings struct {
	PatternPeriod  time.Duration `yaml:"PatternPeriod" json:"PatternPeriod"`
	ButtonDuration time.Duration `yaml:"ButtonDuration" json:"ButtonDuration"`
	GlitterChance  int           `yaml:"GlitterChance" json:"GlitterChance"`
	HueStep        int           `yaml:"HueStep" json:"HueStep"`
}

type FallbackSettings struct {
	Runners   int   `yaml:"Runners" json:"Runners"`
	Spacing   int   `yaml:"Spacing" json:"Spacing"`
	Trail     int   `yaml:"Trail" json:"Trail"`
	HueStep   int   `yaml:"HueStep" json:"HueStep"`
	HaloRGB   []int `yaml:"HaloRGB" json:"HaloRGB"`
	TrailFade int   `yaml:"TrailFade" json:"TrailFade"`
}

type WaveSettings struct {
	MaxBrightness int `yaml:"MaxBrightness" json:"MaxBrightness"`
	PixelStep     int `yaml:"PixelStep" json:"PixelStep"`
}

type MovingSettings struct {
	Interval time.Duration `yaml:"Interval" json:"Interval"`
	LedRGB   []int         `yaml:"LedRGB" json:"LedRGB"`
	// Number of strips (from the first) that show the dot.
	Strips int `yaml:"Strips" json:"Strips"`
}

// DefaultSettings mirrors the animation constants of the deployed devices.
func DefaultSettings() Settings {
	return Settings{
		Idle: IdleSettings{LedRGB: []int{255, 179, 77}, PulseSpeed: 1},
		Skip: SkipSettings{Steps: []SkipStep{
			{Duration: 150 * time.Millisecond, LedRGB: []int{255, 255, 255}},
			{Duration: 150 * time.Millisecond, LedRGB: []int{0, 0, 0}},
			{Duration: 150 * time.Millisecond, LedRGB: []int{255, 255, 255}},
			{Duration: 150 * time.Millisecond, LedRGB: []int{0, 0, 0}},
		}},
		Show: ShowSettings{RotationPeriod: 5 * time.Second, LedRGB: []int{255, 0, 0}},
		Party: PartySettings{
			PatternPeriod:  time.Second,
			ButtonDuration: 10 * time.Second,
			GlitterChance:  80,
			HueStep:        3,
		},
		Fallback: FallbackSettings{
			Runners:   3,
			Spacing:   30,
			Trail:     3,
			HueStep:   5,
			HaloRGB:   []int{255, 179, 77},
			TrailFade: 50,
		},
		Wave:   WaveSettings{MaxBrightness: 200, PixelStep: 8},
		Moving: MovingSettings{Interval: 100 * time.Millisecond, LedRGB: []int{0, 0, 255}, Strips: 3},
	}
}

// Validate checks ranges the renderers rely on.
func (s Settings) Validate() error {
	rgbs := map[string][]int{
		"Idle.LedRGB":      s.Idle.LedRGB,
		"Show.LedRGB":      s.Show.LedRGB,
		"Fallback.HaloRGB": s.Fallback.HaloRGB,
		"Moving.LedRGB":    s.Moving.LedRGB,
	}
	for i, step := range s.Skip.Steps {
		rgbs[fmt.Sprintf("Skip.Steps[%d].LedRGB", i)] = step.LedRGB
		if step.Duration <= 0 {
			return fmt.Errorf("Skip.Steps[%d].Duration must be > 0", i)
		}
	}
	for name, rgb := range rgbs {
		if err := ValidateRGB(name, rgb); err != nil {
			return err
		}
	}
	if len(s.Skip.Steps) == 0 {
		return fmt.Errorf("Skip.Steps must not be empty")
	}
	if s.Show.RotationPeriod <= 0 {
		return fmt.Errorf("Show.RotationPeriod must be > 0")
	}
	if s.Party.PatternPeriod <= 0 {
		return fmt.Errorf("Party.PatternPeriod must be > 0")
	}
	if s.Party.ButtonDuration < 0 {
		return fmt.Errorf("Party.ButtonDuration must be >= 0")
	}
	if s.Moving.Interval <= 0 {
		return fmt.Errorf("Moving.Interval must be > 0")
	}
	for name, v := range map[string]int{
		"Idle.PulseSpeed":     s.Idle.PulseSpeed,
		"Party.GlitterChance": s.Party.GlitterChance,
		"Party.HueStep":       s.Party.HueStep,
		"Wave.MaxBrightness":  s.Wave.MaxBrightness,
		"Wave.PixelStep":      s.Wave.PixelStep,
		"Fallback.TrailFade":  s.Fallback.TrailFade,
		"Fallback.HueStep":    s.Fallback.HueStep,
	} {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, v)
		}
	}
	if s.Fallback.Runners < 0 || s.Fallback.Trail < 0 || s.Fallback.Spacing < 0 {
		return fmt.Errorf("Fallback.Runners, Spacing and Trail must be >= 0")
	}
	if s.Moving.Strips < 1 {
		return fmt.Errorf("Moving.Strips must be >= 1, got %d", s.Moving.Strips)
	}
	return nil
}

// ValidateRGB checks a config color triple.
func ValidateRGB(name string, rgb []int) error {
	if len(rgb) != 3 {
		return fmt.Errorf("%s must have exactly 3 components, got %d", name, len(rgb))
	}
	for _, v := range rgb {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s values must be between 0 and 255, got %d", name, v)
		}
	}
	return nil
}
