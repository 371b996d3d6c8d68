package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

const partyPatternCount = 4

// Party cycles fast, saturated patterns and sprinkles white glitter on
// top. With a non-zero duration it expires once that time has passed.
type Party struct {
	rnd      *led.Random
	period   time.Duration
	duration time.Duration
	glitter  byte
	hueStep  byte
	hue      byte
}

// NewParty creates the party renderer. duration 0 runs forever.
func NewParty(s PartySettings, duration time.Duration, rnd *led.Random) *Party {
	return &Party{
		rnd:      rnd,
		period:   s.PatternPeriod,
		duration: duration,
		glitter:  byte(s.GlitterChance),
		hueStep:  byte(s.HueStep),
	}
}

func (p *Party) Reset() {
	p.hue = 0
}

// PatternAt returns the sub pattern shown at the given time since entry.
func (p *Party) PatternAt(elapsed time.Duration) int {
	return int((elapsed / p.period) % partyPatternCount)
}

func (p *Party) Render(f *led.Frame, elapsed time.Duration) bool {
	if p.duration > 0 && elapsed > p.duration {
		return true
	}
	p.hue += p.hueStep
	pattern := p.PatternAt(elapsed)
	for _, strip := range f.Strips {
		p.renderStrip(strip, pattern)
		p.addGlitter(strip)
	}
	return false
}

func (p *Party) renderStrip(strip led.Strip, pattern int) {
	switch pattern {
	case 0: // rainbow wave
		for i := range strip {
			strip[i] = led.HSV(p.hue+byte(i*3), 255, 255)
		}
	case 1: // color explosion
		for i := range strip {
			if p.rnd.Random8() < 128 {
				strip[i] = led.HSV(p.hue+p.rnd.Random8N(64), 255, 255)
			} else {
				strip[i] = led.Black
			}
		}
	case 2: // alternating
		for i := range strip {
			if i%2 == 0 {
				strip[i] = led.HSV(p.hue, 255, 255)
			} else {
				strip[i] = led.HSV(p.hue+128, 255, 255)
			}
		}
	case 3: // sparkle on black
		strip.Fill(led.Black)
		for i := 0; i < len(strip)/4; i++ {
			strip[p.rnd.Random16N(len(strip))] = led.HSV(p.hue+p.rnd.Random8N(64), 255, 255)
		}
	}
}

func (p *Party) addGlitter(strip led.Strip) {
	if len(strip) == 0 {
		return
	}
	if p.rnd.Random8() < p.glitter {
		i := p.rnd.Random16N(len(strip))
		strip[i] = strip[i].Add(led.White)
	}
}
