package led

// Led is one RGB pixel, each channel 0..255.
type Led struct {
	Red   byte
	Green byte
	Blue  byte
}

var (
	Black = Led{}
	White = Led{Red: 255, Green: 255, Blue: 255}
	Blue  = Led{Blue: 255}
)

// True if all components are zero, false otherwise
func (s Led) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

// Return a Led with per component the max value of the caller and the
// in parameter
func (s Led) Max(in Led) Led {
	if s.Red > in.Red {
		in.Red = s.Red
	}
	if s.Green > in.Green {
		in.Green = s.Green
	}
	if s.Blue > in.Blue {
		in.Blue = s.Blue
	}
	return in
}

// Add adds in to the caller per component, saturating at 255.
func (s Led) Add(in Led) Led {
	return Led{
		Red:   QAdd8(s.Red, in.Red),
		Green: QAdd8(s.Green, in.Green),
		Blue:  QAdd8(s.Blue, in.Blue),
	}
}

// Scale multiplies every component by scale/256 (see Scale8).
func (s Led) Scale(scale byte) Led {
	return Led{
		Red:   Scale8(s.Red, scale),
		Green: Scale8(s.Green, scale),
		Blue:  Scale8(s.Blue, scale),
	}
}

// FadeToBlackBy dims the pixel by amount/256 of its brightness.
func (s Led) FadeToBlackBy(amount byte) Led {
	return s.Scale(255 - amount)
}

// Local Variables:
// compile-command: "cd .. && go build"
// End:
