package platform

import (
	"strings"

	"flamingods.net/ledplans/led"
)

// ws2812Encoder turns frames into an SPI bit stream for WS2812/WS2811
// strips. At 2.4 MHz one SPI bit lasts 416ns, so every data bit becomes
// three SPI bits: 110 for a one and 100 for a zero.
type ws2812Encoder struct {
	order      [3]int
	resetBytes int
	buffer     []byte
}

const bytesPerLed = 9

func newWS2812Encoder(colorOrder string, resetBytes int) *ws2812Encoder {
	e := &ws2812Encoder{resetBytes: resetBytes}
	for i, c := range strings.ToUpper(colorOrder) {
		switch c {
		case 'R':
			e.order[i] = 0
		case 'G':
			e.order[i] = 1
		case 'B':
			e.order[i] = 2
		}
	}
	return e
}

// encode writes all strips back to back followed by the reset gap. The
// returned slice is reused by the next call.
func (e *ws2812Encoder) encode(f *led.Frame) []byte {
	size := len(f.Strips)*f.Len()*bytesPerLed + e.resetBytes
	if cap(e.buffer) < size {
		e.buffer = make([]byte, size)
	}
	out := e.buffer[:size]
	offset := 0
	for _, strip := range f.Strips {
		for _, l := range strip {
			channels := [3]byte{l.Red, l.Green, l.Blue}
			for _, idx := range e.order {
				encodeByte(out[offset:offset+3], channels[idx])
				offset += 3
			}
		}
	}
	clear(out[offset:])
	return out
}

func encodeByte(dst []byte, b byte) {
	var bits uint32
	for i := 7; i >= 0; i-- {
		if b>>i&1 == 1 {
			bits = bits<<3 | 0b110
		} else {
			bits = bits<<3 | 0b100
		}
	}
	dst[0] = byte(bits >> 16)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits)
}
