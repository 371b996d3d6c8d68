package platform

import (
	"bytes"
	"testing"

	"flamingods.net/ledplans/led"
)

func TestEncodeByte(t *testing.T) {
	cases := []struct {
		in   byte
		want []byte
	}{
		{0x00, []byte{0x92, 0x49, 0x24}},
		{0xFF, []byte{0xDB, 0x6D, 0xB6}},
		{0x80, []byte{0xD2, 0x49, 0x24}},
		{0x01, []byte{0x92, 0x49, 0x26}},
	}
	for _, c := range cases {
		got := make([]byte, 3)
		encodeByte(got, c.in)
		if !bytes.Equal(got, c.want) {
			t.Errorf("encodeByte(%#02x) = % x, want % x", c.in, got, c.want)
		}
	}
}

func TestWS2812Encoder_ColorOrder(t *testing.T) {
	f := led.NewFrame(1, 1)
	f.Strips[0][0] = led.Led{Red: 0xFF}

	on := []byte{0xDB, 0x6D, 0xB6}
	off := []byte{0x92, 0x49, 0x24}

	grb := newWS2812Encoder("GRB", 0).encode(f)
	expected := append(append(append([]byte{}, off...), on...), off...)
	if !bytes.Equal(grb, expected) {
		t.Errorf("GRB: got % x, want % x", grb, expected)
	}

	rbg := newWS2812Encoder("rbg", 0).encode(f)
	expected = append(append(append([]byte{}, on...), off...), off...)
	if !bytes.Equal(rbg, expected) {
		t.Errorf("RBG: got % x, want % x", rbg, expected)
	}
}

func TestWS2812Encoder_ChainsStripsAndResets(t *testing.T) {
	f := led.NewFrame(2, 3)
	f.Fill(led.White)
	e := newWS2812Encoder("GRB", 4)
	out := e.encode(f)
	if len(out) != 2*3*bytesPerLed+4 {
		t.Fatalf("Expected %d bytes, got %d", 2*3*bytesPerLed+4, len(out))
	}
	if !bytes.Equal(out[len(out)-4:], []byte{0, 0, 0, 0}) {
		t.Errorf("Expected trailing reset bytes, got % x", out[len(out)-4:])
	}
	// the buffer is reused and the reset gap cleared again
	out[len(out)-1] = 0xAA
	f.Clear()
	again := e.encode(f)
	if again[len(again)-1] != 0 {
		t.Errorf("Reset gap not cleared on reuse")
	}
	if !bytes.Equal(again[:3], []byte{0x92, 0x49, 0x24}) {
		t.Errorf("Expected black pixel, got % x", again[:3])
	}
}
