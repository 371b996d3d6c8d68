package led

import (
	"math"
	"math/rand/v2"
)

var sinTable [256]byte

func init() {
	for i := range sinTable {
		sinTable[i] = byte(math.Round(128 + 127*math.Sin(2*math.Pi*float64(i)/256)))
	}
}

// Sin8 maps an 8-bit angle (256 == full circle) onto a sine wave in the
// range 1..255 with Sin8(0) == 128.
func Sin8(theta byte) byte {
	return sinTable[theta]
}

// Scale8 returns i * (scale+1) / 256, so that Scale8(x, 255) == x and
// Scale8(x, 0) == 0.
func Scale8(i, scale byte) byte {
	return byte((uint16(i) * (1 + uint16(scale))) >> 8)
}

// QAdd8 adds with saturation at 255.
func QAdd8(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}

// Random is the random source the renderers draw from. It is seeded
// explicitly so renders are reproducible in tests.
type Random struct {
	rnd *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Random8 returns a value in 0..255.
func (r *Random) Random8() byte {
	return byte(r.rnd.UintN(256))
}

// Random8N returns a value in 0..n-1.
func (r *Random) Random8N(n byte) byte {
	if n == 0 {
		return 0
	}
	return byte(r.rnd.UintN(uint(n)))
}

// Random16N returns a value in 0..n-1.
func (r *Random) Random16N(n int) int {
	if n <= 0 {
		return 0
	}
	return r.rnd.IntN(n)
}
