package led

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLed_IsEmpty(t *testing.T) {
	led := Led{Red: 0, Green: 0, Blue: 0}
	assert.True(t, led.IsEmpty(), "IsEmpty should be true for a zero Led")

	led = Led{Red: 1, Green: 0, Blue: 0}
	assert.False(t, led.IsEmpty(), "IsEmpty should be false for a non-zero Led")
}

func TestLed_Max(t *testing.T) {
	led1 := Led{Red: 10, Green: 20, Blue: 30}
	led2 := Led{Red: 5, Green: 25, Blue: 15}

	assert.Equal(t, Led{Red: 10, Green: 25, Blue: 30}, led1.Max(led2))
}

func TestLed_AddSaturates(t *testing.T) {
	led := Led{Red: 200, Green: 10, Blue: 0}
	assert.Equal(t, Led{Red: 255, Green: 255, Blue: 255}, led.Add(White))
	assert.Equal(t, Led{Red: 250, Green: 20, Blue: 5}, led.Add(Led{Red: 50, Green: 10, Blue: 5}))
}

func TestLed_FadeToBlackBy(t *testing.T) {
	assert.Equal(t, White, White.FadeToBlackBy(0))
	assert.Equal(t, Led{}, White.FadeToBlackBy(255))
	faded := White.FadeToBlackBy(50)
	assert.Equal(t, byte(205), faded.Red)
	assert.Equal(t, faded.Red, faded.Green)
}

func TestSin8(t *testing.T) {
	assert.Equal(t, byte(128), Sin8(0))
	assert.Equal(t, byte(255), Sin8(64))
	assert.Equal(t, byte(128), Sin8(128))
	assert.Equal(t, byte(1), Sin8(192))
	// periodic by construction: the angle wraps with uint8 arithmetic
	var theta byte = 250
	theta += 10
	assert.Equal(t, Sin8(4), Sin8(theta))
}

func TestScale8(t *testing.T) {
	assert.Equal(t, byte(200), Scale8(200, 255))
	assert.Equal(t, byte(0), Scale8(200, 0))
	assert.Equal(t, byte(100), Scale8(200, 127))
}

func TestHSV(t *testing.T) {
	assert.Equal(t, Led{Red: 255}, HSV(0, 255, 255))
	assert.Equal(t, Led{}, HSV(100, 255, 0))
	grey := HSV(42, 0, 128)
	assert.Equal(t, grey.Red, grey.Green)
	assert.Equal(t, grey.Green, grey.Blue)
}

func TestFrame(t *testing.T) {
	f := NewFrame(2, 5)
	assert.Len(t, f.Strips, 2)
	assert.Equal(t, 5, f.Len())
	assert.True(t, f.IsEmpty())

	f.Strips[1].Set(4, White)
	f.Strips[1].Set(5, White) // out of range, ignored
	assert.False(t, f.IsEmpty())

	c := f.Clone()
	f.Clear()
	assert.True(t, f.IsEmpty())
	assert.Equal(t, White, c.Strips[1][4])
}

func TestRandomIsReproducible(t *testing.T) {
	a := NewRandom(7)
	b := NewRandom(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Random8(), b.Random8())
		assert.Less(t, a.Random16N(10), 10)
		b.Random16N(10)
	}
}
