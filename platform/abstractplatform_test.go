package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/led"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf, err := config.ForVariant("flamingo")
	require.NoError(t, err)
	return conf
}

func TestAbstractPlatform_DropsFramesWhileBusy(t *testing.T) {
	release := make(chan struct{})
	shown := make(chan *led.Frame, 10)
	ap := newAbstractPlatform(testConfig(t), func(f *led.Frame) {
		shown <- f.Clone()
		<-release
	})
	ap.startDisplayDriver()

	f := led.NewFrame(4, 100)
	f.Fill(led.Blue)
	ap.DisplayLeds(f)
	first := <-shown
	assert.Equal(t, led.Blue, first.Strips[3][99])

	// one frame fits in the queue, the rest is dropped
	f.Fill(led.White)
	for range 5 {
		ap.DisplayLeds(f)
	}
	accepted, dropped := ap.Frames()
	assert.Equal(t, uint64(2), accepted)
	assert.Equal(t, uint64(4), dropped)

	// the caller may reuse its frame right away
	f.Clear()
	close(release)
	second := <-shown
	assert.Equal(t, led.White, second.Strips[0][0])
	ap.stopDisplayDriver()
}

func TestHeadlessPlatform(t *testing.T) {
	h := NewHeadlessPlatform(testConfig(t))
	require.NoError(t, h.Start())
	select {
	case <-h.Ready():
	default:
		t.Fatal("headless platform must be ready after Start")
	}
	assert.Nil(t, h.LastFrame())

	f := led.NewFrame(4, 100)
	f.Strips[2][7] = led.White
	h.DisplayLeds(f)
	assert.Eventually(t, func() bool {
		last := h.LastFrame()
		return last != nil && last.Strips[2][7] == led.White
	}, time.Second, 5*time.Millisecond)
	h.Stop()
}

func TestRenderFrame(t *testing.T) {
	f := led.NewFrame(2, 3)
	f.Strips[0][1] = led.White
	out := renderFrame(f)
	assert.Contains(t, out, "[#ffffff]█[-]")
	assert.Equal(t, 2*3, countLines(out))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestScaledColor(t *testing.T) {
	assert.Equal(t, "[#000000]", scaledColor(led.Led{}))
	assert.Equal(t, "[#ff8000]", scaledColor(led.Led{Red: 100, Green: 50}))
	assert.Equal(t, "[#ffffff]", scaledColor(led.Led{Red: 3, Green: 3, Blue: 3}))
}

func TestStatusText(t *testing.T) {
	s := device.Snapshot{
		CurrentPlan:   "wifi_fallback",
		PlanElapsedMs: 1500,
		OTAInProgress: true,
		OTAProgress:   35,
		Uptime:        42,
	}
	text := statusText(s)
	assert.Contains(t, text, "wifi_fallback")
	assert.Contains(t, text, "(1.5s)")
	assert.Contains(t, text, "[red]down[-]")
	assert.Contains(t, text, "35%")
	assert.Contains(t, text, "Pending: -")
}
