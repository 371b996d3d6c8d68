package platform

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/led"
)

const (
	maxHistory  = 500
	viewerTitle = " LEDPLANS Status Viewer "
)

// StatusViewer is a console view for devices driving real strips. It
// shows the device state together with rolling statistics of the signal
// strength and the output brightness.
type StatusViewer struct {
	tuiApp     *tview.Application
	view       *tview.TextView
	rssi       *deque.Deque[int]
	brightness *deque.Deque[int]
	mu         sync.Mutex
	ossignal   chan os.Signal
}

type stats struct {
	min    int
	max    int
	mean   float64
	median float64
	stdDev float64
}

func NewStatusViewer(ossignal chan os.Signal) *StatusViewer {
	sv := &StatusViewer{
		tuiApp:     tview.NewApplication(),
		rssi:       new(deque.Deque[int]),
		brightness: new(deque.Deque[int]),
		ossignal:   ossignal,
	}
	sv.rssi.Grow(maxHistory)
	sv.brightness.Grow(maxHistory)
	sv.setupUI()
	return sv
}

// Start runs the TUI until Stop is called. It should be called as a
// goroutine.
func (sv *StatusViewer) Start() {
	if err := sv.tuiApp.Run(); err != nil {
		slog.Error("Error running StatusViewer TUI", "error", err)
		sv.ossignal <- os.Interrupt
	}
	slog.Info("StatusViewer TUI has stopped.")
}

func (sv *StatusViewer) Stop() {
	sv.tuiApp.Stop()
}

// Update records a snapshot and schedules a redraw. It is safe for
// concurrent use.
func (sv *StatusViewer) Update(snap device.Snapshot) {
	sv.mu.Lock()
	push(sv.rssi, snap.RSSI)
	if snap.Frame != nil {
		push(sv.brightness, meanBrightness(snap.Frame))
	}
	text := sv.prepareText(snap)
	sv.mu.Unlock()

	sv.tuiApp.QueueUpdateDraw(func() {
		sv.view.SetText(text)
	})
}

func push(q *deque.Deque[int], v int) {
	if q.Len() == maxHistory {
		q.PopFront()
	}
	q.PushBack(v)
}

func meanBrightness(f *led.Frame) int {
	n := len(f.Strips) * f.Len()
	if n == 0 {
		return 0
	}
	sum := 0
	for _, strip := range f.Strips {
		for _, l := range strip {
			sum += int(max(l.Red, l.Green, l.Blue))
		}
	}
	return sum / n
}

func (sv *StatusViewer) setupUI() {
	sv.view = tview.NewTextView()
	sv.view.SetDynamicColors(true)
	sv.view.SetTextAlign(tview.AlignLeft)
	sv.view.SetBackgroundColor(tcell.ColorDarkSlateGray)
	sv.view.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" LEDPLANS ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText("Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file and restart")
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 3, 1, false)
	layout.AddItem(sv.view, 7, 1, true)

	sv.tuiApp.SetRoot(layout, true).SetFocus(sv.view)
	sv.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			sv.ossignal <- os.Interrupt
		case 'r', 'R':
			sv.ossignal <- syscall.SIGHUP
		}
		return event
	})
}

// prepareText must be called with the mutex held.
func (sv *StatusViewer) prepareText(snap device.Snapshot) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, " [yellow]%-12s[white] %s (%s) firmware %s\n", "Device", snap.Device, snap.CurrentPlan, snap.FirmwareVersion)
	fmt.Fprintf(&buf, " [yellow]%-12s[white] connected=%t ip=%s reconnects=%d\n", "Link", snap.WiFiConnected, snap.IP, snap.Reconnects)
	fmt.Fprintf(&buf, " [yellow]%-12s[white] %s\n", "RSSI", formatStats(calculateStats(values(sv.rssi))))
	fmt.Fprintf(&buf, " [yellow]%-12s[white] %s", "Brightness", formatStats(calculateStats(values(sv.brightness))))
	if snap.OTAInProgress {
		fmt.Fprintf(&buf, "\n [yellow]%-12s[white] %d%%", "OTA", snap.OTAProgress)
	}
	return buf.String()
}

func values(q *deque.Deque[int]) []int {
	data := make([]int, q.Len())
	for i := range q.Len() {
		data[i] = q.At(i)
	}
	return data
}

func formatStats(s stats) string {
	return fmt.Sprintf("[%4d|%6.1f|%4d] median %6.1f sd %5.1f", s.min, math.Round(s.mean*10)/10, s.max, s.median, s.stdDev)
}

func calculateStats(data []int) stats {
	if len(data) == 0 {
		return stats{}
	}

	var sum int
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	mean := float64(sum) / float64(len(data))

	sorted := append([]int(nil), data...)
	sort.Ints(sorted)
	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2.0
	} else {
		median = float64(sorted[mid])
	}

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (float64(v) - mean) * (float64(v) - mean)
	}

	return stats{
		min:    lo,
		max:    hi,
		mean:   mean,
		median: median,
		stdDev: math.Sqrt(sumOfSquares / float64(len(data))),
	}
}
