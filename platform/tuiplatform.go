package platform

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/led"
	"flamingods.net/ledplans/logging"
	"flamingods.net/ledplans/plan"
)

// Controls are the actions the simulation keys trigger. Nil fields are
// ignored.
type Controls struct {
	SetPlan    func(p plan.Plan)
	ToggleLink func() bool
}

type TUIPlatform struct {
	*AbstractPlatform
	tviewapp     *tview.Application
	intro        *tview.TextView
	ledDisplay   *tview.TextView
	statusView   *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	plans        []plan.Plan
	controls     Controls
	logFlushOnce sync.Once
}

func NewTUIPlatform(conf *config.Config, plans []plan.Plan, controls Controls, ossignalchan chan os.Signal) *TUIPlatform {
	inst := &TUIPlatform{
		ossignalChan: ossignalchan,
		plans:        plans,
		controls:     controls,
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.drawFrame)
	return inst
}

func (s *TUIPlatform) Start() error {
	s.initSimulationTUI()
	s.startDisplayDriver()
	return nil
}

func (s *TUIPlatform) Stop() {
	s.stopDisplayDriver()
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

// ShowStatus updates the status pane from a device snapshot.
func (s *TUIPlatform) ShowStatus(snap device.Snapshot) {
	text := statusText(snap)
	s.tviewapp.QueueUpdateDraw(func() {
		s.statusView.SetText(text)
	})
}

func (s *TUIPlatform) drawFrame(f *led.Frame) {
	// the frame goes back to the pool after we return
	text := renderFrame(f)
	s.tviewapp.QueueUpdateDraw(func() {
		s.ledDisplay.SetText(text)
	})
}

func (s *TUIPlatform) getIntroText() string {
	keys := make([]string, len(s.plans))
	for i, p := range s.plans {
		keys[i] = fmt.Sprintf("[blue]%d[-] %s", i+1, p)
	}
	line1 := "Plans: " + strings.Join(keys, "  ")
	line2 := "Hit [#ff0000]w[-] to toggle the link, [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return line1 + "\n" + line2
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" LEDPLANS Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.ledDisplay = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.ledDisplay.SetBorder(true)
	s.ledDisplay.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.statusView = tview.NewTextView().SetDynamicColors(true)
	s.statusView.SetBorder(true).SetTitle(" Status ").SetTitleColor(tcell.ColorLightBlue)
	s.statusView.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	stripHeight := 3*s.config.Hardware.Strips + 2

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 4, 0, false).
		AddItem(s.ledDisplay, stripHeight, 0, false).
		AddItem(s.statusView, 4, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			if err := logging.SetOutput(tview.ANSIWriter(s.logView)); err != nil {
				slog.Error("Can't redirect log output", "error", err)
			}
			close(s.readyChan)
		})
	})

	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyRune:
			r := event.Rune()
			if r >= '1' && r <= '9' {
				if idx := int(r - '1'); idx < len(s.plans) && s.controls.SetPlan != nil {
					p := s.plans[idx]
					slog.Debug("Triggering plan from keyboard", "plan", p)
					// SetPlan waits for the device loop
					go s.controls.SetPlan(p)
				}
				return nil
			}
			switch r {
			case 'w', 'W':
				if s.controls.ToggleLink != nil {
					slog.Info("Simulated link toggled", "connected", s.controls.ToggleLink())
				}
				return nil
			case 'q', 'Q':
				s.ossignalChan <- os.Interrupt
				return nil
			case 'r', 'R':
				s.ossignalChan <- syscall.SIGHUP
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}

var levels = []rune(" ▁▂▃▄▅▆▇█")

// renderFrame draws every strip as two rows of block characters whose
// height follows the pixel brightness and whose color is the pixel hue.
func renderFrame(f *led.Frame) string {
	var buf strings.Builder
	buf.Grow(f.Len() * len(f.Strips) * 2 * (len("[#000000]") + len("[-]") + 3))
	for _, strip := range f.Strips {
		var top, bottom strings.Builder
		for _, l := range strip {
			if l.IsEmpty() {
				top.WriteByte(' ')
				bottom.WriteByte(' ')
				continue
			}
			value := (int(l.Red) + int(l.Green) + int(l.Blue)) / 3
			// 16 steps over both rows
			height := min(value/16+1, 16)
			color := scaledColor(l)
			top.WriteString(color)
			bottom.WriteString(color)
			top.WriteRune(levels[max(height-8, 0)])
			bottom.WriteRune(levels[min(height, 8)])
			top.WriteString("[-]")
			bottom.WriteString("[-]")
		}
		buf.WriteString(" ")
		buf.WriteString(top.String())
		buf.WriteString("\n ")
		buf.WriteString(bottom.String())
		buf.WriteString("\n\n")
	}
	return buf.String()
}

// scaledColor returns the tview color tag of l at full brightness.
func scaledColor(l led.Led) string {
	maxColor := max(l.Red, l.Green, l.Blue)
	if maxColor == 0 {
		return "[#000000]"
	}
	scale := func(c byte) byte {
		return byte((int(c)*255 + int(maxColor)/2) / int(maxColor))
	}
	return fmt.Sprintf("[#%02x%02x%02x]", scale(l.Red), scale(l.Green), scale(l.Blue))
}

func statusText(s device.Snapshot) string {
	link := "[red]down[-]"
	if s.WiFiConnected {
		link = fmt.Sprintf("[green]up[-] %s rssi %d", s.IP, s.RSSI)
	}
	line1 := fmt.Sprintf(" Plan: [yellow]%s[-] (%.1fs)  Link: %s  Reconnects: %d",
		s.CurrentPlan, float64(s.PlanElapsedMs)/1000, link, s.Reconnects)
	ota := "idle"
	if s.OTAInProgress {
		ota = fmt.Sprintf("[yellow]%d%%[-]", s.OTAProgress)
	}
	line2 := fmt.Sprintf(" OTA: %s  Pending: %s  Uptime: %ds  Firmware: %s", ota, orNone(s.PendingPlan), s.Uptime, s.FirmwareVersion)
	return line1 + "\n" + line2
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
