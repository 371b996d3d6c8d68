package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	c "flamingods.net/ledplans/config"
	d "flamingods.net/ledplans/device"
	l "flamingods.net/ledplans/link"
	"flamingods.net/ledplans/logging"
	"flamingods.net/ledplans/ota"
	pl "flamingods.net/ledplans/platform"
	"flamingods.net/ledplans/plan"
	"flamingods.net/ledplans/server"
	u "flamingods.net/ledplans/util"
)

const (
	statusInterval = 500 * time.Millisecond
	stopTimeout    = 3 * time.Second
	// editors write a file in several steps
	reloadSettle = 300 * time.Millisecond
)

const (
	modeTUI      = "tui"
	modeHW       = "hw"
	modeHeadless = "headless"
)

type App struct {
	ossignal chan os.Signal
	conffile string
	mode     string
	viewer   bool
	clock    clockwork.Clock

	conf     *c.Config
	platform pl.Platform
	tui      *pl.TUIPlatform
	status   *pl.StatusViewer
	link     l.Link
	simLink  *l.SimLink
	netLink  *l.NetLink
	receiver *ota.Receiver
	device   *d.Device
	server   *server.Server
	// the device as seen from the keyboard goroutines of the TUI
	current atomic.Pointer[d.Device]

	cancel     context.CancelFunc
	stopsignal chan struct{}
	shutdownWg sync.WaitGroup
	reloads    *u.AtomicMapEvent[fsnotify.Op]
}

func NewApp(ossignal chan os.Signal, conffile, mode string) *App {
	return &App{
		ossignal: ossignal,
		conffile: conffile,
		mode:     mode,
		clock:    clockwork.NewRealClock(),
		reloads:  u.NewAtomicMapEvent[fsnotify.Op](),
	}
}

func main() {
	conffile := flag.String("config", c.CONFILE, "Config file to use")
	variant := flag.String("variant", "", "Device variant, overrides the config file")
	mode := flag.String("mode", modeTUI, "Output: tui (terminal simulation), hw (SPI strips) or headless")
	viewer := flag.Bool("status", false, "Show the status console when running on hardware")
	envfile := flag.String("env", ".env", "File with environment overrides")
	flag.Parse()

	if err := godotenv.Load(*envfile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Can't read %s: %v\n", *envfile, err)
		os.Exit(1)
	}
	if *variant != "" {
		os.Setenv(c.EnvVariant, *variant)
	}
	switch *mode {
	case modeTUI, modeHW, modeHeadless:
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode %q\n", *mode)
		os.Exit(1)
	}

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	app := NewApp(ossignal, *conffile, *mode)
	app.viewer = *viewer
	if err := app.initialise(); err != nil {
		logging.Close()
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}

	watcher, err := app.watchConfig()
	if err != nil {
		slog.Warn("Config file is not watched", "file", app.conffile, "error", err)
	}

	for {
		select {
		case sig := <-ossignal:
			if sig != syscall.SIGHUP {
				slog.Info("Shutting down", "signal", sig.String())
				if watcher != nil {
					watcher.Close()
				}
				app.shutdown()
				logging.Close()
				os.Exit(0)
			}
			slog.Info("Reloading configuration", "file", app.conffile)
			app.reload()
		case <-app.reloads.Channel():
			changes := app.reloads.ConsumeValues()
			slog.Info("Config file changed, reloading", "changes", len(changes))
			app.reload()
		}
	}
}

// reload restarts everything from a freshly read config. A config that
// fails to load keeps the old one running.
func (a *App) reload() {
	conf, err := a.readConfig()
	if err != nil {
		slog.Error("Reload aborted, keeping current configuration", "error", err)
		return
	}
	a.shutdown()
	if a.mode == modeTUI {
		logging.BufferOutput()
	}
	if err := a.start(conf); err != nil {
		slog.Error("Restart after reload failed", "error", err)
		a.ossignal <- os.Interrupt
	}
}

func (a *App) readConfig() (*c.Config, error) {
	conf, err := c.ReadConfig(a.conffile)
	if errors.Is(err, os.ErrNotExist) {
		variant := os.Getenv(c.EnvVariant)
		if variant == "" {
			variant = c.Default().Device.Variant
		}
		return c.ForVariant(variant)
	}
	return conf, err
}

func (a *App) initialise() error {
	conf, err := a.readConfig()
	if err != nil {
		return err
	}
	logConf := conf.Logging.HW
	if a.mode == modeTUI {
		logConf = conf.Logging.TUI
	}
	if err := logging.Init(a.mode == modeTUI, logConf); err != nil {
		return err
	}
	return a.start(conf)
}

// start brings up the components in dependency order: link, OTA
// receiver, output platform, device loop and finally the HTTP server.
func (a *App) start(conf *c.Config) error {
	a.conf = conf
	a.stopsignal = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.startLink(ctx)

	var otaCh d.OTAChannel
	var restarter ota.Restarter
	if conf.OTA.ListenAddr != "" {
		inst := ota.NewInstaller(a.firmwarePath())
		r, err := a.startReceiver(inst)
		if err != nil {
			cancel()
			return err
		}
		otaCh = r
		restarter = ota.ExecRestarter{Path: inst.Path, Installer: inst}
	}

	if err := a.startPlatform(); err != nil {
		a.stopReceiver()
		cancel()
		return err
	}
	<-a.platform.Ready()

	dev, err := d.New(ctx, conf, a.link, a.platform, otaCh, restarter, a.clock)
	if err != nil {
		a.platform.Stop()
		a.stopReceiver()
		cancel()
		return fmt.Errorf("can't create device: %w", err)
	}
	a.device = dev
	a.current.Store(dev)
	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		if err := dev.Run(ctx); err != nil {
			slog.Error("Device loop failed", "error", err)
		}
	}()

	a.server = server.New(dev, conf.HTTP, conf.OTA.ListenAddr, a.conffile)
	if err := a.server.Start(); err != nil {
		slog.Error("HTTP server not available", "error", err)
		a.server = nil
	}

	a.shutdownWg.Add(1)
	go a.statusManager()

	slog.Info("Device running", "name", conf.Device.Name, "variant", conf.Device.Variant, "mode", a.mode)
	return nil
}

func (a *App) startLink(ctx context.Context) {
	a.simLink, a.netLink = nil, nil
	if a.conf.Link.Kind == "sim" {
		a.simLink = l.NewSimLink(a.conf.Link.SimConnected, a.clock)
		a.link = a.simLink
		return
	}
	lc := a.conf.Link
	a.netLink = l.NewNetLink(lc.ProbeAddress, lc.ProbeTimeout, lc.ProbeInterval, lc.ReconnectMin, lc.ReconnectMax, a.clock)
	a.netLink.Start(ctx)
	a.link = a.netLink
}

func (a *App) startReceiver(inst *ota.Installer) (*ota.Receiver, error) {
	oc := a.conf.OTA
	opts := ota.Options{
		ListenAddr:   oc.ListenAddr,
		Password:     oc.Password,
		RequireArm:   oc.RequireArm,
		ArmWindow:    oc.ArmWindow,
		ReadTimeout:  oc.ReadTimeout,
		MaxImageSize: oc.MaxImageSize,
	}
	a.receiver = ota.NewReceiver(opts, inst, a.clock)
	if err := a.receiver.Start(); err != nil {
		a.receiver = nil
		return nil, err
	}
	return a.receiver, nil
}

func (a *App) stopReceiver() {
	if a.receiver != nil {
		a.receiver.Stop()
		a.receiver = nil
	}
}

// firmwarePath is where pushed images are installed, by default over the
// running binary.
func (a *App) firmwarePath() string {
	if a.conf.OTA.FirmwarePath != "" {
		return a.conf.OTA.FirmwarePath
	}
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join(os.TempDir(), "ledplans.bin")
	}
	return exe
}

func (a *App) startPlatform() error {
	a.tui, a.status = nil, nil
	switch a.mode {
	case modeTUI:
		controls := pl.Controls{
			SetPlan: func(p plan.Plan) {
				ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if dev := a.current.Load(); dev != nil {
					if _, err := dev.SetPlan(ctx, p); err != nil {
						slog.Warn("Plan from keyboard rejected", "plan", p, "error", err)
					}
				}
			},
		}
		if a.simLink != nil {
			controls.ToggleLink = a.simLink.Toggle
		}
		v, err := a.conf.Variant()
		if err != nil {
			return err
		}
		a.tui = pl.NewTUIPlatform(a.conf, v.Plans, controls, a.ossignal)
		a.platform = a.tui
	case modeHW:
		rpi := pl.NewRaspberryPiPlatform(a.conf)
		if a.viewer {
			a.status = pl.NewStatusViewer(a.ossignal)
			rpi.SetStatusViewer(a.status)
		}
		a.platform = rpi
	default:
		a.platform = pl.NewHeadlessPlatform(a.conf)
	}
	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("can't start platform: %w", err)
	}
	return nil
}

// statusManager feeds the terminal views from the published snapshots.
func (a *App) statusManager() {
	defer a.shutdownWg.Done()
	if a.tui == nil && a.status == nil {
		<-a.stopsignal
		return
	}
	ticker := a.clock.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopsignal:
			return
		case <-ticker.Chan():
			snap := a.device.Snapshot()
			if a.tui != nil {
				a.tui.ShowStatus(snap)
			}
			if a.status != nil {
				a.status.Update(snap)
			}
		}
	}
}

// shutdown stops the components in reverse order of start.
func (a *App) shutdown() {
	if a.stopsignal == nil {
		return
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		a.server.Stop(ctx)
		cancel()
		a.server = nil
	}
	a.current.Store(nil)
	close(a.stopsignal)
	a.cancel()
	a.shutdownWg.Wait()
	a.stopsignal = nil
	a.device = nil

	a.stopReceiver()
	if a.netLink != nil {
		a.netLink.Stop()
	}
	if a.platform != nil {
		a.platform.Stop()
		a.platform = nil
	}
	slog.Info("All components stopped")
}

// watchConfig watches the directory of the config file, since editors
// often replace the file instead of writing it. Changes are coalesced
// and announced on a.reloads after they settled.
func (a *App) watchConfig() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(a.conffile)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var settle <-chan time.Time
		pending := map[string]fsnotify.Op{}
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				pending[ev.Name] |= ev.Op
				settle = a.clock.After(reloadSettle)
			case <-settle:
				for name, op := range pending {
					a.reloads.Send(name, op)
				}
				pending = map[string]fsnotify.Op{}
				settle = nil
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}

// Local Variables:
// compile-command: "go build"
// End:
