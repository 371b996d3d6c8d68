package link

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"flamingods.net/ledplans/util"
)

// WirelessStats is the kernel file with per interface signal levels.
const WirelessStats = "/proc/net/wireless"

// NetLink considers the device connected while a TCP connection to the
// probe address can be established. A background goroutine probes every
// interval regardless of the outcome. Reconnect requests trigger an extra
// attempt right away, throttled by an exponential backoff while the link
// stays down.
type NetLink struct {
	address   string
	timeout   time.Duration
	interval  time.Duration
	minBack   time.Duration
	maxBack   time.Duration
	statsFile string
	clock     clockwork.Clock
	dial      func(ctx context.Context, network, address string) (net.Conn, error)
	status    *util.AtomicEvent[Status]
	reconnect chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewNetLink(address string, timeout, interval, minBack, maxBack time.Duration, clock clockwork.Clock) *NetLink {
	d := &net.Dialer{Timeout: timeout}
	return &NetLink{
		address:   address,
		timeout:   timeout,
		interval:  interval,
		minBack:   minBack,
		maxBack:   maxBack,
		statsFile: WirelessStats,
		clock:     clock,
		dial:      d.DialContext,
		status:    util.NewAtomicEvent[Status](),
		reconnect: make(chan struct{}, 1),
	}
}

func (l *NetLink) Status() Status {
	return l.status.Value()
}

func (l *NetLink) Probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	st := Status{CheckedAt: l.clock.Now()}
	conn, err := l.dial(ctx, "tcp", l.address)
	if err != nil {
		slog.Debug("Link probe failed", "address", l.address, "error", err)
		l.status.Send(st)
		return st
	}
	defer conn.Close()
	st.Connected = true
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		st.IP = addr.IP.String()
	}
	if rssi, ok := readRSSI(l.statsFile); ok {
		st.RSSI = rssi
	}
	l.status.Send(st)
	return st
}

func (l *NetLink) Reconnect() {
	select {
	case l.reconnect <- struct{}{}:
	default:
	}
}

// Start launches the background prober.
func (l *NetLink) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.run(ctx)
}

func (l *NetLink) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *NetLink) run(ctx context.Context) {
	defer l.wg.Done()
	backoff := l.minBack
	var nextAttempt time.Time
	for {
		if l.Probe(ctx).Connected {
			backoff = l.minBack
			nextAttempt = time.Time{}
		}
		if !l.wait(ctx, &backoff, &nextAttempt) {
			return
		}
	}
}

// wait blocks until the next probe is due. It returns false once ctx is
// done.
func (l *NetLink) wait(ctx context.Context, backoff *time.Duration, nextAttempt *time.Time) bool {
	timer := l.clock.NewTimer(l.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case <-l.reconnect:
			now := l.clock.Now()
			if now.Before(*nextAttempt) {
				continue
			}
			*nextAttempt = now.Add(*backoff)
			*backoff = min(*backoff*2, l.maxBack)
			return true
		}
	}
}

// readRSSI returns the signal level in dBm of the first wireless
// interface listed in the kernel statistics.
func readRSSI(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for line := 0; scanner.Scan(); line++ {
		// two header lines
		if line < 2 {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			continue
		}
		return int(level), true
	}
	return 0, false
}
