package ota

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Progress events are sent in steps of this many percent.
const progressStep = 5

// Options configures a Receiver.
type Options struct {
	ListenAddr string
	// Empty disables authentication.
	Password     string
	RequireArm   bool
	ArmWindow    time.Duration
	ReadTimeout  time.Duration
	MaxImageSize int64
}

// Receiver accepts firmware pushes on a TCP port, one at a time. The line
// protocol is
//
//	client: PUSH <size> <sha256>
//	server: BUSY | DENIED | OK | AUTH <nonce>
//	client: hex(hmac-sha256(password, nonce))    (after AUTH only)
//	server: OK | ERR auth
//	client: <size bytes>
//	server: DONE | ERR <code>
type Receiver struct {
	opts      Options
	installer *Installer
	clock     clockwork.Clock
	events    chan Event

	busy       atomic.Bool
	mu         sync.Mutex
	armedUntil time.Time

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReceiver(opts Options, installer *Installer, clock clockwork.Clock) *Receiver {
	return &Receiver{
		opts:      opts,
		installer: installer,
		clock:     clock,
		events:    make(chan Event, 64),
	}
}

// Events delivers session events to the device loop.
func (r *Receiver) Events() <-chan Event {
	return r.events
}

// Start listens on the configured address and serves in the background.
func (r *Receiver) Start() error {
	ln, err := net.Listen("tcp", r.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("OTA listen on %s: %w", r.opts.ListenAddr, err)
	}
	r.Serve(ln)
	return nil
}

// Serve accepts pushes on ln in the background.
func (r *Receiver) Serve(ln net.Listener) {
	r.ln = ln
	r.ctx, r.cancel = context.WithCancel(context.Background())
	slog.Info("OTA receiver listening", "address", ln.Addr().String())
	r.wg.Add(1)
	go r.acceptLoop()
}

func (r *Receiver) Addr() net.Addr {
	return r.ln.Addr()
}

func (r *Receiver) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.ln.Close()
	r.wg.Wait()
}

// InProgress reports whether a transfer currently holds the receiver.
func (r *Receiver) InProgress() bool {
	return r.busy.Load()
}

// Arm allows one push within the arm window.
func (r *Receiver) Arm() error {
	if r.busy.Load() {
		return ErrBusy
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armedUntil = r.clock.Now().Add(r.opts.ArmWindow)
	slog.Info("OTA armed", "until", r.armedUntil)
	return nil
}

func (r *Receiver) consumeArm() bool {
	if !r.opts.RequireArm {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.clock.Now().Before(r.armedUntil)
	r.armedUntil = time.Time{}
	return ok
}

func (r *Receiver) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if r.ctx.Err() == nil {
				slog.Error("OTA accept failed", "error", err)
			}
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(conn)
		}()
	}
}

func (r *Receiver) emit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func (r *Receiver) fail(conn net.Conn, id string, code ErrorCode, err error) {
	slog.Error("OTA failed", "session", id, "code", code, "error", err)
	r.emit(Event{Kind: Error, Session: id, Code: code})
	reply(conn, "ERR "+code.String())
}

func (r *Receiver) handle(conn net.Conn) {
	defer conn.Close()
	in := &deadlineReader{conn: conn, br: bufio.NewReader(conn), timeout: r.opts.ReadTimeout}
	remote := conn.RemoteAddr().String()

	line, err := in.readLine()
	if err != nil {
		slog.Debug("OTA connection closed before request", "remote", remote, "error", err)
		return
	}
	size, sum, err := parsePush(line)
	if err == nil && size > r.opts.MaxImageSize {
		err = fmt.Errorf("image of %d bytes exceeds limit of %d", size, r.opts.MaxImageSize)
	}
	if err != nil {
		slog.Warn("Rejecting OTA request", "remote", remote, "error", err)
		reply(conn, "ERR "+BeginError.String())
		return
	}
	if !r.busy.CompareAndSwap(false, true) {
		slog.Warn("Rejecting OTA push, session in progress", "remote", remote)
		reply(conn, "BUSY")
		return
	}
	defer r.busy.Store(false)
	if !r.consumeArm() {
		slog.Warn("Rejecting OTA push, not armed", "remote", remote)
		reply(conn, "DENIED")
		return
	}

	if r.opts.Password != "" {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			r.fail(conn, "", BeginError, err)
			return
		}
		reply(conn, "AUTH "+hex.EncodeToString(nonce))
		answer, err := in.readLine()
		if err != nil {
			r.fail(conn, "", ConnectError, err)
			return
		}
		got, err := hex.DecodeString(answer)
		if err != nil || !hmac.Equal(got, Sign(r.opts.Password, hex.EncodeToString(nonce))) {
			slog.Warn("OTA authentication failed", "remote", remote)
			r.emit(Event{Kind: Error, Code: AuthError})
			reply(conn, "ERR auth")
			return
		}
	}

	id := uuid.NewString()
	slog.Info("OTA session started", "session", id, "remote", remote, "size", size)
	r.emit(Event{Kind: Start, Session: id})
	reply(conn, "OK")

	last := 0
	err = r.installer.Install(in, size, sum, func(written int64) {
		percent := int(written * 100 / max(size, 1))
		if percent-last < progressStep && percent != 100 {
			return
		}
		last = percent
		// progress is best effort, the loop only needs the latest value
		select {
		case r.events <- Event{Kind: Progress, Session: id, Percent: percent}:
		default:
		}
	})
	if err != nil {
		code := ReceiveError
		var coded *CodedError
		if errors.As(err, &coded) {
			code = coded.Code
		}
		r.fail(conn, id, code, err)
		return
	}
	slog.Info("OTA session finished", "session", id)
	r.emit(Event{Kind: End, Session: id, Percent: 100})
	reply(conn, "DONE")
}

// Sign computes the answer to an AUTH challenge.
func Sign(password, nonce string) []byte {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(nonce))
	return mac.Sum(nil)
}

func parsePush(line string) (int64, string, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "PUSH" {
		return 0, "", fmt.Errorf("malformed request %q", line)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size <= 0 {
		return 0, "", fmt.Errorf("invalid size %q", fields[1])
	}
	return size, fields[2], nil
}

func reply(conn net.Conn, line string) {
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		slog.Debug("OTA reply failed", "error", err)
	}
}

// deadlineReader renews the read deadline before every read, so a
// stalled peer surfaces as a timeout error.
type deadlineReader struct {
	conn    net.Conn
	br      *bufio.Reader
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.br.Read(p)
}

func (d *deadlineReader) readLine() (string, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return "", err
	}
	line, err := d.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
