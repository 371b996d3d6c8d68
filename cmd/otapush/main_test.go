package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamingods.net/ledplans/ota"
)

type fixture struct {
	opts      options
	installed string
	recv      *ota.Receiver
	busy      atomic.Bool
	arms      atomic.Int32
}

func newFixture(t *testing.T, image []byte) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{installed: filepath.Join(dir, "installed")}

	f.recv = ota.NewReceiver(ota.Options{
		Password:     "flamingo",
		RequireArm:   true,
		ArmWindow:    time.Minute,
		ReadTimeout:  2 * time.Second,
		MaxImageSize: 1 << 20,
	}, ota.NewInstaller(f.installed), clockwork.NewRealClock())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f.recv.Serve(ln)
	t.Cleanup(f.recv.Stop)

	mux := http.NewServeMux()
	mux.HandleFunc("/ota-status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "ota_in_progress": f.busy.Load(), "ota_progress": 40})
	})
	mux.HandleFunc("/ota", func(w http.ResponseWriter, r *http.Request) {
		f.arms.Add(1)
		require.NoError(t, f.recv.Arm())
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "message": "OTA update ready"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	host, httpPort, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	_, otaPort, err := net.SplitHostPort(f.recv.Addr().String())
	require.NoError(t, err)

	firmware := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(firmware, image, 0o644))
	f.opts = options{
		host:     host,
		httpPort: httpPort,
		otaPort:  otaPort,
		password: "flamingo",
		firmware: firmware,
	}
	return f
}

func TestRunUploadsFirmware(t *testing.T) {
	image := bytes.Repeat([]byte{0x5A}, 20000)
	f := newFixture(t, image)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), f.opts, &out))

	assert.EqualValues(t, 1, f.arms.Load())
	got, err := os.ReadFile(f.installed)
	require.NoError(t, err)
	assert.Equal(t, image, got)
	assert.Contains(t, out.String(), "100%")
	assert.Contains(t, out.String(), "Uploaded 20000 bytes")
}

func TestRunRefusesWhileUpdateRuns(t *testing.T) {
	f := newFixture(t, []byte("firmware"))
	f.busy.Store(true)

	err := run(context.Background(), f.opts, &bytes.Buffer{})
	require.ErrorIs(t, err, ota.ErrBusy)
	assert.Contains(t, err.Error(), "40%")
	assert.Zero(t, f.arms.Load())
	assert.NoFileExists(t, f.installed)
}

func TestRunWrongPassword(t *testing.T) {
	f := newFixture(t, []byte("firmware"))
	f.opts.password = "pelican"

	err := run(context.Background(), f.opts, &bytes.Buffer{})
	require.ErrorIs(t, err, ota.ErrAuth)
	assert.NoFileExists(t, f.installed)
}

func TestRunEmptyImage(t *testing.T) {
	f := newFixture(t, nil)
	err := run(context.Background(), f.opts, &bytes.Buffer{})
	require.Error(t, err)
	assert.Zero(t, f.arms.Load())
}
