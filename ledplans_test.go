package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "flamingods.net/ledplans/config"
)

func writeConfig(t *testing.T, file, variant string) {
	t.Helper()
	firmware := filepath.Join(filepath.Dir(file), "firmware.bin")
	content := fmt.Sprintf(`Device:
  Variant: %s
Link:
  Kind: sim
  SimConnected: false
OTA:
  ListenAddr: 127.0.0.1:0
  FirmwarePath: %s
HTTP:
  ListenAddr: 127.0.0.1:0
`, variant, firmware)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
}

func newTestApp(t *testing.T, variant string) *App {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, file, variant)
	app := NewApp(make(chan os.Signal, 1), file, modeHeadless)
	require.NoError(t, app.initialise())
	t.Cleanup(app.shutdown)
	return app
}

func getStatus(t *testing.T, app *App) map[string]any {
	t.Helper()
	require.NotNil(t, app.server)
	resp, err := http.Get("http://" + app.server.Addr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestInitialiseWiresComponents(t *testing.T) {
	app := newTestApp(t, "crown")

	require.NotNil(t, app.device)
	require.NotNil(t, app.simLink)
	assert.Nil(t, app.netLink)
	require.NotNil(t, app.receiver)

	status := getStatus(t, app)
	assert.Equal(t, "crown-esp32", status["device"])
	// the simulated link starts disconnected
	assert.Equal(t, "wifi_fallback", status["current_plan"])
	assert.Equal(t, false, status["wifi_connected"])
}

func TestShutdownStopsEverything(t *testing.T) {
	app := newTestApp(t, "stage")
	addr := app.server.Addr().String()

	app.shutdown()

	assert.Nil(t, app.device)
	assert.Nil(t, app.server)
	assert.Nil(t, app.receiver)
	assert.Nil(t, app.current.Load())
	_, err := http.Get("http://" + addr + "/health")
	assert.Error(t, err)

	// a second shutdown is harmless
	app.shutdown()
}

func TestReloadSwitchesVariant(t *testing.T) {
	app := newTestApp(t, "stage")
	assert.Equal(t, "stage-esp32", getStatus(t, app)["device"])

	writeConfig(t, app.conffile, "flamingo")
	app.reload()

	assert.Equal(t, "flamingo", app.conf.Device.Variant)
	assert.Equal(t, 4, app.conf.Hardware.Strips)
	status := getStatus(t, app)
	assert.Equal(t, "idle", status["current_plan"])
	assert.Equal(t, []any{"idle", "moving"}, status["plans"])
}

func TestReloadKeepsRunningOnBrokenConfig(t *testing.T) {
	app := newTestApp(t, "crown")
	dev := app.device

	require.NoError(t, os.WriteFile(app.conffile, []byte("Device:\n  Variant: lamp\n"), 0o644))
	app.reload()

	assert.Same(t, dev, app.device)
	assert.Equal(t, "crown-esp32", getStatus(t, app)["device"])
	select {
	case sig := <-app.ossignal:
		t.Fatalf("unexpected signal %v", sig)
	default:
	}
}

func TestReadConfigWithoutFile(t *testing.T) {
	t.Setenv(c.EnvVariant, "flamingo")
	app := NewApp(make(chan os.Signal, 1), filepath.Join(t.TempDir(), "missing.yml"), modeHeadless)

	conf, err := app.readConfig()
	require.NoError(t, err)
	assert.Equal(t, "flamingo", conf.Device.Variant)
	assert.Equal(t, 4, conf.Hardware.Strips)
	assert.Equal(t, 100, conf.Hardware.LedsPerStrip)
}

func TestWatchConfigCoalescesWrites(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yml")
	writeConfig(t, file, "stage")
	app := NewApp(make(chan os.Signal, 1), file, modeHeadless)

	watcher, err := app.watchConfig()
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(file), "other.yml"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		writeConfig(t, file, "crown")
	}

	select {
	case <-app.reloads.Channel():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload announced")
	}
	changes := app.reloads.ConsumeValues()
	abs, err := filepath.Abs(file)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Contains(t, changes, abs)
	assert.False(t, app.reloads.HasPending())
}
