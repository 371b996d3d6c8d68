package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/led"
	"flamingods.net/ledplans/link"
	"flamingods.net/ledplans/ota"
	"flamingods.net/ledplans/plan"
)

type fakeDevice struct {
	mu       sync.Mutex
	variant  *plan.Variant
	snap     device.Snapshot
	plans    []plan.Plan
	stations []device.StationMessage
	arms     int
	armErr   error
	updates  chan struct{}
}

func newFakeDevice(t *testing.T, variant string) *fakeDevice {
	t.Helper()
	v, err := plan.LookupVariant(variant)
	require.NoError(t, err)
	frame := led.NewFrame(v.Strips, v.LedsPerStrip)
	return &fakeDevice{
		variant: v,
		snap: device.Snapshot{
			Status:          "success",
			CurrentPlan:     "idle",
			WiFiConnected:   true,
			FirmwareVersion: config.FirmwareVersion,
			Device:          v.DeviceID,
			Plans:           v.PlanNames(),
			Frame:           frame,
			History:         []plan.Transition{{From: plan.None, To: plan.Idle, Reason: plan.ReasonBoot}},
		},
		updates: make(chan struct{}, 1),
	}
}

func (f *fakeDevice) SetPlan(_ context.Context, p plan.Plan) (plan.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, p)
	return p, nil
}

func (f *fakeDevice) Station(_ context.Context, m device.StationMessage) (plan.Plan, error) {
	if err := m.Validate(); err != nil {
		return plan.None, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations = append(f.stations, m)
	return plan.Button, nil
}

func (f *fakeDevice) ArmOTA(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armErr != nil {
		return f.armErr
	}
	f.arms++
	return nil
}

func (f *fakeDevice) Snapshot() device.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeDevice) Updates() <-chan struct{} { return f.updates }
func (f *fakeDevice) Variant() *plan.Variant   { return f.variant }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return doc
}

func TestPlanEndpoints(t *testing.T) {
	dev := newFakeDevice(t, "crown")
	h := New(dev, config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodPost, "/button", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","plan":"button"}`, rec.Body.String())

	// the fallback plan, plans of other variants and wrong methods are
	// unknown routes
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/wifi_fallback", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/show", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/button", "").Code)
	assert.Equal(t, []plan.Plan{plan.Button}, dev.plans)
}

func TestStatusAndVersion(t *testing.T) {
	dev := newFakeDevice(t, "stage")
	h := New(dev, config.Default().HTTP, ":3232", "").Handler()

	doc := decode(t, do(t, h, http.MethodGet, "/status", ""))
	for _, key := range []string{"status", "current_plan", "wifi_connected", "ip_address", "rssi", "uptime",
		"firmware_version", "device", "ota_in_progress", "ota_progress"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "ota_duration")

	doc = decode(t, do(t, h, http.MethodGet, "/version", ""))
	assert.Equal(t, map[string]any{"status": "success", "firmware_version": config.FirmwareVersion, "device": "stage-esp32"}, doc)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/history", "")
	var history []plan.Transition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, plan.Idle, history[0].To)
}

func TestOTAEndpoints(t *testing.T) {
	dev := newFakeDevice(t, "stage")
	h := New(dev, config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodPost, "/ota", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Equal(t, "success", doc["status"])
	assert.Contains(t, doc["message"], "port 3232")
	assert.Equal(t, 1, dev.arms)

	dev.armErr = ota.ErrBusy
	rec = do(t, h, http.MethodPost, "/ota", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"OTA already in progress"}`, rec.Body.String())
	assert.Equal(t, 1, dev.arms)

	secs := int64(12)
	dev.snap.OTAInProgress = true
	dev.snap.OTAProgress = 40
	dev.snap.Uptime = 99
	dev.snap.OTADuration = &secs
	assert.JSONEq(t, `{"status":"success","ota_in_progress":true,"ota_progress":40,"uptime":99,"ota_duration":12}`,
		do(t, h, http.MethodGet, "/ota-status", "").Body.String())

	dev.snap.OTAInProgress = false
	dev.snap.OTADuration = nil
	assert.JSONEq(t, `{"status":"success","ota_in_progress":false,"ota_progress":40,"uptime":99}`,
		do(t, h, http.MethodGet, "/ota-status", "").Body.String())
}

func TestStationEndpoints(t *testing.T) {
	dev := newFakeDevice(t, "crown")
	h := New(dev, config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodPost, "/station-color",
		`{"station_id":1,"station_name":"Station 1","action":"color","color":"red","timestamp":12345}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","plan":"button"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/station-mixed-color",
		`{"station_id":1,"action":"mixed-color","colors":["red","blue"],"timestamp":12345}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for name, body := range map[string]string{
		"broken json":     `{"station_id":1,`,
		"unknown color":   `{"station_id":1,"action":"color","color":"purple"}`,
		"action mismatch": `{"station_id":1,"action":"mixed-color","colors":["red"]}`,
		"no station":      `{"action":"color","color":"red"}`,
	} {
		rec := do(t, h, http.MethodPost, "/station-color", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, "error", decode(t, rec)["status"], name)
	}
	assert.Len(t, dev.stations, 2)

	rec = do(t, h, http.MethodPost, "/station-color", strings.Repeat(" ", maxStationBody+1)+"{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundEchoesRequest(t *testing.T) {
	h := New(newFakeDevice(t, "stage"), config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodGet, "/disco?speed=fast&color=red&color=blue", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File Not Found\n\nURI: /disco\nMethod: GET\nArguments: 3\n"+
		" color: red\n color: blue\n speed: fast\n", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/", "")
	assert.Equal(t, "File Not Found\n\nURI: /\nMethod: POST\nArguments: 0\n", rec.Body.String())
}

func TestRequestID(t *testing.T) {
	h := New(newFakeDevice(t, "stage"), config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set(requestIDHeader, "6f1c1a52-9d3e-4a8e-9a55-5b0f0b7e2a11")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "6f1c1a52-9d3e-4a8e-9a55-5b0f0b7e2a11", rec.Header().Get(requestIDHeader))
}

func TestPreview(t *testing.T) {
	dev := newFakeDevice(t, "flamingo")
	dev.snap.Frame.Strips[1][3] = led.Led{Red: 255}
	h := New(dev, config.Default().HTTP, ":3232", "").Handler()

	rec := do(t, h, http.MethodGet, "/preview.png?scale=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	r, g, b, _ := img.At(7, 3).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/preview.png?scale=0", "").Code)

	dev.snap.Frame = nil
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/preview.png", "").Code)
}

func TestWebsocketStream(t *testing.T) {
	dev := newFakeDevice(t, "stage")
	conf := config.Default().HTTP
	conf.StreamInterval = 10 * time.Millisecond
	s := New(dev, conf, ":3232", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first device.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "idle", first.CurrentPlan)

	dev.mu.Lock()
	dev.snap.CurrentPlan = "show"
	dev.mu.Unlock()
	dev.updates <- struct{}{}

	var next device.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "show", next.CurrentPlan)
}

func TestWithRunningDevice(t *testing.T) {
	cfg, err := config.ForVariant("crown")
	require.NoError(t, err)
	clock := clockwork.NewRealClock()
	dev, err := device.New(context.Background(), cfg, link.NewSimLink(true, clock), nil, nil, nil, clock)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx)

	h := New(dev, cfg.HTTP, cfg.OTA.ListenAddr, "").Handler()

	rec := do(t, h, http.MethodPost, "/station-color", `{"station_id":3,"action":"color","color":"orange"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "idle", dev.Snapshot().CurrentPlan)

	rec = do(t, h, http.MethodPost, "/button", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool {
		return dev.Snapshot().CurrentPlan == "button"
	}, time.Second, 10*time.Millisecond)

	// OTA is not wired up in this device
	rec = do(t, h, http.MethodPost, "/ota", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
