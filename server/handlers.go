package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/ota"
	"flamingods.net/ledplans/plan"
)

const (
	commandTimeout = 2 * time.Second
	maxStationBody = 4 << 10
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Plan    string `json:"plan,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, statusResponse{Status: "error", Message: msg})
}

// commandStatus maps errors of the device command path to HTTP codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, device.ErrInvalidStation), errors.Is(err, plan.ErrUnknownPlan):
		return http.StatusBadRequest
	case errors.Is(err, ota.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) handlePlan(p plan.Plan) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Plan requested", "plan", p, "remote", r.RemoteAddr)
		ctx, cancel := contextWithTimeout(r, commandTimeout)
		defer cancel()
		got, err := s.dev.SetPlan(ctx, p)
		if err != nil {
			writeError(w, commandStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Plan: got.String()})
	}
}

func (s *Server) handleStation(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m device.StationMessage
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStationBody))
		if err := dec.Decode(&m); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if m.Action != action {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("action must be %q", action))
			return
		}
		ctx, cancel := contextWithTimeout(r, commandTimeout)
		defer cancel()
		got, err := s.dev.Station(ctx, m)
		if err != nil {
			writeError(w, commandStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Plan: got.String()})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "OK")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	snap := s.dev.Snapshot()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "success",
		"firmware_version": snap.FirmwareVersion,
		"device":           snap.Device,
	})
}

func (s *Server) handleOTA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, commandTimeout)
	defer cancel()
	if err := s.dev.ArmOTA(ctx); err != nil {
		slog.Warn("OTA request refused", "error", err)
		writeError(w, commandStatus(err), err.Error())
		return
	}
	msg := "OTA update ready"
	if _, port, err := net.SplitHostPort(s.otaAddr); err == nil {
		msg = fmt.Sprintf("OTA update ready. Push firmware to port %s", port)
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: msg})
}

type otaStatus struct {
	Status      string `json:"status"`
	InProgress  bool   `json:"ota_in_progress"`
	Progress    int    `json:"ota_progress"`
	Uptime      int64  `json:"uptime"`
	OTADuration *int64 `json:"ota_duration,omitempty"`
}

func (s *Server) handleOTAStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.dev.Snapshot()
	writeJSON(w, http.StatusOK, otaStatus{
		Status:      "success",
		InProgress:  snap.OTAInProgress,
		Progress:    snap.OTAProgress,
		Uptime:      snap.Uptime,
		OTADuration: snap.OTADuration,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.dev.Snapshot().History
	if history == nil {
		history = []plan.Transition{}
	}
	writeJSON(w, http.StatusOK, history)
}

// handleNotFound echoes the request back as a debugging aid.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	var buf strings.Builder
	buf.WriteString("File Not Found\n\n")
	fmt.Fprintf(&buf, "URI: %s\n", r.URL.Path)
	fmt.Fprintf(&buf, "Method: %s\n", r.Method)
	names := make([]string, 0, len(r.Form))
	args := 0
	for name, values := range r.Form {
		names = append(names, name)
		args += len(values)
	}
	sort.Strings(names)
	fmt.Fprintf(&buf, "Arguments: %d\n", args)
	for _, name := range names {
		for _, v := range r.Form[name] {
			fmt.Fprintf(&buf, " %s: %s\n", name, v)
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, buf.String())
}
