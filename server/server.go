// Package server is the HTTP command surface of a device. Plan triggers
// and station messages are handed to the device loop; everything else is
// answered from the last published snapshot.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/device"
	"flamingods.net/ledplans/plan"
)

// Device is what the server needs from the device loop.
type Device interface {
	SetPlan(ctx context.Context, p plan.Plan) (plan.Plan, error)
	Station(ctx context.Context, m device.StationMessage) (plan.Plan, error)
	ArmOTA(ctx context.Context) error
	Snapshot() device.Snapshot
	Updates() <-chan struct{}
	Variant() *plan.Variant
}

type Server struct {
	dev        Device
	conf       config.HTTPConfig
	otaAddr    string
	configFile string
	router     *mux.Router
	hub        *StatusHub
	srv        *http.Server
	ln         net.Listener
	cancel     context.CancelFunc
}

// New builds the router. configFile may be empty, which disables
// /api/config.
func New(dev Device, conf config.HTTPConfig, otaAddr, configFile string) *Server {
	s := &Server{
		dev:        dev,
		conf:       conf,
		otaAddr:    otaAddr,
		configFile: configFile,
		hub:        NewStatusHub(dev, conf.StreamInterval),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	v := s.dev.Variant()
	for _, p := range v.Plans {
		// the fallback plan follows the link and is never commanded
		if v.HasFallback() && p == v.Fallback {
			continue
		}
		r.HandleFunc("/"+p.String(), s.handlePlan(p)).Methods(http.MethodPost)
	}
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/ota", s.handleOTA).Methods(http.MethodPost)
	r.HandleFunc("/ota-status", s.handleOTAStatus).Methods(http.MethodGet)
	r.HandleFunc("/station-color", s.handleStation("color")).Methods(http.MethodPost)
	r.HandleFunc("/station-mixed-color", s.handleStation("mixed-color")).Methods(http.MethodPost)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/preview.png", s.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)
	if s.configFile != "" {
		r.HandleFunc("/api/config", config.ConfigHandler(s.configFile)).Methods(http.MethodGet, http.MethodPost)
	}

	// a known path with the wrong method is as unknown as any other
	r.NotFoundHandler = requestLogger(http.HandlerFunc(handleNotFound))
	r.MethodNotAllowedHandler = requestLogger(http.HandlerFunc(handleNotFound))
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.conf.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.conf.ListenAddr, err)
	}
	if s.conf.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.conf.MaxConnections)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	go func() {
		slog.Info("HTTP server started", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Addr is the address the server listens on, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop shuts the server down, waiting for running requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server shutdown", "error", err)
	}
	slog.Info("HTTP server stopped")
}
