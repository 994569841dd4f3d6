// Package api is the HTTP query interface: latest readings, on-demand fixes,
// logging control, a live websocket feed and debug views.
package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/db"
	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/telemetry"
	"github.com/banshee-data/aoa.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Config wires the server to the rest of the process. Only Locator is
// required; optional parts that are nil switch their routes off.
type Config struct {
	Locator           *aoa.Locator
	Logging           *telemetry.LoggingState
	Recorder          *telemetry.Recorder
	DB                *db.DB
	Stats             *network.PacketStats
	Hub               *Hub
	Clock             timeutil.Clock
	DefaultSeparation float64
	UDPAddress        string
	StaleAfter        time.Duration
}

type Server struct {
	locator  *aoa.Locator
	logging  *telemetry.LoggingState
	recorder *telemetry.Recorder
	db       *db.DB
	stats    *network.PacketStats
	hub      *Hub
	clock    timeutil.Clock

	defaultSeparation float64
	udpAddress        string
	staleAfter        time.Duration

	// lastSeparation is the D of the most recent /api/grid query; the plot
	// and history views default to it.
	sepMu          sync.Mutex
	lastSeparation float64
}

func NewServer(cfg Config) *Server {
	s := &Server{
		locator:           cfg.Locator,
		logging:           cfg.Logging,
		recorder:          cfg.Recorder,
		db:                cfg.DB,
		stats:             cfg.Stats,
		hub:               cfg.Hub,
		clock:             cfg.Clock,
		defaultSeparation: cfg.DefaultSeparation,
		udpAddress:        cfg.UDPAddress,
		staleAfter:        cfg.StaleAfter,
	}
	if s.locator == nil {
		s.locator = aoa.NewLocator(aoa.LocatorConfig{})
	}
	if s.logging == nil {
		s.logging = telemetry.NewLoggingState()
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.defaultSeparation <= 0 {
		s.defaultSeparation = 2.0
	}
	s.lastSeparation = s.defaultSeparation
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack is needed by the websocket upgrade on /api/live.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the routes. Admin routes for the database are mounted
// under /debug/ when a database is configured.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/grid", s.handleGrid)
	mux.HandleFunc("/api/position", s.handlePosition)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/fixes", s.handleFixes)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/{id}/points", s.handleSessionPoints)
	mux.HandleFunc("/api/plot.png", s.handlePlot)
	mux.HandleFunc("/debug/history", s.handleHistory)
	if s.hub != nil {
		mux.HandleFunc("/api/live", s.hub.ServeWS)
	}
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("admin routes disabled: %v", err)
		}
	}
	return mux
}

// Handler is ServeMux wrapped in LoggingMiddleware.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}

func (s *Server) separation() float64 {
	s.sepMu.Lock()
	defer s.sepMu.Unlock()
	return s.lastSeparation
}

func (s *Server) setSeparation(d float64) {
	s.sepMu.Lock()
	defer s.sepMu.Unlock()
	s.lastSeparation = d
}
