package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/httputil"
	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/render"
	"github.com/banshee-data/aoa.report/internal/telemetry"
	"github.com/banshee-data/aoa.report/internal/version"
)

// queryError reports a failed fix as 400 with a stable code.
func queryError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, aoa.ErrStaleAnchorData):
	case errors.Is(err, aoa.ErrMissingAnchorData):
		msg = "Both anchors not available"
	case errors.Is(err, aoa.ErrParallelRays):
		msg = "Parallel azimuth lines"
	}
	code := aoa.ErrorCode(err)
	if code == "" {
		httputil.InternalServerError(w, msg)
		return
	}
	httputil.WriteJSONErrorCode(w, http.StatusBadRequest, code, msg)
}

// parseSeparation reads D from the query, falling back to def.
func parseSeparation(r *http.Request, def float64) (float64, error) {
	raw := r.URL.Query().Get("D")
	if raw == "" {
		return def, nil
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("invalid D %q: %w", raw, aoa.ErrInvalidSeparation)
	}
	return d, nil
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("limit must be between 1 and %d", max)
	}
	return n, nil
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.locator.Latest())
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	d, err := parseSeparation(r, s.defaultSeparation)
	if err != nil {
		queryError(w, err)
		return
	}
	s.setSeparation(d)

	res, err := s.locator.Triangulate(d)
	if err != nil {
		queryError(w, err)
		return
	}

	if st := s.logging.Status(); st.Active && s.db != nil {
		if err := s.db.RecordFix(r.Context(), st.SessionID, d, res, s.clock.Now()); err != nil {
			monitoring.Logf("failed to record fix: %v", err)
		}
	}
	httputil.WriteJSONOK(w, res)
}

// positionRequest is the body of POST /api/position. Coordinates are
// required when active is true.
type positionRequest struct {
	Active bool     `json:"active"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Z      *float64 `json:"z"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.logging.Status())
	case http.MethodPost:
		var req positionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		if !req.Active {
			s.logging.Stop()
			monitoring.Logf("position logging stopped")
			httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
			return
		}
		if req.X == nil || req.Y == nil || req.Z == nil {
			httputil.BadRequest(w, "x, y and z are required when active is true")
			return
		}
		pos := telemetry.DronePosition{X: *req.X, Y: *req.Y, Z: *req.Z}
		id := s.logging.Start(pos, s.clock.Now())
		monitoring.Logf("position logging started: session=%s position=(%.3f, %.3f, %.3f)", id, pos.X, pos.Y, pos.Z)
		httputil.WriteJSONOK(w, map[string]string{"status": "ok", "session_id": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	layout := s.locator.Layout()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"anchor1_id":         layout.Anchor1ID,
		"anchor2_id":         layout.Anchor2ID,
		"udp_address":        s.udpAddress,
		"default_separation": s.defaultSeparation,
		"stale_after":        s.staleAfter.String(),
		"telemetry_db":       s.db != nil,
		"version":            version.Version,
		"git_sha":            version.GitSHA,
	})
}

type statsResponse struct {
	Ingest      *network.StatsSnapshot   `json:"ingest,omitempty"`
	Telemetry   *telemetry.RecorderStats `json:"telemetry,omitempty"`
	LiveClients int                      `json:"live_clients"`
	Anchors     int                      `json:"anchors"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statsResponse{Anchors: len(s.locator.Latest())}
	if s.stats != nil {
		snap := s.stats.Snapshot()
		resp.Ingest = &snap
	}
	if s.recorder != nil {
		rs := s.recorder.Stats()
		resp.Telemetry = &rs
	}
	if s.hub != nil {
		resp.LiveClients = s.hub.ClientCount()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleFixes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "telemetry database disabled")
		return
	}
	limit, err := parseLimit(r, 100, 10000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	fixes, err := s.db.RecentFixes(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load fixes: %v", err))
		return
	}
	httputil.WriteJSONOK(w, fixes)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "telemetry database disabled")
		return
	}
	sessions, err := s.db.Sessions(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleSessionPoints returns the datagram points of one session, oldest first.
func (s *Server) handleSessionPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "telemetry database disabled")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		httputil.BadRequest(w, "missing session id")
		return
	}
	limit, err := parseLimit(r, 1000, 100000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	points, err := s.db.SessionPoints(r.Context(), id, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load session points: %v", err))
		return
	}
	if points == nil {
		points = []telemetry.Point{}
	}
	httputil.WriteJSONOK(w, points)
}

// handlePlot draws whatever is available: anchors always, rays for anchors
// that have reported, the fix when one can be computed.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	d, err := parseSeparation(r, s.separation())
	if err != nil {
		queryError(w, err)
		return
	}

	layout := s.locator.Layout()
	snap := s.locator.Latest()
	g := render.Geometry{Separation: d}
	if r1, ok := snap[layout.Anchor1ID]; ok {
		g.Anchor1 = &r1
	}
	if r2, ok := snap[layout.Anchor2ID]; ok {
		g.Anchor2 = &r2
	}
	if res, err := s.locator.Triangulate(d); err == nil {
		g.Fix = &res
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := render.WriteGeometryPNG(w, g, 0); err != nil {
		monitoring.Logf("plot render failed: %v", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "telemetry database disabled")
		return
	}
	d, err := parseSeparation(r, s.separation())
	if err != nil {
		queryError(w, err)
		return
	}
	limit, err := parseLimit(r, 500, 50000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	fixes, err := s.db.RecentFixes(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load fixes: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.WriteHistoryPage(w, fixes, d); err != nil {
		monitoring.Logf("history render failed: %v", err)
	}
}
