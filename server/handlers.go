package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ruterlive/ruterlive/estimate"
	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/journeyplanner"
	"github.com/ruterlive/ruterlive/shapes"
	"github.com/ruterlive/ruterlive/stops"
	"github.com/ruterlive/ruterlive/timetable"
)

const (
	maxStopsResult  = 500
	maxSearchResult = 25
	maxDepartures   = 50
)

func writeJSON(w http.ResponseWriter, status int, maxAge time.Duration, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing to do beyond noting it.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Stats()
	writeJSON(w, http.StatusOK, 0, map[string]any{
		"status":        "ok",
		"time":          time.Now().UTC().Format(time.RFC3339),
		"vehicles":      st.Vehicles,
		"shapes":        st.Shapes,
		"stale":         st.Stale,
		"snapshotAgeMs": st.SnapshotAgeMS,
		"hasResult":     st.HasResult,
	})
}

// handleLive serves the merged vehicle and shape snapshot. Before the first
// timetable fetch succeeds the payload shape is still valid, just empty,
// with a 503 so orchestration knows the process is not ready.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Live(r.Context())
	if err != nil {
		if errors.Is(err, timetable.ErrNoSnapshot) {
			writeJSON(w, http.StatusServiceUnavailable, 0, emptyResult())
			return
		}
		writeError(w, http.StatusInternalServerError, "computation failed")
		return
	}
	writeJSON(w, http.StatusOK, 15*time.Second, result)
}

func emptyResult() map[string]any {
	return map[string]any{
		"vehicles":  []estimate.Vehicle{},
		"shapes":    []shapes.Shape{},
		"stale":     true,
		"updatedAt": time.Time{},
		"dataAgeMs": 0,
		"error":     "no timetable snapshot yet",
	}
}

// handleShapes serves route geometry alone. Safe to poll on cold start;
// static and journey-planner geometry exists before vehicle data does.
func (s *Server) handleShapes(w http.ResponseWriter, r *http.Request) {
	got := s.svc.Shapes(r.Context())
	if got == nil {
		got = []shapes.Shape{}
	}
	writeJSON(w, http.StatusOK, 5*time.Minute, map[string]any{"shapes": got})
}

func (s *Server) handleDepartures(w http.ResponseWriter, r *http.Request) {
	stopID := r.URL.Query().Get("stop")
	if stopID == "" {
		writeError(w, http.StatusBadRequest, "missing stop parameter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxDepartures {
		limit = 20
	}
	name, deps, err := s.jp.Departures(r.Context(), stopID, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "departures unavailable")
		return
	}
	if deps == nil {
		deps = []journeyplanner.Departure{}
	}
	writeJSON(w, http.StatusOK, 30*time.Second, map[string]any{
		"stopName":   name,
		"departures": deps,
	})
}

func (s *Server) handleQuayCoords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuayIDs []string `json:"quayIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.QuayIDs) == 0 || len(req.QuayIDs) > maxStopsResult {
		writeError(w, http.StatusBadRequest, "quayIds must hold 1-500 entries")
		return
	}
	coords := s.coords.Resolve(r.Context(), req.QuayIDs)
	writeJSON(w, http.StatusOK, time.Hour, map[string]any{"coordinates": coords})
}

func (s *Server) handleStopsInBBox(w http.ResponseWriter, r *http.Request) {
	var bbox geo.BBox
	var err error
	q := r.URL.Query()
	if bbox.MinLat, err = strconv.ParseFloat(q.Get("minLat"), 64); err == nil {
		if bbox.MaxLat, err = strconv.ParseFloat(q.Get("maxLat"), 64); err == nil {
			if bbox.MinLon, err = strconv.ParseFloat(q.Get("minLon"), 64); err == nil {
				bbox.MaxLon, err = strconv.ParseFloat(q.Get("maxLon"), 64)
			}
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "minLat/maxLat/minLon/maxLon required")
		return
	}

	idx, err := s.loader.Index(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stop index unavailable")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > maxStopsResult {
		limit = maxStopsResult
	}
	got := idx.InBBox(bbox, limit)
	if got == nil {
		got = []stops.Quay{}
	}
	writeJSON(w, http.StatusOK, time.Hour, map[string]any{"stops": got})
}

func (s *Server) handleStopsSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "q must be at least 2 characters")
		return
	}
	idx, err := s.loader.Index(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stop index unavailable")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxSearchResult {
		limit = maxSearchResult
	}
	got := idx.SearchByName(query, limit)
	if got == nil {
		got = []stops.Quay{}
	}
	writeJSON(w, http.StatusOK, time.Hour, map[string]any{"stops": got})
}
