// Package service wires the pipeline together: timetable snapshot in, merged
// vehicle list and route shapes out, with result caching so concurrent
// requests share one computation.
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ruterlive/ruterlive/estimate"
	"github.com/ruterlive/ruterlive/metrics"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/shapes"
	"github.com/ruterlive/ruterlive/siri"
	"github.com/ruterlive/ruterlive/stops"
	"github.com/ruterlive/ruterlive/timetable"
	"github.com/ruterlive/ruterlive/vehicles"
)

// AuthoritativeSource is an optional extra vehicle feed merged under the
// GraphQL one.
type AuthoritativeSource interface {
	Fetch(ctx context.Context) ([]estimate.Vehicle, error)
}

// LiveResult is the combined snapshot served to the map client.
type LiveResult struct {
	Vehicles []estimate.Vehicle `json:"vehicles"`
	Shapes   []shapes.Shape     `json:"shapes"`
	// Stale marks a result computed from an expired snapshot or with the
	// authoritative feed unavailable; the client dims its markers.
	Stale      bool      `json:"stale"`
	ComputedAt time.Time `json:"updatedAt"`
	DataAgeMS  int64     `json:"dataAgeMs"`
	// Error carries the upstream failure behind a stale result so the client
	// can tell "showing old data" from "healthy".
	Error string `json:"error,omitempty"`
}

type Service struct {
	timetable  *timetable.SnapshotCache
	modes      *mode.Resolver
	coords     *stops.Resolver
	feed       *vehicles.Cache
	extra      AuthoritativeSource
	railSource *shapes.RailSource
	metrics    *metrics.Collector

	resultTTL     time.Duration
	shapeInterval time.Duration

	sf singleflight.Group

	mu         sync.RWMutex
	result     *LiveResult
	railShapes []shapes.Shape
}

type Config struct {
	Timetable     *timetable.SnapshotCache
	Modes         *mode.Resolver
	Coords        *stops.Resolver
	Feed          *vehicles.Cache
	Extra         AuthoritativeSource
	RailSource    *shapes.RailSource
	Metrics       *metrics.Collector
	ResultTTL     time.Duration
	ShapeInterval time.Duration
}

func New(cfg Config) *Service {
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 15 * time.Second
	}
	if cfg.ShapeInterval <= 0 {
		cfg.ShapeInterval = 15 * time.Minute
	}
	return &Service{
		timetable:     cfg.Timetable,
		modes:         cfg.Modes,
		coords:        cfg.Coords,
		feed:          cfg.Feed,
		extra:         cfg.Extra,
		railSource:    cfg.RailSource,
		metrics:       cfg.Metrics,
		resultTTL:     cfg.ResultTTL,
		shapeInterval: cfg.ShapeInterval,
	}
}

// Live returns the merged vehicle list and shapes, recomputing at most once
// per result TTL. Positions depend on "now", so the TTL is short. The only
// error is timetable.ErrNoSnapshot before the first successful fetch.
func (s *Service) Live(ctx context.Context) (*LiveResult, error) {
	s.mu.RLock()
	r := s.result
	s.mu.RUnlock()
	if r != nil && time.Since(r.ComputedAt) <= s.resultTTL {
		return r, nil
	}

	v, err, _ := s.sf.Do("live", func() (any, error) {
		return s.compute(ctx)
	})
	if err != nil {
		s.mu.RLock()
		stale := s.result
		s.mu.RUnlock()
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}
	return v.(*LiveResult), nil
}

func (s *Service) compute(ctx context.Context) (*LiveResult, error) {
	start := time.Now()
	snap, err := s.timetable.Snapshot(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.UpstreamErrs.WithLabelValues("timetable").Inc()
		}
		return nil, err
	}

	journeys := s.classify(ctx, snap.Journeys)
	coords := s.coords.Resolve(ctx, collectQuayIDs(journeys))

	now := time.Now()
	estimated := estimate.Vehicles(journeys, coords, now)
	timetableShapes := shapes.FromJourneys(journeys, coords)

	stale := snap.Age() > 3*time.Minute
	var errMsg string
	if stale {
		errMsg = "timetable snapshot is stale"
	}
	authoritative, err := s.feed.Vehicles(ctx)
	if err != nil {
		log.Printf("authoritative feed unavailable: %v", err)
		if s.metrics != nil {
			s.metrics.UpstreamErrs.WithLabelValues("vehicles").Inc()
		}
		stale = true
		errMsg = "live vehicle feed unavailable"
	}
	if s.extra != nil {
		extra, err := s.extra.Fetch(ctx)
		if err != nil {
			log.Printf("extra vehicle source: %v", err)
		} else {
			authoritative = vehicles.Merge(authoritative, extra)
		}
	}

	result := &LiveResult{
		Vehicles:   vehicles.Merge(authoritative, estimated),
		Shapes:     append(timetableShapes, s.RailShapes(ctx)...),
		Stale:      stale,
		ComputedAt: now,
		DataAgeMS:  snap.Age().Milliseconds(),
		Error:      errMsg,
	}
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ComputeTime.Observe(time.Since(start).Seconds())
		s.metrics.Observe(len(result.Vehicles), len(result.Shapes), snap.Age().Seconds(), result.Stale)
	}
	return result, nil
}

// classify applies authoritative mode overrides on top of the numeric-range
// guesses. The snapshot's journeys are shared between computations, so the
// override works on a copy.
func (s *Service) classify(ctx context.Context, in []siri.Journey) []siri.Journey {
	journeys := make([]siri.Journey, len(in))
	copy(journeys, in)

	refs := make([]string, 0, len(journeys))
	for i := range journeys {
		refs = append(refs, journeys[i].LineRef)
	}
	overrides := s.modes.Resolve(ctx, refs)
	for i := range journeys {
		if m, ok := overrides[journeys[i].LineRef]; ok {
			journeys[i].Mode = m
		}
	}
	return journeys
}

func collectQuayIDs(journeys []siri.Journey) []string {
	seen := map[string]bool{}
	var ids []string
	for i := range journeys {
		for _, c := range journeys[i].RecordedCalls {
			if !seen[c.QuayID] {
				seen[c.QuayID] = true
				ids = append(ids, c.QuayID)
			}
		}
		for _, c := range journeys[i].EstimatedCalls {
			if !seen[c.QuayID] {
				seen[c.QuayID] = true
				ids = append(ids, c.QuayID)
			}
		}
	}
	return ids
}

// RailShapes returns the journey-planner sourced geometry, fetching it on
// first use. The refresh loop keeps it current afterwards.
func (s *Service) RailShapes(ctx context.Context) []shapes.Shape {
	s.mu.RLock()
	cached := s.railShapes
	s.mu.RUnlock()
	if cached != nil {
		return cached
	}
	if s.railSource == nil {
		return nil
	}

	v, _, _ := s.sf.Do("rail", func() (any, error) {
		fetched := s.railSource.Fetch(ctx)
		s.mu.Lock()
		s.railShapes = fetched
		s.mu.Unlock()
		return fetched, nil
	})
	return v.([]shapes.Shape)
}

// Shapes returns all current route geometry without forcing a vehicle
// recomputation, so clients can draw lines before vehicle data is ready.
func (s *Service) Shapes(ctx context.Context) []shapes.Shape {
	s.mu.RLock()
	r := s.result
	s.mu.RUnlock()
	rail := s.RailShapes(ctx)
	if r == nil {
		return rail
	}
	out := make([]shapes.Shape, 0, len(r.Shapes))
	out = append(out, r.Shapes...)
	return out
}

// StartShapeRefresh re-fetches the journey-planner geometry on a long cycle
// until ctx is cancelled. Static route geometry changes rarely.
func (s *Service) StartShapeRefresh(ctx context.Context) {
	if s.railSource == nil {
		return
	}
	s.RailShapes(ctx)
	ticker := time.NewTicker(s.shapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetched := s.railSource.Fetch(ctx)
			if len(fetched) > 0 {
				s.mu.Lock()
				s.railShapes = fetched
				s.mu.Unlock()
			}
		}
	}
}

// Stats exposes counters for the metrics collector.
type Stats struct {
	Vehicles      int
	Shapes        int
	Stale         bool
	SnapshotAgeMS int64
	HasResult     bool
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return Stats{}
	}
	return Stats{
		Vehicles:      len(s.result.Vehicles),
		Shapes:        len(s.result.Shapes),
		Stale:         s.result.Stale,
		SnapshotAgeMS: s.result.DataAgeMS,
		HasResult:     true,
	}
}
