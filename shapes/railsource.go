package shapes

import (
	"context"
	"log"
	"strings"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/journeyplanner"
	"github.com/ruterlive/ruterlive/mode"
)

// CoordResolver resolves quay IDs to coordinates. Satisfied by
// stops.Resolver.
type CoordResolver interface {
	Resolve(ctx context.Context, quayIDs []string) map[string]geo.LatLon
}

// RailSource produces rail, flytog and flybuss geometry from journey-planner
// trip queries. Trip endpoints are discovered from hub departure boards,
// with static endpoint lists and hand-drawn corridors as fallbacks.
type RailSource struct {
	jp       *journeyplanner.Client
	resolver CoordResolver
}

func NewRailSource(jp *journeyplanner.Client, resolver CoordResolver) *RailSource {
	return &RailSource{jp: jp, resolver: resolver}
}

// Departure boards at these hubs are scanned for rail destinations.
var railHubs = []string{
	"NSR:StopPlace:59872", // Oslo S
	"NSR:StopPlace:288",   // Nationaltheatret
}

// knownStopPlaces maps destination display names back to stop place IDs so a
// departure board entry can become a trip query endpoint.
var knownStopPlaces = map[string]string{
	"oslo s":           "NSR:StopPlace:59872",
	"nationaltheatret": "NSR:StopPlace:288",
	"lillestrøm":       "NSR:StopPlace:6234",
	"ski":              "NSR:StopPlace:6010",
	"drammen":          "NSR:StopPlace:11",
	"drammen stasjon":  "NSR:StopPlace:11",
	"oslo lufthavn":    "NSR:StopPlace:269",
	"oslo bussterminal": "NSR:StopPlace:6505",
}

var hubNames = map[string]string{
	"NSR:StopPlace:59872": "Oslo S",
	"NSR:StopPlace:288":   "Nationaltheatret",
}

// discoverRailTrips builds trip endpoint pairs from live departure boards.
// An empty result falls back to the static corridor list.
func (s *RailSource) discoverRailTrips(ctx context.Context) []journeyplanner.TripEndpoints {
	seen := map[string]bool{}
	var trips []journeyplanner.TripEndpoints
	for _, hub := range railHubs {
		_, deps, err := s.jp.Departures(ctx, hub, 50)
		if err != nil {
			log.Printf("hub departures %s: %v", hub, err)
			continue
		}
		for _, d := range deps {
			if d.Mode != mode.Rail && d.Mode != mode.Flytog {
				continue
			}
			destName := strings.ToLower(strings.TrimSpace(d.DestinationName))
			destID, ok := knownStopPlaces[destName]
			if !ok || destID == hub {
				continue
			}
			key := hub + "|" + destID
			if seen[key] {
				continue
			}
			seen[key], seen[destID+"|"+hub] = true, true
			trips = append(trips,
				journeyplanner.TripEndpoints{From: hub, FromName: hubNames[hub], To: destID, ToName: d.DestinationName},
				journeyplanner.TripEndpoints{From: destID, FromName: d.DestinationName, To: hub, ToName: hubNames[hub]},
			)
		}
	}
	if len(trips) == 0 {
		return journeyplanner.RailTrips
	}
	return trips
}

// Fetch queries trip geometry for the rail and airport coach corridors.
// Either group falling through empty is replaced by its static fallback, so
// the map never loses those lines entirely.
func (s *RailSource) Fetch(ctx context.Context) []Shape {
	railProto := s.jp.TripShapes(ctx, s.discoverRailTrips(ctx), []string{"rail"}, false)
	fbProto := s.jp.TripShapes(ctx, journeyplanner.FlybussTrips, []string{"bus", "coach"}, true)

	var quayIDs []string
	for _, p := range append(railProto[:len(railProto):len(railProto)], fbProto...) {
		quayIDs = append(quayIDs, p.QuayIDs...)
	}
	coords := s.resolver.Resolve(ctx, quayIDs)

	rail := buildTripShapes(railProto, coords)
	flybuss := buildTripShapes(fbProto, coords)
	if len(rail) == 0 {
		rail = StaticRailShapes()
	}
	if len(flybuss) == 0 {
		flybuss = StaticFlybussShapes()
	}
	log.Printf("route geometry: %d rail/flytog, %d flybuss shapes", len(rail), len(flybuss))
	return append(rail, flybuss...)
}

// buildTripShapes converts trip legs into shapes, preferring the planner's
// track geometry over quay chaining, and deduplicates by line and rounded
// start point.
func buildTripShapes(protos []journeyplanner.TripShape, coords map[string]geo.LatLon) []Shape {
	var out []Shape
	seen := map[string]bool{}
	for _, p := range protos {
		points := p.Points
		if len(points) < 2 {
			points = nil
			for _, id := range p.QuayIDs {
				if pos, ok := coords[id]; ok {
					points = append(points, pos)
				}
			}
		}
		if len(points) < 2 {
			continue
		}
		// Circular trips end where they started; drop the repeated point.
		if len(p.QuayIDs) > 1 && p.QuayIDs[len(p.QuayIDs)-1] == p.QuayIDs[0] {
			points = points[:len(points)-1]
		}

		key := shapeKey(p.Mode, p.Line, points)
		if seen[key] {
			continue
		}
		seen[key] = true

		s := Shape{Mode: p.Mode, Line: p.Line, From: p.From, To: p.To, Points: points}
		if p.Via != "" {
			via := p.Via
			s.Via = &via
		}
		out = append(out, s)
	}
	return out
}
