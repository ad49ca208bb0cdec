// Package shapes builds deduplicated route polylines. Timetable stop
// sequences supply geometry for the local modes; rail and the airport
// services get theirs from journey-planner trip queries with static
// fallbacks.
package shapes

import (
	"fmt"
	"strings"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/siri"
)

// Distance thresholds for the outlier filter. Metro and tram stops sit
// close together; bus and boat routes legitimately make longer hops.
const (
	MaxSpanKM      = 25.0
	MaxSpanKMLoose = 50.0
)

// QuayStop annotates a shape point that corresponds to a real quay, for
// interactive stop markers.
type QuayStop struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Position geo.LatLon `json:"position"`
}

// Shape is one directional line variant as served to the map client.
type Shape struct {
	Mode      mode.Mode    `json:"mode"`
	Line      string       `json:"line"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Via       *string      `json:"via"`
	Points    []geo.LatLon `json:"points"`
	QuayStops []QuayStop   `json:"quayStops,omitempty"`
}

// point carries the quay annotation through outlier removal so surviving
// points keep their stop markers.
type point struct {
	pos    geo.LatLon
	quayID string
	name   string
}

func maxSpanFor(m mode.Mode) float64 {
	if m == mode.Bus || m == mode.Water {
		return MaxSpanKMLoose
	}
	return MaxSpanKM
}

func minPointsFor(m mode.Mode) int {
	if m == mode.Metro {
		return 5
	}
	return 3
}

// removeOutliers repeatedly drops the point farthest from both neighbors
// until every gap is under the threshold. A two-point sequence with an
// oversized gap is discarded whole; there is no telling which end is wrong.
func removeOutliers(points []point, maxNeighborKM float64) []point {
	if len(points) < 2 {
		return points
	}
	if len(points) == 2 {
		if geo.HaversineKM(points[0].pos, points[1].pos) > maxNeighborKM {
			return nil
		}
		return points
	}

	current := make([]point, len(points))
	copy(current, points)
	for len(current) >= 3 {
		worst := 0.0
		worstIdx := -1
		for i := range current {
			d := 0.0
			if i > 0 {
				d = geo.HaversineKM(current[i].pos, current[i-1].pos)
			}
			if i < len(current)-1 {
				if dn := geo.HaversineKM(current[i].pos, current[i+1].pos); dn > d {
					d = dn
				}
			}
			if d > worst {
				worst = d
				worstIdx = i
			}
		}
		if worst <= maxNeighborKM {
			break
		}
		current = append(current[:worstIdx], current[worstIdx+1:]...)
	}
	if len(current) == 2 && geo.HaversineKM(current[0].pos, current[1].pos) > maxNeighborKM {
		return nil
	}
	return current
}

// shapeKey identifies a line variant by its endpoints. Many vehicles on the
// same line and direction produce near-identical shapes; rounding to four
// decimals (roughly 10 m) collapses them.
func shapeKey(m mode.Mode, line string, points []geo.LatLon) string {
	first, last := points[0], points[len(points)-1]
	return fmt.Sprintf("%s|%s|%.4f,%.4f|%.4f,%.4f", m, line, first.Lat, first.Lon, last.Lat, last.Lon)
}

// FromJourneys builds shapes for the line-drawable modes out of timetable
// stop sequences. Per key, the instance with the most points wins.
func FromJourneys(journeys []siri.Journey, coords map[string]geo.LatLon) []Shape {
	type candidate struct {
		shape Shape
		order int
	}
	best := map[string]candidate{}
	order := 0

	for i := range journeys {
		j := &journeys[i]
		if !j.Mode.LineDrawable() {
			continue
		}
		s, ok := journeyShape(j, coords)
		if !ok {
			continue
		}
		key := shapeKey(s.Mode, s.Line, s.Points)
		if prev, exists := best[key]; exists && len(prev.shape.Points) >= len(s.Points) {
			continue
		} else if exists {
			best[key] = candidate{shape: s, order: prev.order}
			continue
		}
		best[key] = candidate{shape: s, order: order}
		order++
	}

	out := make([]Shape, len(best))
	for _, c := range best {
		out[c.order] = c.shape
	}
	return out
}

func journeyShape(j *siri.Journey, coords map[string]geo.LatLon) (Shape, bool) {
	type namedCall struct {
		quayID string
		name   string
	}
	var calls []namedCall
	for _, c := range j.RecordedCalls {
		calls = append(calls, namedCall{c.QuayID, c.Name})
	}
	for _, c := range j.EstimatedCalls {
		calls = append(calls, namedCall{c.QuayID, c.Name})
	}
	if len(calls) == 0 {
		return Shape{}, false
	}

	var points []point
	firstQuay := calls[0].quayID
	for i, c := range calls {
		pos, ok := coords[c.quayID]
		if !ok {
			continue
		}
		// A circular journey revisits its first quay last; dropping the
		// repeat keeps the polyline open.
		if i == len(calls)-1 && c.quayID == firstQuay {
			break
		}
		points = append(points, point{pos: pos, quayID: c.quayID, name: c.name})
	}

	cleaned := removeOutliers(points, maxSpanFor(j.Mode))
	if len(cleaned) < minPointsFor(j.Mode) {
		return Shape{}, false
	}

	s := Shape{
		Mode: j.Mode,
		Line: mode.PublicCode(j.LineRef),
		From: calls[0].name,
		To:   calls[len(calls)-1].name,
	}
	if len(calls) > 2 {
		if mid := calls[len(calls)/2].name; mid != "" {
			s.Via = &mid
		}
	}
	for _, p := range cleaned {
		s.Points = append(s.Points, p.pos)
		if p.quayID != "" {
			s.QuayStops = append(s.QuayStops, QuayStop{ID: p.quayID, Name: strings.TrimSpace(p.name), Position: p.pos})
		}
	}
	return s, true
}
