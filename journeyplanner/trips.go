package journeyplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
)

// TripEndpoints names a from/to stop place pair for a trip-pattern query.
// Stop place IDs are NSR references from the national stop registry.
type TripEndpoints struct {
	From     string
	FromName string
	To       string
	ToName   string
}

// RailTrips covers the railway corridors through central Oslo. Querying both
// directions of each corridor catches patterns the planner only returns one
// way.
var RailTrips = []TripEndpoints{
	{From: "NSR:StopPlace:11", FromName: "Drammen stasjon", To: "NSR:StopPlace:288", ToName: "Nationaltheatret"},
	{From: "NSR:StopPlace:288", FromName: "Nationaltheatret", To: "NSR:StopPlace:11", ToName: "Drammen stasjon"},
	{From: "NSR:StopPlace:6234", FromName: "Lillestrøm", To: "NSR:StopPlace:288", ToName: "Nationaltheatret"},
	{From: "NSR:StopPlace:288", FromName: "Nationaltheatret", To: "NSR:StopPlace:6234", ToName: "Lillestrøm"},
	{From: "NSR:StopPlace:6010", FromName: "Ski", To: "NSR:StopPlace:288", ToName: "Nationaltheatret"},
	{From: "NSR:StopPlace:288", FromName: "Nationaltheatret", To: "NSR:StopPlace:6010", ToName: "Ski"},
	{From: "NSR:StopPlace:269", FromName: "Oslo lufthavn", To: "NSR:StopPlace:288", ToName: "Nationaltheatret"},
	{From: "NSR:StopPlace:288", FromName: "Nationaltheatret", To: "NSR:StopPlace:269", ToName: "Oslo lufthavn"},
	{From: "NSR:StopPlace:59872", FromName: "Oslo S", To: "NSR:StopPlace:6234", ToName: "Lillestrøm"},
	{From: "NSR:StopPlace:6234", FromName: "Lillestrøm", To: "NSR:StopPlace:59872", ToName: "Oslo S"},
	{From: "NSR:StopPlace:59872", FromName: "Oslo S", To: "NSR:StopPlace:6010", ToName: "Ski"},
	{From: "NSR:StopPlace:6010", FromName: "Ski", To: "NSR:StopPlace:59872", ToName: "Oslo S"},
	{From: "NSR:StopPlace:59872", FromName: "Oslo S", To: "NSR:StopPlace:11", ToName: "Drammen stasjon"},
	{From: "NSR:StopPlace:11", FromName: "Drammen stasjon", To: "NSR:StopPlace:59872", ToName: "Oslo S"},
}

// FlybussTrips covers the airport coach corridors from central Oslo.
var FlybussTrips = []TripEndpoints{
	{From: "NSR:StopPlace:6505", FromName: "Oslo Bussterminal", To: "NSR:StopPlace:269", ToName: "Oslo lufthavn"},
	{From: "NSR:StopPlace:269", FromName: "Oslo lufthavn", To: "NSR:StopPlace:6505", ToName: "Oslo Bussterminal"},
	{From: "NSR:StopPlace:59872", FromName: "Oslo S", To: "NSR:StopPlace:269", ToName: "Oslo lufthavn"},
	{From: "NSR:StopPlace:269", FromName: "Oslo lufthavn", To: "NSR:StopPlace:59872", ToName: "Oslo S"},
}

// TripShape is one transit leg extracted from a trip pattern, before quay
// IDs are resolved to coordinates.
type TripShape struct {
	Mode    mode.Mode
	Line    string
	From    string
	To      string
	Via     string
	QuayIDs []string
	// Points is the planner's actual track geometry from pointsOnLink,
	// empty when the planner had none for the leg.
	Points []geo.LatLon
}

type tripData struct {
	Trip struct {
		TripPatterns []struct {
			Legs []tripLeg `json:"legs"`
		} `json:"tripPatterns"`
	} `json:"trip"`
}

type tripLeg struct {
	Mode string `json:"mode"`
	Line *struct {
		PublicCode string `json:"publicCode"`
	} `json:"line"`
	FromPlace struct {
		Name string `json:"name"`
	} `json:"fromPlace"`
	ToPlace struct {
		Name string `json:"name"`
	} `json:"toPlace"`
	FromEstimatedCall          *legCall  `json:"fromEstimatedCall"`
	ToEstimatedCall            *legCall  `json:"toEstimatedCall"`
	IntermediateEstimatedCalls []legCall `json:"intermediateEstimatedCalls"`
	PointsOnLink               *struct {
		Points string `json:"points"`
	} `json:"pointsOnLink"`
}

type legCall struct {
	Quay *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"quay"`
}

var flybussLineRe = regexp.MustCompile(`(?i)^(FB|NW)\d*$`)

// TripShapes queries trip patterns for each endpoint pair and extracts the
// transit legs matching the requested transport modes. Rail queries label
// airport-express legs flytog; bus/coach queries label every kept leg
// flybuss. acceptAllBus keeps bus legs whose line code is not an airport
// coach pattern, for the shared-corridor segments.
func (c *Client) TripShapes(ctx context.Context, trips []TripEndpoints, transportModes []string, acceptAllBus bool) []TripShape {
	var modesArg strings.Builder
	for i, m := range transportModes {
		if i > 0 {
			modesArg.WriteString(", ")
		}
		fmt.Fprintf(&modesArg, "{ transportMode: %s }", m)
	}
	rail := false
	for _, m := range transportModes {
		if m == "rail" {
			rail = true
		}
	}
	dateTime := time.Now().UTC().Format("2006-01-02T15:04:05")

	var shapes []TripShape
	for _, trip := range trips {
		q := fmt.Sprintf(`{ trip(from: { place: %q, name: %q }, to: { place: %q, name: %q }, dateTime: %q, numTripPatterns: 10, modes: { transportModes: [%s] }) {
  tripPatterns {
    legs {
      mode
      line { publicCode }
      fromPlace { name }
      toPlace { name }
      fromEstimatedCall { quay { id name } }
      toEstimatedCall { quay { id name } }
      intermediateEstimatedCalls { quay { id name } }
      pointsOnLink { points }
    }
  }
} }`, trip.From, trip.FromName, trip.To, trip.ToName, dateTime, modesArg.String())

		data, err := c.query(ctx, q, tripTimeout)
		if err != nil {
			log.Printf("trip fetch %s -> %s: %v", trip.From, trip.To, err)
			continue
		}
		var td tripData
		if err := json.Unmarshal(data, &td); err != nil {
			log.Printf("trip decode %s -> %s: %v", trip.From, trip.To, err)
			continue
		}
		for _, p := range td.Trip.TripPatterns {
			for _, leg := range p.Legs {
				if s, ok := buildTripShape(leg, rail, acceptAllBus); ok {
					shapes = append(shapes, s)
				}
			}
		}
	}
	return shapes
}

func buildTripShape(leg tripLeg, rail, acceptAllBus bool) (TripShape, bool) {
	if leg.Line == nil || leg.Line.PublicCode == "" {
		return TripShape{}, false
	}
	code := leg.Line.PublicCode
	if !rail && !acceptAllBus && !flybussLineRe.MatchString(code) {
		return TripShape{}, false
	}

	type quayRef struct{ id, name string }
	var quays []quayRef
	var fromID string
	if leg.FromEstimatedCall != nil && leg.FromEstimatedCall.Quay != nil {
		fromID = leg.FromEstimatedCall.Quay.ID
		quays = append(quays, quayRef{fromID, leg.FromEstimatedCall.Quay.Name})
	}
	for _, c := range leg.IntermediateEstimatedCalls {
		if c.Quay != nil && c.Quay.ID != "" && c.Quay.ID != fromID {
			quays = append(quays, quayRef{c.Quay.ID, c.Quay.Name})
		}
	}
	if leg.ToEstimatedCall != nil && leg.ToEstimatedCall.Quay != nil && leg.ToEstimatedCall.Quay.ID != fromID {
		quays = append(quays, quayRef{leg.ToEstimatedCall.Quay.ID, leg.ToEstimatedCall.Quay.Name})
	}

	var points []geo.LatLon
	if leg.PointsOnLink != nil && leg.PointsOnLink.Points != "" {
		coords, _, err := polyline.DecodeCoords([]byte(leg.PointsOnLink.Points))
		if err == nil {
			for _, c := range coords {
				points = append(points, geo.LatLon{Lat: c[0], Lon: c[1]})
			}
		}
	}
	if len(quays) < 2 && len(points) == 0 {
		return TripShape{}, false
	}

	m := mode.Flybuss
	if rail {
		if mode.Refine(mode.Rail, code, "") == mode.Flytog {
			m = mode.Flytog
		} else {
			m = mode.Rail
		}
	}

	s := TripShape{Mode: m, Line: code, Points: points}
	s.From = strings.TrimSpace(leg.FromPlace.Name)
	s.To = strings.TrimSpace(leg.ToPlace.Name)
	if len(quays) > 0 {
		if quays[0].name != "" {
			s.From = strings.TrimSpace(quays[0].name)
		}
		if last := quays[len(quays)-1].name; last != "" {
			s.To = strings.TrimSpace(last)
		}
		if len(quays) > 2 {
			s.Via = quays[len(quays)/2].name
		}
		for _, q := range quays {
			s.QuayIDs = append(s.QuayIDs, q.id)
		}
	}
	return s, true
}
