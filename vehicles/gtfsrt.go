package vehicles

import (
	"context"
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/ruterlive/ruterlive/estimate"
	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/upstream"
)

// GTFSRTSource reads a GTFS-RT VehiclePositions protobuf feed as an
// alternative authoritative source. Optional; a process configured without a
// feed URL simply never constructs one.
type GTFSRTSource struct {
	up   *upstream.Client
	url  string
	bbox geo.BBox
}

func NewGTFSRTSource(up *upstream.Client, url string, bbox geo.BBox) *GTFSRTSource {
	return &GTFSRTSource{up: up, url: url, bbox: bbox}
}

// Fetch downloads and decodes the feed, keeping vehicles inside the service
// area that carry an id, a position and a classifiable route.
func (s *GTFSRTSource) Fetch(ctx context.Context) ([]estimate.Vehicle, error) {
	resp, err := s.up.Get(ctx, s.url, upstream.Options{Timeout: 30 * time.Second, Retries: 2})
	if err != nil {
		return nil, fmt.Errorf("fetch vehicle positions: %w", err)
	}
	if _, err := upstream.RequireOK(s.url, resp); err != nil {
		return nil, err
	}

	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(resp.Body, &fm); err != nil {
		return nil, fmt.Errorf("decode vehicle positions: %w", err)
	}

	var out []estimate.Vehicle
	for _, entity := range fm.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		pos := geo.LatLon{
			Lat: float64(vp.GetPosition().GetLatitude()),
			Lon: float64(vp.GetPosition().GetLongitude()),
		}
		if !s.bbox.Contains(pos) {
			continue
		}
		id := vp.GetVehicle().GetId()
		if id == "" {
			id = entity.GetId()
		}
		if id == "" {
			continue
		}
		routeID := vp.GetTrip().GetRouteId()
		m := mode.FromLineNumber(routeID)
		if m == mode.Unknown {
			continue
		}

		v := estimate.Vehicle{
			VehicleID: id,
			Mode:      m,
			Location:  estimate.Location{Latitude: pos.Lat, Longitude: pos.Lon},
			Line:      estimate.Line{PublicCode: mode.PublicCode(routeID)},
		}
		if vp.GetPosition().Bearing != nil {
			b := float64(vp.GetPosition().GetBearing())
			v.Bearing = &b
		}
		out = append(out, v)
	}
	return out, nil
}
