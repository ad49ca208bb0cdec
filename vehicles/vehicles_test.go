package vehicles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/ruterlive/ruterlive/estimate"
	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/upstream"
)

var testBBox = geo.BBox{MinLat: 59.45, MaxLat: 60.2, MinLon: 10.15, MaxLon: 11.25}

func strp(s string) *string { return &s }

func TestMergeAuthoritativeWins(t *testing.T) {
	auth := []estimate.Vehicle{{
		VehicleID: "RUT:Vehicle:1",
		Mode:      mode.Tram,
		Location:  estimate.Location{Latitude: 59.92, Longitude: 10.76},
	}}
	est := []estimate.Vehicle{{
		VehicleID: "RUT:Vehicle:1",
		Mode:      mode.Bus,
		Location:  estimate.Location{Latitude: 59.90, Longitude: 10.70},
		From:      strp("Alpha"),
		To:        strp("Beta"),
		NextStop:  strp("Beta"),
	}}

	got := Merge(auth, est)
	if len(got) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(got))
	}
	v := got[0]
	if v.Mode != mode.Tram || v.Location.Latitude != 59.92 {
		t.Errorf("authoritative position/mode overwritten: %+v", v)
	}
	if v.From == nil || *v.From != "Alpha" || v.NextStop == nil || *v.NextStop != "Beta" {
		t.Errorf("stop fields not filled from estimate: %+v", v)
	}
}

func TestMergeKeepsUnmatchedEstimates(t *testing.T) {
	auth := []estimate.Vehicle{{VehicleID: "a", Mode: mode.Bus}}
	est := []estimate.Vehicle{
		{VehicleID: "a", Mode: mode.Bus, From: strp("X")},
		{VehicleID: "b", Mode: mode.Metro},
	}
	got := Merge(auth, est)
	if len(got) != 2 {
		t.Fatalf("got %d vehicles, want union of 2", len(got))
	}
	ids := map[string]int{}
	for _, v := range got {
		ids[v.VehicleID]++
	}
	if ids["a"] != 1 || ids["b"] != 1 {
		t.Errorf("ids = %v, want each exactly once", ids)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	est := []estimate.Vehicle{{VehicleID: "a", From: strp("X")}}
	auth := []estimate.Vehicle{{VehicleID: "a"}}
	Merge(auth, est)
	if auth[0].From != nil {
		t.Error("merge mutated the authoritative input slice")
	}
}

func TestMergeEmptySides(t *testing.T) {
	est := []estimate.Vehicle{{VehicleID: "a"}}
	if got := Merge(nil, est); len(got) != 1 {
		t.Errorf("estimates only: %d", len(got))
	}
	auth := []estimate.Vehicle{{VehicleID: "b"}}
	if got := Merge(auth, nil); len(got) != 1 {
		t.Errorf("authoritative only: %d", len(got))
	}
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("both empty: %d", len(got))
	}
}

const feedJSON = `{"data":{"vehicles":[
  {"vehicleId":"RUT:Vehicle:1","lastUpdated":"2026-09-01T12:00:00Z",
   "location":{"latitude":59.91,"longitude":10.75},
   "line":{"publicCode":"18"},"mode":"TRAM","bearing":145.5,"destinationName":"Ljabru"},
  {"vehicleId":"RUT:Vehicle:2","location":{"latitude":59.92,"longitude":10.76},
   "line":{"publicCode":"FB5"},"mode":"BUS","destinationName":"Oslo lufthavn"},
  {"vehicleId":"","location":{"latitude":59.9,"longitude":10.7},"mode":"BUS"},
  {"vehicleId":"RUT:Vehicle:3","location":{"latitude":59.9,"longitude":10.7},"mode":"CABLEWAY"}
]}}`

func TestCacheParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	c := NewCache(upstream.NewClient("test"), srv.URL, testBBox, time.Hour)
	got, err := c.Vehicles(context.Background())
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	// Missing id and unmapped mode drop.
	if len(got) != 2 {
		t.Fatalf("got %d vehicles, want 2", len(got))
	}
	if got[0].Mode != mode.Tram || got[0].Bearing == nil || *got[0].Bearing != 145.5 {
		t.Errorf("vehicle 1 = %+v", got[0])
	}
	// Airport coach line code relabels the bus.
	if got[1].Mode != mode.Flybuss {
		t.Errorf("vehicle 2 mode = %q, want flybuss", got[1].Mode)
	}
}

func TestCacheServesWithinTTLWithoutRefetch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	c := NewCache(upstream.NewClient("test"), srv.URL, testBBox, time.Hour)
	for i := 0; i < 5; i++ {
		if _, err := c.Vehicles(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestCacheStaleWhileRevalidate(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	c := NewCache(upstream.NewClient("test"), srv.URL, testBBox, time.Millisecond)
	if _, err := c.Vehicles(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	// Expired cache: the call returns stale data immediately instead of
	// blocking on the slow upstream.
	start := time.Now()
	got, err := c.Vehicles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Error("stale data expected")
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("stale read blocked for %v", elapsed)
	}
}

func TestGTFSRTSource(t *testing.T) {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: proto.String("e1"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					Vehicle:  &gtfsrtpb.VehicleDescriptor{Id: proto.String("veh-1")},
					Trip:     &gtfsrtpb.TripDescriptor{RouteId: proto.String("RUT:Line:31")},
					Position: &gtfsrtpb.Position{Latitude: proto.Float32(59.91), Longitude: proto.Float32(10.75), Bearing: proto.Float32(90)},
				},
			},
			{
				// Outside the service area.
				Id: proto.String("e2"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					Trip:     &gtfsrtpb.TripDescriptor{RouteId: proto.String("RUT:Line:32")},
					Position: &gtfsrtpb.Position{Latitude: proto.Float32(63.43), Longitude: proto.Float32(10.39)},
				},
			},
			{
				// No position.
				Id:      proto.String("e3"),
				Vehicle: &gtfsrtpb.VehiclePosition{},
			},
		},
	}
	payload, err := proto.Marshal(fm)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	s := NewGTFSRTSource(upstream.NewClient("test"), srv.URL, testBBox)
	got, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(got))
	}
	v := got[0]
	if v.VehicleID != "veh-1" || v.Mode != mode.Bus || v.Line.PublicCode != "31" {
		t.Errorf("vehicle = %+v", v)
	}
	if v.Bearing == nil || *v.Bearing != 90 {
		t.Errorf("bearing = %v", v.Bearing)
	}
}
