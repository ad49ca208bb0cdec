package journeyplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/upstream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	up := upstream.NewClient("test-client")
	return NewClient(up, srv.URL, 2, 2), srv
}

func TestQuayCoordsBatching(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		queries = append(queries, req.Query)
		mu.Unlock()

		// Answer every alias in the query with the same coordinate.
		data := map[string]any{}
		for i := 0; i < strings.Count(req.Query, "quay(id:"); i++ {
			data[fmt.Sprintf("q%d", i)] = map[string]float64{"latitude": 59.9, "longitude": 10.7}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})

	coords, err := c.QuayCoords(context.Background(), []string{"NSR:Quay:1", "NSR:Quay:2", "NSR:Quay:3"})
	if err != nil {
		t.Fatalf("QuayCoords: %v", err)
	}
	if len(coords) != 3 {
		t.Errorf("got %d coords, want 3", len(coords))
	}
	if len(queries) != 2 {
		t.Errorf("got %d requests, want 2 batches with size 2", len(queries))
	}
	if got := coords["NSR:Quay:1"]; got.Lat != 59.9 || got.Lon != 10.7 {
		t.Errorf("coord = %+v", got)
	}
}

func TestQuayCoordsBoundedConcurrency(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Write([]byte(`{"data":{"q0":{"latitude":59.9,"longitude":10.7}}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(upstream.NewClient("test-client"), srv.URL, 1, 2)

	ids := []string{"NSR:Quay:1", "NSR:Quay:2", "NSR:Quay:3", "NSR:Quay:4", "NSR:Quay:5", "NSR:Quay:6"}
	coords, err := c.QuayCoords(context.Background(), ids)
	if err != nil {
		t.Fatalf("QuayCoords: %v", err)
	}
	if len(coords) != len(ids) {
		t.Errorf("got %d coords, want %d", len(coords), len(ids))
	}
	if got := atomic.LoadInt32(&peak); got != 2 {
		t.Errorf("peak in-flight batches = %d, want the concurrency cap of 2", got)
	}
}

func TestQueryRetriesConnectionFailure(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			// Kill the first connection before writing a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server does not support hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
			return
		}
		w.Write([]byte(`{"data":{"l0":{"transportMode":"tram"}}}`))
	})

	modes, err := c.LineModes(context.Background(), []string{"RUT:Line:3"})
	if err != nil {
		t.Fatalf("LineModes after transient failure: %v", err)
	}
	if modes["RUT:Line:3"] != mode.Tram {
		t.Errorf("mode = %q, want tram", modes["RUT:Line:3"])
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("got %d attempts, want 2", atomic.LoadInt32(&hits))
	}
}

func TestQuayCoordsSkipsNulls(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"q0":null,"q1":{"latitude":59.9,"longitude":10.7}}}`))
	})
	coords, err := c.QuayCoords(context.Background(), []string{"NSR:Quay:1", "NSR:Quay:2"})
	if err != nil {
		t.Fatalf("QuayCoords: %v", err)
	}
	if len(coords) != 1 {
		t.Errorf("got %d coords, want 1", len(coords))
	}
	if _, ok := coords["NSR:Quay:1"]; ok {
		t.Error("null quay should be absent")
	}
}

func TestLineModes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"l0":{"transportMode":"tram"},"l1":null,"l2":{"transportMode":"funicular"}}}`))
	})
	modes, err := c.LineModes(context.Background(), []string{"RUT:Line:3", "RUT:Line:99", "RUT:Line:50"})
	if err != nil {
		t.Fatalf("LineModes: %v", err)
	}
	if modes["RUT:Line:3"] != mode.Tram {
		t.Errorf("mode = %q, want tram", modes["RUT:Line:3"])
	}
	if len(modes) != 1 {
		t.Errorf("got %d modes, want 1 (null and unmapped skipped)", len(modes))
	}
}

func TestGraphQLErrorsFailRequest(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	})
	_, err := c.LineModes(context.Background(), []string{"RUT:Line:3"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want graphql error surfaced", err)
	}
}

func TestTripShapesExtractsLegs(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"trip": map[string]any{"tripPatterns": []any{
				map[string]any{"legs": []any{
					map[string]any{
						"mode":      "rail",
						"line":      map[string]any{"publicCode": "FX"},
						"fromPlace": map[string]any{"name": "Oslo S"},
						"toPlace":   map[string]any{"name": "Oslo lufthavn"},
						"fromEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:1", "name": "Oslo S"},
						},
						"toEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:2", "name": "Oslo lufthavn"},
						},
						"intermediateEstimatedCalls": []any{
							map[string]any{"quay": map[string]any{"id": "NSR:Quay:3", "name": "Lillestrøm"}},
						},
						"pointsOnLink": map[string]any{"points": "_p~iF~ps|U_ulLnnqC"},
					},
					map[string]any{
						// Walk leg without a line, skipped.
						"mode":      "foot",
						"fromPlace": map[string]any{"name": "a"},
						"toPlace":   map[string]any{"name": "b"},
					},
				}},
			}},
		}})
	})

	shapes := c.TripShapes(context.Background(), []TripEndpoints{{From: "NSR:StopPlace:59872", To: "NSR:StopPlace:269"}}, []string{"rail"}, false)
	if len(shapes) != 1 {
		t.Fatalf("got %d shapes, want 1", len(shapes))
	}
	s := shapes[0]
	if s.Mode != mode.Flytog {
		t.Errorf("mode = %q, want flytog for line FX", s.Mode)
	}
	if s.From != "Oslo S" || s.To != "Oslo lufthavn" {
		t.Errorf("from/to = %q/%q", s.From, s.To)
	}
	if len(s.QuayIDs) != 3 {
		t.Errorf("quayIds = %v", s.QuayIDs)
	}
	if len(s.Points) != 2 {
		t.Errorf("decoded %d polyline points, want 2", len(s.Points))
	}
}

func TestTripShapesFiltersNonAirportBus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"trip": map[string]any{"tripPatterns": []any{
				map[string]any{"legs": []any{
					map[string]any{
						"mode": "bus",
						"line": map[string]any{"publicCode": "21"},
						"fromEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:1", "name": "A"},
						},
						"toEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:2", "name": "B"},
						},
					},
					map[string]any{
						"mode": "bus",
						"line": map[string]any{"publicCode": "FB5"},
						"fromEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:1", "name": "A"},
						},
						"toEstimatedCall": map[string]any{
							"quay": map[string]any{"id": "NSR:Quay:2", "name": "B"},
						},
					},
				}},
			}},
		}})
	})

	shapes := c.TripShapes(context.Background(), FlybussTrips[:1], []string{"bus", "coach"}, false)
	if len(shapes) != 1 || shapes[0].Line != "FB5" {
		t.Fatalf("shapes = %+v, want only FB5", shapes)
	}
	if shapes[0].Mode != mode.Flybuss {
		t.Errorf("mode = %q, want flybuss", shapes[0].Mode)
	}
}

func TestDepartures(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"stopPlace":{"name":"Jernbanetorget","estimatedCalls":[
			{"aimedDepartureTime":"2026-09-01T12:00:00+02:00","expectedDepartureTime":"2026-09-01T12:01:30+02:00","realtime":true,
			 "destinationDisplay":{"frontText":"Mortensrud"},"quay":{"name":"Jernbanetorget"},
			 "serviceJourney":{"line":{"publicCode":"3","transportMode":"metro"}}}
		]}}}`))
	})
	name, deps, err := c.Departures(context.Background(), "NSR:StopPlace:59872", 10)
	if err != nil {
		t.Fatalf("Departures: %v", err)
	}
	if name != "Jernbanetorget" || len(deps) != 1 {
		t.Fatalf("name=%q deps=%d", name, len(deps))
	}
	d := deps[0]
	if d.LineCode != "3" || d.Mode != mode.Metro || !d.Realtime {
		t.Errorf("departure = %+v", d)
	}
	if !d.ExpectedTime.After(d.AimedTime) {
		t.Errorf("expected %v should be after aimed %v", d.ExpectedTime, d.AimedTime)
	}
}

func TestDeparturesUnknownStop(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"stopPlace":null}}`))
	})
	_, _, err := c.Departures(context.Background(), "NSR:StopPlace:0", 10)
	if err == nil {
		t.Fatal("want error for unknown stop place")
	}
}
