package siri

import (
	"fmt"
	"testing"
	"time"

	"github.com/ruterlive/ruterlive/mode"
)

func wrapDoc(journeys string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Siri xmlns="http://www.siri.org.uk/siri" version="2.0">
  <ServiceDelivery>
    <EstimatedTimetableDelivery>
      <EstimatedJourneyVersionFrame>
%s
      </EstimatedJourneyVersionFrame>
    </EstimatedTimetableDelivery>
  </ServiceDelivery>
</Siri>`, journeys))
}

const metroJourney = `<EstimatedVehicleJourney>
  <LineRef>RUT:Line:3</LineRef>
  <DestinationDisplay>Mortensrud</DestinationDisplay>
  <RecordedCalls>
    <RecordedCall>
      <StopPointRef>NSR:Quay:100</StopPointRef>
      <StopPointName>Majorstuen</StopPointName>
      <ActualDepartureTime>2026-09-01T12:00:00+02:00</ActualDepartureTime>
    </RecordedCall>
  </RecordedCalls>
  <EstimatedCalls>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:200</StopPointRef>
      <StopPointName>Nationaltheatret</StopPointName>
      <ExpectedArrivalTime>2026-09-01T12:03:00+02:00</ExpectedArrivalTime>
      <ExpectedDepartureTime>2026-09-01T12:03:30+02:00</ExpectedDepartureTime>
    </EstimatedCall>
  </EstimatedCalls>
</EstimatedVehicleJourney>`

func TestParseJourney(t *testing.T) {
	journeys, err := Parse(wrapDoc(metroJourney))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(journeys) != 1 {
		t.Fatalf("got %d journeys, want 1", len(journeys))
	}
	j := journeys[0]
	if j.LineRef != "RUT:Line:3" || j.Mode != mode.Metro {
		t.Errorf("line/mode = %q/%q", j.LineRef, j.Mode)
	}
	if j.DestinationName != "Mortensrud" {
		t.Errorf("destination = %q", j.DestinationName)
	}
	if j.VehicleID != "et-RUT:Line:3-0" {
		t.Errorf("vehicleId = %q", j.VehicleID)
	}
	if len(j.RecordedCalls) != 1 || len(j.EstimatedCalls) != 1 {
		t.Fatalf("calls = %d recorded / %d estimated", len(j.RecordedCalls), len(j.EstimatedCalls))
	}

	wantDep, _ := time.Parse(time.RFC3339, "2026-09-01T12:00:00+02:00")
	if j.RecordedCalls[0].TimeMS != wantDep.UnixMilli() {
		t.Errorf("recorded time = %d, want %d", j.RecordedCalls[0].TimeMS, wantDep.UnixMilli())
	}
	wantArr, _ := time.Parse(time.RFC3339, "2026-09-01T12:03:00+02:00")
	wantEst, _ := time.Parse(time.RFC3339, "2026-09-01T12:03:30+02:00")
	ec := j.EstimatedCalls[0]
	if ec.ArrivalMS != wantArr.UnixMilli() || ec.DepartureMS != wantEst.UnixMilli() {
		t.Errorf("estimated call times = %d/%d", ec.ArrivalMS, ec.DepartureMS)
	}
}

func TestParseVehicleRefKept(t *testing.T) {
	doc := wrapDoc(`<EstimatedVehicleJourney>
  <LineRef>RUT:Line:21</LineRef>
  <VehicleRef>RUT:Vehicle:9001</VehicleRef>
  <EstimatedCalls>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:1</StopPointRef>
      <ExpectedDepartureTime>2026-09-01T12:00:00Z</ExpectedDepartureTime>
    </EstimatedCall>
  </EstimatedCalls>
</EstimatedVehicleJourney>`)
	journeys, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(journeys) != 1 || journeys[0].VehicleID != "RUT:Vehicle:9001" {
		t.Fatalf("journeys = %+v", journeys)
	}
	// Departure-only estimated call backfills arrival.
	ec := journeys[0].EstimatedCalls[0]
	if ec.ArrivalMS != ec.DepartureMS || ec.ArrivalMS == 0 {
		t.Errorf("arrival backfill: arr=%d dep=%d", ec.ArrivalMS, ec.DepartureMS)
	}
}

func TestParseDropsUnusable(t *testing.T) {
	doc := wrapDoc(`<EstimatedVehicleJourney>
  <LineRef>RUT:Line:9</LineRef>
  <EstimatedCalls>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:1</StopPointRef>
      <ExpectedDepartureTime>2026-09-01T12:00:00Z</ExpectedDepartureTime>
    </EstimatedCall>
  </EstimatedCalls>
</EstimatedVehicleJourney>
<EstimatedVehicleJourney>
  <LineRef>RUT:Line:4</LineRef>
  <EstimatedCalls>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:2</StopPointRef>
    </EstimatedCall>
  </EstimatedCalls>
</EstimatedVehicleJourney>
<EstimatedVehicleJourney>
  <LineRef>RUT:Line:5</LineRef>
  <RecordedCalls>
    <RecordedCall>
      <ActualDepartureTime>2026-09-01T12:00:00Z</ActualDepartureTime>
    </RecordedCall>
  </RecordedCalls>
</EstimatedVehicleJourney>`)
	journeys, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Line 9 has no known mode; line 4's only call has no time; line 5's only
	// call has no stop ref. All three drop.
	if len(journeys) != 0 {
		t.Fatalf("got %d journeys, want 0: %+v", len(journeys), journeys)
	}
}

func TestParseSkipsBadTimestamps(t *testing.T) {
	doc := wrapDoc(`<EstimatedVehicleJourney>
  <LineRef>RUT:Line:12</LineRef>
  <EstimatedCalls>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:1</StopPointRef>
      <ExpectedArrivalTime>not-a-time</ExpectedArrivalTime>
    </EstimatedCall>
    <EstimatedCall>
      <StopPointRef>NSR:Quay:2</StopPointRef>
      <ExpectedArrivalTime>2026-09-01T12:05:00Z</ExpectedArrivalTime>
    </EstimatedCall>
  </EstimatedCalls>
</EstimatedVehicleJourney>`)
	journeys, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(journeys) != 1 || len(journeys[0].EstimatedCalls) != 1 {
		t.Fatalf("journeys = %+v", journeys)
	}
	if journeys[0].EstimatedCalls[0].QuayID != "NSR:Quay:2" {
		t.Errorf("kept call = %+v", journeys[0].EstimatedCalls[0])
	}
}

func TestParseInvalidXML(t *testing.T) {
	if _, err := Parse([]byte("<Siri><unclosed")); err == nil {
		t.Fatal("want error for malformed document")
	}
}
