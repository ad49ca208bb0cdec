package siri

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/ruterlive/ruterlive/mode"
)

// Parse extracts vehicle journeys from a SIRI Estimated Timetable document.
// Journeys whose line number maps to no known mode are dropped, as are
// journeys with no usable calls. Malformed calls are skipped individually
// rather than failing the whole document.
func Parse(data []byte) ([]Journey, error) {
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal siri et: %w", err)
	}

	var journeys []Journey
	for _, etd := range env.ServiceDelivery.EstimatedTimetableDelivery {
		for _, frame := range etd.EstimatedJourneyVersionFrame {
			for _, xj := range frame.EstimatedVehicleJourney {
				if j, ok := buildJourney(xj, len(journeys)); ok {
					journeys = append(journeys, j)
				}
			}
		}
	}
	return journeys, nil
}

func buildJourney(xj xmlJourney, index int) (Journey, bool) {
	m := mode.FromLineNumber(xj.LineRef)
	if m == mode.Unknown {
		return Journey{}, false
	}

	var recorded []RecordedCall
	for _, c := range xj.RecordedCalls {
		t := parseTimeMS(c.ActualDepartureTime)
		if t == 0 {
			t = parseTimeMS(c.ActualArrivalTime)
		}
		if c.StopPointRef == "" || t == 0 {
			continue
		}
		recorded = append(recorded, RecordedCall{
			QuayID: c.StopPointRef,
			Name:   c.StopPointName,
			TimeMS: t,
		})
	}

	var estimated []EstimatedCall
	for _, c := range xj.EstimatedCalls {
		arr := parseTimeMS(c.ExpectedArrivalTime)
		dep := parseTimeMS(c.ExpectedDepartureTime)
		if arr == 0 {
			arr = dep
		}
		if dep == 0 {
			dep = arr
		}
		if c.StopPointRef == "" || arr == 0 {
			continue
		}
		estimated = append(estimated, EstimatedCall{
			QuayID:      c.StopPointRef,
			Name:        c.StopPointName,
			ArrivalMS:   arr,
			DepartureMS: dep,
		})
	}

	if len(recorded) == 0 && len(estimated) == 0 {
		return Journey{}, false
	}

	vehicleID := xj.VehicleRef
	if vehicleID == "" {
		vehicleID = fmt.Sprintf("et-%s-%d", xj.LineRef, index)
	}
	return Journey{
		VehicleID:       vehicleID,
		LineRef:         xj.LineRef,
		DestinationName: strings.TrimSpace(xj.DestinationDisplay),
		Mode:            m,
		RecordedCalls:   recorded,
		EstimatedCalls:  estimated,
	}, true
}

// parseTimeMS converts an ISO timestamp to epoch milliseconds, returning 0
// for absent or unparseable values.
func parseTimeMS(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
