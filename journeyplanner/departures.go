package journeyplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruterlive/ruterlive/mode"
)

// Departure is one upcoming call at a stop place.
type Departure struct {
	LineCode        string    `json:"line"`
	Mode            mode.Mode `json:"mode"`
	DestinationName string    `json:"destinationName"`
	AimedTime       time.Time `json:"aimedTime"`
	ExpectedTime    time.Time `json:"expectedTime"`
	Realtime        bool      `json:"realtime"`
	QuayName        string    `json:"quayName"`
}

type departuresData struct {
	StopPlace *struct {
		Name           string `json:"name"`
		EstimatedCalls []struct {
			AimedDepartureTime    time.Time `json:"aimedDepartureTime"`
			ExpectedDepartureTime time.Time `json:"expectedDepartureTime"`
			Realtime              bool      `json:"realtime"`
			DestinationDisplay    *struct {
				FrontText string `json:"frontText"`
			} `json:"destinationDisplay"`
			Quay *struct {
				Name string `json:"name"`
			} `json:"quay"`
			ServiceJourney *struct {
				Line struct {
					PublicCode    string `json:"publicCode"`
					TransportMode string `json:"transportMode"`
				} `json:"line"`
			} `json:"serviceJourney"`
		} `json:"estimatedCalls"`
	} `json:"stopPlace"`
}

// Departures returns the next departures from a stop place, oldest first.
func (c *Client) Departures(ctx context.Context, stopPlaceID string, limit int) (string, []Departure, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`{ stopPlace(id: %q) {
  name
  estimatedCalls(numberOfDepartures: %d) {
    aimedDepartureTime
    expectedDepartureTime
    realtime
    destinationDisplay { frontText }
    quay { name }
    serviceJourney { line { publicCode transportMode } }
  }
} }`, stopPlaceID, limit)

	data, err := c.query(ctx, q, queryTimeout)
	if err != nil {
		return "", nil, err
	}
	var dd departuresData
	if err := json.Unmarshal(data, &dd); err != nil {
		return "", nil, fmt.Errorf("decode departures: %w", err)
	}
	if dd.StopPlace == nil {
		return "", nil, fmt.Errorf("unknown stop place %s", stopPlaceID)
	}

	deps := make([]Departure, 0, len(dd.StopPlace.EstimatedCalls))
	for _, call := range dd.StopPlace.EstimatedCalls {
		d := Departure{
			AimedTime:    call.AimedDepartureTime,
			ExpectedTime: call.ExpectedDepartureTime,
			Realtime:     call.Realtime,
		}
		if call.DestinationDisplay != nil {
			d.DestinationName = call.DestinationDisplay.FrontText
		}
		if call.Quay != nil {
			d.QuayName = call.Quay.Name
		}
		if call.ServiceJourney != nil {
			d.LineCode = call.ServiceJourney.Line.PublicCode
			m := mode.ParseAuthoritative(call.ServiceJourney.Line.TransportMode)
			d.Mode = mode.Refine(m, d.LineCode, d.DestinationName)
		}
		deps = append(deps, d)
	}
	return dd.StopPlace.Name, deps, nil
}
