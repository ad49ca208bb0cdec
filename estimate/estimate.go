// Package estimate turns timetable journeys into interpolated vehicle
// positions. With no GPS telemetry in the timetable feed, a vehicle's
// position is estimated between its last passed and next expected stop.
package estimate

import (
	"time"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/siri"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Line struct {
	PublicCode string `json:"publicCode"`
}

// Vehicle is one estimated or authoritative vehicle as served to the map
// client. Pointer fields serialize as null when absent, which the client
// relies on.
type Vehicle struct {
	VehicleID       string    `json:"vehicleId"`
	Mode            mode.Mode `json:"mode"`
	Location        Location  `json:"location"`
	Line            Line      `json:"line"`
	DestinationName string    `json:"destinationName"`
	Bearing         *float64  `json:"bearing"`
	From            *string   `json:"from"`
	To              *string   `json:"to"`
	NextStop        *string   `json:"nextStop"`
	Via             *string   `json:"via"`
}

// call is a unified view over recorded and estimated calls for bracketing.
type call struct {
	quayID string
	name   string
	// timeMS is the single known time for recorded calls; estimated calls
	// carry arr/dep instead.
	timeMS int64
	arrMS  int64
	depMS  int64
}

func recordedCall(c siri.RecordedCall) call {
	return call{quayID: c.QuayID, name: c.Name, timeMS: c.TimeMS}
}

func estimatedCall(c siri.EstimatedCall) call {
	return call{quayID: c.QuayID, name: c.Name, arrMS: c.ArrivalMS, depMS: c.DepartureMS}
}

func (c call) fromTime() int64 {
	if c.timeMS != 0 {
		return c.timeMS
	}
	if c.depMS != 0 {
		return c.depMS
	}
	return c.arrMS
}

func (c call) toTime(fallback int64) int64 {
	if c.arrMS != 0 {
		return c.arrMS
	}
	if c.depMS != 0 {
		return c.depMS
	}
	return fallback + 60000
}

// selectBracket picks the from/to calls the position is interpolated
// between. The normal case brackets between the last recorded and first
// estimated call; a journey with only estimated calls may still have
// departed its first stop, which the two-estimated-calls case detects by
// comparing against now.
func selectBracket(j *siri.Journey, nowMS int64) (from, to *call) {
	var lastRecorded *call
	if n := len(j.RecordedCalls); n > 0 {
		c := recordedCall(j.RecordedCalls[n-1])
		lastRecorded = &c
	}
	var firstEstimated, secondEstimated *call
	if len(j.EstimatedCalls) > 0 {
		c := estimatedCall(j.EstimatedCalls[0])
		firstEstimated = &c
	}
	if len(j.EstimatedCalls) > 1 {
		c := estimatedCall(j.EstimatedCalls[1])
		secondEstimated = &c
	}

	switch {
	case lastRecorded != nil && firstEstimated != nil:
		return lastRecorded, firstEstimated
	case firstEstimated != nil && secondEstimated != nil:
		tDep := firstEstimated.depMS
		if tDep == 0 {
			tDep = firstEstimated.arrMS
		}
		tArr := secondEstimated.arrMS
		if tArr == 0 {
			tArr = secondEstimated.depMS
		}
		if nowMS >= tDep && tArr > tDep {
			departed := *firstEstimated
			departed.timeMS = tDep
			return &departed, secondEstimated
		}
		return nil, firstEstimated
	case firstEstimated != nil:
		return nil, firstEstimated
	case lastRecorded != nil:
		return lastRecorded, nil
	}
	return nil, nil
}

// Vehicles estimates a position for every journey whose bracketing stops
// resolve to coordinates. Journeys where neither end resolves are excluded;
// no guess beats a wrong guess.
func Vehicles(journeys []siri.Journey, coords map[string]geo.LatLon, now time.Time) []Vehicle {
	nowMS := now.UnixMilli()
	out := make([]Vehicle, 0, len(journeys))
	for i := range journeys {
		if v, ok := estimateOne(&journeys[i], coords, nowMS); ok {
			out = append(out, v)
		}
	}
	return out
}

func estimateOne(j *siri.Journey, coords map[string]geo.LatLon, nowMS int64) (Vehicle, bool) {
	from, to := selectBracket(j, nowMS)

	var fromPos, toPos *geo.LatLon
	if from != nil {
		if p, ok := coords[from.quayID]; ok {
			fromPos = &p
		}
	}
	if to != nil {
		if p, ok := coords[to.quayID]; ok {
			toPos = &p
		}
	}

	var pos geo.LatLon
	switch {
	case fromPos != nil && toPos != nil:
		tFrom := from.fromTime()
		tTo := to.toTime(tFrom)
		progress := 0.0
		if tTo != tFrom {
			progress = geo.Clamp(float64(nowMS-tFrom)/float64(tTo-tFrom), 0, 1)
		}
		pos = geo.Lerp(*fromPos, *toPos, progress)
	case toPos != nil:
		pos = *toPos
	case fromPos != nil:
		pos = *fromPos
	default:
		return Vehicle{}, false
	}

	all := allCalls(j)
	first, last := all[0], all[len(all)-1]

	endStation := j.DestinationName
	if endStation == "" {
		endStation = last.name
	}
	var nextStop *string
	if to != nil && to.name != "" && to.name != endStation {
		nextStop = &to.name
	}
	var via *string
	if len(all) > 2 {
		mid := all[len(all)/2].name
		if mid != "" {
			via = &mid
		}
	}

	publicCode := mode.PublicCode(j.LineRef)
	v := Vehicle{
		VehicleID:       j.VehicleID,
		Mode:            mode.Refine(j.Mode, publicCode, j.DestinationName),
		Location:        Location{Latitude: pos.Lat, Longitude: pos.Lon},
		Line:            Line{PublicCode: publicCode},
		DestinationName: j.DestinationName,
		NextStop:        nextStop,
		Via:             via,
	}
	v.From = firstNonEmpty(callName(from), first.name)
	v.To = firstNonEmpty(callName(to), last.name, j.DestinationName)
	return v, true
}

func allCalls(j *siri.Journey) []call {
	all := make([]call, 0, len(j.RecordedCalls)+len(j.EstimatedCalls))
	for _, c := range j.RecordedCalls {
		all = append(all, recordedCall(c))
	}
	for _, c := range j.EstimatedCalls {
		all = append(all, estimatedCall(c))
	}
	return all
}

func callName(c *call) string {
	if c == nil {
		return ""
	}
	return c.name
}

func firstNonEmpty(names ...string) *string {
	for i := range names {
		if names[i] != "" {
			return &names[i]
		}
	}
	return nil
}
