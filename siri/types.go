package siri

import "github.com/ruterlive/ruterlive/mode"

// SIRI ET documents use a single namespace for every element we read.
const Namespace = "http://www.siri.org.uk/siri"

// envelope mirrors the subset of the SIRI ServiceDelivery tree the parser
// reads. Everything else in the feed is ignored.
type envelope struct {
	ServiceDelivery struct {
		EstimatedTimetableDelivery []struct {
			EstimatedJourneyVersionFrame []struct {
				EstimatedVehicleJourney []xmlJourney `xml:"EstimatedVehicleJourney"`
			} `xml:"EstimatedJourneyVersionFrame"`
		} `xml:"EstimatedTimetableDelivery"`
	} `xml:"ServiceDelivery"`
}

type xmlJourney struct {
	LineRef            string    `xml:"LineRef"`
	VehicleRef         string    `xml:"VehicleRef"`
	DestinationDisplay string    `xml:"DestinationDisplay"`
	RecordedCalls      []xmlCall `xml:"RecordedCalls>RecordedCall"`
	EstimatedCalls     []xmlCall `xml:"EstimatedCalls>EstimatedCall"`
}

type xmlCall struct {
	StopPointRef          string `xml:"StopPointRef"`
	StopPointName         string `xml:"StopPointName"`
	ActualArrivalTime     string `xml:"ActualArrivalTime"`
	ActualDepartureTime   string `xml:"ActualDepartureTime"`
	ExpectedArrivalTime   string `xml:"ExpectedArrivalTime"`
	ExpectedDepartureTime string `xml:"ExpectedDepartureTime"`
}

// RecordedCall is a stop the vehicle has already served. Time is the actual
// departure, falling back to the actual arrival, in epoch milliseconds.
type RecordedCall struct {
	QuayID string
	Name   string
	TimeMS int64
}

// EstimatedCall is an upcoming stop. Arrival and departure each fall back to
// the other when the feed omits one, so both are always set.
type EstimatedCall struct {
	QuayID      string
	Name        string
	ArrivalMS   int64
	DepartureMS int64
}

// Journey is one estimated vehicle journey with at least one usable call.
// Mode is the numeric-range guess from the line number; the mode resolver
// may later override it with the journey planner's answer.
type Journey struct {
	VehicleID       string
	LineRef         string
	DestinationName string
	Mode            mode.Mode
	RecordedCalls   []RecordedCall
	EstimatedCalls  []EstimatedCall
}
