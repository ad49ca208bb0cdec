package mode

import (
	"regexp"
	"strconv"
	"strings"
)

// Mode is the closed set of transport modes the service groups vehicles and
// shapes by. Flybuss and flytog are display groupings layered on top of bus
// and rail, not upstream truth.
type Mode string

const (
	Bus     Mode = "bus"
	Metro   Mode = "metro"
	Tram    Mode = "tram"
	Water   Mode = "water"
	Rail    Mode = "rail"
	Flytog  Mode = "flytog"
	Flybuss Mode = "flybuss"
	Unknown Mode = ""
)

// LineDrawable reports whether route geometry for this mode is built from
// timetable stop sequences. Rail and the airport services get their geometry
// from journey-planner trip queries instead; the timetable's stop sequences
// are unreliable for those.
func (m Mode) LineDrawable() bool {
	switch m {
	case Bus, Tram, Metro, Water:
		return true
	}
	return false
}

var lineNumRe = regexp.MustCompile(`:Line:(\d+)`)

// LineNum extracts the numeric line number embedded in a line reference like
// "RUT:Line:21".
func LineNum(lineRef string) (int, bool) {
	m := lineNumRe.FindStringSubmatch(lineRef)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// PublicCode derives the human-facing line number from a line reference.
func PublicCode(lineRef string) string {
	m := lineNumRe.FindStringSubmatch(lineRef)
	if m == nil {
		return "?"
	}
	return m[1]
}

// Numeric-range fallback: metro 1-6, tram 11-19, bus >= 20. Numbers below 20
// outside the named sets stay unknown; low numbers are unreliable indicators
// for boat and rail.
var metroLineNums = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true}

func FromLineNumber(lineRef string) Mode {
	num, ok := LineNum(lineRef)
	if !ok {
		return Unknown
	}
	if metroLineNums[num] {
		return Metro
	}
	if num >= 11 && num <= 19 {
		return Tram
	}
	if num >= 20 {
		return Bus
	}
	return Unknown
}

// ParseAuthoritative normalizes a journey-planner transportMode string,
// mapping synonyms ("ferry", "ferje") onto the closed set. Unrecognized
// values come back Unknown so the numeric-range guess stands.
func ParseAuthoritative(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metro":
		return Metro
	case "bus", "coach":
		return Bus
	case "tram":
		return Tram
	case "water", "ferry", "ferje":
		return Water
	case "rail":
		return Rail
	}
	return Unknown
}

var (
	flybussCodeRe = regexp.MustCompile(`(?i)^(FB|NW)\d*$`)
	flytogCodeRe  = regexp.MustCompile(`(?i)^F\d*$|^FX$`)
)

// Refine relabels airport services for display grouping. The underlying mode
// semantics are untouched; this only affects how vehicles and shapes are
// grouped and colored.
func Refine(m Mode, publicCode, destinationName string) Mode {
	switch m {
	case Bus:
		if flybussCodeRe.MatchString(publicCode) {
			return Flybuss
		}
	case Rail:
		if flytogCodeRe.MatchString(publicCode) {
			return Flytog
		}
		if strings.Contains(strings.ToLower(destinationName), "lufthavn") {
			return Flytog
		}
	}
	return m
}
