package shapes

import (
	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
)

// Hand-placed fallback geometry for the airport coach and railway corridors,
// used when the journey planner yields nothing. Coordinates follow the
// stations and the E6 corridor southbound from Gardermoen.
var (
	gardermoen      = geo.LatLon{Lat: 60.1939, Lon: 11.1004}
	grorud          = geo.LatLon{Lat: 59.9615, Lon: 10.8817}
	okern           = geo.LatLon{Lat: 59.9248, Lon: 10.7965}
	hasle           = geo.LatLon{Lat: 59.922, Lon: 10.797}
	helsfyr         = geo.LatLon{Lat: 59.9186, Lon: 10.7912}
	storo           = geo.LatLon{Lat: 59.9459, Lon: 10.7773}
	torshov         = geo.LatLon{Lat: 59.9296, Lon: 10.7767}
	carlBerners     = geo.LatLon{Lat: 59.9285, Lon: 10.778}
	sagene          = geo.LatLon{Lat: 59.935, Lon: 10.7522}
	bislett         = geo.LatLon{Lat: 59.923, Lon: 10.731}
	osloS           = geo.LatLon{Lat: 59.9107, Lon: 10.7525}
	majorstuen      = geo.LatLon{Lat: 59.9295, Lon: 10.7162}
	ullevaal        = geo.LatLon{Lat: 59.9375, Lon: 10.734}
	taasen          = geo.LatLon{Lat: 59.948, Lon: 10.751}
	smestad         = geo.LatLon{Lat: 59.941, Lon: 10.699}
	radiumhospitale = geo.LatLon{Lat: 59.9328, Lon: 10.698}
	sinsen          = geo.LatLon{Lat: 59.9385, Lon: 10.782}

	lillestrom = geo.LatLon{Lat: 59.9550, Lon: 11.0497}
	drammen    = geo.LatLon{Lat: 59.7440, Lon: 10.2045}
	ski        = geo.LatLon{Lat: 59.7427, Lon: 10.8357}
	eidsvoll   = geo.LatLon{Lat: 60.3285, Lon: 11.2560}
	kongsberg  = geo.LatLon{Lat: 59.6640, Lon: 9.6460}
	skien      = geo.LatLon{Lat: 59.2094, Lon: 9.6089}
	skoyen     = geo.LatLon{Lat: 59.8340, Lon: 10.7990}
	sandvika   = geo.LatLon{Lat: 59.8900, Lon: 10.5260}
)

// E6 waypoints southbound, Gardermoen toward Oslo.
var e6South = []geo.LatLon{
	{Lat: 60.12, Lon: 11.08},
	{Lat: 60.05, Lon: 11.05},
	{Lat: 59.99, Lon: 11.02},
	{Lat: 59.965, Lon: 10.95},
}

func line(pts ...geo.LatLon) []geo.LatLon { return pts }

func corridor(head []geo.LatLon, tail ...geo.LatLon) []geo.LatLon {
	out := make([]geo.LatLon, 0, len(head)+len(tail))
	out = append(out, head...)
	out = append(out, tail...)
	return out
}

func reversed(pts []geo.LatLon) []geo.LatLon {
	out := make([]geo.LatLon, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func staticShape(m mode.Mode, lineCode, from, to string, pts []geo.LatLon) Shape {
	return Shape{Mode: m, Line: lineCode, From: from, To: to, Points: pts}
}

func bothWays(m mode.Mode, lineCode, a, b string, pts []geo.LatLon) []Shape {
	return []Shape{
		staticShape(m, lineCode, a, b, pts),
		staticShape(m, lineCode, b, a, reversed(pts)),
	}
}

// StaticFlybussShapes returns the FB1/FB3/FB5 airport coach corridors.
func StaticFlybussShapes() []Shape {
	fb1 := corridor(append([]geo.LatLon{gardermoen}, e6South...),
		grorud, sinsen, carlBerners, torshov, sagene, ullevaal, majorstuen)
	fb3 := corridor(append([]geo.LatLon{gardermoen}, e6South...),
		grorud, okern, sinsen, storo, taasen, smestad, radiumhospitale)
	fb5 := corridor(append([]geo.LatLon{gardermoen}, e6South...),
		helsfyr, hasle, carlBerners, bislett, osloS)

	var out []Shape
	out = append(out, bothWays(mode.Flybuss, "FB1", "Oslo lufthavn", "Majorstuen", fb1)...)
	out = append(out, bothWays(mode.Flybuss, "FB3", "Oslo lufthavn", "Radiumhospitalet", fb3)...)
	out = append(out, bothWays(mode.Flybuss, "FB5", "Oslo lufthavn", "Oslo S", fb5)...)
	return out
}

// StaticRailShapes returns coarse corridors for the main railway lines.
func StaticRailShapes() []Shape {
	var out []Shape
	out = append(out, bothWays(mode.Rail, "L1", "Oslo S", "Lillestrøm", line(osloS, lillestrom))...)
	out = append(out, bothWays(mode.Rail, "R20", "Oslo S", "Drammen", line(osloS, sandvika, drammen))...)
	out = append(out, bothWays(mode.Rail, "R21", "Oslo S", "Ski", line(osloS, skoyen, ski))...)
	out = append(out, bothWays(mode.Rail, "R22", "Oslo S", "Eidsvoll", line(osloS, lillestrom, eidsvoll))...)
	out = append(out, bothWays(mode.Rail, "R22", "Oslo S", "Kongsberg", line(osloS, skoyen, kongsberg))...)
	out = append(out, bothWays(mode.Rail, "R10", "Oslo S", "Skien", line(osloS, skoyen, ski, skien))...)
	out = append(out, bothWays(mode.Flytog, "F1", "Oslo lufthavn", "Oslo S", line(gardermoen, lillestrom, osloS))...)
	return out
}
