// Package geo holds great-circle math used by the aviation endpoints.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusNM is the mean earth radius in nautical miles.
	EarthRadiusNM = 3440.065

	NMToKM    = 1.852
	NMToMiles = 1.150779

	// ClimbDescentMinutes is added to every cruise-time estimate.
	ClimbDescentMinutes = 20
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies inside the coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceNM returns the haversine distance between a and b in nautical miles.
func DistanceNM(a, b Point) float64 {
	rad := math.Pi / 180.0

	lat1 := a.Lat * rad
	lat2 := b.Lat * rad
	dlat := (b.Lat - a.Lat) * rad
	dlon := (b.Lon - a.Lon) * rad

	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusNM * c
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// EstimateFlightMinutes converts a distance and cruise speed into block minutes.
// Returns 0 when the speed is unknown.
func EstimateFlightMinutes(distanceNM float64, cruiseKts int) int {
	if cruiseKts <= 0 || distanceNM <= 0 {
		return 0
	}
	cruise := distanceNM / float64(cruiseKts) * 60
	return int(math.Ceil(cruise)) + ClimbDescentMinutes
}

// FormatMinutes renders minutes as "2h 35m" (or "45m" under an hour).
func FormatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
