// Package geo provides geographic distance and coordinate utilities used for
// proximity ranking and radius filtering of marketplace listings.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by all great-circle math in this package.
const EarthRadiusKm = 6371.0

// KmPerDegreeLat approximates the length of one degree of latitude.
// Only BoundingBox uses it; exact distance math goes through HaversineDistance.
const KmPerDegreeLat = 111.32

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are inside the legal lat/lng range.
func (c Coordinates) Valid() bool {
	return ValidateCoordinates(c.Lat, c.Lng)
}

// DistanceTo returns the great-circle distance in kilometers to other,
// rounded to one decimal place.
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return HaversineDistance(c.Lat, c.Lng, other.Lat, other.Lng)
}

// ValidateCoordinates reports whether lat is within [-90, 90] and lng within [-180, 180].
// NaN values are rejected. Raw input from untrusted sources (geocoders, query
// strings, request bodies) must pass this check before any distance math.
func ValidateCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HaversineDistance computes the great-circle distance between two points in
// kilometers using the Haversine formula, rounded to one decimal place.
//
// The result is symmetric in its arguments and zero for identical points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	// Guard against tiny floating overshoot outside [0, 1] for antipodal points.
	a = math.Max(0, math.Min(1, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return RoundTenth(EarthRadiusKm * c)
}

// IsWithinRadius reports whether point lies within radiusKm of center.
// The boundary is inclusive and the exact Haversine distance is authoritative.
func IsWithinRadius(centerLat, centerLng, pointLat, pointLng, radiusKm float64) bool {
	return HaversineDistance(centerLat, centerLng, pointLat, pointLng) <= radiusKm
}

// RoundTenth rounds v to one decimal place.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
