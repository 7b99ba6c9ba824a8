package geo

import "math"

// Box is a latitude/longitude rectangle in degrees.
//
// When MinLng > MaxLng the box wraps across the antimeridian and covers
// [MinLng, 180] plus [-180, MaxLng].
type Box struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b Box) Contains(lat, lng float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.MinLng <= b.MaxLng {
		return lng >= b.MinLng && lng <= b.MaxLng
	}
	return lng >= b.MinLng || lng <= b.MaxLng
}

// BoundingBox approximates a circle of radiusKm around (lat, lng) as a box,
// treating one degree of latitude as KmPerDegreeLat and shrinking longitude
// degrees by cos(lat).
//
// It is a fast approximation only. It is not exact near the poles or across the
// antimeridian and the returned bounds are not clamped to valid ranges, so
// membership must always be confirmed with IsWithinRadius.
func BoundingBox(lat, lng, radiusKm float64) Box {
	latDelta := radiusKm / KmPerDegreeLat
	lngDelta := radiusKm / (KmPerDegreeLat * math.Cos(toRadians(lat)))

	return Box{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}

// CapBounds returns the bounding box of the spherical cap of radiusKm around
// center. Unlike BoundingBox it is exact on the same sphere HaversineDistance
// uses, so every point within radiusKm of center is inside the returned box.
//
// Caps that reach a pole span all longitudes; caps that cross the antimeridian
// yield a wrapped box (MinLng > MaxLng).
func CapBounds(center Coordinates, radiusKm float64) Box {
	if radiusKm < 0 {
		radiusKm = 0
	}

	d := radiusKm / EarthRadiusKm
	if d >= math.Pi {
		return Box{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}
	}

	lat := toRadians(center.Lat)
	lng := toRadians(center.Lng)

	minLat := lat - d
	maxLat := lat + d

	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return Box{
			MinLat: math.Max(toDegrees(minLat), -90),
			MaxLat: math.Min(toDegrees(maxLat), 90),
			MinLng: -180,
			MaxLng: 180,
		}
	}

	lngDelta := math.Asin(math.Sin(d) / math.Cos(lat))
	minLng := lng - lngDelta
	maxLng := lng + lngDelta
	if minLng < -math.Pi {
		minLng += 2 * math.Pi
	}
	if maxLng > math.Pi {
		maxLng -= 2 * math.Pi
	}

	return Box{
		MinLat: toDegrees(minLat),
		MaxLat: toDegrees(maxLat),
		MinLng: toDegrees(minLng),
		MaxLng: toDegrees(maxLng),
	}
}
