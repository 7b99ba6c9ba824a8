package catalog

import (
	"math"

	"github.com/onnwee/marketrank/internal/geo"
)

// windowSlack inflates the radius handed to geo.BoundingBox. The box's
// longitude span is a first-order approximation; with the slack applied it
// covers the exact cap whenever sin(d)/cos(lat) stays below maxWindowRatio.
const windowSlack = 1.1

// maxWindowRatio bounds sin(d)/cos(lat) for which a window is produced.
const maxWindowRatio = 0.5

// CandidateWindow returns a coarse lat/lng window for loading candidates within
// radiusKm of center, or nil when no useful window exists (invalid input, a cap
// reaching a pole, or a radius too large for the approximation). The window is
// only a pre-filter; callers still apply ranking.FilterByRadius.
func CandidateWindow(center geo.Coordinates, radiusKm float64) *geo.Box {
	if !center.Valid() || math.IsNaN(radiusKm) || radiusKm < 0 {
		return nil
	}

	d := radiusKm / geo.EarthRadiusKm
	if d >= math.Pi/2 || math.Sin(d)/math.Cos(center.Lat*math.Pi/180) > maxWindowRatio {
		return nil
	}

	box := geo.BoundingBox(center.Lat, center.Lng, radiusKm*windowSlack+1)
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return nil
	}

	// Normalize longitudes into [-180, 180], wrapping across the antimeridian.
	if box.MinLng < -180 {
		box.MinLng += 360
	}
	if box.MaxLng > 180 {
		box.MaxLng -= 360
	}
	return &box
}
