package ranking

import (
	"math"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
)

// capPaddingKm widens the pre-filter box past the radius. Exact distances are
// rounded to 0.1 km before comparison, so a listing up to 0.05 km beyond the
// radius still qualifies.
const capPaddingKm = 0.1

// FilterByRadius keeps the products whose location lies within radiusKm of
// viewer (inclusive). Products without valid coordinates are dropped. An
// invalid viewer or a negative radius yields an empty result.
//
// Candidates are first screened with the spherical-cap bounding box, which
// never excludes a point inside the radius, and the exact Haversine check
// decides membership.
func FilterByRadius(products []listing.Product, viewer geo.Coordinates, radiusKm float64) []listing.Product {
	kept := make([]listing.Product, 0, len(products))
	if !viewer.Valid() || math.IsNaN(radiusKm) || radiusKm < 0 {
		return kept
	}

	box := geo.CapBounds(viewer, radiusKm+capPaddingKm)

	for i := range products {
		c, ok := products[i].Coordinates()
		if !ok {
			continue
		}
		if !box.Contains(c.Lat, c.Lng) {
			continue
		}
		if geo.IsWithinRadius(viewer.Lat, viewer.Lng, c.Lat, c.Lng, radiusKm) {
			kept = append(kept, products[i])
		}
	}
	return kept
}
