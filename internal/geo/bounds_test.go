package geo

import (
	"math"
	"math/rand"
	"testing"
)

func TestBoundingBox(t *testing.T) {
	t.Run("equator", func(t *testing.T) {
		box := BoundingBox(0, 0, KmPerDegreeLat)
		assertClose(t, "MinLat", box.MinLat, -1)
		assertClose(t, "MaxLat", box.MaxLat, 1)
		assertClose(t, "MinLng", box.MinLng, -1)
		assertClose(t, "MaxLng", box.MaxLng, 1)
	})

	t.Run("longitude widens with latitude", func(t *testing.T) {
		box := BoundingBox(60, 10, KmPerDegreeLat)
		// cos(60°) = 0.5, so one latitude degree of distance spans two longitude degrees.
		assertClose(t, "MinLat", box.MinLat, 59)
		assertClose(t, "MaxLat", box.MaxLat, 61)
		assertClose(t, "MinLng", box.MinLng, 8)
		assertClose(t, "MaxLng", box.MaxLng, 12)
	})

	t.Run("zero radius collapses to the point", func(t *testing.T) {
		box := BoundingBox(51.5, -0.12, 0)
		if box.MinLat != 51.5 || box.MaxLat != 51.5 || box.MinLng != -0.12 || box.MaxLng != -0.12 {
			t.Errorf("unexpected box %+v", box)
		}
	})
}

func TestBox_Contains(t *testing.T) {
	box := Box{MinLat: 10, MaxLat: 20, MinLng: 30, MaxLng: 40}
	if !box.Contains(15, 35) {
		t.Error("center should be contained")
	}
	if !box.Contains(10, 40) {
		t.Error("edges should be inclusive")
	}
	if box.Contains(21, 35) || box.Contains(15, 41) {
		t.Error("points outside should not be contained")
	}

	wrapped := Box{MinLat: -10, MaxLat: 10, MinLng: 170, MaxLng: -170}
	if !wrapped.Contains(0, 175) || !wrapped.Contains(0, -175) || !wrapped.Contains(0, 180) {
		t.Error("wrapped box should contain points on both sides of the antimeridian")
	}
	if wrapped.Contains(0, 0) {
		t.Error("wrapped box should not contain the prime meridian")
	}
}

func TestCapBounds_PoleAndAntimeridian(t *testing.T) {
	polar := CapBounds(Coordinates{Lat: 89, Lng: 0}, 500)
	if polar.MinLng != -180 || polar.MaxLng != 180 || polar.MaxLat != 90 {
		t.Errorf("cap covering the pole should span all longitudes, got %+v", polar)
	}

	dateline := CapBounds(Coordinates{Lat: 0, Lng: 179.5}, 200)
	if dateline.MinLng <= dateline.MaxLng {
		t.Errorf("cap crossing the antimeridian should wrap, got %+v", dateline)
	}

	world := CapBounds(Coordinates{Lat: 0, Lng: 0}, 30000)
	if world.MinLat != -90 || world.MaxLat != 90 || world.MinLng != -180 || world.MaxLng != 180 {
		t.Errorf("radius beyond half circumference should cover the globe, got %+v", world)
	}
}

// TestCapBounds_ContainsEveryPointInRadius walks random destinations inside
// the cap and checks none of them fall outside the bounds.
func TestCapBounds_ContainsEveryPointInRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	centers := []Coordinates{
		{Lat: 0, Lng: 0},
		{Lat: 51.5074, Lng: -0.1278},
		{Lat: 84, Lng: 45},
		{Lat: -78, Lng: -120},
		{Lat: 10, Lng: 179.9},
		{Lat: -35, Lng: -179.8},
	}
	radii := []float64{1, 25, 300, 2500}

	for _, c := range centers {
		for _, r := range radii {
			box := CapBounds(c, r)
			for i := 0; i < 200; i++ {
				p := destination(c, rng.Float64()*360, r*rng.Float64()*0.999)
				if !box.Contains(p.Lat, p.Lng) {
					t.Fatalf("point %+v within %.0f km of %+v is outside %+v", p, r, c, box)
				}
			}
		}
	}
}

// destination returns the point reached travelling distKm from start on bearingDeg.
func destination(start Coordinates, bearingDeg, distKm float64) Coordinates {
	d := distKm / EarthRadiusKm
	theta := toRadians(bearingDeg)
	lat1 := toRadians(start.Lat)
	lng1 := toRadians(start.Lng)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(math.Sin(theta)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	lng := math.Mod(toDegrees(lng2)+540, 360) - 180
	return Coordinates{Lat: toDegrees(lat2), Lng: lng}
}

func assertClose(t *testing.T, field string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %f, want %f", field, got, want)
	}
}
