package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
	"github.com/onnwee/marketrank/internal/ranking"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestRanker(t *testing.T) *ranking.Ranker {
	t.Helper()
	r, err := ranking.NewRanker(*ranking.DefaultWeights(), ranking.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return r
}

func product(id, title string, lat, lng float64) listing.Product {
	return listing.Product{
		ID:          id,
		Title:       title,
		CategoryID:  strPtr("bikes"),
		Price:       100,
		ListingType: listing.TypeSale,
		Location:    listing.Location{Coordinates: &geo.Coordinates{Lat: lat, Lng: lng}},
		CreatedAt:   listing.Timestamp(testNow.Add(-time.Hour).Format(time.RFC3339)),
	}
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func resultIDs(listings []RankedListing) []string {
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	return ids
}
