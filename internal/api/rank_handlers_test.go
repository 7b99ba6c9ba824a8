package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
)

func postRank(t *testing.T, h *RankHandlers, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.Rank(rr, httptest.NewRequest(http.MethodPost, "/rank", &buf))
	return rr
}

func TestRank_OrdersByScore(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)
	viewer := geo.Coordinates{Lat: 51.5074, Lng: -0.1278}

	rr := postRank(t, h, RankRequest{
		Products: []listing.Product{
			product("far", "Road bike", 53.4808, -2.2426),
			product("near", "Road bike", 51.5080, -0.1280),
			{ID: "nowhere", Title: "Road bike", ListingType: listing.TypeSale},
		},
		ViewerLocation: &viewer,
		Query:          "road bike",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeJSON[RankResponse](t, rr)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, []string{"near", "far", "nowhere"}, resultIDs(resp.Ranked))

	near := resp.Ranked[0]
	require.NotNil(t, near.DistanceFromUser)
	assert.Equal(t, 0.1, *near.DistanceFromUser)
	assert.Equal(t, 100.0, near.RankingFactors.Distance)
	assert.Equal(t, geo.CoarseGeohash(&geo.Coordinates{Lat: 51.5080, Lng: -0.1280}), near.CoarseGeohash)
	assert.Len(t, near.CoarseGeohash, geo.DefaultPrecision)

	assert.Nil(t, resp.Ranked[2].DistanceFromUser)
	assert.Empty(t, resp.Ranked[2].CoarseGeohash)
}

func TestRank_ResponseShape(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)
	rr := postRank(t, h, RankRequest{Products: []listing.Product{product("a", "Lamp", 1, 1)}})
	require.Equal(t, http.StatusOK, rr.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	ranked := raw["ranked"].([]any)
	item := ranked[0].(map[string]any)

	for _, key := range []string{"id", "title", "price", "listing_type", "location", "rankingScore", "rankingFactors", "coarse_geohash"} {
		assert.Contains(t, item, key)
	}
	assert.NotContains(t, item, "distanceFromUser", "no viewer means no distance")

	factors := item["rankingFactors"].(map[string]any)
	for _, key := range []string{"distance", "relevance", "sellerRating", "freshness", "price"} {
		assert.Contains(t, factors, key)
	}
}

func TestRank_EmptyProducts(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)

	rr := postRank(t, h, `{"products":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ranked":[],"count":0}`, rr.Body.String())

	rr = postRank(t, h, `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ranked":[],"count":0}`, rr.Body.String())
}

func TestRank_NonStringCreatedAtDegradesOneListing(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)

	rr := postRank(t, h, `{"products":[
		{"id":"epoch","title":"Lamp","price":10,"listing_type":"sale","created_at":1700000000},
		{"id":"dated","title":"Lamp","price":10,"listing_type":"sale","created_at":"2026-10-19T11:00:00Z"}
	]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decodeJSON[RankResponse](t, rr)
	require.Equal(t, 2, resp.Count)
	freshness := map[string]float64{}
	for _, l := range resp.Ranked {
		freshness[l.ID] = l.RankingFactors.Freshness
	}
	assert.Equal(t, 50.0, freshness["epoch"])
	assert.Equal(t, 100.0, freshness["dated"])
}

func TestRank_RadiusFilter(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)
	viewer := geo.Coordinates{Lat: 51.5074, Lng: -0.1278}
	radius := 10.0

	rr := postRank(t, h, RankRequest{
		Products: []listing.Product{
			product("london", "Bike", 51.51, -0.13),
			product("manchester", "Bike", 53.4808, -2.2426),
			{ID: "unlocated", Title: "Bike", ListingType: listing.TypeSale},
		},
		ViewerLocation: &viewer,
		RadiusKm:       &radius,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeJSON[RankResponse](t, rr)
	assert.Equal(t, []string{"london"}, resultIDs(resp.Ranked))
}

func TestRank_Validation(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 2, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
		status   int
	}{
		{"malformed json", `{"products":`, ErrCodeBadRequest, http.StatusBadRequest},
		{"empty body", ``, ErrCodeBadRequest, http.StatusBadRequest},
		{"viewer latitude out of range", `{"products":[],"viewer_location":{"lat":91,"lng":0}}`, ErrCodeValidation, http.StatusBadRequest},
		{"viewer longitude out of range", `{"products":[],"viewer_location":{"lat":0,"lng":-180.5}}`, ErrCodeValidation, http.StatusBadRequest},
		{"negative radius", `{"products":[],"viewer_location":{"lat":0,"lng":0},"radius_km":-1}`, ErrCodeValidation, http.StatusBadRequest},
		{"radius without viewer", `{"products":[],"radius_km":5}`, ErrCodeValidation, http.StatusBadRequest},
		{"batch too large", `{"products":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postRank(t, h, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			resp := decodeJSON[ErrorResponse](t, rr)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestRank_BodyTooLarge(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)
	body := `{"query":"` + strings.Repeat("a", MaxRankBodyBytes) + `"}`

	rr := postRank(t, h, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRank_MethodNotAllowed(t *testing.T) {
	h := NewRankHandlers(newTestRanker(t), 0, nil)
	rr := httptest.NewRecorder()
	h.Rank(rr, httptest.NewRequest(http.MethodGet, "/rank", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
