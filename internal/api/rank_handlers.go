package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
	"github.com/onnwee/marketrank/internal/ranking"
	"github.com/onnwee/marketrank/internal/tracing"
)

const (
	// MaxRankBodyBytes caps the POST /rank request body.
	MaxRankBodyBytes = 8 << 20
	// DefaultMaxRankBatch caps the number of products in one POST /rank call.
	DefaultMaxRankBatch = 5000
)

// RankHandlers serves the stateless ranking endpoint.
type RankHandlers struct {
	ranker   *ranking.Ranker
	maxBatch int
	logger   *slog.Logger
}

// NewRankHandlers creates RankHandlers. A non-positive maxBatch uses
// DefaultMaxRankBatch.
func NewRankHandlers(ranker *ranking.Ranker, maxBatch int, logger *slog.Logger) *RankHandlers {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxRankBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RankHandlers{ranker: ranker, maxBatch: maxBatch, logger: logger}
}

// RankRequest is the body of POST /rank.
type RankRequest struct {
	Products         []listing.Product        `json:"products"`
	ViewerLocation   *geo.Coordinates         `json:"viewer_location,omitempty"`
	Query            string                   `json:"query,omitempty"`
	CategoryAverages ranking.CategoryAverages `json:"category_averages,omitempty"`
	// RadiusKm, when set with a viewer location, drops listings farther
	// than the radius before ranking.
	RadiusKm *float64 `json:"radius_km,omitempty"`
}

// RankedListing is a ranked product as returned over HTTP.
type RankedListing struct {
	ranking.RankedProduct
	CoarseGeohash string `json:"coarse_geohash,omitempty"`
}

// RankResponse is the body returned by POST /rank.
type RankResponse struct {
	Ranked []RankedListing `json:"ranked"`
	Count  int             `json:"count"`
}

// newRankedListings attaches coarse geohashes to ranked products.
func newRankedListings(ranked []ranking.RankedProduct) []RankedListing {
	out := make([]RankedListing, len(ranked))
	for i := range ranked {
		out[i] = RankedListing{
			RankedProduct: ranked[i],
			CoarseGeohash: geo.CoarseGeohash(ranked[i].Location.Coordinates),
		}
	}
	return out
}

// validateRadius checks an optional radius. A radius requires a viewer.
func validateRadius(radius *float64, viewer *geo.Coordinates) error {
	if radius == nil {
		return nil
	}
	if math.IsNaN(*radius) || math.IsInf(*radius, 0) || *radius < 0 {
		return fmt.Errorf("radius_km must be a non-negative number")
	}
	if viewer == nil {
		return fmt.Errorf("radius_km requires a viewer location")
	}
	return nil
}

// Rank handles POST /rank.
func (h *RankHandlers) Rank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req RankRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRankBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeCodedError(w, r, ErrCodePayloadTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			writeCodedError(w, r, ErrCodeBadRequest, "Request body is required")
		default:
			writeCodedError(w, r, ErrCodeBadRequest, "Invalid JSON body")
		}
		return
	}

	if req.ViewerLocation != nil && !req.ViewerLocation.Valid() {
		writeCodedError(w, r, ErrCodeValidation, "viewer_location must have lat in [-90, 90] and lng in [-180, 180]")
		return
	}
	if err := validateRadius(req.RadiusKm, req.ViewerLocation); err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}
	if len(req.Products) > h.maxBatch {
		writeCodedError(w, r, ErrCodePayloadTooLarge, fmt.Sprintf("At most %d products can be ranked per request", h.maxBatch))
		return
	}

	ctx, endSpan := tracing.StartSpan(r.Context(), "rank_products",
		tracing.InputCountKey.Int(len(req.Products)),
		tracing.HasViewerKey.Bool(req.ViewerLocation != nil),
	)
	defer endSpan(nil)

	products := req.Products
	if req.RadiusKm != nil {
		products = h.ranker.FilterByRadius(products, *req.ViewerLocation, *req.RadiusKm)
		tracing.Event(ctx, "radius_filtered", tracing.ResultCountKey.Int(len(products)), tracing.RadiusKmKey.Float64(*req.RadiusKm))
	}

	ranked := h.ranker.Rank(products, ranking.RankOptions{
		Viewer:           req.ViewerLocation,
		Query:            req.Query,
		CategoryAverages: req.CategoryAverages,
	})

	h.logger.DebugContext(ctx, "ranked products",
		"input", len(req.Products),
		"ranked", len(ranked),
		"has_viewer", req.ViewerLocation != nil,
	)

	writeJSON(w, r, http.StatusOK, RankResponse{
		Ranked: newRankedListings(ranked),
		Count:  len(ranked),
	})
}
