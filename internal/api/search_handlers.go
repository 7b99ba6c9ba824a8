package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/marketrank/internal/catalog"
	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/location"
	"github.com/onnwee/marketrank/internal/middleware"
	"github.com/onnwee/marketrank/internal/ranking"
	"github.com/onnwee/marketrank/internal/tracing"
)

// Search limits.
const (
	MaxSearchLimit     = 100 // Max results per request
	DefaultSearchLimit = 20  // Default results if not specified
	MaxQueryLength     = 200 // Longest accepted q parameter, in bytes
)

// Viewer location sources reported in search responses.
const (
	ViewerSourceQuery   = "query"
	ViewerSourceSession = "session"
	ViewerSourceNone    = "none"
)

// SearchHandlers ranks catalog listings for a viewer.
type SearchHandlers struct {
	repo            catalog.Repository
	averages        *catalog.AverageCache
	locations       location.Cache
	ranker          *ranking.Ranker
	maxCandidates   int
	defaultRadiusKm float64
	logger          *slog.Logger
}

// SearchHandlersConfig configures SearchHandlers.
type SearchHandlersConfig struct {
	Repository catalog.Repository
	Averages   *catalog.AverageCache
	// Locations resolves the viewer from X-Session-ID when the request has
	// no lat/lng. Optional.
	Locations location.Cache
	Ranker    *ranking.Ranker
	// MaxCandidates caps how many listings are loaded per search.
	MaxCandidates int
	// DefaultRadiusKm applies when radius_km is absent. Zero means unbounded.
	DefaultRadiusKm float64
	Logger          *slog.Logger
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(cfg SearchHandlersConfig) *SearchHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	averages := cfg.Averages
	if averages == nil {
		averages = catalog.NewAverageCache(cfg.Repository, 0, logger)
	}
	return &SearchHandlers{
		repo:            cfg.Repository,
		averages:        averages,
		locations:       cfg.Locations,
		ranker:          cfg.Ranker,
		maxCandidates:   cfg.MaxCandidates,
		defaultRadiusKm: cfg.DefaultRadiusKm,
		logger:          logger,
	}
}

// SearchResponse is the body returned by GET /listings/search.
type SearchResponse struct {
	Results []RankedListing `json:"results"`
	Count   int             `json:"count"`
	// Candidates is the number of listings ranked before truncation.
	Candidates   int    `json:"candidates"`
	ViewerSource string `json:"viewer_source"`
}

// searchParams holds the parsed query string of a search.
type searchParams struct {
	query    string
	viewer   *geo.Coordinates
	radiusKm float64
	limit    int
}

// parseFloatParam parses a finite float query parameter.
func parseFloatParam(raw, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}

func (h *SearchHandlers) parseParams(r *http.Request) (searchParams, error) {
	query := r.URL.Query()
	params := searchParams{
		query:    strings.TrimSpace(query.Get("q")),
		radiusKm: h.defaultRadiusKm,
		limit:    DefaultSearchLimit,
	}
	if len(params.query) > MaxQueryLength {
		return params, fmt.Errorf("q must be at most %d bytes", MaxQueryLength)
	}

	latStr, lngStr := query.Get("lat"), query.Get("lng")
	if (latStr == "") != (lngStr == "") {
		return params, errors.New("lat and lng must be provided together")
	}
	if latStr != "" {
		lat, err := parseFloatParam(latStr, "lat")
		if err != nil {
			return params, err
		}
		lng, err := parseFloatParam(lngStr, "lng")
		if err != nil {
			return params, err
		}
		viewer := geo.Coordinates{Lat: lat, Lng: lng}
		if !viewer.Valid() {
			return params, errors.New("lat must be in [-90, 90] and lng in [-180, 180]")
		}
		params.viewer = &viewer
	}

	if radiusStr := query.Get("radius_km"); radiusStr != "" {
		radius, err := parseFloatParam(radiusStr, "radius_km")
		if err != nil || radius < 0 {
			return params, errors.New("radius_km must be a non-negative number")
		}
		params.radiusKm = radius
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return params, errors.New("limit must be a positive integer")
		}
		if limit > MaxSearchLimit {
			limit = MaxSearchLimit
		}
		params.limit = limit
	}

	return params, nil
}

// resolveViewer falls back to the session location cache when the request
// carries no coordinates. Cache failures are logged and treated as a miss.
func (h *SearchHandlers) resolveViewer(r *http.Request, params *searchParams) string {
	if params.viewer != nil {
		return ViewerSourceQuery
	}
	sessionID := middleware.GetSessionID(r.Context())
	if h.locations == nil || sessionID == "" {
		return ViewerSourceNone
	}

	entry, err := h.locations.Get(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, location.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "location cache lookup failed", "error", err)
		}
		return ViewerSourceNone
	}
	viewer := entry.Coordinates
	params.viewer = &viewer
	return ViewerSourceSession
}

// Search handles GET /listings/search.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	params, err := h.parseParams(r)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, err.Error())
		return
	}
	source := h.resolveViewer(r, &params)

	ctx, endSpan := tracing.StartSpan(r.Context(), "search_listings",
		tracing.ViewerSourceKey.String(source),
		tracing.RadiusKmKey.Float64(params.radiusKm),
		tracing.SearchLimitKey.Int(params.limit),
	)
	defer endSpan(nil)

	geofenced := params.viewer != nil && params.radiusKm > 0
	q := catalog.Query{Limit: h.maxCandidates}
	if geofenced {
		q.Window = catalog.CandidateWindow(*params.viewer, params.radiusKm)
	}

	candidates, err := h.repo.List(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load listings", "error", err)
		writeCodedError(w, r, ErrCodeInternal, "Failed to load listings")
		return
	}
	if geofenced {
		candidates = h.ranker.FilterByRadius(candidates, *params.viewer, params.radiusKm)
	}

	averages, err := h.averages.Get(ctx)
	if err != nil {
		// Ranking falls back to averages of the candidate set.
		h.logger.WarnContext(ctx, "category averages unavailable", "error", err)
		averages = nil
	}

	ranked := h.ranker.Rank(candidates, ranking.RankOptions{
		Viewer:           params.viewer,
		Query:            params.query,
		CategoryAverages: averages,
	})
	tracing.Event(ctx, "ranked", tracing.ResultCountKey.Int(len(ranked)))

	total := len(ranked)
	if len(ranked) > params.limit {
		ranked = ranked[:params.limit]
	}

	writeJSON(w, r, http.StatusOK, SearchResponse{
		Results:      newRankedListings(ranked),
		Count:        len(ranked),
		Candidates:   total,
		ViewerSource: source,
	})
}
