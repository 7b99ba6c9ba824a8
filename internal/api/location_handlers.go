package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/location"
	"github.com/onnwee/marketrank/internal/middleware"
)

// maxLocationBodyBytes caps the PUT /location body.
const maxLocationBodyBytes = 4 << 10

// LocationHandlers stores and returns the viewer location of a session.
type LocationHandlers struct {
	cache  location.Cache
	logger *slog.Logger
}

// NewLocationHandlers creates LocationHandlers backed by cache.
func NewLocationHandlers(cache location.Cache, logger *slog.Logger) *LocationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationHandlers{cache: cache, logger: logger}
}

// LocationRequest is the body of PUT /location.
type LocationRequest struct {
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	AccuracyMeters float64  `json:"accuracy_meters,omitempty"`
}

// LocationResponse describes a cached viewer location.
type LocationResponse struct {
	Coordinates    geo.Coordinates `json:"coordinates"`
	CoarseGeohash  string          `json:"coarse_geohash"`
	AccuracyMeters float64         `json:"accuracy_meters,omitempty"`
	ResolvedAt     string          `json:"resolved_at"`
}

func newLocationResponse(entry *location.Entry) LocationResponse {
	return LocationResponse{
		Coordinates:    entry.Coordinates,
		CoarseGeohash:  geo.CoarseGeohash(&entry.Coordinates),
		AccuracyMeters: entry.AccuracyMeters,
		ResolvedAt:     entry.ResolvedAt.UTC().Format(time.RFC3339),
	}
}

// Location handles GET, PUT and DELETE /location for the X-Session-ID session.
func (h *LocationHandlers) Location(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		writeCodedError(w, r, ErrCodeValidation, "A valid "+middleware.SessionIDHeader+" header is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, sessionID)
	case http.MethodPut:
		h.put(w, r, sessionID)
	case http.MethodDelete:
		h.delete(w, r, sessionID)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *LocationHandlers) get(w http.ResponseWriter, r *http.Request, sessionID string) {
	entry, err := h.cache.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, location.ErrNotFound) {
			writeCodedError(w, r, ErrCodeNotFound, "No location cached for this session")
			return
		}
		h.logger.ErrorContext(r.Context(), "location cache read failed", "error", err)
		writeCodedError(w, r, ErrCodeUnavailable, "Location cache unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, newLocationResponse(entry))
}

func (h *LocationHandlers) put(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req LocationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLocationBodyBytes)).Decode(&req); err != nil {
		writeCodedError(w, r, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeCodedError(w, r, ErrCodeValidation, "lat and lng are required")
		return
	}
	if req.AccuracyMeters < 0 {
		writeCodedError(w, r, ErrCodeValidation, "accuracy_meters must be non-negative")
		return
	}

	entry := location.Entry{
		Coordinates:    geo.Coordinates{Lat: *req.Lat, Lng: *req.Lng},
		AccuracyMeters: req.AccuracyMeters,
		ResolvedAt:     time.Now().UTC(),
	}
	if err := h.cache.Set(r.Context(), sessionID, entry); err != nil {
		if errors.Is(err, location.ErrInvalidCoordinates) {
			writeCodedError(w, r, ErrCodeValidation, "lat must be in [-90, 90] and lng in [-180, 180]")
			return
		}
		h.logger.ErrorContext(r.Context(), "location cache write failed", "error", err)
		writeCodedError(w, r, ErrCodeUnavailable, "Location cache unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, newLocationResponse(&entry))
}

func (h *LocationHandlers) delete(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.cache.Delete(r.Context(), sessionID); err != nil && !errors.Is(err, location.ErrNotFound) {
		h.logger.ErrorContext(r.Context(), "location cache delete failed", "error", err)
		writeCodedError(w, r, ErrCodeUnavailable, "Location cache unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
