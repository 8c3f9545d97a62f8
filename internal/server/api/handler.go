package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/codeanster/washington-air-quality/internal/models"
	"github.com/codeanster/washington-air-quality/internal/server/storage"
)

const defaultLimit = 100
const maxLimit = 1000
const defaultThreshold = 100
const iso8601Format = time.RFC3339

// RecordsResponse is the paginated record listing payload.
type RecordsResponse struct {
	Records    []models.AirQualityRecord `json:"records"`
	NextCursor *string                   `json:"next_cursor,omitempty"`
}

// ExceedingResponse lists the locations over the threshold on the most
// recent report date.
type ExceedingResponse struct {
	Threshold int      `json:"threshold"`
	Locations []string `json:"locations"`
}

// AirQualityHandler holds dependencies for the API handlers.
type AirQualityHandler struct {
	repo storage.AirQualityRepository
}

// NewAirQualityHandler creates a new handler instance.
func NewAirQualityHandler(repo storage.AirQualityRepository) *AirQualityHandler {
	return &AirQualityHandler{
		repo: repo,
	}
}

// GetLatest handles requests for the most recent reading of a location key.
func (h *AirQualityHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	location := r.PathValue("location")

	rec, err := h.repo.LatestForLocation(r.Context(), location)
	if err != nil {
		log.Error().Err(err).Str("location", location).Msg("Error fetching latest record")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "No data found for this location", http.StatusNotFound)
		return
	}

	writeJSON(w, r, rec)
}

// GetExceeding handles requests for locations over the pollutant threshold
// on the most recent report date.
func (h *AirQualityHandler) GetExceeding(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	threshold := defaultThreshold
	if thresholdStr := r.URL.Query().Get("threshold"); thresholdStr != "" {
		parsed, err := strconv.Atoi(thresholdStr)
		if err != nil || parsed < 0 {
			log.Warn().Str("threshold", thresholdStr).Msg("Invalid 'threshold' parameter value")
			http.Error(w, "Invalid 'threshold' parameter: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		threshold = parsed
	}

	locations, err := h.repo.ExceedingLocations(r.Context(), threshold)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching exceeding locations")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if locations == nil {
		locations = []string{}
	}

	writeJSON(w, r, ExceedingResponse{Threshold: threshold, Locations: locations})
}

// GetTrend handles requests for a location's pollutant trend over a window.
func (h *AirQualityHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	location := r.PathValue("location")

	window := r.URL.Query().Get("window")
	if window == "" {
		window = "week"
	}

	var since time.Time
	switch window {
	case "week":
		since = time.Now().AddDate(0, 0, -7)
	case "month":
		since = time.Now().AddDate(0, 0, -30)
	default:
		http.Error(w, `Invalid 'window' parameter: use "week" or "month"`, http.StatusBadRequest)
		return
	}

	trend, err := h.repo.TrendForLocation(r.Context(), location, window, since)
	if err != nil {
		log.Error().Err(err).Str("location", location).Str("window", window).Msg("Error computing trend")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if trend == nil {
		http.Error(w, "No data found for this location and window", http.StatusNotFound)
		return
	}

	writeJSON(w, r, trend)
}

// ListRecords handles paginated listing of stored records.
func (h *AirQualityHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	query := r.URL.Query()
	limitStr := query.Get("limit")
	sinceStr := query.Get("since")
	cursorStr := query.Get("cursor")

	limit := defaultLimit
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > maxLimit {
			log.Warn().Err(err).Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsedLimit
	}

	var since *time.Time
	var cursorTimestamp *time.Time
	var cursorID *int64

	if cursorStr != "" {
		ts, id, err := decodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		cursorTimestamp = &ts
		cursorID = &id
	} else if sinceStr != "" {
		parsedSince, err := time.Parse(iso8601Format, sinceStr)
		if err != nil {
			log.Warn().Err(err).Str("since", sinceStr).Msg("Invalid 'since' parameter format")
			http.Error(w, "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", http.StatusBadRequest)
			return
		}
		utcSince := parsedSince.UTC()
		since = &utcSince
	}

	records, err := h.repo.FetchRecords(r.Context(), limit+1, since, cursorTimestamp, cursorID) // Fetch one extra
	if err != nil {
		log.Error().Err(err).Str("cursor", cursorStr).Msg("Error fetching records from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursorStr *string
	hasNextPage := len(records) > limit
	actualRecords := records
	if hasNextPage {
		actualRecords = records[:limit]
		if len(actualRecords) > 0 {
			lastRecord := actualRecords[len(actualRecords)-1]
			cursor := encodeCursor(lastRecord.CreatedAt.UTC(), lastRecord.ID)
			nextCursorStr = &cursor
		}
	}

	writeJSON(w, r, RecordsResponse{
		Records:    actualRecords,
		NextCursor: nextCursorStr,
	})
}

// writeJSON marshals the payload and writes it with a 200 status.
func writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
}
