package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeanster/washington-air-quality/internal/models"
	"github.com/codeanster/washington-air-quality/internal/server/api"
	"github.com/codeanster/washington-air-quality/internal/server/storage"
)

type stubRepository struct {
	latest    *models.AirQualityRecord
	exceeding []string
	trend     *storage.Trend
	records   []models.AirQualityRecord
	err       error

	gotLocation  string
	gotThreshold int
	gotWindow    string
	gotLimit     int
}

func (s *stubRepository) LatestForLocation(_ context.Context, location string) (*models.AirQualityRecord, error) {
	s.gotLocation = location
	return s.latest, s.err
}

func (s *stubRepository) ExceedingLocations(_ context.Context, threshold int) ([]string, error) {
	s.gotThreshold = threshold
	return s.exceeding, s.err
}

func (s *stubRepository) TrendForLocation(_ context.Context, location, window string, _ time.Time) (*storage.Trend, error) {
	s.gotLocation = location
	s.gotWindow = window
	return s.trend, s.err
}

func (s *stubRepository) FetchRecords(_ context.Context, limit int, _ *time.Time, _ *time.Time, _ *int64) ([]models.AirQualityRecord, error) {
	s.gotLimit = limit
	return s.records, s.err
}

func newTestMux(repo storage.AirQualityRepository) *http.ServeMux {
	handler := api.NewAirQualityHandler(repo)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/air-quality", handler.ListRecords)
	mux.HandleFunc("GET /v1/air-quality/exceeding", handler.GetExceeding)
	mux.HandleFunc("GET /v1/air-quality/{location}/latest", handler.GetLatest)
	mux.HandleFunc("GET /v1/air-quality/{location}/trend", handler.GetTrend)
	return mux
}

func intPtr(v int) *int { return &v }

func TestGetLatest(t *testing.T) {
	ts := time.Date(2024, 8, 20, 10, 0, 0, 0, time.UTC)
	repo := &stubRepository{
		latest: &models.AirQualityRecord{
			Location:        "Seattle",
			ReportTimestamp: &ts,
			PM25:            intPtr(42),
			Agency:          "Puget Sound Clean Air Agency",
		},
	}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/Seattle/latest", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Seattle", repo.gotLocation)

	var body models.AirQualityRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Seattle", body.Location)
	require.NotNil(t, body.PM25)
	assert.Equal(t, 42, *body.PM25)
}

func TestGetLatestNotFound(t *testing.T) {
	mux := newTestMux(&stubRepository{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/Walla%20Walla/latest", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExceeding(t *testing.T) {
	repo := &stubRepository{exceeding: []string{"Seattle", "Spokane"}}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/exceeding?threshold=150", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 150, repo.gotThreshold)

	var body api.ExceedingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 150, body.Threshold)
	assert.Equal(t, []string{"Seattle", "Spokane"}, body.Locations)
}

func TestGetExceedingDefaultsAndValidation(t *testing.T) {
	repo := &stubRepository{}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/exceeding", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, repo.gotThreshold)

	// Empty result serializes as an empty array, not null.
	var body api.ExceedingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Locations)
	assert.Empty(t, body.Locations)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/air-quality/exceeding?threshold=-5", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTrend(t *testing.T) {
	change := 25.0
	repo := &stubRepository{
		trend: &storage.Trend{
			Location:   "Spokane",
			Window:     "month",
			PM25Change: &change,
			Direction:  "worsening",
		},
	}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/Spokane/trend?window=month", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "month", repo.gotWindow)

	var body storage.Trend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "worsening", body.Direction)
	require.NotNil(t, body.PM25Change)
	assert.InDelta(t, 25.0, *body.PM25Change, 0.001)
}

func TestGetTrendDefaultWindowAndErrors(t *testing.T) {
	repo := &stubRepository{trend: &storage.Trend{Location: "Seattle", Window: "week", Direction: "mixed"}}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/Seattle/trend", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "week", repo.gotWindow)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/air-quality/Seattle/trend?window=year", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mux = newTestMux(&stubRepository{})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/air-quality/Seattle/trend", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRecordsPagination(t *testing.T) {
	now := time.Date(2024, 8, 20, 10, 0, 0, 0, time.UTC)
	var records []models.AirQualityRecord
	for i := 0; i < 3; i++ {
		records = append(records, models.AirQualityRecord{
			ID:        int64(i + 1),
			Location:  fmt.Sprintf("Location %d", i+1),
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	repo := &stubRepository{records: records}
	mux := newTestMux(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality?limit=2", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Handler requests one extra row to detect the next page.
	assert.Equal(t, 3, repo.gotLimit)

	var body api.RecordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Records, 2)
	require.NotNil(t, body.NextCursor)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/air-quality?cursor="+*body.NextCursor, nil)
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRecordsRejectsBadParams(t *testing.T) {
	mux := newTestMux(&stubRepository{})

	for _, target := range []string{
		"/v1/air-quality?limit=0",
		"/v1/air-quality?limit=abc",
		"/v1/air-quality?since=yesterday",
		"/v1/air-quality?cursor=not-a-cursor",
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
