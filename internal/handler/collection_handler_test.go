package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/domain/service"
	"HexCollector-App/internal/usecase"
)

// fakeCollectionUseCase はハンドラーテスト用のユースケース
type fakeCollectionUseCase struct {
	startErr    error
	aggregate   *model.Aggregate
	lastRequest *model.StartCollectionRequest
	nearbyArgs  []float64
	nearbyLimit int
}

func (f *fakeCollectionUseCase) StartCollection(ctx context.Context, req *model.StartCollectionRequest) (*model.Aggregate, error) {
	f.lastRequest = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.aggregate, nil
}

func (f *fakeCollectionUseCase) StartCollectionAsync(req *model.StartCollectionRequest) (*model.StartCollectionResponse, error) {
	f.lastRequest = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.StartCollectionResponse{RunID: "run-async", Status: string(model.RunStatusRunning)}, nil
}

func (f *fakeCollectionUseCase) Progress() model.Progress {
	return model.NewProgress(model.RunState{Status: model.RunStatusRunning, TotalCells: 4, ProcessedCells: 1})
}

func (f *fakeCollectionUseCase) Stats() model.GovernorStats {
	return model.GovernorStats{TotalRequests: 7, SuccessfulRequests: 6, FailedRequests: 1}
}

func (f *fakeCollectionUseCase) LatestAggregate(ctx context.Context) (*model.Aggregate, error) {
	if f.aggregate == nil {
		return nil, repository.ErrAggregateNotFound
	}
	return f.aggregate, nil
}

func (f *fakeCollectionUseCase) NearbyPlaces(ctx context.Context, center model.LatLng, radiusMeters float64, limit int) (*model.NearbyPlacesResponse, error) {
	f.nearbyArgs = []float64{center.Lat, center.Lng, radiusMeters}
	f.nearbyLimit = limit
	if f.aggregate == nil {
		return nil, repository.ErrAggregateNotFound
	}
	return &model.NearbyPlacesResponse{RunID: f.aggregate.RunID, Places: []model.Place{}}, nil
}

func (f *fakeCollectionUseCase) Wait(ctx context.Context) error {
	return nil
}

var _ usecase.CollectionUseCase = (*fakeCollectionUseCase)(nil)

func newTestRouter(uc usecase.CollectionUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewCollectionHandler(uc), nil)
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sampleAggregate() *model.Aggregate {
	return &model.Aggregate{
		RunID:        "run-1",
		RegionName:   "tokyo",
		TotalCells:   2,
		TotalResults: 1,
		Results:      []model.Place{{ExternalID: "P1", Name: "Salon", PhotoRefs: []string{}}},
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeCollectionUseCase{})
	w := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestPostCollections_BackgroundByDefault(t *testing.T) {
	uc := &fakeCollectionUseCase{}
	router := newTestRouter(uc)

	w := doRequest(router, http.MethodPost, "/collections", map[string]any{"resolution": 6, "test_mode": true})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp model.StartCollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-async", resp.RunID)

	require.NotNil(t, uc.lastRequest.Resolution)
	assert.Equal(t, 6, *uc.lastRequest.Resolution)
	assert.True(t, uc.lastRequest.TestMode)
}

func TestPostCollections_WaitReturnsAggregate(t *testing.T) {
	uc := &fakeCollectionUseCase{aggregate: sampleAggregate()}
	router := newTestRouter(uc)

	w := doRequest(router, http.MethodPost, "/collections", map[string]any{"wait": true})
	require.Equal(t, http.StatusOK, w.Code)

	var aggregate model.Aggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &aggregate))
	assert.Equal(t, "run-1", aggregate.RunID)
	assert.Len(t, aggregate.Results, 1)
}

func TestPostCollections_EmptyBodyUsesDefaults(t *testing.T) {
	uc := &fakeCollectionUseCase{}
	router := newTestRouter(uc)

	w := doRequest(router, http.MethodPost, "/collections/sync", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, uc.lastRequest)
	assert.Nil(t, uc.lastRequest.Resolution)
}

func TestPostCollections_InvalidResolution(t *testing.T) {
	router := newTestRouter(&fakeCollectionUseCase{})

	w := doRequest(router, http.MethodPost, "/collections", map[string]any{"resolution": 16})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestPostCollections_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"実行中", service.ErrCollectionRunning, http.StatusConflict, "collection_running"},
		{"解像度不正", fmt.Errorf("%w: 99", service.ErrInvalidResolution), http.StatusBadRequest, "invalid_request"},
		{"領域不正", fmt.Errorf("%w: bad geojson", usecase.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"その他", errors.New("provider down"), http.StatusInternalServerError, "collection_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeCollectionUseCase{startErr: tc.err})
			w := doRequest(router, http.MethodPost, "/collections", map[string]any{"wait": true})
			assert.Equal(t, tc.status, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestGetProgressAndStats(t *testing.T) {
	router := newTestRouter(&fakeCollectionUseCase{})

	w := doRequest(router, http.MethodGet, "/collections/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress model.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, model.RunStatusRunning, progress.Status)
	assert.InDelta(t, 25.0, progress.CompletionPercent, 0.001)

	w = doRequest(router, http.MethodGet, "/collections/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.GovernorStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(7), stats.TotalRequests)
}

func TestGetLatest(t *testing.T) {
	router := newTestRouter(&fakeCollectionUseCase{})
	w := doRequest(router, http.MethodGet, "/collections/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	router = newTestRouter(&fakeCollectionUseCase{aggregate: sampleAggregate()})
	w = doRequest(router, http.MethodGet, "/collections/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"results"`)

	w = doRequest(router, http.MethodGet, "/collections/latest?include_results=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results"`)
}

func TestGetNearbyPlaces(t *testing.T) {
	uc := &fakeCollectionUseCase{aggregate: sampleAggregate()}
	router := newTestRouter(uc)

	w := doRequest(router, http.MethodGet, "/places?lat=35.68&lng=139.76&radius=2500&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float64{35.68, 139.76, 2500}, uc.nearbyArgs)
	assert.Equal(t, 10, uc.nearbyLimit)

	w = doRequest(router, http.MethodGet, "/places?lat=35.68&lng=139.76", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultNearbyRadius, uc.nearbyArgs[2])
	assert.Equal(t, defaultNearbyLimit, uc.nearbyLimit)
}

func TestGetNearbyPlaces_InvalidQuery(t *testing.T) {
	router := newTestRouter(&fakeCollectionUseCase{aggregate: sampleAggregate()})

	for _, path := range []string{
		"/places",
		"/places?lat=abc&lng=139",
		"/places?lat=91&lng=139",
		"/places?lat=35&lng=181",
		"/places?lat=35&lng=139&radius=-1",
		"/places?lat=35&lng=139&limit=0",
	} {
		w := doRequest(router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}
