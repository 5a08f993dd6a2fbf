package comparison_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/comparison"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/ranking/segments"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Compare(t *testing.T) {
	service, storeMock := newTestService(t)
	handler := comparison.NewHandler(service)

	storeMock.EXPECT().
		GetData(gomock.Any(), gomock.Any(), "bench_press", ranking.MetricMaxWeight).
		Return(&percentiles.Data{
			SegmentID: "age_25_34_weight_70_80_exp_intermediate_male",
			Summary:   testSummary(),
		}, nil)

	req := httptest.NewRequest(
		http.MethodGet,
		"/rankings/compare?exercise_id=bench_press&metric=max_weight&value=100"+
			"&age=28&gender=male&weight=75&experience=intermediate",
		nil,
	)
	rr := httptest.NewRecorder()

	handler.HandleCompare(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var result comparison.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 90, result.Percentile)
	assert.Equal(t, comparison.StrengthAdvanced, result.StrengthLevel)
	assert.True(t, result.SufficientData)
}

func TestHandler_Compare_BadRequests(t *testing.T) {
	service, _ := newTestService(t)
	handler := comparison.NewHandler(service)

	for _, target := range []string{
		"/rankings/compare?value=100",                        // no exercise id
		"/rankings/compare?exercise_id=bench_press",          // no value
		"/rankings/compare?exercise_id=bench_press&value=xx", // value NaN
		"/rankings/compare?exercise_id=bench_press&value=10&age=abc",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		handler.HandleCompare(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "target: %s", target)
	}
}

func TestHandler_Leaderboard(t *testing.T) {
	service, storeMock := newTestService(t)
	handler := comparison.NewHandler(service)

	storeMock.EXPECT().
		TopValues(gomock.Any(), segments.GlobalSegmentID, "deadlift", ranking.MetricMaxWeight, 2).
		Return([]percentiles.Observation{{Value: 300}, {Value: 280}}, nil)

	req := httptest.NewRequest(
		http.MethodGet, "/rankings/leaderboard/deadlift?metric=max_weight&limit=2", nil,
	)
	req = mux.SetURLVars(req, map[string]string{"exerciseId": "deadlift"})
	rr := httptest.NewRecorder()

	handler.HandleLeaderboard(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var leaderboard comparison.Leaderboard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &leaderboard))
	require.Len(t, leaderboard.Entries, 2)
	assert.Equal(t, 300.0, leaderboard.Entries[0].Value)
	assert.Equal(t, 1, leaderboard.Entries[0].Rank)
}

func TestHandler_Leaderboard_MissingExercise(t *testing.T) {
	service, _ := newTestService(t)
	handler := comparison.NewHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/rankings/leaderboard/", nil)
	rr := httptest.NewRecorder()

	handler.HandleLeaderboard(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
