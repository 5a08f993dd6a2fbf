package comparison

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"
	"github.com/strengthstats/rankengine/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// HandleCompare answers "what percentile is this value in for this user".
// Demographics and the value come as query params.
func (handler *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.compare")
	defer span.End()

	query := r.URL.Query()

	exerciseID := query.Get("exercise_id")
	if exerciseID == "" {
		http.Error(w, "error, exercise id empty", http.StatusBadRequest)
		return
	}

	metric := ranking.MetricType(query.Get("metric"))
	if metric == "" {
		metric = ranking.MetricMaxWeight
	}

	value, err := strconv.ParseFloat(query.Get("value"), 64)
	if err != nil {
		http.Error(w, "error, value NaN", http.StatusBadRequest)
		return
	}

	demographics, err := demographicsFromQuery(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler.service.Compare(ctx, demographics, exerciseID, metric, value)
	if err != nil {
		log.Errorf("compare [%s] [%s]: %s", exerciseID, metric, err)
		http.Error(w, "comparison failed", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal comparison result: %s", err)
		http.Error(w, "comparison failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resultJson)
}

func (handler *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.leaderboard")
	defer span.End()

	vars := mux.Vars(r)
	exerciseID := vars["exerciseId"]
	if exerciseID == "" {
		http.Error(w, "error, exercise id empty", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	metric := ranking.MetricType(query.Get("metric"))
	if metric == "" {
		metric = ranking.MetricMaxWeight
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		var err error
		if limit, err = strconv.Atoi(limitStr); err != nil {
			http.Error(w, "error, limit NaN", http.StatusBadRequest)
			return
		}
	}

	leaderboard, err := handler.service.Leaderboard(ctx, exerciseID, metric, limit)
	if err != nil {
		log.Errorf("leaderboard [%s] [%s]: %s", exerciseID, metric, err)
		http.Error(w, "leaderboard failed", http.StatusInternalServerError)
		return
	}

	leaderboardJson, err := json.Marshal(leaderboard)
	if err != nil {
		log.Errorf("failed to marshal leaderboard: %s", err)
		http.Error(w, "leaderboard failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, leaderboardJson)
}

func demographicsFromQuery(query map[string][]string) (ranking.UserDemographics, error) {
	get := func(key string) string {
		if vals := query[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	var d ranking.UserDemographics
	if ageStr := get("age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil {
			return d, ranking.ErrInvalidAgeParam
		}
		d.Age = age
	}
	if weightStr := get("weight"); weightStr != "" {
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return d, ranking.ErrInvalidWeightParam
		}
		d.Weight = weight
	}
	d.Gender = ranking.Gender(get("gender"))
	d.ExperienceLevel = ranking.ExperienceLevel(get("experience"))
	return d, nil
}
