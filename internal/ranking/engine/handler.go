package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"
	"github.com/strengthstats/rankengine/pkg"

	log "github.com/sirupsen/logrus"
)

type SubmitPerformanceRequest struct {
	Demographics ranking.UserDemographics    `json:"userDemographics"`
	Performance  ranking.ExercisePerformance `json:"performanceData"`
	Priority     string                      `json:"priority,omitempty"`
}

type SubmitPerformanceResponse struct {
	Queued   int      `json:"queued"`
	ItemIDs  []string `json:"itemIds"`
	Priority string   `json:"priority"`
}

type ForceUpdateRequest struct {
	SegmentID  string `json:"segmentId"`
	ExerciseID string `json:"exerciseId"`
	Priority   string `json:"priority,omitempty"`
}

type ClearQueueResponse struct {
	Cleared int `json:"cleared"`
}

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine: engine,
	}
}

func (handler *Handler) HandleSubmitPerformance(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.submit")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req SubmitPerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("submit performance, unmarshal json params: %s", err)
		http.Error(w, "submit performance failed", http.StatusBadRequest)
		return
	}

	priority, err := ranking.ParsePriority(req.Priority)
	if err != nil {
		http.Error(w, "error, invalid priority", http.StatusBadRequest)
		return
	}

	itemIDs, err := handler.engine.QueueUpdate(ctx, req.Demographics, req.Performance, priority)
	if err != nil {
		log.Errorf("submit performance [%s]: %s", req.Performance.ExerciseID, err)
		http.Error(w, "error, failed to queue performance update", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(SubmitPerformanceResponse{
		Queued:   len(itemIDs),
		ItemIDs:  itemIDs,
		Priority: priority.String(),
	})
	if err != nil {
		log.Errorf("failed to marshal submit performance response: %s", err)
		http.Error(w, "error, failed to queue performance update", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusAccepted)
}

func (handler *Handler) HandleForceUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.force")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req ForceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("force update, unmarshal json params: %s", err)
		http.Error(w, "force update failed", http.StatusBadRequest)
		return
	}
	if req.SegmentID == "" {
		http.Error(w, "error, segment id empty", http.StatusBadRequest)
		return
	}
	if req.ExerciseID == "" {
		http.Error(w, "error, exercise id empty", http.StatusBadRequest)
		return
	}

	// forced recomputations jump the queue unless the caller says otherwise
	if req.Priority == "" {
		req.Priority = ranking.PriorityCritical.String()
	}
	priority, err := ranking.ParsePriority(req.Priority)
	if err != nil {
		http.Error(w, "error, invalid priority", http.StatusBadRequest)
		return
	}

	if err := handler.engine.ForceUpdate(ctx, req.SegmentID, req.ExerciseID, priority); err != nil {
		log.Errorf("force update [%s/%s]: %s", req.SegmentID, req.ExerciseID, err)
		http.Error(w, "error, failed to force update", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, []byte(`{"forced":true}`))
}

func (handler *Handler) HandleSegments(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.segments")
	defer span.End()

	demographics, err := demographicsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scored := handler.engine.SegmentsFor(demographics)

	scoredJson, err := json.Marshal(scored)
	if err != nil {
		log.Errorf("failed to marshal scored segments: %s", err)
		http.Error(w, "failed to get segments", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, scoredJson)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.stats")
	defer span.End()

	statsJson, err := json.Marshal(handler.engine.Stats())
	if err != nil {
		log.Errorf("failed to marshal engine stats: %s", err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}

func (handler *Handler) HandleSegmentStatuses(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.segmentstatuses")
	defer span.End()

	statusesJson, err := json.Marshal(handler.engine.SegmentStatuses())
	if err != nil {
		log.Errorf("failed to marshal segment statuses: %s", err)
		http.Error(w, "failed to get segment statuses", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statusesJson)
}

func (handler *Handler) HandleClearQueue(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.clearqueue")
	defer span.End()

	cleared := handler.engine.ClearQueue()
	log.Debugf("update queue cleared, %d items dropped", cleared)

	respJson, err := json.Marshal(ClearQueueResponse{Cleared: cleared})
	if err != nil {
		log.Errorf("failed to marshal clear queue response: %s", err)
		http.Error(w, "failed to clear queue", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// demographicsFromQuery reads user demographics from URL query params, used
// by the read-only endpoints.
func demographicsFromQuery(r *http.Request) (ranking.UserDemographics, error) {
	var d ranking.UserDemographics

	query := r.URL.Query()
	if ageStr := query.Get("age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil {
			return d, ranking.ErrInvalidAgeParam
		}
		d.Age = age
	}
	if weightStr := query.Get("weight"); weightStr != "" {
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return d, ranking.ErrInvalidWeightParam
		}
		d.Weight = weight
	}
	if bodyFatStr := query.Get("body_fat"); bodyFatStr != "" {
		bodyFat, err := strconv.ParseFloat(bodyFatStr, 64)
		if err != nil {
			return d, ranking.ErrInvalidBodyFatParam
		}
		d.BodyFatPercentage = &bodyFat
	}
	d.Gender = ranking.Gender(query.Get("gender"))
	d.ExperienceLevel = ranking.ExperienceLevel(query.Get("experience"))
	return d, nil
}
