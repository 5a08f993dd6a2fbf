package comparison

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/ranking/segments"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=comparison_mocks_test.go -package=comparison_test

type dataStore interface {
	GetData(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) (*percentiles.Data, error)
	TopValues(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType, limit int) ([]percentiles.Observation, error)
}

type StrengthLevel string

const (
	StrengthElite        StrengthLevel = "elite"
	StrengthAdvanced     StrengthLevel = "advanced"
	StrengthIntermediate StrengthLevel = "intermediate"
	StrengthNovice       StrengthLevel = "novice"
	StrengthUntrained    StrengthLevel = "untrained"
)

const defaultLeaderboardSize = 10

var ErrUnknownMetric = errors.New("unknown metric type")

// Result is one percentile comparison against a single segment.
type Result struct {
	SegmentID      string             `json:"segmentId"`
	SegmentName    string             `json:"segmentName"`
	ExerciseID     string             `json:"exerciseId"`
	Metric         ranking.MetricType `json:"metricType"`
	Value          float64            `json:"value"`
	Percentile     int                `json:"percentile"`
	StrengthLevel  StrengthLevel      `json:"strengthLevel"`
	EstimatedRank  int                `json:"estimatedRank"`
	SampleSize     int                `json:"sampleSize"`
	SufficientData bool               `json:"sufficientData"`
}

// LeaderboardEntry is one row of a top-performances listing.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}

type Leaderboard struct {
	ExerciseID string             `json:"exerciseId"`
	Metric     ranking.MetricType `json:"metricType"`
	SegmentID  string             `json:"segmentId"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// Service is the read-only composition over the segment catalog and the
// percentile store. It never writes.
type Service struct {
	catalog *segments.Catalog
	store   dataStore
}

func NewService(catalog *segments.Catalog, store dataStore) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
	}
}

// Compare ranks the given value against the most specific of the user's
// segments that has aggregated data. Percentiles are snapped down to the
// eight stored breakpoints, not interpolated.
func (s *Service) Compare(
	ctx context.Context,
	demographics ranking.UserDemographics,
	exerciseID string,
	metric ranking.MetricType,
	value float64,
) (_ *Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "comparison.compare")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("exercise.id", exerciseID),
		attribute.String("metric", string(metric)),
	)

	if exerciseID == "" {
		return nil, ranking.ErrEmptyExerciseID
	}
	if !validMetric(metric) {
		return nil, ErrUnknownMetric
	}

	normalized, _ := demographics.Normalize()
	scored := s.catalog.MostSpecific(normalized, 0)

	for _, candidate := range scored {
		data, err := s.store.GetData(ctx, candidate.Segment.ID, exerciseID, metric)
		if errors.Is(err, percentiles.ErrDataNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get data for segment %s: %w", candidate.Segment.ID, err)
		}

		percentile := snapPercentile(data.Summary, value)
		return &Result{
			SegmentID:      data.SegmentID,
			SegmentName:    candidate.Segment.Name,
			ExerciseID:     exerciseID,
			Metric:         metric,
			Value:          value,
			Percentile:     percentile,
			StrengthLevel:  strengthLevel(percentile),
			EstimatedRank:  estimatedRank(data.SampleSize, percentile),
			SampleSize:     data.SampleSize,
			SufficientData: true,
		}, nil
	}

	// no segment has data for this exercise/metric yet
	return &Result{
		ExerciseID:     exerciseID,
		Metric:         metric,
		Value:          value,
		StrengthLevel:  StrengthUntrained,
		SufficientData: false,
	}, nil
}

// Leaderboard returns the top recorded values for one exercise+metric in the
// global segment.
func (s *Service) Leaderboard(
	ctx context.Context,
	exerciseID string,
	metric ranking.MetricType,
	limit int,
) (_ *Leaderboard, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "comparison.leaderboard")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if exerciseID == "" {
		return nil, ranking.ErrEmptyExerciseID
	}
	if !validMetric(metric) {
		return nil, ErrUnknownMetric
	}
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}

	top, err := s.store.TopValues(ctx, segments.GlobalSegmentID, exerciseID, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("top values: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(top))
	for i, o := range top {
		entries = append(entries, LeaderboardEntry{
			Rank:       i + 1,
			Value:      o.Value,
			RecordedAt: o.RecordedAt,
		})
	}

	return &Leaderboard{
		ExerciseID: exerciseID,
		Metric:     metric,
		SegmentID:  segments.GlobalSegmentID,
		Entries:    entries,
	}, nil
}

// snapPercentile walks the stored breakpoints from the top down and returns
// the highest one the value reaches. Values below the lowest breakpoint
// report its floor.
func snapPercentile(summary percentiles.Summary, value float64) int {
	points := summary.Points()
	for i := len(points) - 1; i >= 0; i-- {
		if value >= points[i].Value {
			return int(points[i].Percentile)
		}
	}
	return int(points[0].Percentile)
}

func strengthLevel(percentile int) StrengthLevel {
	switch {
	case percentile >= 95:
		return StrengthElite
	case percentile >= 80:
		return StrengthAdvanced
	case percentile >= 60:
		return StrengthIntermediate
	case percentile >= 30:
		return StrengthNovice
	default:
		return StrengthUntrained
	}
}

func estimatedRank(sampleSize, percentile int) int {
	rank := int(math.Round(float64(sampleSize) * (1 - float64(percentile)/100)))
	if rank < 1 {
		rank = 1
	}
	return rank
}

func validMetric(metric ranking.MetricType) bool {
	for _, m := range ranking.MetricTypes {
		if m == metric {
			return true
		}
	}
	return false
}
