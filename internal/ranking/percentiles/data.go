package percentiles

import (
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
)

// Data is the durable percentile aggregate for one
// (segment, exercise, metric) key. It is recomputed wholesale on each batch.
type Data struct {
	SegmentID  string             `json:"segmentId"`
	ExerciseID string             `json:"exerciseId"`
	Metric     ranking.MetricType `json:"metricType"`

	Summary

	LastUpdated time.Time `json:"lastUpdated"`
}

// Observation is one raw performance value attributed to a segment key.
type Observation struct {
	SegmentID  string             `json:"segmentId"`
	ExerciseID string             `json:"exerciseId"`
	Metric     ranking.MetricType `json:"metricType"`
	Value      float64            `json:"value"`
	RecordedAt time.Time          `json:"recordedAt"`
}
