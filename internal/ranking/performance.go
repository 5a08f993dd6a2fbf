package ranking

import (
	"errors"
	"time"
)

var ErrEmptyExerciseID = errors.New("exercise id is empty")

type MetricType string

const (
	MetricMaxWeight MetricType = "max_weight"
	MetricMaxReps   MetricType = "max_reps"
	MetricMaxVolume MetricType = "max_volume"
)

// MetricTypes lists all supported performance metrics, in the order in which
// aggregates are recomputed.
var MetricTypes = []MetricType{MetricMaxWeight, MetricMaxReps, MetricMaxVolume}

// ExercisePerformance is the atomic observation unit fed into the engine,
// immutable once created.
type ExercisePerformance struct {
	ExerciseID       string    `json:"exerciseId"`
	MaxWeight        float64   `json:"maxWeight"`
	MaxReps          float64   `json:"maxReps"`
	MaxVolume        float64   `json:"maxVolume"`
	RecordedAt       time.Time `json:"recordedAt"`
	BodyweightAtTime float64   `json:"bodyweightAtTime"`
}

func (p ExercisePerformance) Validate() error {
	if p.ExerciseID == "" {
		return ErrEmptyExerciseID
	}
	return nil
}

// MetricValue returns the observation value for the given metric type.
func (p ExercisePerformance) MetricValue(metric MetricType) float64 {
	switch metric {
	case MetricMaxWeight:
		return p.MaxWeight
	case MetricMaxReps:
		return p.MaxReps
	case MetricMaxVolume:
		return p.MaxVolume
	default:
		return 0
	}
}
