package updates

import (
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
)

// Item is one pending performance observation awaiting aggregation for a
// single segment. The queue owns items exclusively until they are dequeued
// by the processor.
type Item struct {
	ID           string                      `json:"id"`
	SegmentID    string                      `json:"segmentId"`
	ExerciseID   string                      `json:"exerciseId"`
	Demographics ranking.UserDemographics    `json:"userDemographics"`
	Performance  ranking.ExercisePerformance `json:"performanceData"`
	Priority     ranking.Priority            `json:"priority"`
	CreatedAt    time.Time                   `json:"createdAt"`
	Attempts     int                         `json:"attempts"`
	LastAttempt  *time.Time                  `json:"lastAttempt,omitempty"`
	ErrorMessage string                      `json:"errorMessage,omitempty"`

	// Persisted marks items whose raw observations already reached the
	// store, so a retry after a later failure does not insert them twice.
	Persisted bool `json:"-"`
}

// Key returns the composite grouping key of the item.
func (i Item) Key() string {
	return i.SegmentID + "::" + i.ExerciseID
}
