package segments

import (
	"fmt"
	"strings"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
)

// Segment is a demographic bucket against which performances are ranked.
// Segments are derived deterministically from demographic criteria and are
// not persisted as authoritative entities; the percentile data attached to a
// segment is the durable artifact.
type Segment struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	AgeMin      int                      `json:"ageMin"`
	AgeMax      int                      `json:"ageMax"`
	Gender      ranking.Gender           `json:"gender"`
	WeightMin   *float64                 `json:"weightMin,omitempty"`
	WeightMax   *float64                 `json:"weightMax,omitempty"`
	Experience  *ranking.ExperienceLevel `json:"experienceLevel,omitempty"`
	SampleSize  int                      `json:"sampleSize"`
	LastUpdated time.Time                `json:"lastUpdated"`
}

// Quality describes how useful a segment is for ranking a particular user.
// Derived, never persisted.
type Quality struct {
	SpecificityScore float64 `json:"specificityScore"`
	SampleSizeScore  float64 `json:"sampleSizeScore"`
	RelevanceScore   float64 `json:"relevanceScore"`
	OverallQuality   float64 `json:"overallQuality"`
	ConfidenceLevel  float64 `json:"confidenceLevel"`
}

type ScoredSegment struct {
	Segment Segment `json:"segment"`
	Quality Quality `json:"quality"`
}

// Contains reports whether the user's demographics fall inside the segment's
// criteria. All numeric bounds are inclusive on both ends.
func (s Segment) Contains(d ranking.UserDemographics) bool {
	if d.Age < s.AgeMin || d.Age > s.AgeMax {
		return false
	}
	if s.Gender != ranking.GenderAll && s.Gender != d.Gender {
		return false
	}
	if s.WeightMin != nil && d.Weight < *s.WeightMin {
		return false
	}
	if s.WeightMax != nil && d.Weight > *s.WeightMax {
		return false
	}
	if s.Experience != nil && *s.Experience != d.ExperienceLevel {
		return false
	}
	return true
}

func (s Segment) constrainsAge() bool {
	return s.AgeMin > minSegmentAge || s.AgeMax < maxSegmentAge
}

func (s Segment) constrainsWeight() bool {
	return s.WeightMin != nil && s.WeightMax != nil
}

// GlobalSegmentID is the id of the segment with no criteria, containing
// every user. Leaderboards read from it.
const GlobalSegmentID = "global"

// buildID derives the deterministic segment id from its criteria.
func buildID(s Segment) string {
	var parts []string
	if s.constrainsAge() {
		parts = append(parts, fmt.Sprintf("age_%d_%d", s.AgeMin, s.AgeMax))
	}
	if s.constrainsWeight() {
		parts = append(parts, fmt.Sprintf("weight_%.0f_%.0f", *s.WeightMin, *s.WeightMax))
	}
	if s.Experience != nil {
		parts = append(parts, fmt.Sprintf("exp_%s", *s.Experience))
	}
	if s.Gender != ranking.GenderAll {
		parts = append(parts, string(s.Gender))
	}
	if len(parts) == 0 {
		return GlobalSegmentID
	}
	return strings.Join(parts, "_")
}
