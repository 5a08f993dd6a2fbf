package segments

import "github.com/strengthstats/rankengine/internal/ranking"

const DefaultBasePopulation = 200_000

// StaticEstimator derives a deterministic sample-size estimate by scaling a
// base population down for every criterion the segment constrains. It stands
// in for a live warehouse query and is good enough for quality scoring.
type StaticEstimator struct {
	basePopulation int
}

func NewStaticEstimator(basePopulation int) *StaticEstimator {
	if basePopulation <= 0 {
		basePopulation = DefaultBasePopulation
	}
	return &StaticEstimator{basePopulation: basePopulation}
}

func (e *StaticEstimator) EstimateSampleSize(s Segment) int {
	population := float64(e.basePopulation)

	if s.constrainsAge() {
		span := float64(s.AgeMax - s.AgeMin + 1)
		population *= span / float64(maxSegmentAge-minSegmentAge+1)
	}
	if s.constrainsWeight() {
		span := *s.WeightMax - *s.WeightMin
		population *= span / (300 - 30)
	}
	if s.Gender != ranking.GenderAll {
		population *= 0.5
	}
	if s.Experience != nil {
		population *= 0.25
	}

	if population < 1 {
		return 1
	}
	return int(population)
}
