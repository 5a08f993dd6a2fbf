package segments

import (
	"fmt"
	"math"
	"sort"

	"github.com/strengthstats/rankengine/internal/ranking"
)

const (
	minSegmentAge = 13
	maxSegmentAge = 120

	// DefaultSampleSizeCeiling is where the sample-size score saturates.
	DefaultSampleSizeCeiling = 1000

	// specificity criteria: age present, narrow age, weight present,
	// narrow weight, specific gender, specific experience
	maxSpecificityCriteria = 6

	narrowAgeSpanYears = 10
	narrowWeightSpanKg = 10
)

type ageBracket struct {
	min, max int
	name     string
}

var ageBrackets = []ageBracket{
	{13, 17, "13-17"},
	{18, 24, "18-24"},
	{25, 34, "25-34"},
	{35, 44, "35-44"},
	{45, 54, "45-54"},
	{55, 64, "55-64"},
	{65, maxSegmentAge, "65+"},
}

type weightClass struct {
	min, max float64
	name     string
}

var weightClasses = []weightClass{
	{30, 60, "under 60kg"},
	{60, 70, "60-70kg"},
	{70, 80, "70-80kg"},
	{80, 90, "80-90kg"},
	{90, 100, "90-100kg"},
	{100, 300, "over 100kg"},
}

// PopulationEstimator estimates how many observations back a segment. It can
// be a static table or a live query against the observation store.
type PopulationEstimator interface {
	EstimateSampleSize(s Segment) int
}

// Catalog enumerates and scores the demographic segments a user belongs to.
type Catalog struct {
	estimator         PopulationEstimator
	sampleSizeCeiling int
}

func NewCatalog(estimator PopulationEstimator) *Catalog {
	return &Catalog{
		estimator:         estimator,
		sampleSizeCeiling: DefaultSampleSizeCeiling,
	}
}

// Resolve returns every segment whose criteria contain the user's
// demographics: one per matching age bracket, weight class and experience
// level, pairwise combinations of those with the user's gender, the full
// combination, and the universal global segment. No speculative segments are
// emitted.
func (c *Catalog) Resolve(d ranking.UserDemographics) []Segment {
	var candidates []Segment

	// global
	candidates = append(candidates, Segment{
		Name:   "All lifters",
		AgeMin: minSegmentAge,
		AgeMax: maxSegmentAge,
		Gender: ranking.GenderAll,
	})

	for _, ab := range ageBrackets {
		candidates = append(candidates, Segment{
			Name:   fmt.Sprintf("Age %s", ab.name),
			AgeMin: ab.min,
			AgeMax: ab.max,
			Gender: ranking.GenderAll,
		})
		candidates = append(candidates, Segment{
			Name:   fmt.Sprintf("Age %s, %s", ab.name, d.Gender),
			AgeMin: ab.min,
			AgeMax: ab.max,
			Gender: d.Gender,
		})
	}

	for _, wc := range weightClasses {
		wcMin, wcMax := wc.min, wc.max
		candidates = append(candidates, Segment{
			Name:      fmt.Sprintf("Weight %s", wc.name),
			AgeMin:    minSegmentAge,
			AgeMax:    maxSegmentAge,
			Gender:    ranking.GenderAll,
			WeightMin: &wcMin,
			WeightMax: &wcMax,
		})
		candidates = append(candidates, Segment{
			Name:      fmt.Sprintf("Weight %s, %s", wc.name, d.Gender),
			AgeMin:    minSegmentAge,
			AgeMax:    maxSegmentAge,
			Gender:    d.Gender,
			WeightMin: &wcMin,
			WeightMax: &wcMax,
		})
	}

	exp := d.ExperienceLevel
	candidates = append(candidates, Segment{
		Name:       fmt.Sprintf("%s lifters", exp),
		AgeMin:     minSegmentAge,
		AgeMax:     maxSegmentAge,
		Gender:     ranking.GenderAll,
		Experience: &exp,
	})
	candidates = append(candidates, Segment{
		Name:       fmt.Sprintf("%s %s lifters", exp, d.Gender),
		AgeMin:     minSegmentAge,
		AgeMax:     maxSegmentAge,
		Gender:     d.Gender,
		Experience: &exp,
	})

	// pairwise combinations of {age, weight, experience}, gender-scoped,
	// plus the full combination
	for _, ab := range ageBrackets {
		if d.Age < ab.min || d.Age > ab.max {
			continue
		}
		for _, wc := range weightClasses {
			if d.Weight < wc.min || d.Weight > wc.max {
				continue
			}
			wcMin, wcMax := wc.min, wc.max
			candidates = append(candidates, Segment{
				Name:      fmt.Sprintf("Age %s, weight %s, %s", ab.name, wc.name, d.Gender),
				AgeMin:    ab.min,
				AgeMax:    ab.max,
				Gender:    d.Gender,
				WeightMin: &wcMin,
				WeightMax: &wcMax,
			})
			candidates = append(candidates, Segment{
				Name: fmt.Sprintf("Age %s, weight %s, %s %s lifters",
					ab.name, wc.name, exp, d.Gender),
				AgeMin:     ab.min,
				AgeMax:     ab.max,
				Gender:     d.Gender,
				WeightMin:  &wcMin,
				WeightMax:  &wcMax,
				Experience: &exp,
			})
		}

		candidates = append(candidates, Segment{
			Name:       fmt.Sprintf("Age %s, %s %s lifters", ab.name, exp, d.Gender),
			AgeMin:     ab.min,
			AgeMax:     ab.max,
			Gender:     d.Gender,
			Experience: &exp,
		})
	}
	for _, wc := range weightClasses {
		if d.Weight < wc.min || d.Weight > wc.max {
			continue
		}
		wcMin, wcMax := wc.min, wc.max
		candidates = append(candidates, Segment{
			Name:       fmt.Sprintf("Weight %s, %s %s lifters", wc.name, exp, d.Gender),
			AgeMin:     minSegmentAge,
			AgeMax:     maxSegmentAge,
			Gender:     d.Gender,
			WeightMin:  &wcMin,
			WeightMax:  &wcMax,
			Experience: &exp,
		})
	}

	segments := make([]Segment, 0, len(candidates))
	for _, s := range candidates {
		if !s.Contains(d) {
			continue
		}
		s.ID = buildID(s)
		s.SampleSize = c.estimator.EstimateSampleSize(s)
		segments = append(segments, s)
	}
	return segments
}

// Score computes the quality of a segment for the given user.
func (c *Catalog) Score(s Segment, d ranking.UserDemographics) Quality {
	specificity := c.specificityScore(s)
	sampleSize := c.sampleSizeScore(s)
	relevance := c.relevanceScore(s, d)

	overall := 0.4*specificity + 0.3*sampleSize + 0.3*relevance
	confidence := math.Min(0.95, (specificity+sampleSize)/2)

	return Quality{
		SpecificityScore: specificity,
		SampleSizeScore:  sampleSize,
		RelevanceScore:   relevance,
		OverallQuality:   overall,
		ConfidenceLevel:  confidence,
	}
}

// ScoreAndRank resolves the user's segments, drops those backed by fewer than
// minSampleSize observations, and returns the top maxSegments by overall
// quality. Ties keep resolution order (stable sort).
func (c *Catalog) ScoreAndRank(
	d ranking.UserDemographics,
	maxSegments, minSampleSize int,
) []ScoredSegment {
	scored := c.scoreAll(d, minSampleSize)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Quality.OverallQuality > scored[j].Quality.OverallQuality
	})
	if maxSegments > 0 && len(scored) > maxSegments {
		scored = scored[:maxSegments]
	}
	return scored
}

// MostSpecific is like ScoreAndRank but orders by raw specificity, for
// callers that want the narrowest segments first.
func (c *Catalog) MostSpecific(d ranking.UserDemographics, maxSegments int) []ScoredSegment {
	scored := c.scoreAll(d, 0)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Quality.SpecificityScore > scored[j].Quality.SpecificityScore
	})
	if maxSegments > 0 && len(scored) > maxSegments {
		scored = scored[:maxSegments]
	}
	return scored
}

func (c *Catalog) scoreAll(d ranking.UserDemographics, minSampleSize int) []ScoredSegment {
	resolved := c.Resolve(d)
	scored := make([]ScoredSegment, 0, len(resolved))
	for _, s := range resolved {
		if s.SampleSize < minSampleSize {
			continue
		}
		scored = append(scored, ScoredSegment{
			Segment: s,
			Quality: c.Score(s, d),
		})
	}
	return scored
}

func (c *Catalog) specificityScore(s Segment) float64 {
	criteria := 0
	if s.constrainsAge() {
		criteria++
		if s.AgeMax-s.AgeMin <= narrowAgeSpanYears {
			criteria++
		}
	}
	if s.constrainsWeight() {
		criteria++
		if *s.WeightMax-*s.WeightMin <= narrowWeightSpanKg {
			criteria++
		}
	}
	if s.Gender != ranking.GenderAll {
		criteria++
	}
	if s.Experience != nil {
		criteria++
	}
	return float64(criteria) / maxSpecificityCriteria
}

func (c *Catalog) sampleSizeScore(s Segment) float64 {
	if s.SampleSize <= 0 {
		return 0
	}
	return math.Min(1, float64(s.SampleSize)/float64(c.sampleSizeCeiling))
}

// relevanceScore starts from 1.0, decays with the user's distance from the
// segment's numeric center and rewards exact categorical matches.
func (c *Catalog) relevanceScore(s Segment, d ranking.UserDemographics) float64 {
	score := 1.0

	if s.constrainsAge() {
		mid := float64(s.AgeMin+s.AgeMax) / 2
		dist := math.Abs(float64(d.Age) - mid)
		score *= math.Max(0.1, 1-dist/20)
	}
	if s.constrainsWeight() {
		mid := (*s.WeightMin + *s.WeightMax) / 2
		dist := math.Abs(d.Weight - mid)
		score *= math.Max(0.1, 1-dist/25)
	}

	if s.Gender != ranking.GenderAll {
		if s.Gender == d.Gender {
			score *= 1.2
		} else {
			score *= 0.3
		}
	}
	if s.Experience != nil && *s.Experience == d.ExperienceLevel {
		score *= 1.15
	}

	return math.Max(0, math.Min(1, score))
}
