package segments_test

import (
	"testing"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/segments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testUser() ranking.UserDemographics {
	return ranking.UserDemographics{
		Age:             28,
		Gender:          ranking.GenderMale,
		Weight:          75,
		Height:          180,
		ExperienceLevel: ranking.ExperienceIntermediate,
	}
}

func newTestCatalog() *segments.Catalog {
	return segments.NewCatalog(segments.NewStaticEstimator(segments.DefaultBasePopulation))
}

func TestCatalog_ResolveAlwaysIncludesGlobal(t *testing.T) {
	catalog := newTestCatalog()

	resolved := catalog.Resolve(testUser())
	require.NotEmpty(t, resolved)

	var global *segments.Segment
	for i := range resolved {
		if resolved[i].ID == segments.GlobalSegmentID {
			global = &resolved[i]
			break
		}
	}
	require.NotNil(t, global, "global segment must always be resolved")
	assert.Equal(t, ranking.GenderAll, global.Gender)
}

func TestCatalog_ResolveOnlyContainingSegments(t *testing.T) {
	catalog := newTestCatalog()
	user := testUser()

	for _, s := range catalog.Resolve(user) {
		assert.True(t, s.Contains(user), "resolved segment %q does not contain the user", s.ID)
		assert.NotEmpty(t, s.ID)
		assert.GreaterOrEqual(t, s.SampleSize, 1)
		assert.LessOrEqual(t, s.AgeMin, s.AgeMax)
	}
}

func TestCatalog_DeterministicIDs(t *testing.T) {
	catalog := newTestCatalog()
	user := testUser()

	first := catalog.Resolve(user)
	second := catalog.Resolve(user)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// id is derived from criteria: 25-34 male must show up for a 28yo male
	ids := make(map[string]bool, len(first))
	for _, s := range first {
		ids[s.ID] = true
	}
	assert.True(t, ids["age_25_34_male"], "expected age_25_34_male in %v", ids)
	assert.True(t, ids["weight_70_80_male"])
	assert.True(t, ids["exp_intermediate_male"])
}

func TestCatalog_BoundaryAgesAreInclusive(t *testing.T) {
	catalog := newTestCatalog()

	user := testUser()
	user.Age = 34 // upper bound of the 25-34 bracket

	found := false
	for _, s := range catalog.Resolve(user) {
		if s.ID == "age_25_34" {
			found = true
		}
	}
	assert.True(t, found, "age 34 must still fall into the 25-34 bracket")
}

func TestCatalog_FullComboOutSpecifiesSingleAxis(t *testing.T) {
	catalog := newTestCatalog()
	user := testUser()

	scored := catalog.MostSpecific(user, 0)
	require.NotEmpty(t, scored)

	var fullCombo, ageOnly, global *segments.ScoredSegment
	for i := range scored {
		switch scored[i].Segment.ID {
		case "age_25_34_weight_70_80_exp_intermediate_male":
			fullCombo = &scored[i]
		case "age_25_34":
			ageOnly = &scored[i]
		case segments.GlobalSegmentID:
			global = &scored[i]
		}
	}
	require.NotNil(t, fullCombo)
	require.NotNil(t, ageOnly)
	require.NotNil(t, global)

	assert.Greater(t, fullCombo.Quality.SpecificityScore, ageOnly.Quality.SpecificityScore)
	assert.Greater(t, ageOnly.Quality.SpecificityScore, global.Quality.SpecificityScore)
	assert.Equal(t, 0.0, global.Quality.SpecificityScore)
	assert.Equal(t, 1.0, fullCombo.Quality.SpecificityScore)
}

func TestCatalog_QualityScoresWithinBounds(t *testing.T) {
	catalog := newTestCatalog()

	for _, scored := range catalog.ScoreAndRank(testUser(), 0, 0) {
		q := scored.Quality
		assert.GreaterOrEqual(t, q.SpecificityScore, 0.0)
		assert.LessOrEqual(t, q.SpecificityScore, 1.0)
		assert.GreaterOrEqual(t, q.SampleSizeScore, 0.0)
		assert.LessOrEqual(t, q.SampleSizeScore, 1.0)
		assert.GreaterOrEqual(t, q.RelevanceScore, 0.0)
		assert.LessOrEqual(t, q.RelevanceScore, 1.0)
		assert.GreaterOrEqual(t, q.OverallQuality, 0.0)
		assert.LessOrEqual(t, q.OverallQuality, 1.0)
		assert.LessOrEqual(t, q.ConfidenceLevel, 0.95)
	}
}

func TestCatalog_ScoreAndRankTruncatesAndOrders(t *testing.T) {
	catalog := newTestCatalog()

	scored := catalog.ScoreAndRank(testUser(), 5, 0)
	require.Len(t, scored, 5)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(
			t,
			scored[i-1].Quality.OverallQuality,
			scored[i].Quality.OverallQuality,
		)
	}
}

func TestCatalog_OverallQualityWeights(t *testing.T) {
	catalog := newTestCatalog()
	user := testUser()

	exp := ranking.ExperienceIntermediate
	wMin, wMax := 70.0, 80.0
	s := segments.Segment{
		AgeMin:     25,
		AgeMax:     34,
		Gender:     ranking.GenderMale,
		WeightMin:  &wMin,
		WeightMax:  &wMax,
		Experience: &exp,
		SampleSize: 1500,
	}

	q := catalog.Score(s, user)
	// all six criteria present, sample size saturated above the ceiling
	assert.Equal(t, 1.0, q.SpecificityScore)
	assert.Equal(t, 1.0, q.SampleSizeScore)
	assert.InDelta(t, 0.4*1+0.3*1+0.3*q.RelevanceScore, q.OverallQuality, 0.0001)
	assert.Equal(t, 0.95, q.ConfidenceLevel)
}

func TestSegment_ContainsGenderAndExperience(t *testing.T) {
	exp := ranking.ExperienceAdvanced
	s := segments.Segment{
		AgeMin:     18,
		AgeMax:     24,
		Gender:     ranking.GenderFemale,
		Experience: &exp,
	}

	user := ranking.UserDemographics{
		Age:             20,
		Gender:          ranking.GenderFemale,
		Weight:          60,
		ExperienceLevel: ranking.ExperienceAdvanced,
	}
	assert.True(t, s.Contains(user))

	user.Gender = ranking.GenderMale
	assert.False(t, s.Contains(user))

	user.Gender = ranking.GenderFemale
	user.ExperienceLevel = ranking.ExperienceBeginner
	assert.False(t, s.Contains(user))

	user.ExperienceLevel = ranking.ExperienceAdvanced
	user.Age = 25
	assert.False(t, s.Contains(user))
}
