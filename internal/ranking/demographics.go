package ranking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAgeParam     = errors.New("invalid age param")
	ErrInvalidWeightParam  = errors.New("invalid weight param")
	ErrInvalidBodyFatParam = errors.New("invalid body fat param")
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"

	// GenderAll marks a segment that does not constrain gender.
	GenderAll Gender = "all"
)

type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
	ExperienceExpert       ExperienceLevel = "expert"
)

const (
	minAge = 13
	maxAge = 120

	minWeightKg = 30
	maxWeightKg = 300
)

// UserDemographics is an immutable snapshot of the user's demographic
// attributes, supplied by the caller per request. The engine never mutates it.
type UserDemographics struct {
	Age               int             `json:"age"`
	Gender            Gender          `json:"gender"`
	Weight            float64         `json:"weight"` // kg
	Height            float64         `json:"height"` // cm
	ExperienceLevel   ExperienceLevel `json:"experienceLevel"`
	BodyFatPercentage *float64        `json:"bodyFatPercentage,omitempty"`
}

// Normalize tolerates malformed demographics instead of rejecting them:
// out-of-range or missing values are replaced with degraded defaults, and the
// list of adjustments is returned so the caller can log them.
func (d UserDemographics) Normalize() (UserDemographics, []string) {
	var issues []string

	if d.Age < minAge || d.Age > maxAge {
		issues = append(issues, fmt.Sprintf("age %d out of range, using 30", d.Age))
		d.Age = 30
	}

	switch d.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		issues = append(issues, fmt.Sprintf("unknown gender %q, using %q", d.Gender, GenderOther))
		d.Gender = GenderOther
	}

	if d.Weight < minWeightKg || d.Weight > maxWeightKg {
		issues = append(issues, fmt.Sprintf("weight %.1f out of range, using 75", d.Weight))
		d.Weight = 75
	}

	switch d.ExperienceLevel {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced, ExperienceExpert:
	default:
		issues = append(issues,
			fmt.Sprintf("unknown experience level %q, using %q", d.ExperienceLevel, ExperienceBeginner))
		d.ExperienceLevel = ExperienceBeginner
	}

	if d.BodyFatPercentage != nil && (*d.BodyFatPercentage < 0 || *d.BodyFatPercentage > 75) {
		issues = append(issues, fmt.Sprintf("body fat %.1f out of range, dropping", *d.BodyFatPercentage))
		d.BodyFatPercentage = nil
	}

	return d, issues
}
