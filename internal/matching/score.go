// Package matching ranks study partners by how much they have in common.
package matching

import (
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

// Weights are the points awarded by each compatibility rule.
type Weights struct {
	CommonUnit     int
	CommonInterest int
	StudyMode      int
	GroupSize      int
	SameYear       int
}

var DefaultWeights = Weights{
	CommonUnit:     10,
	CommonInterest: 5,
	StudyMode:      3,
	GroupSize:      2,
	SameYear:       1,
}

type Score struct {
	Value           int
	CommonUnits     []models.Unit
	CommonInterests []string
}

type Engine struct {
	weights Weights
}

func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights}
}

// Default uses DefaultWeights.
func Default() *Engine {
	return NewEngine(DefaultWeights)
}

// Score rates b from a's point of view. The common sets are subsets of a's
// own units and interests, in a's order.
func (e *Engine) Score(a, b *models.Profile) Score {
	s := Score{
		CommonUnits:     CommonUnits(a.EnrolledUnits, b.EnrolledUnits),
		CommonInterests: CommonInterests(a.AcademicInterests, b.AcademicInterests),
	}

	s.Value += e.weights.CommonUnit * len(s.CommonUnits)
	s.Value += e.weights.CommonInterest * len(s.CommonInterests)

	if studyModesCompatible(a.StudyPreferences.PreferredStudyMode, b.StudyPreferences.PreferredStudyMode) {
		s.Value += e.weights.StudyMode
	}
	if groupSizesCompatible(a.StudyPreferences.GroupSize, b.StudyPreferences.GroupSize) {
		s.Value += e.weights.GroupSize
	}
	if a.YearOfStudy == b.YearOfStudy {
		s.Value += e.weights.SameYear
	}

	return s
}

// CommonUnits returns the units in a whose code also appears in b.
func CommonUnits(a, b []models.Unit) []models.Unit {
	codes := make(map[string]struct{}, len(b))
	for _, u := range b {
		codes[u.UnitCode] = struct{}{}
	}

	common := []models.Unit{}
	for _, u := range a {
		if _, ok := codes[u.UnitCode]; ok {
			common = append(common, u)
		}
	}
	return common
}

// CommonInterests returns the interests in a that b shares. Matching is exact
// and case-sensitive.
func CommonInterests(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, i := range b {
		set[i] = struct{}{}
	}

	common := []string{}
	for _, i := range a {
		if _, ok := set[i]; ok {
			common = append(common, i)
		}
	}
	return common
}

func studyModesCompatible(a, b models.StudyMode) bool {
	return a == b || a == models.StudyModeFlexible || b == models.StudyModeFlexible
}

func groupSizesCompatible(a, b models.GroupSize) bool {
	return a == b || a == models.GroupSizeAny || b == models.GroupSizeAny
}
