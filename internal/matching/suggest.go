package matching

import (
	"sort"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

const DefaultSuggestionLimit = 20

type Candidate struct {
	Profile *models.Profile
	Score
}

// Suggest scores every candidate against current and returns the best ones,
// highest score first. Zero scores are dropped. Equal scores keep their pool
// order. The pool must already exclude current, inactive users and anyone
// current has a relation with.
func (e *Engine) Suggest(current *models.Profile, pool []*models.Profile, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	ranked := make([]Candidate, 0, len(pool))
	for _, candidate := range pool {
		score := e.Score(current, candidate)
		if score.Value == 0 {
			continue
		}
		ranked = append(ranked, Candidate{Profile: candidate, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// ToSuggestions converts ranked candidates to their response shape.
func ToSuggestions(ranked []Candidate) []models.Suggestion {
	out := make([]models.Suggestion, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, models.Suggestion{
			User:            c.Profile.Public(),
			MatchScore:      c.Value,
			CommonUnits:     c.CommonUnits,
			CommonInterests: c.CommonInterests,
		})
	}
	return out
}
