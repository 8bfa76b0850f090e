package models

type Suggestion struct {
	User            PublicProfile `json:"user"`
	MatchScore      int           `json:"match_score"`
	CommonUnits     []Unit        `json:"common_units"`
	CommonInterests []string      `json:"common_interests"`
}
