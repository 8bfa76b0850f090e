package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinYearOfStudy = 1
	MaxYearOfStudy = 6
	MaxBioLength   = 500
)

type StudyMode string

const (
	StudyModeOnline   StudyMode = "online"
	StudyModeInPerson StudyMode = "in-person"
	StudyModeHybrid   StudyMode = "hybrid"
	StudyModeFlexible StudyMode = "flexible"
)

type GroupSize string

const (
	GroupSizeOneOnOne   GroupSize = "one-on-one"
	GroupSizeSmallGroup GroupSize = "small-group"
	GroupSizeLargeGroup GroupSize = "large-group"
	GroupSizeAny        GroupSize = "any"
)

type StudyStyle string

const (
	StudyStyleDiscussion StudyStyle = "discussion-based"
	StudyStyleTask       StudyStyle = "task-oriented"
	StudyStyleMixed      StudyStyle = "mixed"
)

const DefaultLanguage = "English"

func (m StudyMode) Valid() bool {
	switch m {
	case StudyModeOnline, StudyModeInPerson, StudyModeHybrid, StudyModeFlexible:
		return true
	}
	return false
}

func (g GroupSize) Valid() bool {
	switch g {
	case GroupSizeOneOnOne, GroupSizeSmallGroup, GroupSizeLargeGroup, GroupSizeAny:
		return true
	}
	return false
}

func (s StudyStyle) Valid() bool {
	switch s {
	case StudyStyleDiscussion, StudyStyleTask, StudyStyleMixed:
		return true
	}
	return false
}

type Unit struct {
	UnitCode string `json:"unit_code" bson:"unit_code"`
	UnitName string `json:"unit_name" bson:"unit_name"`
}

// NormalizeUnitCode trims and uppercases a unit code.
func NormalizeUnitCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type StudyPreferences struct {
	PreferredStudyMode StudyMode  `json:"preferred_study_mode" bson:"preferred_study_mode"`
	GroupSize          GroupSize  `json:"group_size" bson:"group_size"`
	StudyStyle         StudyStyle `json:"study_style" bson:"study_style"`
	LanguagePreference string     `json:"language_preference" bson:"language_preference"`
}

// DefaultStudyPreferences mirrors the defaults a freshly registered profile gets.
func DefaultStudyPreferences() StudyPreferences {
	return StudyPreferences{
		PreferredStudyMode: StudyModeFlexible,
		GroupSize:          GroupSizeAny,
		StudyStyle:         StudyStyleMixed,
		LanguagePreference: DefaultLanguage,
	}
}

// WithDefaults fills every unset preference from DefaultStudyPreferences.
func (p StudyPreferences) WithDefaults() StudyPreferences {
	d := DefaultStudyPreferences()
	if p.PreferredStudyMode == "" {
		p.PreferredStudyMode = d.PreferredStudyMode
	}
	if p.GroupSize == "" {
		p.GroupSize = d.GroupSize
	}
	if p.StudyStyle == "" {
		p.StudyStyle = d.StudyStyle
	}
	if p.LanguagePreference == "" {
		p.LanguagePreference = d.LanguagePreference
	}
	return p
}

type Profile struct {
	ID                uuid.UUID        `json:"id"`
	Email             string           `json:"email"`
	FirstName         string           `json:"first_name"`
	LastName          string           `json:"last_name"`
	University        string           `json:"university"`
	Degree            string           `json:"degree"`
	YearOfStudy       int              `json:"year_of_study"`
	EnrolledUnits     []Unit           `json:"enrolled_units"`
	AcademicInterests []string         `json:"academic_interests"`
	StudyPreferences  StudyPreferences `json:"study_preferences"`
	Bio               string           `json:"bio,omitempty"`
	IsActive          bool             `json:"is_active"`
	Relations         []Relation       `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// RelationTo returns the caller's relation to counterpartID, if any.
func (p *Profile) RelationTo(counterpartID uuid.UUID) (*Relation, bool) {
	for i := range p.Relations {
		if p.Relations[i].CounterpartID == counterpartID {
			return &p.Relations[i], true
		}
	}
	return nil, false
}

// CounterpartIDs lists every user this profile has a relation with, in any status.
func (p *Profile) CounterpartIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Relations))
	for _, r := range p.Relations {
		ids = append(ids, r.CounterpartID)
	}
	return ids
}

// Public strips the fields other users should not see.
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		ID:                p.ID,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		FullName:          p.FullName(),
		University:        p.University,
		Degree:            p.Degree,
		YearOfStudy:       p.YearOfStudy,
		EnrolledUnits:     p.EnrolledUnits,
		AcademicInterests: p.AcademicInterests,
		StudyPreferences:  p.StudyPreferences,
		Bio:               p.Bio,
	}
}

type PublicProfile struct {
	ID                uuid.UUID        `json:"id"`
	FirstName         string           `json:"first_name"`
	LastName          string           `json:"last_name"`
	FullName          string           `json:"full_name"`
	University        string           `json:"university"`
	Degree            string           `json:"degree"`
	YearOfStudy       int              `json:"year_of_study"`
	EnrolledUnits     []Unit           `json:"enrolled_units"`
	AcademicInterests []string         `json:"academic_interests"`
	StudyPreferences  StudyPreferences `json:"study_preferences"`
	Bio               string           `json:"bio,omitempty"`
}

type UpdateProfileParams struct {
	FirstName         *string
	LastName          *string
	University        *string
	Degree            *string
	YearOfStudy       *int
	EnrolledUnits     []Unit
	AcademicInterests []string
	StudyPreferences  *StudyPreferences
	Bio               *string
}

type ProfileFilter struct {
	University  string
	YearOfStudy int
	UnitCode    string
	StudyMode   StudyMode
	GroupSize   GroupSize
	Page        int
	Limit       int
}

type ProfilePage struct {
	Profiles    []PublicProfile `json:"profiles"`
	Total       int             `json:"total"`
	TotalPages  int             `json:"total_pages"`
	CurrentPage int             `json:"current_page"`
}
