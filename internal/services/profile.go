package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50

	// SearchResultLimit caps text search results.
	SearchResultLimit = 20
)

var (
	ErrInvalidName       = errors.New("name cannot be empty")
	ErrInvalidYear       = errors.New("year of study must be between 1 and 6")
	ErrInvalidUnit       = errors.New("each unit must have a unit code and unit name")
	ErrBioTooLong        = errors.New("bio cannot exceed 500 characters")
	ErrInvalidStudyMode  = errors.New("invalid study mode")
	ErrInvalidGroupSize  = errors.New("invalid group size")
	ErrInvalidStudyStyle = errors.New("invalid study style")
	ErrEmptySearchQuery  = errors.New("search query is required")
)

type ProfileService struct {
	repo ProfileRepository
}

func NewProfileService(repo ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

func (s *ProfileService) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.FindActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

func (s *ProfileService) GetPublic(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error) {
	profile, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pub := profile.Public()
	return &pub, nil
}

func (s *ProfileService) Search(ctx context.Context, filter models.ProfileFilter) (*models.ProfilePage, error) {
	if filter.StudyMode != "" && !filter.StudyMode.Valid() {
		return nil, ErrInvalidStudyMode
	}
	if filter.GroupSize != "" && !filter.GroupSize.Valid() {
		return nil, ErrInvalidGroupSize
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	filter.University = strings.TrimSpace(filter.University)
	filter.UnitCode = models.NormalizeUnitCode(filter.UnitCode)

	profiles, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}

	page := &models.ProfilePage{
		Profiles:    make([]models.PublicProfile, 0, len(profiles)),
		Total:       total,
		TotalPages:  (total + filter.Limit - 1) / filter.Limit,
		CurrentPage: filter.Page,
	}
	for _, p := range profiles {
		page.Profiles = append(page.Profiles, p.Public())
	}
	return page, nil
}

// SearchText matches query against names and email. It does not page.
func (s *ProfileService) SearchText(ctx context.Context, query string) ([]models.PublicProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptySearchQuery
	}

	profiles, err := s.repo.SearchText(ctx, query, SearchResultLimit)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}

	results := make([]models.PublicProfile, 0, len(profiles))
	for _, p := range profiles {
		results = append(results, p.Public())
	}
	return results, nil
}

// Update validates and normalizes params before saving them. Unset fields
// keep their current value. Empty study preference fields keep the current
// preference.
func (s *ProfileService) Update(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	for _, name := range []*string{params.FirstName, params.LastName} {
		if name == nil {
			continue
		}
		*name = strings.TrimSpace(*name)
		if *name == "" {
			return nil, ErrInvalidName
		}
	}
	if params.YearOfStudy != nil {
		if *params.YearOfStudy < models.MinYearOfStudy || *params.YearOfStudy > models.MaxYearOfStudy {
			return nil, ErrInvalidYear
		}
	}
	if params.Bio != nil {
		*params.Bio = strings.TrimSpace(*params.Bio)
		if utf8.RuneCountInString(*params.Bio) > models.MaxBioLength {
			return nil, ErrBioTooLong
		}
	}
	if params.EnrolledUnits != nil {
		units, err := normalizeUnits(params.EnrolledUnits)
		if err != nil {
			return nil, err
		}
		params.EnrolledUnits = units
	}
	if params.AcademicInterests != nil {
		params.AcademicInterests = normalizeInterests(params.AcademicInterests)
	}

	if params.StudyPreferences != nil {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		merged, err := mergePreferences(current.StudyPreferences, *params.StudyPreferences)
		if err != nil {
			return nil, err
		}
		params.StudyPreferences = &merged
	}

	profile, err := s.repo.UpdateProfile(ctx, id, params)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return profile, nil
}

// Deactivate soft deletes the profile. It disappears from suggestions,
// search and relation listings but its relations are kept.
func (s *ProfileService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("deactivating profile: %w", err)
	}
	return nil
}

func normalizeUnits(units []models.Unit) ([]models.Unit, error) {
	seen := make(map[string]struct{}, len(units))
	out := make([]models.Unit, 0, len(units))
	for _, u := range units {
		code := models.NormalizeUnitCode(u.UnitCode)
		name := strings.TrimSpace(u.UnitName)
		if code == "" || name == "" {
			return nil, ErrInvalidUnit
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, models.Unit{UnitCode: code, UnitName: name})
	}
	return out, nil
}

func normalizeInterests(interests []string) []string {
	seen := make(map[string]struct{}, len(interests))
	out := make([]string, 0, len(interests))
	for _, i := range interests {
		i = strings.TrimSpace(i)
		if i == "" {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

func mergePreferences(current, next models.StudyPreferences) (models.StudyPreferences, error) {
	merged := current
	if next.PreferredStudyMode != "" {
		if !next.PreferredStudyMode.Valid() {
			return merged, ErrInvalidStudyMode
		}
		merged.PreferredStudyMode = next.PreferredStudyMode
	}
	if next.GroupSize != "" {
		if !next.GroupSize.Valid() {
			return merged, ErrInvalidGroupSize
		}
		merged.GroupSize = next.GroupSize
	}
	if next.StudyStyle != "" {
		if !next.StudyStyle.Valid() {
			return merged, ErrInvalidStudyStyle
		}
		merged.StudyStyle = next.StudyStyle
	}
	if lang := strings.TrimSpace(next.LanguagePreference); lang != "" {
		merged.LanguagePreference = lang
	}
	return merged, nil
}
