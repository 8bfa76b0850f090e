package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
	"github.com/darsh8000an/study-buddy-matcher/internal/services"
)

type ProfileHandler struct {
	profileService services.ProfileServiceInterface
	logger         *logging.Logger
}

func NewProfileHandler(profileService services.ProfileServiceInterface, logger *logging.Logger) *ProfileHandler {
	if logger == nil {
		logger = logging.Default
	}
	return &ProfileHandler{profileService: profileService, logger: logger}
}

type UpdateProfileRequest struct {
	FirstName         *string                  `json:"first_name"`
	LastName          *string                  `json:"last_name"`
	University        *string                  `json:"university"`
	Degree            *string                  `json:"degree"`
	YearOfStudy       *int                     `json:"year_of_study"`
	EnrolledUnits     []models.Unit            `json:"enrolled_units"`
	AcademicInterests []string                 `json:"academic_interests"`
	StudyPreferences  *models.StudyPreferences `json:"study_preferences"`
	Bio               *string                  `json:"bio"`
}

type ProfileResponse struct {
	Profile *models.Profile `json:"profile"`
	Message string          `json:"message,omitempty"`
}

type PublicProfileResponse struct {
	Profile *models.PublicProfile `json:"profile"`
}

// List handles GET /api/users with optional exact-match filters.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	if GetUserIDFromContext(r.Context()) == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	q := r.URL.Query()
	filter := models.ProfileFilter{
		University: q.Get("university"),
		UnitCode:   q.Get("unit"),
		StudyMode:  models.StudyMode(q.Get("mode")),
		GroupSize:  models.GroupSize(q.Get("group_size")),
	}

	var err error
	if filter.YearOfStudy, err = queryInt(q.Get("year")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}
	if filter.Page, err = queryInt(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	page, err := h.profileService.Search(r.Context(), filter)
	if errors.Is(err, services.ErrInvalidStudyMode) {
		writeError(w, http.StatusBadRequest, "Invalid study mode")
		return
	}
	if errors.Is(err, services.ErrInvalidGroupSize) {
		writeError(w, http.StatusBadRequest, "Invalid group size")
		return
	}
	if err != nil {
		h.logger.Error("Error searching profiles", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

type SearchResponse struct {
	Count    int                    `json:"count"`
	Profiles []models.PublicProfile `json:"profiles"`
}

// SearchText handles GET /api/users/search?query=.
func (h *ProfileHandler) SearchText(w http.ResponseWriter, r *http.Request) {
	if GetUserIDFromContext(r.Context()) == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	profiles, err := h.profileService.SearchText(r.Context(), r.URL.Query().Get("query"))
	if errors.Is(err, services.ErrEmptySearchQuery) {
		writeError(w, http.StatusBadRequest, "Please provide a search query")
		return
	}
	if err != nil {
		h.logger.Error("Error searching profiles by text", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Count: len(profiles), Profiles: profiles})
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	if GetUserIDFromContext(r.Context()) == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	profile, err := h.profileService.GetPublic(r.Context(), id)
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("Error getting profile", map[string]interface{}{"user_id": id.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, PublicProfileResponse{Profile: profile})
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	profile, err := h.profileService.GetByID(r.Context(), userID)
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		h.logger.Error("Error getting profile", map[string]interface{}{"user_id": userID.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile})
}

func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := h.profileService.Update(r.Context(), userID, models.UpdateProfileParams{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		University:        req.University,
		Degree:            req.Degree,
		YearOfStudy:       req.YearOfStudy,
		EnrolledUnits:     req.EnrolledUnits,
		AcademicInterests: req.AcademicInterests,
		StudyPreferences:  req.StudyPreferences,
		Bio:               req.Bio,
	})
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("Error updating profile", map[string]interface{}{"user_id": userID.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile, Message: "Profile updated"})
}

func (h *ProfileHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	err := h.profileService.Deactivate(r.Context(), userID)
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		h.logger.Error("Error deactivating profile", map[string]interface{}{"user_id": userID.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account deactivated"})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		services.ErrInvalidName,
		services.ErrInvalidYear,
		services.ErrInvalidUnit,
		services.ErrBioTooLong,
		services.ErrInvalidStudyMode,
		services.ErrInvalidGroupSize,
		services.ErrInvalidStudyStyle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// queryInt parses an optional integer query parameter. Missing means zero.
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
