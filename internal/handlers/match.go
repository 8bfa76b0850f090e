package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
	"github.com/darsh8000an/study-buddy-matcher/internal/services"
)

type MatchHandler struct {
	matchService services.MatchServiceInterface
	logger       *logging.Logger
}

func NewMatchHandler(matchService services.MatchServiceInterface, logger *logging.Logger) *MatchHandler {
	if logger == nil {
		logger = logging.Default
	}
	return &MatchHandler{matchService: matchService, logger: logger}
}

type SendMatchRequest struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

type SuggestionsResponse struct {
	Count       int                 `json:"count"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

type MatchesResponse struct {
	Count   int                          `json:"count"`
	Matches []models.RelationWithProfile `json:"matches"`
}

type RelationResponse struct {
	Relation *models.Relation `json:"relation"`
	Message  string           `json:"message,omitempty"`
}

func (h *MatchHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	suggestions, err := h.matchService.Suggest(r.Context(), userID)
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		h.logger.Error("Error getting suggestions", map[string]interface{}{"user_id": userID.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SuggestionsResponse{Count: len(suggestions), Suggestions: suggestions})
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	status := models.RelationStatus(r.URL.Query().Get("status"))
	matches, err := h.matchService.ListRelations(r.Context(), userID, status)
	if errors.Is(err, services.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		h.logger.Error("Error listing matches", map[string]interface{}{"user_id": userID.String(), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, MatchesResponse{Count: len(matches), Matches: matches})
}

func (h *MatchHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SendMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recipient ID")
		return
	}

	rel, err := h.matchService.CreateRequest(r.Context(), userID, recipientID, req.Message)
	if err != nil {
		h.writeMatchError(w, userID, recipientID, err)
		return
	}

	writeJSON(w, http.StatusCreated, RelationResponse{Relation: rel, Message: "Match request sent"})
}

func (h *MatchHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RelationStatusAccepted, "Match request accepted")
}

func (h *MatchHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RelationStatusDeclined, "Match request declined")
}

func (h *MatchHandler) transition(w http.ResponseWriter, r *http.Request, status models.RelationStatus, message string) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	counterpartID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	rel, err := h.matchService.Transition(r.Context(), userID, counterpartID, status)
	if err != nil {
		h.writeMatchError(w, userID, counterpartID, err)
		return
	}

	writeJSON(w, http.StatusOK, RelationResponse{Relation: rel, Message: message})
}

func (h *MatchHandler) writeMatchError(w http.ResponseWriter, userID, counterpartID uuid.UUID, err error) {
	var dup *services.DuplicateRequestError
	switch {
	case errors.Is(err, services.ErrPartialWrite):
		h.logger.Warn("Match write left pair inconsistent", map[string]interface{}{
			"owner_id":       userID.String(),
			"counterpart_id": counterpartID.String(),
			"error":          err.Error(),
		})
		writeError(w, http.StatusServiceUnavailable, "Match could not be saved, please retry")
	case errors.Is(err, services.ErrSelfRequest):
		writeError(w, http.StatusBadRequest, "Cannot send a match request to yourself")
	case errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, services.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "Recipient not found")
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, services.ErrRelationNotFound):
		writeError(w, http.StatusNotFound, "Match request not found")
	case errors.Is(err, services.ErrNotRecipient):
		writeError(w, http.StatusForbidden, "Only the recipient can respond to this request")
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, "Match request already "+string(dup.Status))
	default:
		h.logger.Error("Error updating match", map[string]interface{}{
			"owner_id":       userID.String(),
			"counterpart_id": counterpartID.String(),
			"error":          err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
