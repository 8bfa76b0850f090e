package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

type mockMatchService struct {
	SuggestFunc       func(ctx context.Context, userID uuid.UUID) ([]models.Suggestion, error)
	CreateRequestFunc func(ctx context.Context, initiatorID, recipientID uuid.UUID, message string) (*models.Relation, error)
	TransitionFunc    func(ctx context.Context, actingID, counterpartID uuid.UUID, status models.RelationStatus) (*models.Relation, error)
	ListRelationsFunc func(ctx context.Context, userID uuid.UUID, status models.RelationStatus) ([]models.RelationWithProfile, error)
}

func (m *mockMatchService) Suggest(ctx context.Context, userID uuid.UUID) ([]models.Suggestion, error) {
	if m.SuggestFunc != nil {
		return m.SuggestFunc(ctx, userID)
	}
	return []models.Suggestion{}, nil
}

func (m *mockMatchService) CreateRequest(ctx context.Context, initiatorID, recipientID uuid.UUID, message string) (*models.Relation, error) {
	if m.CreateRequestFunc != nil {
		return m.CreateRequestFunc(ctx, initiatorID, recipientID, message)
	}
	return &models.Relation{}, nil
}

func (m *mockMatchService) Transition(ctx context.Context, actingID, counterpartID uuid.UUID, status models.RelationStatus) (*models.Relation, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, actingID, counterpartID, status)
	}
	return &models.Relation{}, nil
}

func (m *mockMatchService) ListRelations(ctx context.Context, userID uuid.UUID, status models.RelationStatus) ([]models.RelationWithProfile, error) {
	if m.ListRelationsFunc != nil {
		return m.ListRelationsFunc(ctx, userID, status)
	}
	return []models.RelationWithProfile{}, nil
}

type mockProfileService struct {
	GetByIDFunc    func(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetPublicFunc  func(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error)
	SearchFunc     func(ctx context.Context, filter models.ProfileFilter) (*models.ProfilePage, error)
	SearchTextFunc func(ctx context.Context, query string) ([]models.PublicProfile, error)
	UpdateFunc     func(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error)
	DeactivateFunc func(ctx context.Context, id uuid.UUID) error
}

func (m *mockProfileService) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.Profile{ID: id}, nil
}

func (m *mockProfileService) GetPublic(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error) {
	if m.GetPublicFunc != nil {
		return m.GetPublicFunc(ctx, id)
	}
	return &models.PublicProfile{ID: id}, nil
}

func (m *mockProfileService) Search(ctx context.Context, filter models.ProfileFilter) (*models.ProfilePage, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, filter)
	}
	return &models.ProfilePage{Profiles: []models.PublicProfile{}}, nil
}

func (m *mockProfileService) SearchText(ctx context.Context, query string) ([]models.PublicProfile, error) {
	if m.SearchTextFunc != nil {
		return m.SearchTextFunc(ctx, query)
	}
	return []models.PublicProfile{}, nil
}

func (m *mockProfileService) Update(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, params)
	}
	return &models.Profile{ID: id}, nil
}

func (m *mockProfileService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil
}
