package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

// ProfileReader loads profiles. FindByID and FindActiveByID include the
// profile's relations; the bulk lookups may leave Relations empty.
type ProfileReader interface {
	// FindByID returns the profile whether or not it is active.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error)
	// FindActiveExcluding returns up to limit active profiles whose id is not
	// in exclude, oldest first.
	FindActiveExcluding(ctx context.Context, exclude []uuid.UUID, limit int) ([]*models.Profile, error)
}

// RelationWriter mutates one profile's relation list. Every method touches a
// single record.
type RelationWriter interface {
	// AppendRelation adds rel to owner unless owner already has a relation to
	// rel.CounterpartID. It reports whether the relation was added.
	AppendRelation(ctx context.Context, ownerID uuid.UUID, rel models.Relation) (bool, error)
	// UpdateRelationStatus sets the status of owner's relation to
	// counterpartID if its current status is expect. An empty expect matches
	// any status. It reports whether a relation was updated.
	UpdateRelationStatus(ctx context.Context, ownerID, counterpartID uuid.UUID, expect, to models.RelationStatus) (bool, error)
	RemoveRelation(ctx context.Context, ownerID, counterpartID uuid.UUID) error
}

// ProfileDirectory covers the profile operations outside matching.
type ProfileDirectory interface {
	// Search returns one page of active profiles, newest first, and the total
	// number of matches.
	Search(ctx context.Context, filter models.ProfileFilter) ([]*models.Profile, int, error)
	// SearchText returns up to limit active profiles whose first name, last
	// name or email contains query, ignoring case.
	SearchText(ctx context.Context, query string, limit int) ([]*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type ProfileRepository interface {
	ProfileReader
	RelationWriter
	ProfileDirectory
}

// PairWriter is implemented by repositories that can write both sides of a
// relation atomically. MatchService prefers it over two separate writes.
type PairWriter interface {
	// CreatePair stores rel on initiatorID and its mirror on
	// rel.CounterpartID. It returns a *DuplicateRequestError if either side
	// already has a relation.
	CreatePair(ctx context.Context, initiatorID uuid.UUID, rel models.Relation) error
	// TransitionPair moves the acting user's pending incoming relation and
	// its mirror to status. It reports whether the mirror existed.
	TransitionPair(ctx context.Context, actingID, counterpartID uuid.UUID, to models.RelationStatus) (bool, error)
}

// DriftRecorder remembers pairs whose two sides may disagree.
type DriftRecorder interface {
	Record(ctx context.Context, entry models.DriftEntry) error
}

type DriftLedger interface {
	DriftRecorder
	Pending(ctx context.Context) ([]models.DriftEntry, error)
	Resolve(ctx context.Context, entry models.DriftEntry) error
}

// MatchServiceInterface defines the contract for matching operations.
type MatchServiceInterface interface {
	Suggest(ctx context.Context, userID uuid.UUID) ([]models.Suggestion, error)
	CreateRequest(ctx context.Context, initiatorID, recipientID uuid.UUID, message string) (*models.Relation, error)
	Transition(ctx context.Context, actingID, counterpartID uuid.UUID, status models.RelationStatus) (*models.Relation, error)
	ListRelations(ctx context.Context, userID uuid.UUID, status models.RelationStatus) ([]models.RelationWithProfile, error)
}

// ProfileServiceInterface defines the contract for profile operations.
type ProfileServiceInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetPublic(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error)
	Search(ctx context.Context, filter models.ProfileFilter) (*models.ProfilePage, error)
	SearchText(ctx context.Context, query string) ([]models.PublicProfile, error)
	Update(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// TokenServiceInterface defines the contract for bearer token operations.
type TokenServiceInterface interface {
	IssueToken(userID uuid.UUID) (string, error)
	ValidateToken(token string) (uuid.UUID, error)
}
