package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

// ProfileCollection is the part of *mongo.Collection the store uses.
type ProfileCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type profileDocument struct {
	ID                string                  `bson:"_id"`
	Email             string                  `bson:"email"`
	FirstName         string                  `bson:"first_name"`
	LastName          string                  `bson:"last_name"`
	University        string                  `bson:"university"`
	Degree            string                  `bson:"degree"`
	YearOfStudy       int                     `bson:"year_of_study"`
	EnrolledUnits     []models.Unit           `bson:"enrolled_units"`
	AcademicInterests []string                `bson:"academic_interests"`
	StudyPreferences  models.StudyPreferences `bson:"study_preferences"`
	Bio               string                  `bson:"bio"`
	IsActive          bool                    `bson:"is_active"`
	Relations         []relationDocument      `bson:"relations"`
	CreatedAt         time.Time               `bson:"created_at"`
	UpdatedAt         time.Time               `bson:"updated_at"`
}

type relationDocument struct {
	CounterpartID string    `bson:"counterpart_id"`
	Status        string    `bson:"status"`
	Direction     string    `bson:"direction"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d *profileDocument) toModel() (*models.Profile, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing profile id %q: %w", d.ID, err)
	}
	p := &models.Profile{
		ID:                id,
		Email:             d.Email,
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		University:        d.University,
		Degree:            d.Degree,
		YearOfStudy:       d.YearOfStudy,
		EnrolledUnits:     d.EnrolledUnits,
		AcademicInterests: d.AcademicInterests,
		StudyPreferences:  d.StudyPreferences.WithDefaults(),
		Bio:               d.Bio,
		IsActive:          d.IsActive,
		Relations:         make([]models.Relation, 0, len(d.Relations)),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if p.EnrolledUnits == nil {
		p.EnrolledUnits = []models.Unit{}
	}
	if p.AcademicInterests == nil {
		p.AcademicInterests = []string{}
	}
	for _, r := range d.Relations {
		cp, err := uuid.Parse(r.CounterpartID)
		if err != nil {
			return nil, fmt.Errorf("parsing counterpart id %q: %w", r.CounterpartID, err)
		}
		p.Relations = append(p.Relations, models.Relation{
			CounterpartID: cp,
			Status:        models.RelationStatus(r.Status),
			Direction:     models.RelationDirection(r.Direction),
			CreatedAt:     r.CreatedAt,
		})
	}
	return p, nil
}

func toRelationDocument(rel models.Relation) relationDocument {
	return relationDocument{
		CounterpartID: rel.CounterpartID.String(),
		Status:        string(rel.Status),
		Direction:     string(rel.Direction),
		CreatedAt:     rel.CreatedAt,
	}
}

// MongoProfileStore keeps each profile as one document with its relations
// embedded. Writes to a pair of profiles are two independent updates.
type MongoProfileStore struct {
	users ProfileCollection
	now   func() time.Time
}

func NewMongoProfileStore(users ProfileCollection) *MongoProfileStore {
	return &MongoProfileStore{users: users, now: time.Now}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func (s *MongoProfileStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *MongoProfileStore) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.findOne(ctx, bson.M{"_id": id.String(), "is_active": true})
}

func (s *MongoProfileStore) findOne(ctx context.Context, filter bson.M) (*models.Profile, error) {
	var doc profileDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return doc.toModel()
}

func (s *MongoProfileStore) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	result := make(map[uuid.UUID]*models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	profiles, err := s.find(ctx,
		bson.M{"_id": bson.M{"$in": idStrings(ids)}, "is_active": true},
		options.Find().SetProjection(bson.M{"relations": 0}),
	)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

func (s *MongoProfileStore) FindActiveExcluding(ctx context.Context, exclude []uuid.UUID, limit int) ([]*models.Profile, error) {
	opts := options.Find().
		SetProjection(bson.M{"relations": 0}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$nin": idStrings(exclude)}, "is_active": true}, opts)
}

func (s *MongoProfileStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Profile, error) {
	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer cursor.Close(ctx)

	profiles := []*models.Profile{}
	for cursor.Next(ctx) {
		var doc profileDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding profile: %w", err)
		}
		p, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

func (s *MongoProfileStore) AppendRelation(ctx context.Context, ownerID uuid.UUID, rel models.Relation) (bool, error) {
	result, err := s.users.UpdateOne(ctx,
		bson.M{
			"_id":                      ownerID.String(),
			"relations.counterpart_id": bson.M{"$ne": rel.CounterpartID.String()},
		},
		bson.M{
			"$push": bson.M{"relations": toRelationDocument(rel)},
			"$set":  bson.M{"updated_at": s.now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("appending relation: %w", err)
	}
	if result.MatchedCount > 0 {
		return true, nil
	}

	count, err := s.users.CountDocuments(ctx, bson.M{"_id": ownerID.String()})
	if err != nil {
		return false, fmt.Errorf("checking profile: %w", err)
	}
	if count == 0 {
		return false, ErrProfileNotFound
	}
	return false, nil
}

func (s *MongoProfileStore) UpdateRelationStatus(ctx context.Context, ownerID, counterpartID uuid.UUID, expect, to models.RelationStatus) (bool, error) {
	match := bson.M{"counterpart_id": counterpartID.String()}
	if expect != "" {
		match["status"] = string(expect)
	}
	result, err := s.users.UpdateOne(ctx,
		bson.M{"_id": ownerID.String(), "relations": bson.M{"$elemMatch": match}},
		bson.M{"$set": bson.M{
			"relations.$.status": string(to),
			"updated_at":         s.now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("updating relation status: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *MongoProfileStore) RemoveRelation(ctx context.Context, ownerID, counterpartID uuid.UUID) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": ownerID.String()},
		bson.M{
			"$pull": bson.M{"relations": bson.M{"counterpart_id": counterpartID.String()}},
			"$set":  bson.M{"updated_at": s.now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("removing relation: %w", err)
	}
	return nil
}

func searchFilter(filter models.ProfileFilter) bson.M {
	query := bson.M{"is_active": true}
	if filter.University != "" {
		query["university"] = filter.University
	}
	if filter.YearOfStudy != 0 {
		query["year_of_study"] = filter.YearOfStudy
	}
	if filter.UnitCode != "" {
		query["enrolled_units.unit_code"] = models.NormalizeUnitCode(filter.UnitCode)
	}
	if filter.StudyMode != "" {
		query["study_preferences.preferred_study_mode"] = string(filter.StudyMode)
	}
	if filter.GroupSize != "" {
		query["study_preferences.group_size"] = string(filter.GroupSize)
	}
	return query
}

func (s *MongoProfileStore) Search(ctx context.Context, filter models.ProfileFilter) ([]*models.Profile, int, error) {
	query := searchFilter(filter)

	total, err := s.users.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("counting profiles: %w", err)
	}

	opts := options.Find().
		SetProjection(bson.M{"relations": 0}).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))
	profiles, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return profiles, int(total), nil
}

func (s *MongoProfileStore) SearchText(ctx context.Context, query string, limit int) ([]*models.Profile, error) {
	pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
	filter := bson.M{
		"is_active": true,
		"$or": bson.A{
			bson.M{"first_name": pattern},
			bson.M{"last_name": pattern},
			bson.M{"email": pattern},
		},
	}
	opts := options.Find().
		SetProjection(bson.M{"relations": 0}).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

func (s *MongoProfileStore) UpdateProfile(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	set := bson.M{"updated_at": s.now().UTC()}
	if params.FirstName != nil {
		set["first_name"] = *params.FirstName
	}
	if params.LastName != nil {
		set["last_name"] = *params.LastName
	}
	if params.University != nil {
		set["university"] = *params.University
	}
	if params.Degree != nil {
		set["degree"] = *params.Degree
	}
	if params.YearOfStudy != nil {
		set["year_of_study"] = *params.YearOfStudy
	}
	if params.EnrolledUnits != nil {
		set["enrolled_units"] = params.EnrolledUnits
	}
	if params.AcademicInterests != nil {
		set["academic_interests"] = params.AcademicInterests
	}
	if params.StudyPreferences != nil {
		set["study_preferences"] = *params.StudyPreferences
	}
	if params.Bio != nil {
		set["bio"] = *params.Bio
	}

	var doc profileDocument
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "is_active": true},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return doc.toModel()
}

func (s *MongoProfileStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id.String(), "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": s.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("deactivating profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}
