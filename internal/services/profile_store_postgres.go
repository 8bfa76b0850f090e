package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

const profileColumns = `id, email, first_name, last_name, university, degree, year_of_study,
	enrolled_units, academic_interests, preferred_study_mode, group_size, study_style,
	language_preference, bio, is_active, created_at, updated_at`

// PostgresProfileStore keeps profiles in one table and each side of a
// relation as its own row in match_relations.
type PostgresProfileStore struct {
	db DB
}

func NewPostgresProfileStore(db DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

func (s *PostgresProfileStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (s *PostgresProfileStore) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 AND is_active = true`, id)
}

func (s *PostgresProfileStore) findOne(ctx context.Context, sql string, id uuid.UUID) (*models.Profile, error) {
	profile, err := scanProfile(s.db.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	relations, err := s.relationsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.Relations = relations
	return profile, nil
}

func (s *PostgresProfileStore) relationsOf(ctx context.Context, ownerID uuid.UUID) ([]models.Relation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT counterpart_id, status, direction, created_at
		 FROM match_relations
		 WHERE owner_id = $1
		 ORDER BY seq`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()

	relations := []models.Relation{}
	for rows.Next() {
		var rel models.Relation
		var status, direction string
		if err := rows.Scan(&rel.CounterpartID, &status, &direction, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rel.Status = models.RelationStatus(status)
		rel.Direction = models.RelationDirection(direction)
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relations: %w", err)
	}
	return relations, nil
}

func (s *PostgresProfileStore) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	result := make(map[uuid.UUID]*models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	profiles, err := s.queryProfiles(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1) AND is_active = true`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

func (s *PostgresProfileStore) FindActiveExcluding(ctx context.Context, exclude []uuid.UUID, limit int) ([]*models.Profile, error) {
	if exclude == nil {
		exclude = []uuid.UUID{}
	}
	return s.queryProfiles(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE is_active = true AND NOT (id = ANY($1))
		 ORDER BY created_at ASC, id
		 LIMIT $2`,
		exclude, limit,
	)
}

func (s *PostgresProfileStore) queryProfiles(ctx context.Context, sql string, args ...any) ([]*models.Profile, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

func (s *PostgresProfileStore) AppendRelation(ctx context.Context, ownerID uuid.UUID, rel models.Relation) (bool, error) {
	return insertRelation(ctx, s.db, ownerID, rel)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
}

func insertRelation(ctx context.Context, db execer, ownerID uuid.UUID, rel models.Relation) (bool, error) {
	result, err := db.Exec(ctx,
		`INSERT INTO match_relations (owner_id, counterpart_id, status, direction, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id, counterpart_id) DO NOTHING`,
		ownerID, rel.CounterpartID, string(rel.Status), string(rel.Direction), rel.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting relation: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresProfileStore) UpdateRelationStatus(ctx context.Context, ownerID, counterpartID uuid.UUID, expect, to models.RelationStatus) (bool, error) {
	var (
		result CommandTag
		err    error
	)
	if expect == "" {
		result, err = s.db.Exec(ctx,
			`UPDATE match_relations SET status = $3
			 WHERE owner_id = $1 AND counterpart_id = $2`,
			ownerID, counterpartID, string(to),
		)
	} else {
		result, err = s.db.Exec(ctx,
			`UPDATE match_relations SET status = $3
			 WHERE owner_id = $1 AND counterpart_id = $2 AND status = $4`,
			ownerID, counterpartID, string(to), string(expect),
		)
	}
	if err != nil {
		return false, fmt.Errorf("updating relation status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresProfileStore) RemoveRelation(ctx context.Context, ownerID, counterpartID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM match_relations WHERE owner_id = $1 AND counterpart_id = $2",
		ownerID, counterpartID,
	)
	if err != nil {
		return fmt.Errorf("deleting relation: %w", err)
	}
	return nil
}

// CreatePair writes both sides of a new request in one transaction.
func (s *PostgresProfileStore) CreatePair(ctx context.Context, initiatorID uuid.UUID, rel models.Relation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin match request transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	sides := []struct {
		owner uuid.UUID
		rel   models.Relation
	}{
		{initiatorID, rel},
		{rel.CounterpartID, rel.Mirror(initiatorID)},
	}
	for _, side := range sides {
		added, err := insertRelation(ctx, tx, side.owner, side.rel)
		if err != nil {
			return err
		}
		if !added {
			var status string
			err := tx.QueryRow(ctx,
				"SELECT status FROM match_relations WHERE owner_id = $1 AND counterpart_id = $2",
				side.owner, side.rel.CounterpartID,
			).Scan(&status)
			if err != nil {
				status = string(models.RelationStatusPending)
			}
			return &DuplicateRequestError{Status: models.RelationStatus(status)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit match request: %w", err)
	}
	committed = true
	return nil
}

// TransitionPair updates the acting user's pending incoming relation and its
// mirror in one transaction.
func (s *PostgresProfileStore) TransitionPair(ctx context.Context, actingID, counterpartID uuid.UUID, to models.RelationStatus) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transition transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	result, err := tx.Exec(ctx,
		`UPDATE match_relations SET status = $3
		 WHERE owner_id = $1 AND counterpart_id = $2
		   AND status = 'pending' AND direction = 'incoming'`,
		actingID, counterpartID, string(to),
	)
	if err != nil {
		return false, fmt.Errorf("updating relation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, ErrRelationNotFound
	}

	result, err = tx.Exec(ctx,
		`UPDATE match_relations SET status = $3
		 WHERE owner_id = $1 AND counterpart_id = $2`,
		counterpartID, actingID, string(to),
	)
	if err != nil {
		return false, fmt.Errorf("updating mirror status: %w", err)
	}
	mirrored := result.RowsAffected() > 0

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	committed = true
	return mirrored, nil
}

func (s *PostgresProfileStore) Search(ctx context.Context, filter models.ProfileFilter) ([]*models.Profile, int, error) {
	conditions := []string{"is_active = true"}
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.University != "" {
		add("university = $%d", filter.University)
	}
	if filter.YearOfStudy != 0 {
		add("year_of_study = $%d", filter.YearOfStudy)
	}
	if filter.UnitCode != "" {
		add("enrolled_units @> jsonb_build_array(jsonb_build_object('unit_code', $%d::text))", models.NormalizeUnitCode(filter.UnitCode))
	}
	if filter.StudyMode != "" {
		add("preferred_study_mode = $%d", string(filter.StudyMode))
	}
	if filter.GroupSize != "" {
		add("group_size = $%d", string(filter.GroupSize))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM profiles WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting profiles: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	profiles, err := s.queryProfiles(ctx,
		fmt.Sprintf(`SELECT %s FROM profiles WHERE %s
		 ORDER BY created_at DESC, id
		 LIMIT $%d OFFSET $%d`, profileColumns, where, len(args)+1, len(args)+2),
		pageArgs...,
	)
	if err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresProfileStore) SearchText(ctx context.Context, query string, limit int) ([]*models.Profile, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	return s.queryProfiles(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE is_active = true
		   AND (first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1)
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		pattern, limit,
	)
}

func (s *PostgresProfileStore) UpdateProfile(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	var units []byte
	if params.EnrolledUnits != nil {
		encoded, err := json.Marshal(params.EnrolledUnits)
		if err != nil {
			return nil, fmt.Errorf("encoding units: %w", err)
		}
		units = encoded
	}

	var mode, group, style, language *string
	if prefs := params.StudyPreferences; prefs != nil {
		mode = stringPtr(string(prefs.PreferredStudyMode))
		group = stringPtr(string(prefs.GroupSize))
		style = stringPtr(string(prefs.StudyStyle))
		language = stringPtr(prefs.LanguagePreference)
	}

	profile, err := scanProfile(s.db.QueryRow(ctx,
		`UPDATE profiles SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			university = COALESCE($4, university),
			degree = COALESCE($5, degree),
			year_of_study = COALESCE($6, year_of_study),
			enrolled_units = COALESCE($7::jsonb, enrolled_units),
			academic_interests = COALESCE($8::text[], academic_interests),
			preferred_study_mode = COALESCE($9, preferred_study_mode),
			group_size = COALESCE($10, group_size),
			study_style = COALESCE($11, study_style),
			language_preference = COALESCE($12, language_preference),
			bio = COALESCE($13, bio),
			updated_at = NOW()
		 WHERE id = $1 AND is_active = true
		 RETURNING `+profileColumns,
		id, params.FirstName, params.LastName, params.University, params.Degree, params.YearOfStudy,
		units, params.AcademicInterests, mode, group, style, language, params.Bio,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresProfileStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		"UPDATE profiles SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true",
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivating profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func scanProfile(row Row) (*models.Profile, error) {
	p := &models.Profile{}
	var units []byte
	var mode, group, style string
	err := row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.University, &p.Degree, &p.YearOfStudy,
		&units, &p.AcademicInterests, &mode, &group, &style,
		&p.StudyPreferences.LanguagePreference, &p.Bio, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.EnrolledUnits = []models.Unit{}
	if len(units) > 0 {
		if err := json.Unmarshal(units, &p.EnrolledUnits); err != nil {
			return nil, fmt.Errorf("decoding units: %w", err)
		}
	}
	if p.AcademicInterests == nil {
		p.AcademicInterests = []string{}
	}
	p.StudyPreferences.PreferredStudyMode = models.StudyMode(mode)
	p.StudyPreferences.GroupSize = models.GroupSize(group)
	p.StudyPreferences.StudyStyle = models.StudyStyle(style)
	p.StudyPreferences = p.StudyPreferences.WithDefaults()
	return p, nil
}

func stringPtr(s string) *string {
	return &s
}
