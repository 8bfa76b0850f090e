package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

type fakeDB struct {
	ExecFunc     func(ctx context.Context, sql string, args ...any) (CommandTag, error)
	QueryFunc    func(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) Row
	BeginFunc    func(ctx context.Context) (Tx, error)
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	if f.ExecFunc == nil {
		return fakeCommandTag{}, nil
	}
	return f.ExecFunc(ctx, sql, args...)
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if f.QueryFunc == nil {
		return &fakeRows{}, nil
	}
	return f.QueryFunc(ctx, sql, args...)
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if f.QueryRowFunc == nil {
		return fakeRow{scanFunc: func(dest ...any) error { return errors.New("unexpected QueryRow") }}
	}
	return f.QueryRowFunc(ctx, sql, args...)
}

func (f *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if f.BeginFunc == nil {
		return nil, errors.New("unexpected Begin")
	}
	return f.BeginFunc(ctx)
}

type fakeTx struct {
	ExecFunc     func(ctx context.Context, sql string, args ...any) (CommandTag, error)
	QueryFunc    func(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) Row
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	if f.ExecFunc == nil {
		return fakeCommandTag{}, nil
	}
	return f.ExecFunc(ctx, sql, args...)
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if f.QueryFunc == nil {
		return &fakeRows{}, nil
	}
	return f.QueryFunc(ctx, sql, args...)
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if f.QueryRowFunc == nil {
		return fakeRow{scanFunc: func(dest ...any) error { return errors.New("unexpected QueryRow") }}
	}
	return f.QueryRowFunc(ctx, sql, args...)
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.CommitFunc == nil {
		return nil
	}
	return f.CommitFunc(ctx)
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.RollbackFunc == nil {
		return nil
	}
	return f.RollbackFunc(ctx)
}

type fakeCommandTag struct {
	rowsAffected int64
}

func (f fakeCommandTag) RowsAffected() int64 {
	return f.rowsAffected
}

type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (f fakeRow) Scan(dest ...any) error {
	return f.scanFunc(dest...)
}

func rowFromValues(values ...any) fakeRow {
	return fakeRow{scanFunc: func(dest ...any) error {
		return assignValues(dest, values)
	}}
}

type fakeRows struct {
	rows    [][]any
	idx     int
	err     error
	scanErr error
	closed  bool
}

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	return assignValues(dest, f.rows[f.idx-1])
}

func (f *fakeRows) Close() {
	f.closed = true
}

func (f *fakeRows) Err() error {
	return f.err
}

// assignValues copies each value into the matching destination pointer. A nil
// value zeroes the destination.
func assignValues(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: got %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Ptr || target.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(elem.Type()) {
			if !v.Type().ConvertibleTo(elem.Type()) {
				return fmt.Errorf("scan: cannot assign %T to %s", values[i], elem.Type())
			}
			v = v.Convert(elem.Type())
		}
		elem.Set(v)
	}
	return nil
}

// memoryRepo is an in-memory ProfileRepository. The hooks let tests fail
// individual writes by owner.
type memoryRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
	order    []uuid.UUID

	appendHook func(ownerID uuid.UUID) error
	updateHook func(ownerID uuid.UUID) error
	removeHook func(ownerID uuid.UUID) error
	findHook   func(id uuid.UUID) error

	appendCalls map[uuid.UUID]int
	updateCalls map[uuid.UUID]int
	removeCalls map[uuid.UUID]int
}

func newMemoryRepo(profiles ...*models.Profile) *memoryRepo {
	r := &memoryRepo{
		profiles:    make(map[uuid.UUID]*models.Profile),
		appendCalls: make(map[uuid.UUID]int),
		updateCalls: make(map[uuid.UUID]int),
		removeCalls: make(map[uuid.UUID]int),
	}
	for _, p := range profiles {
		r.add(p)
	}
	return r
}

func (r *memoryRepo) add(p *models.Profile) {
	r.profiles[p.ID] = cloneProfile(p)
	r.order = append(r.order, p.ID)
}

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	c.Relations = append([]models.Relation(nil), p.Relations...)
	c.EnrolledUnits = append([]models.Unit(nil), p.EnrolledUnits...)
	c.AcademicInterests = append([]string(nil), p.AcademicInterests...)
	return &c
}

// relation returns owner's stored relation to counterpart.
func (r *memoryRepo) relation(ownerID, counterpartID uuid.UUID) (models.Relation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[ownerID]
	if !ok {
		return models.Relation{}, false
	}
	rel, ok := p.RelationTo(counterpartID)
	if !ok {
		return models.Relation{}, false
	}
	return *rel, true
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findHook != nil {
		if err := r.findHook(id); err != nil {
			return nil, err
		}
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (r *memoryRepo) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (r *memoryRepo) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*models.Profile)
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok && p.IsActive {
			out[id] = cloneProfile(p)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindActiveExcluding(ctx context.Context, exclude []uuid.UUID, limit int) ([]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*models.Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if skip[id] || !p.IsActive {
			continue
		}
		out = append(out, cloneProfile(p))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) AppendRelation(ctx context.Context, ownerID uuid.UUID, rel models.Relation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendCalls[ownerID]++
	if r.appendHook != nil {
		if err := r.appendHook(ownerID); err != nil {
			return false, err
		}
	}
	p, ok := r.profiles[ownerID]
	if !ok {
		return false, ErrProfileNotFound
	}
	if _, exists := p.RelationTo(rel.CounterpartID); exists {
		return false, nil
	}
	p.Relations = append(p.Relations, rel)
	return true, nil
}

func (r *memoryRepo) UpdateRelationStatus(ctx context.Context, ownerID, counterpartID uuid.UUID, expect, to models.RelationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls[ownerID]++
	if r.updateHook != nil {
		if err := r.updateHook(ownerID); err != nil {
			return false, err
		}
	}
	p, ok := r.profiles[ownerID]
	if !ok {
		return false, nil
	}
	rel, ok := p.RelationTo(counterpartID)
	if !ok || (expect != "" && rel.Status != expect) {
		return false, nil
	}
	rel.Status = to
	return true, nil
}

func (r *memoryRepo) RemoveRelation(ctx context.Context, ownerID, counterpartID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeCalls[ownerID]++
	if r.removeHook != nil {
		if err := r.removeHook(ownerID); err != nil {
			return err
		}
	}
	p, ok := r.profiles[ownerID]
	if !ok {
		return nil
	}
	kept := p.Relations[:0]
	for _, rel := range p.Relations {
		if rel.CounterpartID != counterpartID {
			kept = append(kept, rel)
		}
	}
	p.Relations = kept
	return nil
}

func (r *memoryRepo) Search(ctx context.Context, filter models.ProfileFilter) ([]*models.Profile, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.IsActive {
			continue
		}
		if filter.University != "" && p.University != filter.University {
			continue
		}
		matched = append(matched, cloneProfile(p))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	start := (filter.Page - 1) * filter.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (r *memoryRepo) SearchText(ctx context.Context, query string, limit int) ([]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(query)
	var matched []*models.Profile
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.IsActive {
			continue
		}
		for _, field := range []string{p.FirstName, p.LastName, p.Email} {
			if strings.Contains(strings.ToLower(field), needle) {
				matched = append(matched, cloneProfile(p))
				break
			}
		}
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (r *memoryRepo) UpdateProfile(ctx context.Context, id uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok || !p.IsActive {
		return nil, ErrProfileNotFound
	}
	if params.FirstName != nil {
		p.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		p.LastName = *params.LastName
	}
	if params.YearOfStudy != nil {
		p.YearOfStudy = *params.YearOfStudy
	}
	if params.EnrolledUnits != nil {
		p.EnrolledUnits = params.EnrolledUnits
	}
	if params.AcademicInterests != nil {
		p.AcademicInterests = params.AcademicInterests
	}
	if params.StudyPreferences != nil {
		p.StudyPreferences = *params.StudyPreferences
	}
	if params.Bio != nil {
		p.Bio = *params.Bio
	}
	p.UpdatedAt = time.Now()
	return cloneProfile(p), nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok || !p.IsActive {
		return ErrProfileNotFound
	}
	p.IsActive = false
	return nil
}

type fakeDriftLedger struct {
	mu       sync.Mutex
	entries  map[string]models.DriftEntry
	recorded []models.DriftEntry
	err      error
}

func newFakeDriftLedger() *fakeDriftLedger {
	return &fakeDriftLedger{entries: make(map[string]models.DriftEntry)}
}

func (f *fakeDriftLedger) Record(ctx context.Context, entry models.DriftEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries[entry.Key()] = entry
	f.recorded = append(f.recorded, entry)
	return nil
}

func (f *fakeDriftLedger) Pending(ctx context.Context) ([]models.DriftEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.DriftEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (f *fakeDriftLedger) Resolve(ctx context.Context, entry models.DriftEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.entries[entry.Key()]
	if !ok {
		return nil
	}
	if current != entry {
		return ErrDriftSuperseded
	}
	delete(f.entries, entry.Key())
	return nil
}

type sentNotification struct {
	target  uuid.UUID
	event   string
	payload any
	ctxErr  error
}

type fakeSink struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeSink) Notify(ctx context.Context, target uuid.UUID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{target: target, event: event, payload: payload, ctxErr: ctx.Err()})
	return f.err
}

func newStudent(first string, units ...string) *models.Profile {
	p := &models.Profile{
		ID:               uuid.New(),
		Email:            first + "@example.com",
		FirstName:        first,
		LastName:         "Student",
		University:       "Deakin University",
		YearOfStudy:      2,
		StudyPreferences: models.DefaultStudyPreferences(),
		IsActive:         true,
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, u := range units {
		p.EnrolledUnits = append(p.EnrolledUnits, models.Unit{UnitCode: u, UnitName: u})
	}
	return p
}
