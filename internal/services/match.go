package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/matching"
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
	"github.com/darsh8000an/study-buddy-matcher/internal/notify"
)

const (
	opCreate     = "create"
	opTransition = "transition"

	notifyTimeout = 5 * time.Second
)

type MatchConfig struct {
	SuggestionLimit int
	CandidatePool   int
	MirrorRetries   int
	RetryDelay      time.Duration
}

var DefaultMatchConfig = MatchConfig{
	SuggestionLimit: matching.DefaultSuggestionLimit,
	CandidatePool:   100,
	MirrorRetries:   3,
	RetryDelay:      50 * time.Millisecond,
}

type MatchService struct {
	repo     ProfileRepository
	engine   *matching.Engine
	notifier notify.Sink
	drift    DriftRecorder
	logger   *logging.Logger
	cfg      MatchConfig
	now      func() time.Time
	async    func(fn func())
	asyncCtx context.Context
}

func NewMatchService(repo ProfileRepository, engine *matching.Engine, notifier notify.Sink, drift DriftRecorder, cfg MatchConfig, logger *logging.Logger) *MatchService {
	if engine == nil {
		engine = matching.Default()
	}
	if logger == nil {
		logger = logging.Default
	}
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = DefaultMatchConfig.CandidatePool
	}
	if cfg.MirrorRetries <= 0 {
		cfg.MirrorRetries = 1
	}
	return &MatchService{
		repo:     repo,
		engine:   engine,
		notifier: notifier,
		drift:    drift,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		async: func(fn func()) {
			go fn()
		},
		asyncCtx: context.Background(),
	}
}

// SetAsync replaces the function used to run notification delivery.
func (s *MatchService) SetAsync(fn func(fn func())) {
	s.async = fn
}

// SetAsyncContext sets the parent context for notification delivery.
// Cancelling it abandons deliveries still in flight.
func (s *MatchService) SetAsyncContext(ctx context.Context) {
	if ctx == nil {
		s.asyncCtx = context.Background()
		return
	}
	s.asyncCtx = ctx
}

func (s *MatchService) Suggest(ctx context.Context, userID uuid.UUID) ([]models.Suggestion, error) {
	user, err := s.repo.FindActiveByID(ctx, userID)
	if err != nil {
		return nil, s.profileError(err)
	}

	exclude := append([]uuid.UUID{user.ID}, user.CounterpartIDs()...)
	pool, err := s.repo.FindActiveExcluding(ctx, exclude, s.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	return matching.ToSuggestions(s.engine.Suggest(user, pool, s.cfg.SuggestionLimit)), nil
}

// CreateRequest records a pending request from initiator to recipient on
// both profiles. The returned relation is the recipient's copy.
func (s *MatchService) CreateRequest(ctx context.Context, initiatorID, recipientID uuid.UUID, message string) (*models.Relation, error) {
	if initiatorID == recipientID {
		return nil, ErrSelfRequest
	}

	initiator, err := s.repo.FindActiveByID(ctx, initiatorID)
	if err != nil {
		return nil, s.profileError(err)
	}
	recipient, err := s.repo.FindActiveByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("loading recipient: %w", err)
	}

	if existing, ok := initiator.RelationTo(recipientID); ok {
		return nil, &DuplicateRequestError{Status: existing.Status}
	}
	if existing, ok := recipient.RelationTo(initiatorID); ok {
		return nil, &DuplicateRequestError{Status: existing.Status}
	}

	rel := models.Relation{
		CounterpartID: recipientID,
		Status:        models.RelationStatusPending,
		Direction:     models.RelationOutgoing,
		CreatedAt:     s.now().UTC(),
	}

	if pw, ok := s.repo.(PairWriter); ok {
		if err := pw.CreatePair(ctx, initiatorID, rel); err != nil {
			if errors.Is(err, ErrDuplicateRequest) {
				return nil, err
			}
			return nil, fmt.Errorf("creating match request: %w", err)
		}
	} else if err := s.createBothSides(ctx, initiatorID, rel); err != nil {
		return nil, err
	}

	if strings.TrimSpace(message) == "" {
		message = notify.DefaultRequestMessage
	}
	s.dispatch(recipientID, notify.EventNewMatchRequest, notify.MatchRequestEvent{
		SenderID:   initiatorID,
		SenderName: initiator.FullName(),
		Message:    message,
		Timestamp:  rel.CreatedAt,
	})

	mirror := rel.Mirror(initiatorID)
	return &mirror, nil
}

func (s *MatchService) createBothSides(ctx context.Context, initiatorID uuid.UUID, rel models.Relation) error {
	recipientID := rel.CounterpartID

	added, err := s.repo.AppendRelation(ctx, initiatorID, rel)
	if err != nil {
		return fmt.Errorf("saving match request: %w", err)
	}
	if !added {
		return &DuplicateRequestError{Status: s.existingStatus(ctx, initiatorID, recipientID)}
	}

	mirror := rel.Mirror(initiatorID)
	added, err = s.retry(ctx, func() (bool, error) {
		return s.repo.AppendRelation(ctx, recipientID, mirror)
	})
	if err == nil && added {
		return nil
	}

	// An attempt that reported an error may still have written the mirror,
	// in which case a later attempt finds it in place.
	existing, checkErr := s.relationOf(ctx, recipientID, initiatorID)
	if checkErr == nil && existing != nil && sameRequest(*existing, mirror) {
		return nil
	}

	var cause error
	switch {
	case err != nil:
		cause = fmt.Errorf("saving mirror request: %w", err)
	case existing != nil:
		cause = &DuplicateRequestError{Status: existing.Status}
	default:
		cause = &DuplicateRequestError{Status: models.RelationStatusPending}
	}

	if rmErr := s.repo.RemoveRelation(ctx, initiatorID, recipientID); rmErr != nil {
		s.recordDrift(ctx, models.DriftEntry{
			Op:            opCreate,
			AuthorityID:   recipientID,
			CounterpartID: initiatorID,
			Reason:        rmErr.Error(),
		})
		return &PartialWriteError{Op: opCreate, OwnerID: initiatorID, CounterpartID: recipientID, Err: cause}
	}
	if checkErr != nil {
		// The initiator side is gone but the recipient may still hold the mirror.
		s.recordDrift(ctx, models.DriftEntry{
			Op:            opCreate,
			AuthorityID:   initiatorID,
			CounterpartID: recipientID,
			Reason:        checkErr.Error(),
		})
		return &PartialWriteError{Op: opCreate, OwnerID: recipientID, CounterpartID: initiatorID, Err: cause}
	}
	return cause
}

// relationOf returns owner's relation to counterpart, or nil if there is none.
func (s *MatchService) relationOf(ctx context.Context, ownerID, counterpartID uuid.UUID) (*models.Relation, error) {
	p, err := s.repo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ownerID, err)
	}
	rel, ok := p.RelationTo(counterpartID)
	if !ok {
		return nil, nil
	}
	return rel, nil
}

// sameRequest reports whether stored is the copy of want written by this
// request. Stores keep timestamps at millisecond precision or better.
func sameRequest(stored, want models.Relation) bool {
	return stored.CounterpartID == want.CounterpartID &&
		stored.Direction == want.Direction &&
		stored.Status == want.Status &&
		stored.CreatedAt.Truncate(time.Millisecond).Equal(want.CreatedAt.Truncate(time.Millisecond))
}

// Transition moves the acting user's pending incoming request from
// counterpart to status, then mirrors it on the counterpart.
func (s *MatchService) Transition(ctx context.Context, actingID, counterpartID uuid.UUID, status models.RelationStatus) (*models.Relation, error) {
	if !status.Terminal() {
		return nil, ErrInvalidStatus
	}

	acting, err := s.repo.FindActiveByID(ctx, actingID)
	if err != nil {
		return nil, s.profileError(err)
	}
	rel, ok := acting.RelationTo(counterpartID)
	if !ok || rel.Status != models.RelationStatusPending {
		return nil, ErrRelationNotFound
	}
	if rel.Direction != models.RelationIncoming {
		return nil, ErrNotRecipient
	}

	var mirrored bool
	if pw, ok := s.repo.(PairWriter); ok {
		mirrored, err = pw.TransitionPair(ctx, actingID, counterpartID, status)
		if err != nil {
			if errors.Is(err, ErrRelationNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("updating match request: %w", err)
		}
	} else {
		mirrored, err = s.transitionBothSides(ctx, actingID, counterpartID, status)
		if err != nil {
			return nil, err
		}
	}

	if !mirrored {
		s.logger.Warn("Mirror relation missing", map[string]interface{}{
			"op":             opTransition,
			"owner_id":       counterpartID.String(),
			"counterpart_id": actingID.String(),
		})
		s.recordDrift(ctx, models.DriftEntry{
			Op:            opTransition,
			AuthorityID:   actingID,
			CounterpartID: counterpartID,
			Status:        status,
			Reason:        "mirror relation missing",
		})
	}

	if status == models.RelationStatusAccepted {
		name := acting.FullName()
		s.dispatch(counterpartID, notify.EventMatchAccepted, notify.MatchAcceptedEvent{
			UserID:    actingID,
			UserName:  name,
			Message:   fmt.Sprintf("%s accepted your match request", name),
			Timestamp: s.now().UTC(),
		})
	}

	out := *rel
	out.Status = status
	return &out, nil
}

func (s *MatchService) transitionBothSides(ctx context.Context, actingID, counterpartID uuid.UUID, status models.RelationStatus) (bool, error) {
	updated, err := s.repo.UpdateRelationStatus(ctx, actingID, counterpartID, models.RelationStatusPending, status)
	if err != nil {
		return false, fmt.Errorf("updating match request: %w", err)
	}
	if !updated {
		return false, ErrRelationNotFound
	}

	mirrored, err := s.retry(ctx, func() (bool, error) {
		return s.repo.UpdateRelationStatus(ctx, counterpartID, actingID, "", status)
	})
	if err != nil {
		s.recordDrift(ctx, models.DriftEntry{
			Op:            opTransition,
			AuthorityID:   actingID,
			CounterpartID: counterpartID,
			Status:        status,
			Reason:        err.Error(),
		})
		return false, &PartialWriteError{Op: opTransition, OwnerID: actingID, CounterpartID: counterpartID, Err: err}
	}
	return mirrored, nil
}

// ListRelations returns the user's relations in creation order. An empty
// status returns all of them.
func (s *MatchService) ListRelations(ctx context.Context, userID uuid.UUID, status models.RelationStatus) ([]models.RelationWithProfile, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}

	user, err := s.repo.FindActiveByID(ctx, userID)
	if err != nil {
		return nil, s.profileError(err)
	}

	var selected []models.Relation
	ids := make([]uuid.UUID, 0, len(user.Relations))
	for _, rel := range user.Relations {
		if status != "" && rel.Status != status {
			continue
		}
		selected = append(selected, rel)
		ids = append(ids, rel.CounterpartID)
	}

	results := make([]models.RelationWithProfile, 0, len(selected))
	if len(selected) == 0 {
		return results, nil
	}

	counterparts, err := s.repo.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading counterparts: %w", err)
	}

	for _, rel := range selected {
		item := models.RelationWithProfile{Relation: rel}
		if p, ok := counterparts[rel.CounterpartID]; ok {
			pub := p.Public()
			item.Counterpart = &pub
		}
		results = append(results, item)
	}
	return results, nil
}

// retry runs fn until it succeeds, the attempts run out, or ctx is done.
func (s *MatchService) retry(ctx context.Context, fn func() (bool, error)) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MirrorRetries; attempt++ {
		if attempt > 0 && s.cfg.RetryDelay > 0 {
			timer := time.NewTimer(s.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
		ok, err := fn()
		if err == nil {
			return ok, nil
		}
		lastErr = err
	}
	return false, lastErr
}

func (s *MatchService) existingStatus(ctx context.Context, ownerID, counterpartID uuid.UUID) models.RelationStatus {
	p, err := s.repo.FindByID(ctx, ownerID)
	if err == nil {
		if rel, ok := p.RelationTo(counterpartID); ok {
			return rel.Status
		}
	}
	return models.RelationStatusPending
}

func (s *MatchService) recordDrift(ctx context.Context, entry models.DriftEntry) {
	entry.DetectedAt = s.now().UTC()
	fields := map[string]interface{}{
		"op":             entry.Op,
		"authority_id":   entry.AuthorityID.String(),
		"counterpart_id": entry.CounterpartID.String(),
		"reason":         entry.Reason,
	}
	if s.drift == nil {
		s.logger.Error("Relation drift not recorded: no ledger", fields)
		return
	}
	if err := s.drift.Record(ctx, entry); err != nil {
		fields["error"] = err.Error()
		s.logger.Error("Failed to record relation drift", fields)
		return
	}
	s.logger.Warn("Relation drift recorded", fields)
}

func (s *MatchService) dispatch(target uuid.UUID, event string, payload any) {
	if s.notifier == nil || s.async == nil {
		return
	}

	s.async(func() {
		baseCtx := s.asyncCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		ctx, cancel := context.WithTimeout(baseCtx, notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, target, event, payload); err != nil {
			s.logger.Warn("Failed to deliver notification", map[string]interface{}{
				"event":  event,
				"target": target.String(),
				"error":  err.Error(),
			})
		}
	})
}

func (s *MatchService) profileError(err error) error {
	if errors.Is(err, ErrProfileNotFound) {
		return ErrProfileNotFound
	}
	return fmt.Errorf("loading profile: %w", err)
}
